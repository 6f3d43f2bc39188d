// sync.go - cooperative synchronization primitives (spec.md §4.7 "Mutex and
// condition variable"): a Mutex with an owner and a FIFO wait queue, a Cond
// whose Wait/TimedWait integrate with the VP's timeout heap, and
// Sleep/Usleep built directly on the same heap.
package st

import "time"

// Mutex is a non-reentrant lock scoped to coroutines on a single VP. Lock
// ordering is FIFO: Unlock hands ownership directly to the longest-waiting
// coroutine rather than letting a later Lock call steal it (spec.md §4.7
// "Mutex").
type Mutex struct {
	owner *Coroutine
	waitQ listNode[Coroutine]
	init  bool
}

func (m *Mutex) ensureInit() {
	if !m.init {
		initList(&m.waitQ)
		m.init = true
	}
}

// NewMutex allocates an unlocked mutex.
func NewMutex() *Mutex {
	m := &Mutex{}
	m.ensureInit()
	return m
}

// Lock blocks self until it owns m. Locking a mutex self already owns
// returns ErrDeadlock instead of re-entering or deadlocking the VP.
func (m *Mutex) Lock(vp *VP, self *Coroutine) error {
	m.ensureInit()
	if m.owner == self {
		return ErrDeadlock
	}
	if m.owner == nil {
		m.owner = self
		return nil
	}

	self.blockedOnMutex = m
	self.blockedAcquiredLock = false
	self.state.Store(StateLockWait)
	listPushTail(&m.waitQ, &self.waitLink)

	vp.switchFrom(self)

	self.blockedOnMutex = nil
	if self.blockedAcquiredLock {
		self.blockedAcquiredLock = false
		return nil
	}
	if self.Interrupted() {
		return ErrInterrupted
	}
	return nil
}

// TryLock acquires m without blocking, reporting whether it succeeded.
func (m *Mutex) TryLock(self *Coroutine) bool {
	m.ensureInit()
	if m.owner != nil {
		return false
	}
	m.owner = self
	return true
}

// Unlock releases m, which self must currently own. If another coroutine is
// waiting, ownership transfers directly to the longest-waiting one, which
// is made runnable (spec.md §4.7).
func (m *Mutex) Unlock(vp *VP, self *Coroutine) error {
	m.ensureInit()
	if m.owner != self {
		return ErrPermission
	}
	next := listPopHead(&m.waitQ)
	if next == nil {
		m.owner = nil
		return nil
	}
	m.owner = next
	next.blockedAcquiredLock = true
	vp.wake(next)
	return nil
}

// Cond is a condition variable whose waiters park on the VP's scheduler
// exactly like any other blocked coroutine; TimedWait additionally links
// the waiter onto the timeout heap so a deadline fires even with no
// Signal/Broadcast (spec.md §4.7 "Condition variable").
type Cond struct {
	waitQ listNode[Coroutine]
	init  bool
}

func (cv *Cond) ensureInit() {
	if !cv.init {
		initList(&cv.waitQ)
		cv.init = true
	}
}

// NewCond allocates a condition variable.
func NewCond() *Cond {
	cv := &Cond{}
	cv.ensureInit()
	return cv
}

func (vp *VP) newCond() *Cond { return NewCond() }

// Wait atomically unlocks mu (if non-nil), blocks self until signaled, and
// re-locks mu before returning. Pass a nil mu to wait on a bare condition
// with no associated lock.
func (cv *Cond) Wait(vp *VP, self *Coroutine, mu *Mutex) error {
	return vp.condWait(self, cv, mu, noTimeout)
}

// TimedWait is Wait with a deadline: if neither Signal nor Broadcast occurs
// within timeout, it returns ErrTimedOut with mu re-locked exactly as on a
// normal wakeup (spec.md §4.7 "the race between a timeout firing and a
// concurrent signal is resolved in the signal's favor if both are already
// pending").
func (cv *Cond) TimedWait(vp *VP, self *Coroutine, mu *Mutex, timeout time.Duration) error {
	return vp.condWait(self, cv, mu, timeout)
}

// Signal wakes at most one waiter, FIFO.
func (cv *Cond) Signal(vp *VP) {
	cv.ensureInit()
	if c := listPopHead(&cv.waitQ); c != nil {
		vp.wake(c)
	}
}

// Broadcast wakes every waiter, FIFO.
func (cv *Cond) Broadcast(vp *VP) {
	cv.ensureInit()
	listForEachRemove(&cv.waitQ, func(c *Coroutine) {
		vp.wake(c)
	})
}

func (vp *VP) condBroadcast(cv *Cond) { cv.Broadcast(vp) }

// condWait is the shared implementation behind Cond.Wait/TimedWait and the
// VP's own internal uses (ThreadJoin's join condition).
func (vp *VP) condWait(self *Coroutine, cv *Cond, mu *Mutex, timeout time.Duration) error {
	cv.ensureInit()

	if mu != nil {
		if err := mu.Unlock(vp, self); err != nil {
			return err
		}
	}

	self.state.Store(StateCondWait)
	listPushTail(&cv.waitQ, &self.waitLink)

	if timeout != noTimeout {
		self.due = currentUTime().Add(timeout)
		self.flags |= flagOnSleepQueue
		vp.heap.insert(self)
	}

	vp.switchFrom(self)

	timedOut := self.TimedOut()
	interrupted := self.Interrupted()

	if mu != nil {
		if lockErr := mu.Lock(vp, self); lockErr != nil {
			return lockErr
		}
	}

	switch {
	case interrupted:
		return ErrInterrupted
	case timedOut:
		return ErrTimedOut
	default:
		return nil
	}
}

// Usleep suspends self for at least d (spec.md §4.7 "Sleep"), returning
// ErrInterrupted if another coroutine interrupts it first. With the
// no-timeout sentinel self is StateSuspended, off the sleep heap, and only an
// interrupt wakes it.
func Usleep(vp *VP, self *Coroutine, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if d == noTimeout {
		self.state.Store(StateSuspended)
	} else {
		self.due = currentUTime().Add(d)
		self.flags |= flagOnSleepQueue
		self.state.Store(StateSleeping)
		vp.heap.insert(self)
	}

	vp.switchFrom(self)

	self.TimedOut()
	if self.Interrupted() {
		return ErrInterrupted
	}
	return nil
}

// Sleep suspends self for the given number of seconds.
func Sleep(vp *VP, self *Coroutine, seconds int) error {
	return Usleep(vp, self, time.Duration(seconds)*time.Second)
}
