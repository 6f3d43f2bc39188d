package st

import (
	"math"
	"time"
)

// noTimeout is the no-timeout sentinel (spec.md §6): a reserved duration
// meaning "wait forever", distinguishable from any real wait. The original
// C library represents it as -1 microseconds; the Go-native equivalent is
// the maximum representable Duration.
const noTimeout time.Duration = math.MaxInt64

// noWait is the no-wait sentinel: returns immediately without suspending.
const noWait time.Duration = 0

// coroFlags is the flags bitset from spec.md §3.
type coroFlags uint32

const (
	flagPrimordial coroFlags = 1 << iota
	flagIdle
	flagOnSleepQueue
	flagInterrupt
	flagTimedOut
)

// startFunc is the body of a coroutine. It receives its own Coroutine handle
// (spec.md's thread_self(), reinterpreted: rather than an ambient
// thread-local the running coroutine's identity is passed explicitly, the
// idiomatic Go shape for what would otherwise need goroutine-local storage —
// see DESIGN.md) and the argument passed to ThreadCreate, and returns the
// value ThreadJoin will report.
type startFunc func(self *Coroutine, arg any) any

// Coroutine is the runtime's unit of cooperative concurrency (spec.md §3).
// Exactly one Coroutine per VP is in StateRunning at any instant.
type Coroutine struct {
	id    uint64
	vp    *VP
	state FastState
	flags coroFlags

	start startFunc
	arg   any
	ret   any

	// baton is the channel this coroutine blocks receiving on while
	// suspended, and which another coroutine sends to in order to resume
	// it. This is the Go-native realization of the context-switch
	// primitive (spec.md §4.3, reinterpreted per spec.md §9 and
	// DESIGN.md's Open Question decisions): capturing a stack pointer and
	// callee-saved registers is replaced by parking a goroutine on a
	// channel receive, which the Go runtime already does efficiently and
	// safely.
	baton chan struct{}

	// worker is the pooled goroutine driving this coroutine's body. Set
	// once by the stack pool when the coroutine is created, cleared when
	// the coroutine exits and the worker returns to the pool.
	worker *poolWorker

	// due is the absolute wakeup time; left/right/heapIndex position this
	// coroutine within the VP's timeout heap (C4, spec.md §4.4). Valid
	// only while flagOnSleepQueue is set.
	due                 time.Time
	left, right         *Coroutine
	parent              *Coroutine
	heapIndex           uint64
	joinable            bool
	joinCond            *Cond // non-nil iff joinable
	joiner              *Coroutine
	runLink             listNode[Coroutine] // run / zombie queue link (see vp.go)
	waitLink            listNode[Coroutine] // mutex / condvar wait queue
	keys                [MaxKeys]any
	keysSet             [MaxKeys]bool
	blockedOnMutex      *Mutex
	blockedAcquiredLock bool // true once MutexUnlock hands ownership to this waiter
}

// Interrupted reports and clears the interrupt flag; suspension points call
// this immediately after resuming to decide whether to fail with
// ErrInterrupted (spec.md §4.6 "Interrupt").
func (c *Coroutine) Interrupted() bool {
	if c.flags&flagInterrupt != 0 {
		c.flags &^= flagInterrupt
		return true
	}
	return false
}

// TimedOut reports and clears the timed-out flag, set by the VP's sleep
// heap sweep when a timed wait's deadline passes before it is otherwise
// woken.
func (c *Coroutine) TimedOut() bool {
	if c.flags&flagTimedOut != 0 {
		c.flags &^= flagTimedOut
		return true
	}
	return false
}

func (c *Coroutine) setTimedOut() {
	c.flags |= flagTimedOut
}

// suspend is the generic suspend primitive (spec.md §4.6 "Suspend
// (yield)"). Callers must already have set c's state and linked it onto the
// appropriate wait queue (or, for explicit yield, the run queue tail)
// before calling. suspend blocks until some other coroutine resumes this
// one by sending to its baton, then returns.
func (c *Coroutine) suspend() {
	<-c.baton
}

// resume wakes c by sending its baton. Callers pass the coroutine that the
// VP's pickNext has just selected, so c is already off the run queue;
// resume itself only unblocks the parked goroutine so it can run. Sending
// is buffered (capacity 1) so resume never blocks even if c has not yet
// reached its receive.
func (c *Coroutine) resume() {
	select {
	case c.baton <- struct{}{}:
	default:
		// Already has a pending wakeup queued (can happen if interrupt and
		// a genuine wakeup race); baton is a capacity-1 channel so at most
		// one pending wakeup is ever needed.
	}
}

// trampoline is the entry point run by a pool worker for a freshly created
// coroutine. It runs the user function, recovers any panic (a panicking
// coroutine body must not take down the VP's OS thread — grounded on the
// teacher's Loop.safeExecute panic-recovery pattern), stores the return
// value, and falls into the exit sequence (spec.md §4.7 "Exit sequence").
func (c *Coroutine) trampoline() {
	func() {
		defer func() {
			if r := recover(); r != nil {
				c.vp.logf(LevelError, "coroutine", "coroutine panicked", map[string]any{"coroutine": c.id, "panic": r})
				c.ret = nil
			}
		}()
		c.ret = c.start(c, c.arg)
	}()
	c.vp.threadExit(c, c.ret)
}
