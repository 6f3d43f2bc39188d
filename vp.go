// vp.go - the virtual processor: the per-OS-thread scheduler that owns the
// run queue, I/O queue, zombie queue, and timeout heap, and drives the idle
// coroutine's dispatch loop (spec.md §4.6 "Virtual processor").
//
// Grounded on the teacher's loop.go: Run/tick/shutdown becomes the idle
// coroutine's dispatch loop, calculateTimeout becomes the backend dispatch
// timeout policy, and safeExecute becomes coroutine.trampoline's panic
// recovery.
package st

import (
	"sync/atomic"
	"time"
)

var nextVPID atomic.Int64
var nextCoroID atomic.Uint64

// VP is a single virtual processor: one goroutine-scheduling domain with its
// own run queue, I/O queue, zombie queue and timeout heap. All of a VP's
// bookkeeping is mutated by exactly one goroutine at a time, in strict
// alternation enforced by the baton-passing protocol (spec.md §5) — no
// mutex guards these fields.
type VP struct {
	id int64

	pool *stackPool
	opts *vpOptions

	idle *Coroutine

	runQ    listNode[Coroutine]
	zombieQ listNode[Coroutine]
	ioQ     listNode[pollRequest]
	heap    coroHeap

	backend pollBackend

	activeCount int
	closed      bool
	done        chan struct{}

	Metrics *Metrics
}

// Init creates a new VP and wraps the calling goroutine as the primordial
// coroutine (spec.md §4.6 "Init"): the caller continues running as ordinary
// Go code and only enters the scheduler's bookkeeping the first time it
// calls a suspending operation on the returned Coroutine.
func Init(opts ...Option) (*VP, *Coroutine, error) {
	cfg := resolveOptions(opts)

	backend, err := newPollBackend(currentEventSys())
	if err != nil {
		return nil, nil, err
	}
	if err := backend.init(); err != nil {
		return nil, nil, err
	}

	vp := &VP{
		id:      nextVPID.Add(1),
		pool:    newStackPool(),
		opts:    cfg,
		backend: backend,
		done:    make(chan struct{}),
		Metrics: &Metrics{},
	}
	initList(&vp.runQ)
	initList(&vp.zombieQ)
	initList(&vp.ioQ)

	primordial := &Coroutine{
		id:    nextCoroID.Add(1),
		vp:    vp,
		flags: flagPrimordial,
		baton: make(chan struct{}, 1),
	}
	primordial.runLink.owner = primordial
	primordial.waitLink.owner = primordial
	initList(&primordial.waitLink)
	primordial.state.Store(StateRunning)
	vp.activeCount = 1

	vp.idle = vp.newIdleCoroutine()

	vp.logf(LevelInfo, "vp", "initialized", nil)
	return vp, primordial, nil
}

func (vp *VP) newIdleCoroutine() *Coroutine {
	c := &Coroutine{
		id:    nextCoroID.Add(1),
		vp:    vp,
		flags: flagIdle,
		baton: make(chan struct{}, 1),
	}
	c.runLink.owner = c
	c.waitLink.owner = c
	initList(&c.waitLink)
	c.state.Store(StateRunnable)
	c.start = func(self *Coroutine, _ any) any {
		vp.idleLoop(self)
		return nil
	}
	vp.pool.start(c)
	return c
}

func (vp *VP) logf(level LogLevel, category, message string, fields map[string]any) {
	logger := vp.opts.logger
	if logger == nil {
		logger = getGlobalLogger()
	}
	if !logger.IsEnabled(level) {
		return
	}
	logger.Log(LogEntry{
		Level:    level,
		Category: category,
		VPID:     vp.id,
		Message:  message,
		Context:  fields,
	})
}

// ThreadCreate spawns a new coroutine (spec.md §4.6 "Thread create"),
// linking it onto the run queue tail. The new coroutine belongs to vp; any
// coroutine on the same VP may create another.
func (vp *VP) ThreadCreate(start startFunc, arg any, joinable bool) *Coroutine {
	c := &Coroutine{
		id:       nextCoroID.Add(1),
		vp:       vp,
		start:    start,
		arg:      arg,
		joinable: joinable,
		baton:    make(chan struct{}, 1),
	}
	c.runLink.owner = c
	c.waitLink.owner = c
	initList(&c.waitLink)
	if joinable {
		c.joinCond = vp.newCond()
	}
	c.state.Store(StateRunnable)

	vp.activeCount++
	vp.pool.start(c)
	listPushTail(&vp.runQ, &c.runLink)

	vp.logf(LevelDebug, "vp", "thread created", map[string]any{"coroutine": c.id})
	return c
}

// ThreadJoin blocks self until target exits, returning target's return
// value (spec.md §4.6 "Thread join"). target must be joinable and must not
// already have another joiner.
func (vp *VP) ThreadJoin(self, target *Coroutine) (any, error) {
	if !target.joinable {
		return nil, ErrInvalid
	}
	if target == self {
		return nil, ErrDeadlock
	}
	if target.joiner != nil && target.joiner != self {
		return nil, ErrInvalid
	}
	target.joiner = self

	for target.state.Load() != StateZombie {
		if err := vp.condWait(self, target.joinCond, nil, noTimeout); err != nil {
			return nil, err
		}
	}

	ret := target.ret
	listRemove(&target.runLink) // unlink from zombie queue
	return ret, nil
}

// ThreadInterrupt sets target's interrupt flag and, if target is currently
// suspended, makes it runnable so it observes the flag at its next
// suspension point (spec.md §4.6 "Interrupt").
func (vp *VP) ThreadInterrupt(target *Coroutine) {
	target.flags |= flagInterrupt
	vp.wake(target)
}

// ThreadYield suspends self at the back of the run queue, giving every
// other runnable coroutine a turn first (spec.md §4.6 "Yield"). The sleep
// heap is swept first, so timers that have already expired run before self;
// if the run queue is still empty afterwards, ThreadYield returns without
// switching.
func (vp *VP) ThreadYield(self *Coroutine) {
	vp.sweepExpired()
	if listEmpty(&vp.runQ) {
		return
	}
	self.state.Store(StateRunnable)
	listPushTail(&vp.runQ, &self.runLink)
	vp.switchFrom(self)
}

// threadExit runs the exit sequence (spec.md §4.7): store the return value
// (already done by trampoline before calling this), mark c zombie,
// decrement the active count, run key destructors, and, for a joinable
// coroutine, link it onto the zombie queue and wake any joiner; then hand
// control to the scheduler. Unlike switchFrom, threadExit does not
// park c afterward: c is dead and nothing will ever resume it again, so its
// worker goroutine instead falls back out through trampoline and returns
// itself to the pool for reuse (spec.md §4.2). Handing off the baton to
// next before returning preserves the one-goroutine-touches-VP-state-at-a-
// time invariant (spec.md §5): by the time this goroutine's tail (pool
// release, then blocking for its next job) runs, it touches only pool
// bookkeeping, never VP state.
func (vp *VP) threadExit(c *Coroutine, ret any) {
	c.ret = ret
	c.state.Store(StateZombie)
	vp.activeCount--
	vp.runKeyDestructors(c)

	if c.joinable {
		listPushTail(&vp.zombieQ, &c.runLink)
		if c.joinCond != nil {
			vp.condBroadcast(c.joinCond)
		}
	}
	// Unjoinable coroutines vanish immediately: nothing references runLink
	// after this point, so it is simply left unlinked.

	vp.logf(LevelDebug, "vp", "thread exited", map[string]any{"coroutine": c.id})

	next := vp.pickNext()
	callSwitchOut(c)
	callSwitchIn(next)
	next.resume()
}

// switchFrom is the generic suspend primitive used by every blocking
// operation (sync.go's Mutex/Cond, netfd.go's Poll-based retry, ThreadYield
// above): the caller has already updated c's state and linked it onto
// whichever queue is appropriate, and this hands the baton to the next
// runnable coroutine before parking c. Because the next coroutine is
// resumed strictly before c blocks on its own receive, exactly one
// goroutine is ever manipulating VP state at a time (spec.md §5).
func (vp *VP) switchFrom(c *Coroutine) {
	next := vp.pickNext()
	callSwitchOut(c)
	callSwitchIn(next)
	next.resume()
	c.suspend()
}

// pickNext removes and returns the head of the run queue, or the idle
// coroutine if the run queue is empty (spec.md invariant 6).
func (vp *VP) pickNext() *Coroutine {
	if n := listPopHead(&vp.runQ); n != nil {
		n.state.Store(StateRunning)
		return n
	}
	return vp.idle
}

// wake makes a suspended coroutine runnable and pushes it to the run queue
// tail, unlinking it from the sleep heap and from any mutex/cond wait queue.
// A poll request on the I/O queue is not touched here: Poll unlinks it on
// resumption, or resolveReady already has. It is idempotent: waking an
// already-runnable coroutine is a no-op.
func (vp *VP) wake(c *Coroutine) {
	switch c.state.Load() {
	case StateRunnable, StateRunning, StateZombie:
		return
	}
	if c.flags&flagOnSleepQueue != 0 {
		vp.heap.delete(c)
		c.flags &^= flagOnSleepQueue
	}
	listRemove(&c.waitLink)
	c.state.Store(StateRunnable)
	listPushTail(&vp.runQ, &c.runLink)
}

// idleLoop is the idle coroutine's body: compute the next dispatch timeout
// from the sleep heap, block in the I/O backend, sweep expired timers onto
// the run queue, and yield — repeating until no coroutine remains live
// (spec.md §4.6 "Virtual processor" / §4.5 "Event system").
func (vp *VP) idleLoop(self *Coroutine) {
	for vp.activeCount > 0 {
		timeout := vp.calculateTimeout()

		dispatchStart := time.Now()
		ready, err := vp.backend.dispatch(timeout)
		vp.Metrics.Dispatch.Record(time.Since(dispatchStart))
		if err != nil {
			vp.logf(LevelWarn, "poll", "dispatch error", map[string]any{"err": err})
		}
		vp.resolveReady(ready)
		vp.sweepExpired()

		run, io, zombie, heap := vp.queueDepths()
		vp.Metrics.Queue.update(run, io, zombie, heap)

		if listEmpty(&vp.runQ) {
			continue
		}
		self.state.Store(StateRunnable)
		listPushTail(&vp.runQ, &self.runLink)
		vp.switchFrom(self)
	}
	close(vp.done)
}

// calculateTimeout derives the backend dispatch timeout from the earliest
// sleep-heap deadline (spec.md §4.5): a non-empty run queue or a past-due
// deadline means do not wait (noWait); no pending timers means wait
// indefinitely; a deadline less than one millisecond away is rounded up to
// one millisecond, so sub-millisecond waits do not busy-spin.
func (vp *VP) calculateTimeout() time.Duration {
	if listEmpty(&vp.runQ) == false {
		return noWait
	}
	if vp.heap.empty() {
		return noTimeout
	}
	d := vp.heap.min().due.Sub(currentUTime())
	if d <= 0 {
		return noWait
	}
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

// sweepExpired moves every sleep-heap entry whose due time has passed onto
// the run queue, marking it timed out (spec.md §4.4 "deletion... entries
// whose deadline has passed").
func (vp *VP) sweepExpired() {
	now := currentUTime()
	for !vp.heap.empty() {
		c := vp.heap.min()
		if c.due.After(now) {
			return
		}
		vp.heap.delete(c)
		c.flags &^= flagOnSleepQueue
		c.setTimedOut()
		listRemove(&c.waitLink)
		c.state.Store(StateRunnable)
		listPushHead(&vp.runQ, &c.runLink)
	}
}

// resolveReady walks the I/O queue and matches ready descriptors against
// outstanding poll requests, waking any request fully or partially
// satisfied (spec.md §4.8 "Poll").
func (vp *VP) resolveReady(ready []readyEvent) {
	if len(ready) == 0 {
		return
	}
	readyMap := make(map[int]IOEvents, len(ready))
	for _, r := range ready {
		readyMap[r.fd] |= r.events
	}

	var satisfied []*pollRequest
	for n := vp.ioQ.next; n != &vp.ioQ; n = n.next {
		req := n.owner
		hit := false
		for i := range req.fds {
			got, ok := readyMap[req.fds[i].FD]
			if !ok {
				continue
			}
			if got&EventInvalid != 0 {
				// A bad descriptor always wakes its waiter, regardless of
				// which events it actually asked for.
				req.fds[i].Returned = EventInvalid
				hit = true
				continue
			}
			got &= req.fds[i].Events | EventExcept
			if got != 0 {
				req.fds[i].Returned = got
				hit = true
			}
		}
		if hit {
			satisfied = append(satisfied, req)
		}
	}
	for _, req := range satisfied {
		req.onQueue = false
		listRemove(&req.link)
		vp.backend.pollsetDel(req)
		vp.wake(req.coro)
	}
}

func (vp *VP) queueDepths() (run, io, zombie, heap int) {
	for n := vp.runQ.next; n != &vp.runQ; n = n.next {
		run++
	}
	for n := vp.ioQ.next; n != &vp.ioQ; n = n.next {
		io++
	}
	for n := vp.zombieQ.next; n != &vp.zombieQ; n = n.next {
		zombie++
	}
	return run, io, zombie, int(vp.heap.size)
}

// Wait blocks until the VP's active-thread census drops to zero and the
// idle coroutine exits (spec.md §4.6: "when the active count drops to zero
// the process exits"). Embedding programs that never want the scheduler to
// stop simply never call this.
func (vp *VP) Wait() {
	<-vp.done
}

// Close releases the VP's poll backend. Call it after Wait returns.
func (vp *VP) Close() error {
	if vp.closed {
		return nil
	}
	vp.closed = true
	return vp.backend.destroy()
}
