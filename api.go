// api.go - small additions to the public surface that don't belong in any
// single component file: explicit early exit, and introspection helpers
// used by callers (and this package's own tests) to observe scheduler
// state without reaching into VP internals.
package st

// ThreadExit terminates self immediately with the given return value,
// running the exit sequence (spec.md §4.7) without requiring self's start
// function to return normally. It never returns to the caller: unlike
// trampoline's tail call into threadExit (where the goroutine's own
// function body has already returned and falling out into the pool is
// safe), a caller invoking ThreadExit mid-body is still executing, so this
// parks that goroutine on its own baton forever after the handoff rather
// than letting it fall back into user code.
func (vp *VP) ThreadExit(self *Coroutine, ret any) {
	vp.threadExit(self, ret)
	<-self.baton
}

// ActiveCount reports the number of live (non-idle, non-zombie) coroutines
// on vp (spec.md §4.6's active-thread census).
func (vp *VP) ActiveCount() int {
	return vp.activeCount
}

// QueueDepths reports the current size of the run, I/O, zombie and
// timeout-heap queues, primarily useful for tests and metrics.
func (vp *VP) QueueDepths() (run, io, zombie, heap int) {
	return vp.queueDepths()
}
