package st

import "sync"

// DefaultStackSize is carried over from the original C library's
// ST_DEFAULT_STACK_SIZE (common.h) for API fidelity (spec.md §4.2 "a
// requested usable size, possibly 0 meaning the default"); Go goroutine
// stacks grow on demand, so ThreadCreate takes no stack size and nothing in
// the package reads this constant.
const DefaultStackSize = 128 * 1024

// poolWorker is a long-lived goroutine that runs coroutine bodies handed to
// it one at a time, returning itself to the pool after each one finishes.
// This is the Go-native stand-in for a cached, reusable stack allocation
// (spec.md §4.2): instead of reusing a block of memory, the pool reuses an
// already-running goroutine, which already carries its own (elastic, GC'd)
// stack.
type poolWorker struct {
	jobs chan *Coroutine
}

func (w *poolWorker) loop(pool *stackPool) {
	for c := range w.jobs {
		c.worker = w
		// A fresh or reused worker always waits for the scheduler to grant
		// the baton before running the coroutine's body, exactly like a
		// coroutine that suspended and is waiting to be resumed. This
		// unifies "first run" and "resumed after suspend" into one path.
		c.suspend()
		c.trampoline()
		pool.release(w)
	}
}

// stackPool caches idle worker goroutines for reuse, mirroring the "freed
// stacks are pushed to the free list; allocation reuses the first match"
// policy of spec.md §4.2. Every goroutine is functionally interchangeable
// (Go stacks carry no fixed size or guard pages to match against), so
// "first match" degenerates to "any idle worker."
type stackPool struct {
	mu   sync.Mutex
	free []*poolWorker
}

func newStackPool() *stackPool {
	return &stackPool{}
}

// acquire returns an idle worker from the cache, or spins up a new one if
// the cache is empty.
func (p *stackPool) acquire() *poolWorker {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		w := p.free[n-1]
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return w
	}
	p.mu.Unlock()

	w := &poolWorker{jobs: make(chan *Coroutine)}
	go w.loop(p)
	return w
}

// release returns a worker to the cache once its coroutine has exited.
func (p *stackPool) release(w *poolWorker) {
	p.mu.Lock()
	p.free = append(p.free, w)
	p.mu.Unlock()
}

// freeLen reports the number of idle workers currently cached.
func (p *stackPool) freeLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// start hands the coroutine's body to a worker, pooled or new. The worker
// then waits for c's baton before executing c.trampoline(); c itself is not
// yet runnable from the scheduler's point of view until the caller links it
// onto the run queue (vp.go's ThreadCreate does both atomically).
func (p *stackPool) start(c *Coroutine) {
	w := p.acquire()
	w.jobs <- c
}
