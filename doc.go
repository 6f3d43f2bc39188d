// Package st provides a cooperative user-space coroutine runtime modeled on
// the State Threads C library: many lightweight "coroutines" cooperatively
// scheduled onto one goroutine per virtual processor (VP), switching only at
// explicit suspension points (I/O wait, sleep, mutex/condvar wait, explicit
// yield).
//
// # Architecture
//
// A [VP] owns one run queue, one I/O queue, one zombie queue and one
// timeout heap; [Init] creates a VP and turns its caller into the
// primordial [Coroutine]. [VP.ThreadCreate] spawns further coroutines,
// scheduled FIFO off the run queue by the VP's idle coroutine whenever no
// other coroutine is runnable.
//
// Context switches are realized as a goroutine parked on a private,
// capacity-one "baton" channel: suspending means handing the baton to the
// next runnable coroutine and then blocking on one's own receive, which
// guarantees exactly one goroutine is ever mutating a VP's scheduling state
// at a time, without a mutex.
//
// # Platform Support
//
// I/O readiness is implemented using platform-native mechanisms:
//   - Linux: epoll (edge-polling backend)
//   - Darwin: kqueue (level-polling backend, one-shot re-arm)
//   - Linux and Darwin: a select-based portable fallback, forced via
//     [SetEventSys]
//
// The package builds only on Linux and Darwin.
//
// [NetFD] wraps a non-blocking descriptor registered with a VP's backend;
// [VP.Read], [VP.Write], [VP.Readv], [VP.Writev], [VP.Accept] and
// [VP.Connect] transparently suspend the calling coroutine on EAGAIN and
// retry on EINTR.
//
// # Thread Safety
//
// A VP and its coroutines are confined to the goroutines the runtime itself
// spawns; none of VP's methods are safe to call concurrently with each
// other from outside the baton-passing protocol. [VP.ThreadInterrupt] sets
// the target's flags and links it onto the receiver VP's run queue, so it
// is called by a coroutine on the same VP as its target; there is no
// cross-VP operation.
//
// # Usage
//
//	vp, self, err := st.Init()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer vp.Close()
//
//	child := vp.ThreadCreate(func(c *st.Coroutine, arg any) any {
//		fmt.Println("hello from a coroutine")
//		return nil
//	}, nil, true)
//
//	// ThreadJoin suspends self, which lets the scheduler run child.
//	if _, err := vp.ThreadJoin(self, child); err != nil {
//		log.Fatal(err)
//	}
//
// # Error Types
//
// Operations report failure with flat sentinel errors — [ErrTimedOut],
// [ErrInterrupted], [ErrDeadlock], [ErrPermission], [ErrInvalid],
// [ErrBadFD], [ErrTooManyFiles], [ErrKeyExhausted] — or a raw errno from the
// descriptor façade, rather than wrapped error chains.
package st
