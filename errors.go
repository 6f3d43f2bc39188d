package st

import "errors"

// Sentinel errors returned by the runtime's public API. Every operation
// fails with exactly one of these (or a raw, unwrapped unix.Errno from the
// descriptor façade) — there are no stacked error contexts (spec.md §7).
// Compare with errors.Is, never by string.
var (
	// ErrTimedOut is returned by any operation that specified a non-infinite
	// timeout whose sleep-heap entry fired before the operation completed.
	ErrTimedOut = errors.New("st: timed out")

	// ErrInterrupted is returned when a coroutine's interrupt flag was set
	// and observed at a suspension point. The flag is cleared on observation.
	ErrInterrupted = errors.New("st: interrupted")

	// ErrDeadlock is returned by MutexLock when the caller already owns the
	// mutex, and by ThreadJoin when a coroutine attempts to join itself.
	ErrDeadlock = errors.New("st: deadlock would occur")

	// ErrPermission is returned by MutexUnlock when the caller does not own
	// the mutex.
	ErrPermission = errors.New("st: not the owner")

	// ErrBusy reports a resource that is still in use. No operation in this
	// package returns it: Mutex.TryLock reports an owned mutex as a false
	// result, NetFD.Close does not check for outstanding poll interest, and
	// there are no mutex or cond destroy operations.
	ErrBusy = errors.New("st: resource busy")

	// ErrInvalid is returned for misuse: joining a non-joinable coroutine,
	// a second joiner racing the first, or a key outside [0, MaxKeys) passed
	// to ThreadSetspecific. A negative TimedWait timeout is not rejected; it
	// expires at the next sleep-heap sweep and reports ErrTimedOut.
	ErrInvalid = errors.New("st: invalid argument")

	// ErrKeyExhausted is returned by KeyCreate once MaxKeys keys exist.
	ErrKeyExhausted = errors.New("st: no more keys available")

	// ErrBadFD is returned by Poll (and the NetFD operations that wait
	// through it) when the poll backend reports a polled descriptor as
	// EventInvalid, typically because it was closed while being waited on.
	ErrBadFD = errors.New("st: bad file descriptor")

	// ErrTooManyFiles is returned by NewNetFD (and so by Accept and Open)
	// when the descriptor number is at or past the backend's fdGetLimit.
	ErrTooManyFiles = errors.New("st: too many open files")

	// ErrClosed names a closed virtual processor. No operation in this
	// package returns it: VP.Close releases the poll backend, and later
	// calls on the VP are not rejected.
	ErrClosed = errors.New("st: virtual processor closed")

	// ErrNotInitialized names use of the runtime before Init. No operation
	// in this package returns it; every VP method needs the *VP that Init
	// returns.
	ErrNotInitialized = errors.New("st: runtime not initialized")
)
