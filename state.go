package st

import "sync/atomic"

// CoroState is the lifecycle state of a coroutine (spec.md §3).
//
// State machine:
//
//	runnable  → running    [scheduler picks it up]
//	running   → runnable   [ThreadYield]
//	running   → io-wait    [Poll / netfd operation would block]
//	running   → lock-wait  [MutexLock contended]
//	running   → cond-wait  [CondWait / CondTimedWait]
//	running   → sleeping   [Usleep / Sleep, finite timeout]
//	running   → suspended  [Usleep with the no-timeout sentinel]
//	running   → zombie     [exit sequence, joinable or not]
//	(ThreadJoin unlinks a joinable zombie from the zombie queue; its state
//	stays zombie)
//	io-wait/lock-wait/cond-wait/sleeping/suspended → runnable [wakeup or interrupt]
//
// The VP is single-threaded with respect to any one coroutine's state (spec.md
// §5: exactly one goroutine ever touches a VP's scheduling state at a time),
// so every transition below is an unconditional Store from scheduler code
// that already holds exclusive access. There is no CAS race to arbitrate.
type CoroState uint64

const (
	// StateRunnable: on the run queue, waiting for the scheduler.
	StateRunnable CoroState = iota
	// StateRunning: currently executing; at most one per VP.
	StateRunning
	// StateIOWait: suspended inside Poll or a netfd operation.
	StateIOWait
	// StateLockWait: suspended on a contended Mutex.
	StateLockWait
	// StateCondWait: suspended in CondWait/CondTimedWait.
	StateCondWait
	// StateSleeping: suspended in Usleep/Sleep with a finite deadline.
	StateSleeping
	// StateSuspended: suspended with no possible wakeup but interrupt.
	StateSuspended
	// StateZombie: terminated; a joinable one stays on the zombie queue
	// until ThreadJoin collects it.
	StateZombie
)

// String returns a human-readable representation of the state.
func (s CoroState) String() string {
	switch s {
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateIOWait:
		return "io-wait"
	case StateLockWait:
		return "lock-wait"
	case StateCondWait:
		return "cond-wait"
	case StateSleeping:
		return "sleeping"
	case StateSuspended:
		return "suspended"
	case StateZombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// FastState is a lock-free coroutine state holder, cache-line padded to
// avoid false sharing when many coroutine records sit contiguously in a
// goroutine-worker pool.
type FastState struct { // betteralign:ignore
	_ [64]byte      // cache line padding (before value) //nolint:unused
	v atomic.Uint64 // state value
	_ [56]byte      // pad to complete cache line //nolint:unused
}

// NewFastState creates a state holder in StateRunnable.
func NewFastState() *FastState {
	s := &FastState{}
	s.v.Store(uint64(StateRunnable))
	return s
}

// Load returns the current state atomically.
func (s *FastState) Load() CoroState {
	return CoroState(s.v.Load())
}

// Store atomically stores a new state unconditionally.
func (s *FastState) Store(state CoroState) {
	s.v.Store(uint64(state))
}
