package st

import (
	"sync"
	"time"
)

// EventSys selects the I/O readiness backend (spec.md §4.5/§6).
type EventSys int

const (
	// EventSysDefault picks the best backend for the host platform: the
	// edge-polling (epoll) backend on Linux, the level-polling (kqueue)
	// backend on Darwin.
	EventSysDefault EventSys = iota
	// EventSysAlternative is a synonym for EventSysDefault, kept for API
	// fidelity with the original library's three-way selector.
	EventSysAlternative
	// EventSysSelect forces the portable select-based backend.
	EventSysSelect
)

var processConfig struct {
	mu           sync.Mutex
	eventSys     EventSys
	utimeFunc    func() time.Time
	randomize    bool
	switchInCB   func(*Coroutine)
	switchOutCB  func(*Coroutine)
}

func init() {
	processConfig.utimeFunc = time.Now
}

// SetEventSys selects the I/O backend before Init (spec.md §6). Calling it
// after Init has no effect on an already-running VP.
func SetEventSys(sys EventSys) {
	processConfig.mu.Lock()
	defer processConfig.mu.Unlock()
	processConfig.eventSys = sys
}

// SetUTimeFunction overrides the clock source used for absolute wakeup
// times; it must be monotonic. Defaults to time.Now.
func SetUTimeFunction(fn func() time.Time) {
	processConfig.mu.Lock()
	defer processConfig.mu.Unlock()
	if fn == nil {
		fn = time.Now
	}
	processConfig.utimeFunc = fn
}

// RandomizeStacks enables or disables per-stack random offsets, returning
// the previous setting. Go goroutine stacks have nothing to randomize (no
// raw stack pointer is exposed), so this is an API-compatible no-op kept
// for fidelity with spec.md §6; it does not change runtime behavior.
func RandomizeStacks(enabled bool) bool {
	processConfig.mu.Lock()
	defer processConfig.mu.Unlock()
	prev := processConfig.randomize
	processConfig.randomize = enabled
	return prev
}

// SetSwitchInCB installs a callback invoked every time a non-idle,
// non-zombie coroutine is about to run (spec.md §6).
func SetSwitchInCB(fn func(*Coroutine)) {
	processConfig.mu.Lock()
	defer processConfig.mu.Unlock()
	processConfig.switchInCB = fn
}

// SetSwitchOutCB installs a callback invoked every time a non-idle,
// non-zombie coroutine is about to be suspended (spec.md §6).
func SetSwitchOutCB(fn func(*Coroutine)) {
	processConfig.mu.Lock()
	defer processConfig.mu.Unlock()
	processConfig.switchOutCB = fn
}

func currentUTime() time.Time {
	processConfig.mu.Lock()
	fn := processConfig.utimeFunc
	processConfig.mu.Unlock()
	return fn()
}

func currentEventSys() EventSys {
	processConfig.mu.Lock()
	defer processConfig.mu.Unlock()
	return processConfig.eventSys
}

func callSwitchIn(c *Coroutine) {
	if c.flags&flagIdle != 0 || c.state.Load() == StateZombie {
		return
	}
	processConfig.mu.Lock()
	fn := processConfig.switchInCB
	processConfig.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func callSwitchOut(c *Coroutine) {
	if c.flags&flagIdle != 0 || c.state.Load() == StateZombie {
		return
	}
	processConfig.mu.Lock()
	fn := processConfig.switchOutCB
	processConfig.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

// vpOptions holds per-VP configuration, resolved by Init's functional
// options (following the teacher's LoopOption pattern in options.go).
type vpOptions struct {
	runQueueChunkSize int
	logger            Logger
	logLevel          LogLevel
}

// Option configures a VP created by Init.
type Option interface {
	apply(*vpOptions)
}

type optionFunc func(*vpOptions)

func (f optionFunc) apply(o *vpOptions) { f(o) }

// WithRunQueueChunkSize records a run-queue capacity hint in the VP's
// options. The run queue is an intrusive list with no backing allocation,
// and nothing in the package reads the value, so it does not change
// scheduling or allocation behavior.
func WithRunQueueChunkSize(n int) Option {
	return optionFunc(func(o *vpOptions) {
		if n > 0 {
			o.runQueueChunkSize = n
		}
	})
}

// WithLogger installs a logger for this VP's lifecycle events, overriding
// the package-level global logger for events emitted through it.
func WithLogger(logger Logger, level LogLevel) Option {
	return optionFunc(func(o *vpOptions) {
		o.logger = logger
		o.logLevel = level
	})
}

func resolveOptions(opts []Option) *vpOptions {
	cfg := &vpOptions{runQueueChunkSize: 64}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
