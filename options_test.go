package st

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveOptions_DefaultsWhenNoneGiven(t *testing.T) {
	cfg := resolveOptions(nil)
	assert.Equal(t, 64, cfg.runQueueChunkSize)
	assert.Nil(t, cfg.logger)
}

func TestWithRunQueueChunkSize_IgnoresNonPositive(t *testing.T) {
	cfg := resolveOptions([]Option{WithRunQueueChunkSize(0), WithRunQueueChunkSize(-5)})
	assert.Equal(t, 64, cfg.runQueueChunkSize)

	cfg = resolveOptions([]Option{WithRunQueueChunkSize(128)})
	assert.Equal(t, 128, cfg.runQueueChunkSize)
}

func TestWithLogger_InstallsLoggerAndLevel(t *testing.T) {
	logger := NewNoOpLogger()
	cfg := resolveOptions([]Option{WithLogger(logger, LevelWarn)})
	assert.Same(t, Logger(logger), cfg.logger)
	assert.Equal(t, LevelWarn, cfg.logLevel)
}

func TestResolveOptions_SkipsNilOption(t *testing.T) {
	cfg := resolveOptions([]Option{nil, WithRunQueueChunkSize(10)})
	assert.Equal(t, 10, cfg.runQueueChunkSize)
}

func TestSetUTimeFunction_OverridesClockSource(t *testing.T) {
	fixed := time.Unix(1000, 0)
	SetUTimeFunction(func() time.Time { return fixed })
	t.Cleanup(func() { SetUTimeFunction(nil) })

	assert.Equal(t, fixed, currentUTime())
}

func TestSetUTimeFunction_NilRestoresRealClock(t *testing.T) {
	SetUTimeFunction(func() time.Time { return time.Unix(0, 0) })
	SetUTimeFunction(nil)
	t.Cleanup(func() { SetUTimeFunction(nil) })

	assert.WithinDuration(t, time.Now(), currentUTime(), time.Second)
}

func TestRandomizeStacks_IsANoOpTogglePreservingState(t *testing.T) {
	prev := RandomizeStacks(true)
	defer RandomizeStacks(prev)

	was := RandomizeStacks(false)
	assert.True(t, was)
}

func TestSwitchCallbacks_AreInvokedAroundSuspend(t *testing.T) {
	vp, self := newTestVP(t)

	var in, out []uint64
	SetSwitchInCB(func(c *Coroutine) { in = append(in, c.id) })
	SetSwitchOutCB(func(c *Coroutine) { out = append(out, c.id) })
	t.Cleanup(func() {
		SetSwitchInCB(nil)
		SetSwitchOutCB(nil)
	})

	child := vp.ThreadCreate(func(c *Coroutine, arg any) any { return nil }, nil, true)
	_, err := vp.ThreadJoin(self, child)
	assert.NoError(t, err)

	assert.Contains(t, in, child.id)
	assert.Contains(t, out, self.id)
}
