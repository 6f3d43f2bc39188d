package st

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBareCoroutine() *Coroutine {
	c := &Coroutine{baton: make(chan struct{}, 1)}
	c.runLink.owner = c
	c.waitLink.owner = c
	initList(&c.waitLink)
	return c
}

func TestCoroutine_InterruptedReportsAndClears(t *testing.T) {
	c := newBareCoroutine()
	assert.False(t, c.Interrupted())

	c.flags |= flagInterrupt
	assert.True(t, c.Interrupted())
	assert.False(t, c.Interrupted(), "flag must be cleared after the first observation")
}

func TestCoroutine_TimedOutReportsAndClears(t *testing.T) {
	c := newBareCoroutine()
	assert.False(t, c.TimedOut())

	c.setTimedOut()
	assert.True(t, c.TimedOut())
	assert.False(t, c.TimedOut())
}

func TestCoroutine_ResumeIsNonBlockingEvenWhenAlreadyPending(t *testing.T) {
	c := newBareCoroutine()
	// A capacity-1 baton: two resumes before any suspend must not block,
	// and must leave exactly one pending wakeup.
	c.resume()
	c.resume()

	done := make(chan struct{})
	go func() {
		c.suspend()
		close(done)
	}()
	<-done

	select {
	case <-c.baton:
		t.Fatal("expected at most one buffered wakeup")
	default:
	}
}

func TestCoroutine_TrampolineRecoversPanicAndExits(t *testing.T) {
	vp, self := newTestVP(t)

	child := vp.ThreadCreate(func(c *Coroutine, arg any) any {
		panic("boom")
	}, nil, true)

	ret, err := vp.ThreadJoin(self, child)
	assert.NoError(t, err)
	assert.Nil(t, ret)
}
