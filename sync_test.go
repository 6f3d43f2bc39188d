package st

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutex_TryLockAndUnlock(t *testing.T) {
	_, self := newTestVP(t)
	m := NewMutex()

	assert.True(t, m.TryLock(self))
	assert.False(t, m.TryLock(self))
}

func TestMutex_LockSelfDeadlock(t *testing.T) {
	vp, self := newTestVP(t)
	m := NewMutex()
	require.NoError(t, m.Lock(vp, self))
	assert.ErrorIs(t, m.Lock(vp, self), ErrDeadlock)
}

func TestMutex_UnlockByNonOwnerFails(t *testing.T) {
	vp, self := newTestVP(t)
	m := NewMutex()
	require.True(t, m.TryLock(self))

	other := vp.ThreadCreate(func(c *Coroutine, arg any) any {
		return m.Unlock(vp, c)
	}, nil, true)
	ret, err := vp.ThreadJoin(self, other)
	require.NoError(t, err)
	assert.ErrorIs(t, ret.(error), ErrPermission)
}

func TestMutex_ContendedLockHandsOffFIFO(t *testing.T) {
	vp, self := newTestVP(t)
	m := NewMutex()
	require.NoError(t, m.Lock(vp, self))

	var order []int
	mk := func(id int) *Coroutine {
		return vp.ThreadCreate(func(c *Coroutine, arg any) any {
			require.NoError(t, m.Lock(vp, c))
			order = append(order, id)
			require.NoError(t, m.Unlock(vp, c))
			return nil
		}, nil, true)
	}

	c1 := mk(1)
	c2 := mk(2)
	c3 := mk(3)

	// Give each child a chance to queue up behind self's held lock before
	// releasing it.
	vp.ThreadYield(self)
	vp.ThreadYield(self)

	require.NoError(t, m.Unlock(vp, self))

	for _, c := range []*Coroutine{c1, c2, c3} {
		_, err := vp.ThreadJoin(self, c)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestCond_SignalWakesOneWaiterFIFO(t *testing.T) {
	vp, self := newTestVP(t)
	m := NewMutex()
	cv := NewCond()
	require.NoError(t, m.Lock(vp, self))

	var order []int
	mk := func(id int) *Coroutine {
		return vp.ThreadCreate(func(c *Coroutine, arg any) any {
			require.NoError(t, m.Lock(vp, c))
			require.NoError(t, cv.Wait(vp, c, m))
			order = append(order, id)
			require.NoError(t, m.Unlock(vp, c))
			return nil
		}, nil, true)
	}

	c1 := mk(1)
	c2 := mk(2)
	require.NoError(t, m.Unlock(vp, self))

	// Let both waiters reach cv.Wait.
	vp.ThreadYield(self)
	vp.ThreadYield(self)

	require.NoError(t, m.Lock(vp, self))
	cv.Signal(vp)
	require.NoError(t, m.Unlock(vp, self))
	_, err := vp.ThreadJoin(self, c1)
	require.NoError(t, err)

	require.NoError(t, m.Lock(vp, self))
	cv.Signal(vp)
	require.NoError(t, m.Unlock(vp, self))
	_, err = vp.ThreadJoin(self, c2)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, order)
}

func TestCond_BroadcastWakesAllWaiters(t *testing.T) {
	vp, self := newTestVP(t)
	m := NewMutex()
	cv := NewCond()

	const n = 4
	children := make([]*Coroutine, n)
	for i := 0; i < n; i++ {
		children[i] = vp.ThreadCreate(func(c *Coroutine, arg any) any {
			require.NoError(t, m.Lock(vp, c))
			err := cv.Wait(vp, c, m)
			require.NoError(t, m.Unlock(vp, c))
			return err
		}, nil, true)
	}

	for i := 0; i < n; i++ {
		vp.ThreadYield(self)
	}

	require.NoError(t, m.Lock(vp, self))
	cv.Broadcast(vp)
	require.NoError(t, m.Unlock(vp, self))

	for _, c := range children {
		ret, err := vp.ThreadJoin(self, c)
		require.NoError(t, err)
		assert.Nil(t, ret)
	}
}

func TestCond_TimedWaitExpiresWithoutSignal(t *testing.T) {
	vp, self := newTestVP(t)
	m := NewMutex()
	cv := NewCond()

	child := vp.ThreadCreate(func(c *Coroutine, arg any) any {
		require.NoError(t, m.Lock(vp, c))
		err := cv.TimedWait(vp, c, m, 5*time.Millisecond)
		require.NoError(t, m.Unlock(vp, c))
		return err
	}, nil, true)

	ret, err := vp.ThreadJoin(self, child)
	require.NoError(t, err)
	assert.ErrorIs(t, ret.(error), ErrTimedOut)
}

func TestCond_SignalBeforeTimeoutWins(t *testing.T) {
	vp, self := newTestVP(t)
	m := NewMutex()
	cv := NewCond()

	child := vp.ThreadCreate(func(c *Coroutine, arg any) any {
		require.NoError(t, m.Lock(vp, c))
		err := cv.TimedWait(vp, c, m, time.Hour)
		require.NoError(t, m.Unlock(vp, c))
		return err
	}, nil, true)

	vp.ThreadYield(self) // let child reach TimedWait

	require.NoError(t, m.Lock(vp, self))
	cv.Signal(vp)
	require.NoError(t, m.Unlock(vp, self))

	ret, err := vp.ThreadJoin(self, child)
	require.NoError(t, err)
	assert.Nil(t, ret, "a nil error return reaches ThreadJoin as a nil value")
}

func TestUsleep_ZeroDurationDoesNotBlock(t *testing.T) {
	vp, self := newTestVP(t)
	assert.NoError(t, Usleep(vp, self, 0))
}

func TestSleep_ConvertsSecondsToDuration(t *testing.T) {
	vp, self := newTestVP(t)
	start := time.Now()
	require.NoError(t, Sleep(vp, self, 0))
	assert.Less(t, time.Since(start), time.Second)
}
