package st

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestPipe(t *testing.T, vp *VP) (*NetFD, *NetFD) {
	t.Helper()
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))

	r, err := NewNetFD(vp, fds[0])
	require.NoError(t, err)
	w, err := NewNetFD(vp, fds[1])
	require.NoError(t, err)

	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestNetFD_ReadBlocksUntilWriterSuspends(t *testing.T) {
	vp, self := newTestVP(t)
	r, w := newTestPipe(t, vp)

	writer := vp.ThreadCreate(func(c *Coroutine, arg any) any {
		n, err := vp.Write(c, w, []byte("hi"), noTimeout)
		require.NoError(t, err)
		return n
	}, nil, true)

	buf := make([]byte, 16)
	n, err := vp.Read(self, r, buf, noTimeout)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))

	_, err = vp.ThreadJoin(self, writer)
	require.NoError(t, err)
}

func TestNetFD_ReadTimesOutOnEmptyPipe(t *testing.T) {
	vp, self := newTestVP(t)
	r, _ := newTestPipe(t, vp)

	buf := make([]byte, 16)
	_, err := vp.Read(self, r, buf, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimedOut)
}

func TestNetFD_ReadInterruptedWhileWaiting(t *testing.T) {
	vp, self := newTestVP(t)
	r, _ := newTestPipe(t, vp)

	result := make(chan error, 1)
	reader := vp.ThreadCreate(func(c *Coroutine, arg any) any {
		buf := make([]byte, 16)
		_, err := vp.Read(c, r, buf, noTimeout)
		result <- err
		return nil
	}, nil, true)

	vp.ThreadYield(self) // let reader reach the blocking read
	vp.ThreadInterrupt(reader)

	_, err := vp.ThreadJoin(self, reader)
	require.NoError(t, err)
	assert.ErrorIs(t, <-result, ErrInterrupted)
}

func TestPoll_ReportsWritableImmediately(t *testing.T) {
	vp, self := newTestVP(t)
	_, w := newTestPipe(t, vp)

	fds := []PollFD{{FD: w.Fd(), Events: EventWrite}}
	n, err := vp.Poll(self, fds, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotZero(t, fds[0].Returned&EventWrite)
}

func TestPoll_ZeroFDsStillHonorsTimeout(t *testing.T) {
	vp, self := newTestVP(t)
	n, err := vp.Poll(self, nil, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPoll_ZeroFDsInterruptible(t *testing.T) {
	vp, self := newTestVP(t)

	result := make(chan error, 1)
	child := vp.ThreadCreate(func(c *Coroutine, arg any) any {
		_, err := vp.Poll(c, nil, time.Hour)
		result <- err
		return nil
	}, nil, true)

	vp.ThreadYield(self) // let the child reach Poll before interrupting it
	vp.ThreadInterrupt(child)

	_, err := vp.ThreadJoin(self, child)
	require.NoError(t, err)
	assert.ErrorIs(t, <-result, ErrInterrupted)
}

func TestNewNetFD_RejectsDescriptorAtLimit(t *testing.T) {
	vp, _ := newTestVP(t)
	_, err := NewNetFD(vp, vp.backend.fdGetLimit())
	assert.ErrorIs(t, err, ErrTooManyFiles)
}

func TestPoll_BadDescriptorWakesWithError(t *testing.T) {
	vp, self := newTestVP(t)
	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))

	nf, err := NewNetFD(vp, fds[0])
	require.NoError(t, err)
	require.NoError(t, unix.Close(fds[1]))
	require.NoError(t, unix.Close(fds[0])) // nf.fd is now a bad descriptor

	req := []PollFD{{FD: nf.Fd(), Events: EventRead}}
	_, err = vp.Poll(self, req, time.Second)
	assert.ErrorIs(t, err, ErrBadFD)
}

func TestWritevReadv_RoundTrip(t *testing.T) {
	vp, self := newTestVP(t)
	r, w := newTestPipe(t, vp)

	writer := vp.ThreadCreate(func(c *Coroutine, arg any) any {
		iovs := [][]byte{[]byte("ab"), []byte("cd")}
		n, err := vp.Writev(c, w, iovs, noTimeout)
		require.NoError(t, err)
		return n
	}, nil, true)

	buf1 := make([]byte, 2)
	buf2 := make([]byte, 2)
	n, err := vp.Readv(self, r, [][]byte{buf1, buf2}, noTimeout)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "ab", string(buf1))
	assert.Equal(t, "cd", string(buf2))

	_, err = vp.ThreadJoin(self, writer)
	require.NoError(t, err)
}
