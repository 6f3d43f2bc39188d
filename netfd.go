// netfd.go - the non-blocking descriptor façade (spec.md §4.8 "Non-blocking
// I/O wrappers" / §4.9 "Accept and connect"). Every blocking-looking call
// here is really: attempt the syscall, and on EAGAIN suspend the calling
// coroutine until the descriptor is ready, then retry; on EINTR retry
// immediately without suspending. Grounded on the teacher's fd_unix.go
// syscall wrappers, generalized from fire-and-forget helpers into a full
// non-blocking retry loop.
package st

import (
	"time"

	"golang.org/x/sys/unix"
)

// NetFD wraps a non-blocking file descriptor registered with a VP's poll
// backend.
type NetFD struct {
	fd int
	vp *VP
}

// NewNetFD puts fd into non-blocking mode and registers it with vp's poll
// backend (spec.md §4.5 "a descriptor must be registered... before it is
// referenced by any poll request").
func NewNetFD(vp *VP, fd int) (*NetFD, error) {
	if limit := vp.backend.fdGetLimit(); limit > 0 && fd >= limit {
		return nil, ErrTooManyFiles
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	if err := vp.backend.fdNew(fd); err != nil {
		return nil, err
	}
	return &NetFD{fd: fd, vp: vp}, nil
}

// Fd returns the underlying OS descriptor number.
func (nf *NetFD) Fd() int { return nf.fd }

// Close closes the descriptor and deregisters it from the poll backend.
func (nf *NetFD) Close() error {
	err := unix.Close(nf.fd)
	nf.vp.backend.fdClose(nf.fd)
	return err
}

// netfdPoll suspends self until fd is ready for events or timeout elapses,
// returning the events actually observed.
func (vp *VP) netfdPoll(self *Coroutine, fd int, events IOEvents, timeout time.Duration) (IOEvents, error) {
	fds := []PollFD{{FD: fd, Events: events}}
	n, err := vp.Poll(self, fds, timeout)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrTimedOut
	}
	return fds[0].Returned, nil
}

// Poll is the public multi-descriptor wait (spec.md §4.8 "Poll"): it
// suspends self until at least one of fds is ready, timeout elapses, or
// self is interrupted. It returns the number of descriptors with a nonzero
// Returned mask; a timeout reports 0 descriptors with a nil error, matching
// the original library's poll(2)-like contract. An empty fds still honors
// timeout, behaving exactly like Usleep: grounded on the original st_poll,
// which never special-cases npds==0 into an immediate return.
func (vp *VP) Poll(self *Coroutine, fds []PollFD, timeout time.Duration) (int, error) {
	for i := range fds {
		fds[i].Returned = 0
	}

	var req *pollRequest
	if len(fds) > 0 {
		req = &pollRequest{coro: self, fds: fds, onQueue: true}
		req.link.owner = req
		if err := vp.backend.pollsetAdd(req); err != nil {
			return 0, err
		}
		listPushTail(&vp.ioQ, &req.link)
	}

	self.state.Store(StateIOWait)
	if timeout != noTimeout {
		self.due = currentUTime().Add(timeout)
		self.flags |= flagOnSleepQueue
		vp.heap.insert(self)
	}

	vp.switchFrom(self)

	if req != nil && req.onQueue {
		// Woken by timeout or interrupt rather than readiness: the request
		// is still registered and must be torn down here.
		req.onQueue = false
		listRemove(&req.link)
		vp.backend.pollsetDel(req)
	}

	if self.Interrupted() {
		return 0, ErrInterrupted
	}
	if self.TimedOut() {
		return 0, nil
	}

	n := 0
	for i := range fds {
		if fds[i].Returned&EventInvalid != 0 {
			return 0, ErrBadFD
		}
		if fds[i].Returned != 0 {
			n++
		}
	}
	return n, nil
}

// Read reads from nf, suspending self on EAGAIN until readable (or timeout
// elapses) and retrying transparently on EINTR (spec.md §4.8).
func (vp *VP) Read(self *Coroutine, nf *NetFD, buf []byte, timeout time.Duration) (int, error) {
	for {
		n, err := unix.Read(nf.fd, buf)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if _, perr := vp.netfdPoll(self, nf.fd, EventRead, timeout); perr != nil {
				return 0, perr
			}
			continue
		default:
			return n, err
		}
	}
}

// Write writes to nf, suspending self on EAGAIN until writable.
func (vp *VP) Write(self *Coroutine, nf *NetFD, buf []byte, timeout time.Duration) (int, error) {
	for {
		n, err := unix.Write(nf.fd, buf)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if _, perr := vp.netfdPoll(self, nf.fd, EventWrite, timeout); perr != nil {
				return 0, perr
			}
			continue
		default:
			return n, err
		}
	}
}

// Readv is the vectored form of Read.
func (vp *VP) Readv(self *Coroutine, nf *NetFD, iovs [][]byte, timeout time.Duration) (int, error) {
	for {
		n, err := unix.Readv(nf.fd, iovs)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if _, perr := vp.netfdPoll(self, nf.fd, EventRead, timeout); perr != nil {
				return 0, perr
			}
			continue
		default:
			return n, err
		}
	}
}

// Writev is the vectored form of Write. It retries on EAGAIN/EINTR and
// returns after the first writev call that succeeds, which may have written
// only part of iovs; the unwritten remainder is not retried, so a caller
// that needs the whole vector written re-slices iovs and calls again. iovs
// is not modified.
func (vp *VP) Writev(self *Coroutine, nf *NetFD, iovs [][]byte, timeout time.Duration) (int, error) {
	for {
		n, err := unix.Writev(nf.fd, iovs)
		switch err {
		case nil:
			return n, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if _, perr := vp.netfdPoll(self, nf.fd, EventWrite, timeout); perr != nil {
				return 0, perr
			}
			continue
		default:
			return n, err
		}
	}
}

// Accept accepts a connection on the listening descriptor nf, returning a
// new non-blocking, registered NetFD for the accepted connection (spec.md
// §4.9 "Accept"). An interrupt delivered while waiting aborts the accept
// with ErrInterrupted, leaving the listener descriptor untouched.
func (vp *VP) Accept(self *Coroutine, nf *NetFD, timeout time.Duration) (*NetFD, unix.Sockaddr, error) {
	for {
		fd, sa, err := unix.Accept(nf.fd)
		switch err {
		case nil:
			child, cerr := NewNetFD(vp, fd)
			if cerr != nil {
				unix.Close(fd)
				return nil, nil, cerr
			}
			return child, sa, nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if _, perr := vp.netfdPoll(self, nf.fd, EventRead, timeout); perr != nil {
				return nil, nil, perr
			}
			continue
		default:
			return nil, nil, err
		}
	}
}

// Connect initiates a connection on nf and suspends self until it completes
// or fails (spec.md §4.9 "Connect"): a non-blocking connect that returns
// EINPROGRESS is followed by a wait for writability, then an SO_ERROR check
// to distinguish success from a refused/failed connection.
func (vp *VP) Connect(self *Coroutine, nf *NetFD, sa unix.Sockaddr, timeout time.Duration) error {
	err := unix.Connect(nf.fd, sa)
	if err == nil {
		return nil
	}
	if err != unix.EINPROGRESS {
		return err
	}
	if _, perr := vp.netfdPoll(self, nf.fd, EventWrite, timeout); perr != nil {
		return perr
	}
	soerr, gerr := unix.GetsockoptInt(nf.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if gerr != nil {
		return gerr
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	return nil
}

// Open opens a file in non-blocking mode and registers it with vp (spec.md
// §4.9's supplemented file-descriptor path, from original_source/).
func Open(vp *VP, path string, flags int, mode uint32) (*NetFD, error) {
	fd, err := unix.Open(path, flags|unix.O_NONBLOCK, mode)
	if err != nil {
		return nil, err
	}
	return NewNetFD(vp, fd)
}
