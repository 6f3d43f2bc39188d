// Portable select-based fallback I/O backend (spec.md §4.5), used only when
// SetEventSys(EventSysSelect) forces it; the package builds only on Linux
// and Darwin, which always have the epoll or kqueue backend. Unlike the kernel-resident backends, the registration set
// is rebuilt into fd_set bitmaps on every dispatch call, so pollsetAdd and
// pollsetDel just maintain the reference-counted interest table; the real
// work happens in dispatch.
package st

import (
	"time"

	"golang.org/x/sys/unix"
)

type selectInterest struct {
	read, write, except int
}

type selectBackend struct {
	interest map[int]*selectInterest
}

func newSelectBackend() *selectBackend {
	return &selectBackend{interest: make(map[int]*selectInterest)}
}

func (b *selectBackend) init() error { return nil }

func (b *selectBackend) destroy() error { return nil }

func (b *selectBackend) fdNew(fd int) error {
	b.interest[fd] = &selectInterest{}
	return nil
}

func (b *selectBackend) fdClose(fd int) error {
	delete(b.interest, fd)
	return nil
}

func (b *selectBackend) fdGetLimit() int {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return unix.FD_SETSIZE
	}
	if rlim.Cur > unix.FD_SETSIZE {
		return unix.FD_SETSIZE
	}
	return int(rlim.Cur)
}

func (b *selectBackend) pollsetAdd(req *pollRequest) error {
	for _, pfd := range req.fds {
		fi, ok := b.interest[pfd.FD]
		if !ok {
			fi = &selectInterest{}
			b.interest[pfd.FD] = fi
		}
		if pfd.Events&EventRead != 0 {
			fi.read++
		}
		if pfd.Events&EventWrite != 0 {
			fi.write++
		}
		if pfd.Events&EventExcept != 0 {
			fi.except++
		}
	}
	return nil
}

func (b *selectBackend) pollsetDel(req *pollRequest) error {
	for _, pfd := range req.fds {
		fi, ok := b.interest[pfd.FD]
		if !ok {
			continue
		}
		if pfd.Events&EventRead != 0 && fi.read > 0 {
			fi.read--
		}
		if pfd.Events&EventWrite != 0 && fi.write > 0 {
			fi.write--
		}
		if pfd.Events&EventExcept != 0 && fi.except > 0 {
			fi.except--
		}
	}
	return nil
}

// dispatch probes each registered descriptor individually with its own
// single-fd select call when the shared select call over all of them fails
// (e.g. one was closed underneath the backend), so one bad
// descriptor cannot starve the rest of the set (spec.md §4.5 "a backend
// must isolate a single bad descriptor rather than fail the whole dispatch
// call").
func (b *selectBackend) dispatch(timeout time.Duration) ([]readyEvent, error) {
	if len(b.interest) == 0 {
		if timeout == noTimeout {
			select {}
		}
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil, nil
	}

	var readSet, writeSet, exceptSet unix.FdSet
	maxFD := 0
	for fd, fi := range b.interest {
		if fi.read > 0 {
			fdSet(&readSet, fd)
		}
		if fi.write > 0 {
			fdSet(&writeSet, fd)
		}
		if fi.except > 0 {
			fdSet(&exceptSet, fd)
		}
		if fi.read > 0 || fi.write > 0 || fi.except > 0 {
			if fd > maxFD {
				maxFD = fd
			}
		}
	}

	var tvPtr *unix.Timeval
	if timeout != noTimeout {
		tv := unix.NsecToTimeval(int64(timeout))
		tvPtr = &tv
	}

	n, err := unix.Select(maxFD+1, &readSet, &writeSet, &exceptSet, tvPtr)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return b.dispatchIsolated()
	}
	if n == 0 {
		return nil, nil
	}

	var ready []readyEvent
	for fd, fi := range b.interest {
		var ev IOEvents
		if fi.read > 0 && fdIsSet(&readSet, fd) {
			ev |= EventRead
		}
		if fi.write > 0 && fdIsSet(&writeSet, fd) {
			ev |= EventWrite
		}
		if fi.except > 0 && fdIsSet(&exceptSet, fd) {
			ev |= EventExcept
		}
		if ev != 0 {
			ready = append(ready, readyEvent{fd: fd, events: ev})
		}
	}
	return ready, nil
}

// dispatchIsolated falls back to probing each descriptor with its own
// zero-timeout select call, used only when the bulk call above fails
// (typically EBADF from a descriptor closed out from under the backend). A
// descriptor whose own probe fails is reported as EventInvalid rather than
// silently skipped: isolating a bad descriptor (spec.md §4.5) still means
// reporting it, not hanging its waiter until the timeout.
func (b *selectBackend) dispatchIsolated() ([]readyEvent, error) {
	var ready []readyEvent
	zero := unix.Timeval{}
	for fd, fi := range b.interest {
		var readSet, writeSet, exceptSet unix.FdSet
		if fi.read > 0 {
			fdSet(&readSet, fd)
		}
		if fi.write > 0 {
			fdSet(&writeSet, fd)
		}
		if fi.except > 0 {
			fdSet(&exceptSet, fd)
		}
		n, err := unix.Select(fd+1, &readSet, &writeSet, &exceptSet, &zero)
		if err != nil {
			ready = append(ready, readyEvent{fd: fd, events: EventInvalid})
			continue
		}
		if n == 0 {
			continue
		}
		var ev IOEvents
		if fi.read > 0 && fdIsSet(&readSet, fd) {
			ev |= EventRead
		}
		if fi.write > 0 && fdIsSet(&writeSet, fd) {
			ev |= EventWrite
		}
		if fi.except > 0 && fdIsSet(&exceptSet, fd) {
			ev |= EventExcept
		}
		if ev != 0 {
			ready = append(ready, readyEvent{fd: fd, events: ev})
		}
	}
	return ready, nil
}
