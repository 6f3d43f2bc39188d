//go:build linux

// Edge-polling I/O backend (spec.md §4.5), built on epoll. Grounded on the
// teacher's poller_linux.go FastPoller, reworked from "one registration, one
// callback per fd" into per-descriptor read/write/except reference counts
// so independent poll requests can share interest in the same descriptor.
package st

import (
	"time"

	"golang.org/x/sys/unix"
)

func newDefaultBackend() (pollBackend, error) {
	return &epollBackend{interest: make(map[int]*fdInterest)}, nil
}

type fdInterest struct {
	read, write, except int
	registered          bool
}

func (fi *fdInterest) mask() uint32 {
	var m uint32
	if fi.read > 0 {
		m |= unix.EPOLLIN
	}
	if fi.write > 0 {
		m |= unix.EPOLLOUT
	}
	if fi.except > 0 {
		m |= unix.EPOLLPRI
	}
	return m
}

type epollBackend struct {
	epfd     int
	interest map[int]*fdInterest
}

func (b *epollBackend) init() error {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	b.epfd = fd
	return nil
}

func (b *epollBackend) destroy() error {
	return unix.Close(b.epfd)
}

func (b *epollBackend) fdNew(fd int) error {
	b.interest[fd] = &fdInterest{}
	return nil
}

func (b *epollBackend) fdClose(fd int) error {
	if fi, ok := b.interest[fd]; ok && fi.registered {
		unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	delete(b.interest, fd)
	return nil
}

func (b *epollBackend) fdGetLimit() int {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0
	}
	return int(rlim.Cur)
}

func (b *epollBackend) applyInterest(fd int, fi *fdInterest) error {
	mask := fi.mask()
	ev := &unix.EpollEvent{Events: mask, Fd: int32(fd)}
	switch {
	case mask == 0 && fi.registered:
		fi.registered = false
		return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	case mask != 0 && !fi.registered:
		fi.registered = true
		return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, ev)
	case mask != 0 && fi.registered:
		return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, ev)
	default:
		return nil
	}
}

func (b *epollBackend) pollsetAdd(req *pollRequest) error {
	for _, pfd := range req.fds {
		fi, ok := b.interest[pfd.FD]
		if !ok {
			fi = &fdInterest{}
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
		if err := b.applyInterest(pfd.FD, fi); err != nil {
			return err
		}
	}
	return nil
}

func (b *epollBackend) pollsetDel(req *pollRequest) error {
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
		if err := b.applyInterest(pfd.FD, fi); err != nil {
			return err
		}
	}
	return nil
}

const maxEpollEvents = 256

func (b *epollBackend) dispatch(timeout time.Duration) ([]readyEvent, error) {
	ms := -1
	if timeout != noTimeout {
		ms = int(timeout / time.Millisecond)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}

	var events [maxEpollEvents]unix.EpollEvent
	n, err := unix.EpollWait(b.epfd, events[:], ms)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ready := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		var ev IOEvents
		flags := events[i].Events
		if flags&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
			ev |= EventRead
		}
		if flags&(unix.EPOLLOUT|unix.EPOLLERR) != 0 {
			ev |= EventWrite
		}
		if flags&unix.EPOLLPRI != 0 {
			ev |= EventExcept
		}
		ready = append(ready, readyEvent{fd: int(events[i].Fd), events: ev})
	}
	return ready, nil
}
