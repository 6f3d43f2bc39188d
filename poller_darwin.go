//go:build darwin

// Level-polling I/O backend (spec.md §4.5), built on kqueue with one-shot
// re-arm: each kevent registration is EV_ONESHOT, consumed by the kernel the
// instant it fires, and explicitly re-submitted by pollsetAdd/dispatch for
// any remaining interest. Grounded on the teacher's poller_darwin.go
// FastPoller, reworked the same way as the Linux backend: per-descriptor
// read/write/except reference counts instead of one callback per fd.
package st

import (
	"time"

	"golang.org/x/sys/unix"
)

func newDefaultBackend() (pollBackend, error) {
	return &kqueueBackend{interest: make(map[int]*kqInterest)}, nil
}

type kqInterest struct {
	read, write, except int
	readArmed           bool
	writeArmed           bool
}

type kqueueBackend struct {
	kq       int
	interest map[int]*kqInterest
}

func (b *kqueueBackend) init() error {
	fd, err := unix.Kqueue()
	if err != nil {
		return err
	}
	b.kq = fd
	return nil
}

func (b *kqueueBackend) destroy() error {
	return unix.Close(b.kq)
}

func (b *kqueueBackend) fdNew(fd int) error {
	b.interest[fd] = &kqInterest{}
	return nil
}

func (b *kqueueBackend) fdClose(fd int) error {
	delete(b.interest, fd)
	return nil
}

func (b *kqueueBackend) fdGetLimit() int {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0
	}
	return int(rlim.Cur)
}

// arm (re)registers a one-shot kevent for filter on fd if there is
// outstanding interest and it is not already armed.
func (b *kqueueBackend) arm(fd int, filter int16, wanted bool, armed *bool) error {
	if wanted == *armed {
		return nil
	}
	flags := unix.EV_ADD | unix.EV_ONESHOT
	if !wanted {
		flags = unix.EV_DELETE
	}
	changes := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  uint16(flags),
	}}
	_, err := unix.Kevent(b.kq, changes, nil, nil)
	if err != nil && !wanted && err == unix.ENOENT {
		// Already consumed by a prior one-shot firing; fine to ignore.
		err = nil
	}
	*armed = wanted
	return err
}

func (b *kqueueBackend) pollsetAdd(req *pollRequest) error {
	for _, pfd := range req.fds {
		fi, ok := b.interest[pfd.FD]
		if !ok {
			fi = &kqInterest{}
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
		if err := b.arm(pfd.FD, unix.EVFILT_READ, fi.read > 0, &fi.readArmed); err != nil {
			return err
		}
		if err := b.arm(pfd.FD, unix.EVFILT_WRITE, fi.write > 0, &fi.writeArmed); err != nil {
			return err
		}
	}
	return nil
}

func (b *kqueueBackend) pollsetDel(req *pollRequest) error {
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
		if err := b.arm(pfd.FD, unix.EVFILT_READ, fi.read > 0, &fi.readArmed); err != nil {
			return err
		}
		if err := b.arm(pfd.FD, unix.EVFILT_WRITE, fi.write > 0, &fi.writeArmed); err != nil {
			return err
		}
	}
	return nil
}

const maxKevents = 256

func (b *kqueueBackend) dispatch(timeout time.Duration) ([]readyEvent, error) {
	var tsPtr *unix.Timespec
	if timeout != noTimeout {
		ts := unix.NsecToTimespec(int64(timeout))
		tsPtr = &ts
	}

	var events [maxKevents]unix.Kevent_t
	n, err := unix.Kevent(b.kq, nil, events[:], tsPtr)
	if err == unix.EINTR {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	ready := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		fd := int(events[i].Ident)
		var ev IOEvents
		switch events[i].Filter {
		case unix.EVFILT_READ:
			ev = EventRead
		case unix.EVFILT_WRITE:
			ev = EventWrite
		}
		if events[i].Flags&unix.EV_EOF != 0 {
			ev |= EventRead
		}
		ready = append(ready, readyEvent{fd: fd, events: ev})

		// The kernel already consumed this one-shot registration; re-arm if
		// interest is still outstanding (e.g. a second waiter on the same
		// descriptor, or this one fired for read while write interest
		// remains).
		if fi, ok := b.interest[fd]; ok {
			switch events[i].Filter {
			case unix.EVFILT_READ:
				fi.readArmed = false
				if fi.read > 0 {
					b.arm(fd, unix.EVFILT_READ, true, &fi.readArmed)
				}
			case unix.EVFILT_WRITE:
				fi.writeArmed = false
				if fi.write > 0 {
					b.arm(fd, unix.EVFILT_WRITE, true, &fi.writeArmed)
				}
			}
		}
	}
	return ready, nil
}
