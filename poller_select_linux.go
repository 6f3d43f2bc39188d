//go:build linux

package st

import "golang.org/x/sys/unix"

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << uint(fd%64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<uint(fd%64)) != 0
}
