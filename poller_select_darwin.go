//go:build darwin

package st

import "golang.org/x/sys/unix"

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/32] |= 1 << uint(fd%32)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/32]&(1<<uint(fd%32)) != 0
}
