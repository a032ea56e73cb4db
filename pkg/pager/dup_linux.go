package pager

import "golang.org/x/sys/unix"

func dupStdin(fd int) error {
	return unix.Dup3(fd, unix.Stdin, 0)
}
