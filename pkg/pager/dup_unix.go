//go:build unix && !linux

package pager

import "golang.org/x/sys/unix"

func dupStdin(fd int) error {
	return unix.Dup2(fd, unix.Stdin)
}
