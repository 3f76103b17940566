//go:build !windows

package client

import "syscall"

var errBrokenPipe error = syscall.EPIPE
