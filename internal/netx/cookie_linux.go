package netx

import "golang.org/x/sys/unix"

func getCookie(fd uintptr) (uint64, error) {
	return unix.GetsockoptUint64(int(fd), unix.SOL_SOCKET, unix.SO_COOKIE)
}
