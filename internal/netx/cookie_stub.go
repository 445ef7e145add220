//go:build !linux
// +build !linux

package netx

func getCookie(uintptr) (uint64, error) {
	return 0, ErrNoSupport
}
