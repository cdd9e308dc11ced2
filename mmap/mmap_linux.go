//go:build linux

package mmap

import (
	"syscall"
	"unsafe"
)

// tryMremap uses the Linux mremap syscall for efficient remapping.
func (m *Map) tryMremap(newSize int) ([]byte, error) {
	const mremapMaymove = 1

	newAddr, _, errno := syscall.Syscall6(
		syscall.SYS_MREMAP,
		uintptr(unsafe.Pointer(&m.data[0])),
		uintptr(m.size),
		uintptr(newSize),
		mremapMaymove,
		0, 0)

	if errno != 0 {
		return nil, errno
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(newAddr)), newSize), nil
}
