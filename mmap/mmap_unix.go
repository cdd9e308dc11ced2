//go:build unix

package mmap

import "golang.org/x/sys/unix"

// New creates a read-only mapping of the first length bytes of the file.
func New(fd int, length int) (*Map, error) {
	if length <= 0 {
		return nil, ErrInvalidSize
	}

	data, err := unix.Mmap(fd, 0, length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, &Error{Op: "mmap", Err: err}
	}

	return &Map{
		data: data,
		fd:   fd,
		size: int64(length),
	}, nil
}

// Close releases the memory mapping.
func (m *Map) Close() error {
	if m.data == nil {
		return nil
	}

	err := unix.Munmap(m.data)
	m.data = nil
	m.size = 0
	return err
}

// Remap grows (or shrinks) the mapping to newSize.
func (m *Map) Remap(newSize int64) error {
	if m.data == nil {
		return ErrNotMapped
	}
	if newSize <= 0 {
		return ErrInvalidSize
	}
	if newSize == m.size {
		return nil
	}

	// mremap where the platform has it
	if newData, err := m.tryMremap(int(newSize)); err == nil {
		m.data = newData
		m.size = newSize
		return nil
	}

	// fallback: unmap and map again
	if err := unix.Munmap(m.data); err != nil {
		return &Error{Op: "munmap for remap", Err: err}
	}
	newData, err := unix.Mmap(m.fd, 0, int(newSize), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		m.data = nil
		m.size = 0
		return &Error{Op: "mmap for remap", Err: err}
	}
	m.data = newData
	m.size = newSize
	return nil
}

// AdviseRandom hints that pages will be accessed randomly.
func (m *Map) AdviseRandom() error {
	if m.data == nil {
		return ErrNotMapped
	}
	return unix.Madvise(m.data, unix.MADV_RANDOM)
}
