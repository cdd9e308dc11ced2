//go:build unix && !linux

package mmap

import "errors"

// tryMremap is unavailable outside Linux; always falls back to unmap+map.
func (m *Map) tryMremap(newSize int) ([]byte, error) {
	return nil, errors.New("mremap not available")
}
