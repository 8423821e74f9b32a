// Package mapped exposes static files as read-only memory mappings.
package mapped

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrNotRegular is returned when the path is a directory or special file
var ErrNotRegular = errors.New("not a regular file")

// File is a read-only private mapping of a whole file. The zero value and
// a nil *File are empty. Unmap may be called any number of times.
type File struct {
	data []byte
}

// Open maps path read-only. The file descriptor is closed before Open
// returns; the mapping stays valid until Unmap. Empty files yield an
// empty File without a mapping.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("mmap %s: %w", path, ErrNotRegular)
	}

	size := info.Size()
	if size == 0 {
		return &File{}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &File{data: data}, nil
}

// Bytes returns the mapped contents. The slice is invalid after Unmap.
func (f *File) Bytes() []byte {
	if f == nil {
		return nil
	}
	return f.data
}

// Len returns the mapped length
func (f *File) Len() int {
	if f == nil {
		return 0
	}
	return len(f.data)
}

// Mapped reports whether a mapping is live
func (f *File) Mapped() bool {
	return f != nil && f.data != nil
}

// Unmap releases the mapping; later calls are no-ops
func (f *File) Unmap() error {
	if f == nil || f.data == nil {
		return nil
	}
	data := f.data
	f.data = nil
	return unix.Munmap(data)
}
