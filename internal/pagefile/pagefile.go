// Package pagefile implements the fixed-size-page file abstraction the index
// is built on top of: a flat file addressed by page id, page 0 reserved as
// the meta page and never reused as a data page.
package pagefile

import (
	"fmt"
	"io"
	"os"
)

// PageID addresses a single fixed-size page within a file. AllocPage hands
// out ids from 0 upward, so page 0 is the first page of a fresh file (the
// index's meta page); no id is held back from allocation.
type PageID uint32

// InvalidPageID is the zero value of PageID, used as a sentinel for "no
// page" (an absent sibling, an absent child pointer). It shares its value
// with the meta page's id, which is never a sibling or a child.
const InvalidPageID PageID = 0

// File is a flat file of fixed-size pages.
type File struct {
	f          *os.File
	pageSize   int
	totalPages uint32
}

// Open opens path, creating it if it does not exist. existed reports whether
// the file was already present (and therefore should carry a valid meta
// page) before this call.
func Open(path string, pageSize int) (file *File, existed bool, err error) {
	_, statErr := os.Stat(path)
	existed = statErr == nil

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, fmt.Errorf("open page file %q: %w", path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, false, fmt.Errorf("stat page file %q: %w", path, err)
	}

	size := info.Size()
	if size%int64(pageSize) != 0 {
		_ = f.Close()
		return nil, false, fmt.Errorf("page file %q has size %d, not a multiple of page size %d", path, size, pageSize)
	}

	return &File{
		f:          f,
		pageSize:   pageSize,
		totalPages: uint32(size / int64(pageSize)),
	}, existed, nil
}

// PageSize returns the fixed page size this file was opened with.
func (f *File) PageSize() int {
	return f.pageSize
}

// FirstPageID is the id AllocPage hands out on a freshly created file: the
// meta page always lands here since it is always the first page a fresh
// index allocates.
func (f *File) FirstPageID() PageID {
	return PageID(0)
}

// TotalPages returns the number of pages currently allocated in the file,
// including the reserved meta page at id 0.
func (f *File) TotalPages() uint32 {
	return f.totalPages
}

// AllocPage extends the file by one page of zeroed bytes and returns its id.
func (f *File) AllocPage() (PageID, error) {
	id := PageID(f.totalPages)
	buf := make([]byte, f.pageSize)
	if err := f.WritePage(id, buf); err != nil {
		return InvalidPageID, err
	}
	f.totalPages++
	return id, nil
}

// ReadPage reads the page at id into buf, which must be exactly PageSize
// bytes long.
func (f *File) ReadPage(id PageID, buf []byte) error {
	if len(buf) != f.pageSize {
		return fmt.Errorf("read page %d: buffer size %d does not match page size %d", id, len(buf), f.pageSize)
	}
	if uint32(id) >= f.totalPages {
		return fmt.Errorf("read page %d: %w", id, io.ErrUnexpectedEOF)
	}
	offset := int64(id) * int64(f.pageSize)
	if _, err := f.f.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("read page %d: %w", id, err)
	}
	return nil
}

// WritePage writes buf, which must be exactly PageSize bytes long, to the
// page at id.
func (f *File) WritePage(id PageID, buf []byte) error {
	if len(buf) != f.pageSize {
		return fmt.Errorf("write page %d: buffer size %d does not match page size %d", id, len(buf), f.pageSize)
	}
	offset := int64(id) * int64(f.pageSize)
	if _, err := f.f.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	return nil
}

// Sync flushes the file's in-kernel buffers to stable storage.
func (f *File) Sync() error {
	if err := f.f.Sync(); err != nil {
		return fmt.Errorf("sync page file: %w", err)
	}
	return nil
}

// Close closes the underlying file descriptor.
func (f *File) Close() error {
	if err := f.f.Close(); err != nil {
		return fmt.Errorf("close page file: %w", err)
	}
	return nil
}
