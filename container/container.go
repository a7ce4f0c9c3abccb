package container

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/featpack/featpack/internal/mmap"
)

// File is an open container file.
//
// A container holds named groups; each group holds scalar attributes and
// chunked array datasets that can only grow. Files are single-writer and not
// safe for concurrent use; callers must serialize access externally,
// including across processes.
type File struct {
	path     string
	osf      *os.File
	m        *mmap.Mapping
	r        io.ReaderAt
	size     int64 // logical end of the data region, next append position
	writable bool
	closed   bool
	dirty    bool
	codec    Codec

	groups map[string]*Group
	order  []string
}

// Create creates a new container file at path, truncating any existing file.
func Create(path string, opts ...Option) (*File, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(o)
	}

	osf, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	f := &File{
		path:     path,
		osf:      osf,
		r:        osf,
		size:     HeaderSize,
		writable: true,
		codec:    o.codec,
		groups:   make(map[string]*Group),
	}

	hdr := fileHeader{
		Magic:     FormatMagic,
		Version:   FormatVersion,
		TOCOffset: HeaderSize,
		EOF:       HeaderSize,
	}
	if _, err := osf.WriteAt(hdr.encode(), 0); err != nil {
		osf.Close()
		os.Remove(path)
		return nil, err
	}

	return f, nil
}

// OpenReadWrite opens an existing container file for appending.
// It fails with ErrNotContainer if the file is not a container file.
// Options apply to datasets created in this session; existing datasets
// keep the codec they were created with.
func OpenReadWrite(path string, opts ...Option) (*File, error) {
	o := defaultOptions()
	for _, fn := range opts {
		fn(o)
	}

	osf, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	f := &File{
		path:     path,
		osf:      osf,
		r:        osf,
		writable: true,
		codec:    o.codec,
		groups:   make(map[string]*Group),
	}
	if err := f.load(); err != nil {
		osf.Close()
		return nil, err
	}
	return f, nil
}

// Open opens a container file for reading. The file is memory-mapped.
func Open(path string) (*File, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	f := &File{
		path:   path,
		m:      m,
		r:      readerAt{m.Bytes()},
		groups: make(map[string]*Group),
	}
	if err := f.load(); err != nil {
		m.Close()
		return nil, err
	}
	return f, nil
}

// OpenReaderAt opens a container for reading from an arbitrary io.ReaderAt,
// such as a blob fetched from object storage.
func OpenReaderAt(r io.ReaderAt) (*File, error) {
	f := &File{
		r:      r,
		groups: make(map[string]*Group),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	buf := make([]byte, HeaderSize)
	if _, err := f.r.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrNotContainer, err)
	}

	var hdr fileHeader
	if err := hdr.decode(buf); err != nil {
		return err
	}
	f.size = int64(hdr.EOF)

	if hdr.TOCLength == 0 {
		return nil // freshly created, nothing stored yet
	}

	// Appends must land past the live TOC: it has to stay intact until a
	// new header points elsewhere, or Abort and crash recovery would find
	// a clobbered TOC.
	if end := int64(hdr.TOCOffset + hdr.TOCLength); end > f.size {
		f.size = end
	}

	toc := make([]byte, hdr.TOCLength)
	if _, err := f.r.ReadAt(toc, int64(hdr.TOCOffset)); err != nil {
		return fmt.Errorf("reading TOC: %w", err)
	}
	return decodeTOC(f, toc)
}

// Flush writes the table of contents and the updated header to disk.
// The header is written last so an interrupted flush leaves the previous
// TOC reachable.
func (f *File) Flush() error {
	if f.closed {
		return ErrClosed
	}
	if !f.writable {
		return nil
	}

	off := f.size
	toc := encodeTOC(f)
	if _, err := f.osf.WriteAt(toc, off); err != nil {
		return fmt.Errorf("writing TOC: %w", err)
	}

	hdr := fileHeader{
		Magic:     FormatMagic,
		Version:   FormatVersion,
		TOCOffset: uint64(off),
		TOCLength: uint64(len(toc)),
		EOF:       uint64(off),
	}
	if _, err := f.osf.WriteAt(hdr.encode(), 0); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	// Later appends go past this TOC; it only becomes garbage once the
	// next Flush has written a header pointing at its successor.
	f.size = off + int64(len(toc))
	f.dirty = false
	return f.osf.Sync()
}

// Close flushes pending state on writable files and releases the handle.
// It is idempotent.
func (f *File) Close() error {
	if f.closed {
		return nil
	}

	var err error
	if f.writable && f.dirty {
		err = f.Flush()
	}
	f.closed = true

	if f.m != nil {
		if cerr := f.m.Close(); err == nil {
			err = cerr
		}
	}
	if f.osf != nil {
		if cerr := f.osf.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Abort closes the file without flushing the table of contents. Chunks
// appended since the last flush become unreachable garbage; the previous
// TOC stays valid, so readers see the file as it was before this session.
func (f *File) Abort() error {
	if f.closed {
		return nil
	}
	f.closed = true

	var err error
	if f.m != nil {
		err = f.m.Close()
	}
	if f.osf != nil {
		if cerr := f.osf.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Path returns the file path, if the container was opened from one.
func (f *File) Path() string {
	return f.path
}

// Writable reports whether the file accepts mutations.
func (f *File) Writable() bool {
	return f.writable
}

// Group returns the named group.
func (f *File) Group(name string) (*Group, bool) {
	g, ok := f.groups[name]
	return g, ok
}

// Groups returns group names in creation order.
func (f *File) Groups() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}

// CreateGroup creates a new named group.
func (f *File) CreateGroup(name string) (*Group, error) {
	if f.closed {
		return nil, ErrClosed
	}
	if !f.writable {
		return nil, ErrReadOnly
	}
	if name == "" {
		return nil, fmt.Errorf("container: group name cannot be empty")
	}
	if _, ok := f.groups[name]; ok {
		return nil, fmt.Errorf("container: group %q already exists", name)
	}

	g := &Group{
		f:        f,
		name:     name,
		attrs:    make(map[string]attrValue),
		datasets: make(map[string]*Dataset),
	}
	f.groups[name] = g
	f.order = append(f.order, name)
	f.dirty = true
	return g, nil
}

// appendBytes writes raw bytes at the logical EOF and returns their offset.
func (f *File) appendBytes(b []byte) (int64, error) {
	if f.closed {
		return 0, ErrClosed
	}
	if !f.writable {
		return 0, ErrReadOnly
	}
	off := f.size
	if _, err := f.osf.WriteAt(b, off); err != nil {
		return 0, err
	}
	f.size += int64(len(b))
	f.dirty = true
	return off, nil
}

// readerAt adapts an in-memory byte slice to io.ReaderAt.
type readerAt struct {
	data []byte
}

func (r readerAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func floatBits(v float64) uint64 { return math.Float64bits(v) }
func floatFrom(b uint64) float64 { return math.Float64frombits(b) }
