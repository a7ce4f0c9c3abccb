package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	// FormatMagic identifies container files (ASCII: "FPK1").
	FormatMagic = 0x46504B31

	// FormatVersion is the current container file format version.
	FormatVersion uint32 = 1

	// HeaderSize is the size of the file header in bytes.
	HeaderSize = 64
)

var (
	// ErrNotContainer is returned when a file is not a valid container file.
	ErrNotContainer = errors.New("container: not a container file")

	// ErrInvalidVersion is returned when a file has an unsupported format version.
	ErrInvalidVersion = errors.New("container: unsupported format version")

	// ErrCorrupted is returned when a header, TOC or chunk fails checksum validation.
	ErrCorrupted = errors.New("container: corrupted data (checksum mismatch)")

	// ErrClosed is returned when operating on a closed file.
	ErrClosed = errors.New("container: file is closed")

	// ErrReadOnly is returned when mutating a file opened for reading.
	ErrReadOnly = errors.New("container: file is read-only")

	// ErrTypeMismatch is returned when a dataset is accessed with the wrong element type.
	ErrTypeMismatch = errors.New("container: dataset element type mismatch")
)

// DType enumerates dataset element types.
type DType uint8

const (
	// Float64 stores 8-byte IEEE 754 values.
	Float64 DType = iota + 1
	// Int64 stores 8-byte signed integers.
	Int64
	// String stores variable-length byte strings (single column only).
	String
)

func (t DType) String() string {
	switch t {
	case Float64:
		return "float64"
	case Int64:
		return "int64"
	case String:
		return "string"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(t))
	}
}

func (t DType) valid() bool {
	return t >= Float64 && t <= String
}

// fileHeader is the 64-byte header at the start of container files.
//
// All multi-byte fields are little-endian. TOCOffset/TOCLength locate the
// current table of contents; EOF is the logical end of the data region,
// where the current TOC begins. Appends go past the TOC, so bytes after it
// are garbage from interrupted or aborted writes until a later header
// references them.
type fileHeader struct {
	Magic     uint32
	Version   uint32
	Flags     uint32
	TOCOffset uint64
	TOCLength uint64
	EOF       uint64
	Checksum  uint32
}

func (h *fileHeader) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Flags)
	binary.LittleEndian.PutUint64(buf[12:20], h.TOCOffset)
	binary.LittleEndian.PutUint64(buf[20:28], h.TOCLength)
	binary.LittleEndian.PutUint64(buf[28:36], h.EOF)

	h.Checksum = crc32.ChecksumIEEE(buf[:36])
	binary.LittleEndian.PutUint32(buf[36:40], h.Checksum)
	// Remaining bytes are reserved and stay zero.
	return buf
}

func (h *fileHeader) decode(buf []byte) error {
	if len(buf) < HeaderSize {
		return ErrNotContainer
	}

	h.Magic = binary.LittleEndian.Uint32(buf[0:4])
	if h.Magic != FormatMagic {
		return ErrNotContainer
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:8])
	if h.Version > FormatVersion {
		return ErrInvalidVersion
	}
	h.Flags = binary.LittleEndian.Uint32(buf[8:12])
	h.TOCOffset = binary.LittleEndian.Uint64(buf[12:20])
	h.TOCLength = binary.LittleEndian.Uint64(buf[20:28])
	h.EOF = binary.LittleEndian.Uint64(buf[28:36])
	h.Checksum = binary.LittleEndian.Uint32(buf[36:40])

	if h.Checksum != crc32.ChecksumIEEE(buf[:36]) {
		return ErrCorrupted
	}
	return nil
}

// Attribute value kinds as stored in the TOC.
const (
	attrString byte = 1
	attrInt    byte = 2
	attrFloat  byte = 3
)

// chunkRef locates one compressed chunk in the data region.
type chunkRef struct {
	off     int64
	compLen uint32
	rawLen  uint32
	rows    uint32
	crc     uint32
}

// encodeTOC serializes all groups, attributes and dataset chunk tables.
// A CRC32 of the body is appended so a torn TOC write is detectable.
func encodeTOC(f *File) []byte {
	buf := make([]byte, 0, 256)
	buf = binary.AppendUvarint(buf, uint64(len(f.order)))

	for _, gname := range f.order {
		g := f.groups[gname]
		buf = appendString(buf, g.name)

		buf = binary.AppendUvarint(buf, uint64(len(g.attrOrder)))
		for _, aname := range g.attrOrder {
			v := g.attrs[aname]
			buf = appendString(buf, aname)
			buf = append(buf, v.kind)
			switch v.kind {
			case attrString:
				buf = appendString(buf, v.s)
			case attrInt:
				buf = binary.AppendVarint(buf, v.i)
			case attrFloat:
				buf = binary.LittleEndian.AppendUint64(buf, floatBits(v.f))
			}
		}

		buf = binary.AppendUvarint(buf, uint64(len(g.dsOrder)))
		for _, dname := range g.dsOrder {
			d := g.datasets[dname]
			buf = appendString(buf, d.name)
			buf = append(buf, byte(d.dtype), byte(d.codec))
			buf = binary.AppendUvarint(buf, uint64(d.cols))
			buf = binary.AppendUvarint(buf, uint64(d.chunkRows))
			buf = binary.AppendUvarint(buf, uint64(len(d.chunks)))
			for _, c := range d.chunks {
				buf = binary.AppendUvarint(buf, uint64(c.off))
				buf = binary.AppendUvarint(buf, uint64(c.compLen))
				buf = binary.AppendUvarint(buf, uint64(c.rawLen))
				buf = binary.AppendUvarint(buf, uint64(c.rows))
				buf = binary.LittleEndian.AppendUint32(buf, c.crc)
			}
		}
	}

	sum := crc32.ChecksumIEEE(buf)
	return binary.LittleEndian.AppendUint32(buf, sum)
}

// decodeTOC rebuilds the group/dataset directory from TOC bytes.
func decodeTOC(f *File, data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("%w: short TOC", ErrCorrupted)
	}
	body, tail := data[:len(data)-4], data[len(data)-4:]
	if binary.LittleEndian.Uint32(tail) != crc32.ChecksumIEEE(body) {
		return fmt.Errorf("%w: TOC checksum", ErrCorrupted)
	}

	r := tocReader{buf: body}
	ngroups := r.uvarint()

	for i := uint64(0); i < ngroups && r.err == nil; i++ {
		g := &Group{
			f:        f,
			name:     r.string(),
			attrs:    make(map[string]attrValue),
			datasets: make(map[string]*Dataset),
		}

		nattrs := r.uvarint()
		for j := uint64(0); j < nattrs && r.err == nil; j++ {
			aname := r.string()
			kind := r.byte()
			var v attrValue
			v.kind = kind
			switch kind {
			case attrString:
				v.s = r.string()
			case attrInt:
				v.i = r.varint()
			case attrFloat:
				v.f = floatFrom(r.uint64())
			default:
				r.fail("unknown attribute kind")
			}
			g.attrs[aname] = v
			g.attrOrder = append(g.attrOrder, aname)
		}

		ndatasets := r.uvarint()
		for j := uint64(0); j < ndatasets && r.err == nil; j++ {
			d := &Dataset{
				g:         g,
				name:      r.string(),
				dtype:     DType(r.byte()),
				codec:     Codec(r.byte()),
				cols:      int(r.uvarint()),
				chunkRows: int(r.uvarint()),
			}
			nchunks := r.uvarint()
			d.chunks = make([]chunkRef, 0, nchunks)
			d.cum = make([]int64, 1, nchunks+1)
			for k := uint64(0); k < nchunks && r.err == nil; k++ {
				c := chunkRef{
					off:     int64(r.uvarint()),
					compLen: uint32(r.uvarint()),
					rawLen:  uint32(r.uvarint()),
					rows:    uint32(r.uvarint()),
					crc:     r.uint32(),
				}
				d.chunks = append(d.chunks, c)
				d.cum = append(d.cum, d.cum[len(d.cum)-1]+int64(c.rows))
			}
			if !d.dtype.valid() {
				r.fail("unknown dataset dtype")
			}
			g.datasets[d.name] = d
			g.dsOrder = append(g.dsOrder, d.name)
		}

		f.groups[g.name] = g
		f.order = append(f.order, g.name)
	}

	if r.err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, r.err)
	}
	return nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

// tocReader is a cursor over TOC bytes that latches the first decode error.
type tocReader struct {
	buf []byte
	err error
}

func (r *tocReader) fail(msg string) {
	if r.err == nil {
		r.err = errors.New(msg)
	}
}

func (r *tocReader) uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.fail("invalid uvarint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *tocReader) varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.fail("invalid varint")
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *tocReader) byte() byte {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 1 {
		r.fail("short buffer")
		return 0
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b
}

func (r *tocReader) uint32() uint32 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 4 {
		r.fail("short buffer")
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v
}

func (r *tocReader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 8 {
		r.fail("short buffer")
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return v
}

func (r *tocReader) string() string {
	n := r.uvarint()
	if r.err != nil {
		return ""
	}
	if uint64(len(r.buf)) < n {
		r.fail("short buffer for string")
		return ""
	}
	s := string(r.buf[:n])
	r.buf = r.buf[n:]
	return s
}
