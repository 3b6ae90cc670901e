// Package plisttest assembles binary property list documents object by
// object for tests. It writes exactly the records it is given, including
// malformed ones.
package plisttest

import (
	"encoding/binary"
	"math"
	"unicode/utf16"
)

// Builder collects object records and lays them out as a bplist00 document.
type Builder struct {
	// Magic is written as the first 8 bytes. Defaults to "bplist00".
	Magic string
	// RefSize is the object reference width used by Array and Dict.
	RefSize int
	// OffsetSize overrides the offset table entry width. Zero picks the
	// smallest width that addresses every object.
	OffsetSize int

	objects [][]byte
}

// New returns a Builder with one-byte object references.
func New() *Builder {
	return &Builder{Magic: "bplist00", RefSize: 1}
}

// Raw adds a record verbatim and returns its object index.
func (b *Builder) Raw(record ...byte) int {
	b.objects = append(b.objects, record)
	return len(b.objects) - 1
}

func (b *Builder) Null() int { return b.Raw(0x00) }

func (b *Builder) Bool(v bool) int {
	if v {
		return b.Raw(0x09)
	}
	return b.Raw(0x08)
}

// IntBytes adds an integer record with the given big-endian payload, whose
// length must be a power of two.
func (b *Builder) IntBytes(payload []byte) int {
	info := byte(0)
	for 1<<info < len(payload) {
		info++
	}
	return b.Raw(append([]byte{0x10 | info}, payload...)...)
}

// Uint adds an integer record of the smallest width holding n.
func (b *Builder) Uint(n uint64) int {
	return b.Raw(intRecord(n)...)
}

// Int64 adds an 8-byte two's complement integer record.
func (b *Builder) Int64(n int64) int {
	rec := make([]byte, 9)
	rec[0] = 0x13
	binary.BigEndian.PutUint64(rec[1:], uint64(n))
	return b.Raw(rec...)
}

func (b *Builder) Real32(f float32) int {
	rec := make([]byte, 5)
	rec[0] = 0x22
	binary.BigEndian.PutUint32(rec[1:], math.Float32bits(f))
	return b.Raw(rec...)
}

func (b *Builder) Real64(f float64) int {
	rec := make([]byte, 9)
	rec[0] = 0x23
	binary.BigEndian.PutUint64(rec[1:], math.Float64bits(f))
	return b.Raw(rec...)
}

// Date adds a date record secs seconds after 2001-01-01T00:00:00Z.
func (b *Builder) Date(secs float64) int {
	rec := make([]byte, 9)
	rec[0] = 0x33
	binary.BigEndian.PutUint64(rec[1:], math.Float64bits(secs))
	return b.Raw(rec...)
}

func (b *Builder) Data(data []byte) int {
	return b.Raw(append(countedTag(0x40, len(data)), data...)...)
}

// String adds a single-byte string record.
func (b *Builder) String(s string) int {
	return b.Raw(append(countedTag(0x50, len(s)), s...)...)
}

// UTF16 adds a UTF-16BE string record.
func (b *Builder) UTF16(s string) int {
	units := utf16.Encode([]rune(s))
	rec := countedTag(0x60, len(units))
	for _, u := range units {
		rec = append(rec, byte(u>>8), byte(u))
	}
	return b.Raw(rec...)
}

// UID adds a uid record of the smallest width holding n.
func (b *Builder) UID(n uint64) int {
	payload := minimalBytes(n)
	return b.Raw(append([]byte{0x80 | byte(len(payload)-1)}, payload...)...)
}

func (b *Builder) Array(refs ...int) int {
	rec := countedTag(0xA0, len(refs))
	for _, r := range refs {
		rec = append(rec, b.ref(r)...)
	}
	return b.Raw(rec...)
}

// Dict adds a dictionary record; keys and values must have the same length.
func (b *Builder) Dict(keys, values []int) int {
	rec := countedTag(0xD0, len(keys))
	for _, k := range keys {
		rec = append(rec, b.ref(k)...)
	}
	for _, v := range values {
		rec = append(rec, b.ref(v)...)
	}
	return b.Raw(rec...)
}

// Len returns the number of objects added so far.
func (b *Builder) Len() int { return len(b.objects) }

// Build lays out the document with top as the root object.
func (b *Builder) Build(top int) []byte {
	doc := []byte(b.Magic)
	offsets := make([]uint64, len(b.objects))
	for i, rec := range b.objects {
		offsets[i] = uint64(len(doc))
		doc = append(doc, rec...)
	}
	tableOffset := uint64(len(doc))

	offsetSize := b.OffsetSize
	if offsetSize == 0 {
		offsetSize = len(minimalBytes(tableOffset))
	}
	for _, off := range offsets {
		doc = append(doc, sized(off, offsetSize)...)
	}

	trailer := make([]byte, 32)
	trailer[6] = byte(offsetSize)
	trailer[7] = byte(b.RefSize)
	binary.BigEndian.PutUint64(trailer[8:], uint64(len(b.objects)))
	binary.BigEndian.PutUint64(trailer[16:], uint64(top))
	binary.BigEndian.PutUint64(trailer[24:], tableOffset)
	return append(doc, trailer...)
}

func (b *Builder) ref(index int) []byte {
	return sized(uint64(index), b.RefSize)
}

// countedTag encodes a tag whose low nibble is a count, spilling counts of 15
// and above into a following integer record.
func countedTag(tag byte, n int) []byte {
	if n < 0xF {
		return []byte{tag | byte(n)}
	}
	return append([]byte{tag | 0xF}, intRecord(uint64(n))...)
}

func intRecord(n uint64) []byte {
	payload := minimalBytes(n)
	info := byte(0)
	for 1<<info < len(payload) {
		info++
	}
	return append([]byte{0x10 | info}, payload...)
}

// minimalBytes returns n big-endian in 1, 2, 4 or 8 bytes.
func minimalBytes(n uint64) []byte {
	switch {
	case n <= math.MaxUint8:
		return sized(n, 1)
	case n <= math.MaxUint16:
		return sized(n, 2)
	case n <= math.MaxUint32:
		return sized(n, 4)
	}
	return sized(n, 8)
}

func sized(n uint64, width int) []byte {
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(n)
		n >>= 8
	}
	return out
}
