package bplist

import (
	"encoding/binary"
	"fmt"
)

// ParseHeader reads the 8-byte header at the start of data. It does not
// validate the identifier or version.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < headerSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrTruncatedBuffer, len(data))
	}
	return parseHeader(data[:headerSize]), nil
}

func parseHeader(b []byte) Header {
	return Header{
		Identifier: decodeText(b[0:6]),
		Version:    decodeText(b[6:8]),
	}
}

func (h Header) validate() error {
	if h.Identifier != bplistMagic {
		return fmt.Errorf("%w (got %q)", ErrFormat, h.Identifier)
	}
	if h.Version != bplistVersion {
		return fmt.Errorf("%w %q, only %q is supported", ErrVersion, h.Version, bplistVersion)
	}
	return nil
}

// ParseTrailer reads the 32-byte trailer at the end of data.
func ParseTrailer(data []byte) (Trailer, error) {
	if len(data) < trailerSize {
		return Trailer{}, fmt.Errorf("%w: %d bytes", ErrTruncatedBuffer, len(data))
	}
	return parseTrailer(data[len(data)-trailerSize:]), nil
}

func parseTrailer(b []byte) Trailer {
	return Trailer{
		SortVersion:       b[5],
		OffsetIntSize:     b[6],
		ObjectRefSize:     b[7],
		NumObjects:        binary.BigEndian.Uint64(b[8:16]),
		TopObject:         binary.BigEndian.Uint64(b[16:24]),
		OffsetTableOffset: binary.BigEndian.Uint64(b[24:32]),
	}
}

// validate checks the trailer geometry against a buffer of bufLen bytes.
func (t Trailer) validate(bufLen int) error {
	if t.OffsetIntSize < 1 || t.OffsetIntSize > 8 {
		return fmt.Errorf("%w: offset size %d", ErrInvalidTrailer, t.OffsetIntSize)
	}
	if t.ObjectRefSize < 1 || t.ObjectRefSize > 8 {
		return fmt.Errorf("%w: object reference size %d", ErrInvalidTrailer, t.ObjectRefSize)
	}
	if t.OffsetTableOffset > uint64(bufLen) {
		return fmt.Errorf("%w: offset table at 0x%x is beyond the end of the buffer (%d bytes)",
			ErrTruncatedOffsetTable, t.OffsetTableOffset, bufLen)
	}
	if t.NumObjects > uint64(bufLen) {
		return fmt.Errorf("%w: %d objects declared in a %d byte buffer",
			ErrTruncatedOffsetTable, t.NumObjects, bufLen)
	}
	return nil
}

// offsetTableSpan slices the offset table out of data, clamped to the buffer.
func (t Trailer) offsetTableSpan(data []byte) []byte {
	start := t.OffsetTableOffset
	end := start + t.NumObjects*uint64(t.OffsetIntSize)
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return data[start:end]
}

func parseOffsetTable(b []byte, t Trailer) ([]uint64, error) {
	size := uint64(t.OffsetIntSize)
	if uint64(len(b)) < t.NumObjects*size {
		return nil, fmt.Errorf("%w: need %d bytes for %d offsets, have %d",
			ErrTruncatedOffsetTable, t.NumObjects*size, t.NumObjects, len(b))
	}
	offsets := make([]uint64, t.NumObjects)
	for i := range offsets {
		off, err := parseUint(b[uint64(i)*size : uint64(i+1)*size])
		if err != nil {
			return nil, err
		}
		offsets[i] = off
	}
	return offsets, nil
}
