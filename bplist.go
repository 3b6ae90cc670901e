// Package bplist decodes Apple binary property lists (bplist00) held in memory
// into a tree of Go values.
//
// Decoded values use the following Go types:
//
//	null, fill      nil
//	bool            bool
//	integer         Integer
//	real            float32 or float64
//	date            time.Time (UTC)
//	data            []byte
//	string          string
//	uid             UID
//	array           []interface{}
//	dictionary      *Dictionary
package bplist

const (
	bplistMagic   = "bplist"
	bplistVersion = "00"

	headerSize  = 8
	trailerSize = 32
)

// Header is the fixed 8-byte prefix of a binary property list.
type Header struct {
	Identifier string
	Version    string
}

// Trailer is the fixed 32-byte footer describing the offset table and the
// root object.
type Trailer struct {
	SortVersion       uint8
	OffsetIntSize     uint8
	ObjectRefSize     uint8
	NumObjects        uint64
	TopObject         uint64
	OffsetTableOffset uint64
}

// Object type nibbles (the high four bits of a tag byte).
const (
	bpTypeSimple      uint8 = 0x0
	bpTypeInteger     uint8 = 0x1
	bpTypeReal        uint8 = 0x2
	bpTypeDate        uint8 = 0x3
	bpTypeData        uint8 = 0x4
	bpTypeASCIIString uint8 = 0x5
	bpTypeUTF16String uint8 = 0x6
	bpTypeUID         uint8 = 0x8
	bpTypeArray       uint8 = 0xA
	bpTypeDictionary  uint8 = 0xD
)

// Simple-type info nibbles.
const (
	bpInfoNull      uint8 = 0x0
	bpInfoBoolFalse uint8 = 0x8
	bpInfoBoolTrue  uint8 = 0x9
	bpInfoFill      uint8 = 0xF

	// bpInfoExtendedCount marks a count stored in a following integer object.
	bpInfoExtendedCount uint8 = 0xF
)

// appleEpoch is 2001-01-01T00:00:00Z in Unix seconds.
const appleEpoch = 978307200
