package bplist

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	ErrFormat                 = errors.New("invalid binary property list, expected 'bplist' at offset 0")
	ErrVersion                = errors.New("unsupported binary property list version")
	ErrTruncatedBuffer        = errors.New("buffer too short for header and trailer")
	ErrInvalidTrailer         = errors.New("invalid trailer")
	ErrTruncatedOffsetTable   = errors.New("offset table is truncated")
	ErrInvalidObjectIndex     = errors.New("object index out of range")
	ErrObjectOutOfBounds      = errors.New("object extends beyond end of buffer")
	ErrByteOutOfRange         = errors.New("byte out of range")
	ErrUnhandledFloatLength   = errors.New("unhandled float length")
	ErrUnhandledIntegerWidth  = errors.New("unhandled integer width")
	ErrUnhandledSimpleType    = errors.New("unhandled simple type")
	ErrUnhandledObjectType    = errors.New("unhandled object type")
	ErrUnexpectedSizeEncoding = errors.New("unexpected size encoding")
	ErrMaxDepth               = errors.New("maximum nesting depth exceeded")
)

// ObjectError records a failure while decoding the object at Index.
type ObjectError struct {
	Index  uint64
	Offset uint64
	Tag    uint8
	Err    error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("bplist: object #%d (tag 0x%02x) at offset %d: %v", e.Index, e.Tag, e.Offset, e.Err)
}

func (e *ObjectError) Unwrap() error { return e.Err }

// UnmarshalTypeError describes a decoded value that cannot be stored in a Go
// value of a specific type.
type UnmarshalTypeError struct {
	Value string
	Type  reflect.Type
}

func (e *UnmarshalTypeError) Error() string {
	return "bplist: cannot unmarshal " + e.Value + " into Go value of type " + e.Type.String()
}
