package bplist

import (
	"fmt"
	"math"
	"time"
)

type bplistParser struct {
	data     []byte
	offtable []uint64
	trailer  Trailer
	maxDepth int

	// objects caches decoded values by index so shared references are
	// decoded once. decoded marks filled slots since nil is a valid value.
	objects []interface{}
	decoded []bool
}

func newBplistParser(data []byte, offtable []uint64, trailer Trailer, maxDepth int) *bplistParser {
	return &bplistParser{
		data:     data,
		offtable: offtable,
		trailer:  trailer,
		maxDepth: maxDepth,
		objects:  make([]interface{}, len(offtable)),
		decoded:  make([]bool, len(offtable)),
	}
}

// span returns data[off:off+n], failing when it runs past the buffer.
func (p *bplistParser) span(off, n uint64) ([]byte, error) {
	end := off + n
	if end < off || end > uint64(len(p.data)) {
		return nil, fmt.Errorf("%w: %d bytes at offset %d, buffer is %d bytes",
			ErrObjectOutOfBounds, n, off, len(p.data))
	}
	return p.data[off:end], nil
}

func (p *bplistParser) objectAtIndex(index uint64, depth int) (interface{}, error) {
	if index >= uint64(len(p.offtable)) {
		return nil, fmt.Errorf("%w: #%d (only %d objects exist)", ErrInvalidObjectIndex, index, len(p.offtable))
	}
	if p.decoded[index] {
		return p.objects[index], nil
	}
	if depth > p.maxDepth {
		return nil, fmt.Errorf("%w (%d) at object #%d", ErrMaxDepth, p.maxDepth, index)
	}
	off := p.offtable[index]
	tagb, err := p.span(off, 1)
	if err != nil {
		return nil, &ObjectError{Index: index, Offset: off, Err: err}
	}
	pval, err := p.parseTagAtOffset(off, tagb[0], depth)
	if err != nil {
		if _, ok := err.(*ObjectError); ok {
			return nil, err
		}
		return nil, &ObjectError{Index: index, Offset: off, Tag: tagb[0], Err: err}
	}
	p.objects[index] = pval
	p.decoded[index] = true
	return pval, nil
}

func (p *bplistParser) parseTagAtOffset(off uint64, tag uint8, depth int) (interface{}, error) {
	typ, info, err := splitNibbles(int(tag))
	if err != nil {
		return nil, err
	}
	payload := off + 1

	switch typ {
	case bpTypeSimple:
		switch info {
		case bpInfoNull, bpInfoFill:
			return nil, nil
		case bpInfoBoolFalse:
			return false, nil
		case bpInfoBoolTrue:
			return true, nil
		}
		return nil, fmt.Errorf("%w 0x%x", ErrUnhandledSimpleType, info)
	case bpTypeInteger:
		if info > 4 {
			return nil, fmt.Errorf("%w: 2^%d bytes", ErrUnhandledIntegerWidth, info)
		}
		b, err := p.span(payload, 1<<info)
		if err != nil {
			return nil, err
		}
		return parseUnsignedInt(b), nil
	case bpTypeReal:
		if info > 3 {
			return nil, fmt.Errorf("%w: 2^%d", ErrUnhandledFloatLength, info)
		}
		b, err := p.span(payload, 1<<info)
		if err != nil {
			return nil, err
		}
		return parseFloat(b)
	case bpTypeDate:
		b, err := p.span(payload, 8)
		if err != nil {
			return nil, err
		}
		f, _ := parseFloat(b)
		return appleTime(f.(float64)), nil
	case bpTypeData:
		b, err := p.countedSpan(payload, info, 1)
		if err != nil {
			return nil, err
		}
		return append([]byte{}, b...), nil
	case bpTypeASCIIString:
		b, err := p.countedSpan(payload, info, 1)
		if err != nil {
			return nil, err
		}
		return decodeText(b), nil
	case bpTypeUTF16String:
		b, err := p.countedSpan(payload, info, 2)
		if err != nil {
			return nil, err
		}
		return decodeUTF16BE(b)
	case bpTypeUID:
		// The info nibble is nbytes-1 here, not log2(nbytes).
		b, err := p.span(payload, uint64(info)+1)
		if err != nil {
			return nil, err
		}
		n := parseUnsignedInt(b)
		if u, ok := n.Uint64(); ok {
			return UID(u), nil
		}
		return WideUID{n}, nil
	case bpTypeArray:
		refs, err := p.objectRefs(payload, info, 1)
		if err != nil {
			return nil, err
		}
		arr := make([]interface{}, len(refs))
		for i, ref := range refs {
			if arr[i], err = p.objectAtIndex(ref, depth+1); err != nil {
				return nil, err
			}
		}
		return arr, nil
	case bpTypeDictionary:
		refs, err := p.objectRefs(payload, info, 2)
		if err != nil {
			return nil, err
		}
		cnt := len(refs) / 2
		dict := newDictionary(cnt)
		for i := 0; i < cnt; i++ {
			key, err := p.objectAtIndex(refs[i], depth+1)
			if err != nil {
				return nil, err
			}
			val, err := p.objectAtIndex(refs[i+cnt], depth+1)
			if err != nil {
				return nil, err
			}
			dict.set(key, val)
		}
		return dict, nil
	}
	return nil, fmt.Errorf("%w 0x%x (tag 0x%02x)", ErrUnhandledObjectType, typ, tag)
}

// countForInfo returns the element count of a variable-length object whose
// tag carries info, and the number of bytes the count occupies after the tag.
func (p *bplistParser) countForInfo(payload uint64, info uint8) (uint64, uint64, error) {
	if info != bpInfoExtendedCount {
		return uint64(info), 0, nil
	}
	tagb, err := p.span(payload, 1)
	if err != nil {
		return 0, 0, err
	}
	intType, intInfo, _ := splitNibbles(int(tagb[0]))
	if intType != bpTypeInteger {
		return 0, 0, fmt.Errorf("%w: count tag 0x%02x is not an integer", ErrUnexpectedSizeEncoding, tagb[0])
	}
	if intInfo > 3 {
		return 0, 0, fmt.Errorf("%w: count of 2^%d bytes", ErrUnexpectedSizeEncoding, intInfo)
	}
	width := uint64(1) << intInfo
	b, err := p.span(payload+1, width)
	if err != nil {
		return 0, 0, err
	}
	cnt, err := parseUint(b)
	if err != nil {
		return 0, 0, err
	}
	return cnt, 1 + width, nil
}

// countedSpan returns the payload of a data or string object whose elements
// are unit bytes wide.
func (p *bplistParser) countedSpan(payload uint64, info uint8, unit uint64) ([]byte, error) {
	cnt, shift, err := p.countForInfo(payload, info)
	if err != nil {
		return nil, err
	}
	if cnt > uint64(len(p.data)) {
		return nil, fmt.Errorf("%w: count %d", ErrObjectOutOfBounds, cnt)
	}
	return p.span(payload+shift, cnt*unit)
}

// objectRefs reads the reference block of an array (per = 1) or dictionary
// (per = 2; keys first, then values).
func (p *bplistParser) objectRefs(payload uint64, info uint8, per uint64) ([]uint64, error) {
	cnt, shift, err := p.countForInfo(payload, info)
	if err != nil {
		return nil, err
	}
	if cnt > uint64(len(p.data)) {
		return nil, fmt.Errorf("%w: count %d", ErrObjectOutOfBounds, cnt)
	}
	refSize := uint64(p.trailer.ObjectRefSize)
	b, err := p.span(payload+shift, cnt*per*refSize)
	if err != nil {
		return nil, err
	}
	refs := make([]uint64, cnt*per)
	for i := range refs {
		if refs[i], err = parseUint(b[uint64(i)*refSize : uint64(i+1)*refSize]); err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// appleTime converts seconds since 2001-01-01T00:00:00Z to a UTC time.
func appleTime(secs float64) time.Time {
	sec, frac := math.Modf(secs)
	return time.Unix(int64(sec)+appleEpoch, int64(frac*float64(time.Second))).In(time.UTC)
}
