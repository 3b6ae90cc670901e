package bplist

import (
	"fmt"
	"io"
	"io/ioutil"

	"go.uber.org/zap"
)

// Decode decodes the binary property list in data and returns its top
// object. data must hold a complete document; it is not retained or
// modified.
func Decode(data []byte, opts ...Option) (interface{}, error) {
	return decodeDocument(data, newConfig(opts))
}

func decodeDocument(data []byte, cfg *config) (interface{}, error) {
	if len(data) < headerSize+trailerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncatedBuffer, len(data))
	}

	header := parseHeader(data[:headerSize])
	if !cfg.permissive {
		if err := header.validate(); err != nil {
			return nil, err
		}
	}

	trailer := parseTrailer(data[len(data)-trailerSize:])
	if err := trailer.validate(len(data)); err != nil {
		return nil, err
	}
	cfg.log.Debug("bplist trailer",
		zap.String("version", header.Version),
		zap.Uint8("offsetSize", trailer.OffsetIntSize),
		zap.Uint8("objectRefSize", trailer.ObjectRefSize),
		zap.Uint64("numObjects", trailer.NumObjects),
		zap.Uint64("topObject", trailer.TopObject),
		zap.Uint64("offsetTableOffset", trailer.OffsetTableOffset),
	)

	offtable, err := parseOffsetTable(trailer.offsetTableSpan(data), trailer)
	if err != nil {
		return nil, err
	}

	p := newBplistParser(data, offtable, trailer, cfg.maxDepth)
	root, err := p.objectAtIndex(trailer.TopObject, 0)
	if err != nil {
		cfg.log.Debug("bplist decode failed", zap.Error(err))
		return nil, err
	}
	cfg.log.Debug("bplist decoded",
		zap.Int("objects", len(offtable)),
		zap.Uint64("top", trailer.TopObject),
	)
	return root, nil
}

// Unmarshal decodes data and stores the top object in the value pointed to
// by v. See UnmarshalValue for the conversion rules.
func Unmarshal(data []byte, v interface{}, opts ...Option) error {
	pval, err := Decode(data, opts...)
	if err != nil {
		return err
	}
	return UnmarshalValue(pval, v)
}

// A Decoder reads a whole binary property list from an io.Reader and decodes
// it.
type Decoder struct {
	reader io.Reader
	cfg    *config
}

// NewDecoder returns a Decoder that reads from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	return &Decoder{reader: r, cfg: newConfig(opts)}
}

// Decode reads r to EOF, decodes the document and stores it in v.
func (d *Decoder) Decode(v interface{}) error {
	data, err := ioutil.ReadAll(d.reader)
	if err != nil {
		return err
	}
	pval, err := decodeDocument(data, d.cfg)
	if err != nil {
		return err
	}
	return UnmarshalValue(pval, v)
}
