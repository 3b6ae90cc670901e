package bplist

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Integer is a decoded plist integer. Payloads of up to 8 bytes are held in a
// uint64; wider payloads keep their full value in a big.Int.
type Integer struct {
	width int
	u     uint64
	b     *big.Int
}

// NewInteger returns an 8-byte Integer holding n.
func NewInteger(n uint64) Integer {
	return Integer{width: 8, u: n}
}

// Width returns the payload width in bytes.
func (i Integer) Width() int { return i.width }

// Uint64 returns the unsigned value and whether it fits in 64 bits.
func (i Integer) Uint64() (uint64, bool) {
	if i.b == nil {
		return i.u, true
	}
	if i.b.IsUint64() {
		return i.b.Uint64(), true
	}
	return 0, false
}

// Int64 returns the value as a signed integer. 8-byte payloads are two's
// complement, which is how negative numbers are written. The boolean is false
// when the value does not fit.
func (i Integer) Int64() (int64, bool) {
	if i.b == nil {
		if i.width < 8 && i.u > math.MaxInt64 {
			return 0, false
		}
		return int64(i.u), true
	}
	if i.b.IsInt64() {
		return i.b.Int64(), true
	}
	return 0, false
}

// Big returns the exact unsigned value.
func (i Integer) Big() *big.Int {
	if i.b == nil {
		return new(big.Int).SetUint64(i.u)
	}
	return new(big.Int).Set(i.b)
}

// Equal reports whether i and j hold the same unsigned value, regardless of
// payload width.
func (i Integer) Equal(j Integer) bool {
	if i.b == nil && j.b == nil {
		return i.u == j.u
	}
	return i.Big().Cmp(j.Big()) == 0
}

func (i Integer) String() string {
	if i.b == nil {
		return strconv.FormatUint(i.u, 10)
	}
	return i.b.String()
}

// MarshalJSON renders the unsigned value as a JSON number.
func (i Integer) MarshalJSON() ([]byte, error) {
	return []byte(i.String()), nil
}

// UID is an object reference used by keyed archives. It is never produced
// for an ordinary integer.
type UID uint64

func (u UID) String() string {
	return fmt.Sprintf("{UID: %d}", uint64(u))
}

// MarshalJSON renders u as {"UID":n}.
func (u UID) MarshalJSON() ([]byte, error) {
	return []byte(`{"UID":` + strconv.FormatUint(uint64(u), 10) + `}`), nil
}

// WideUID is a UID whose payload does not fit in 64 bits. Decoding returns
// it only for such values; everything narrower is a UID.
type WideUID struct {
	Integer
}

func (u WideUID) String() string {
	return "{UID: " + u.Integer.String() + "}"
}

// MarshalJSON renders u as {"UID":n}.
func (u WideUID) MarshalJSON() ([]byte, error) {
	return []byte(`{"UID":` + u.Integer.String() + `}`), nil
}

// Dictionary is a decoded plist dictionary. Entries keep the order in which
// the document lists them.
type Dictionary struct {
	keys   []interface{}
	values []interface{}
	index  map[string]int
}

func newDictionary(n int) *Dictionary {
	return &Dictionary{
		keys:   make([]interface{}, 0, n),
		values: make([]interface{}, 0, n),
		index:  make(map[string]int, n),
	}
}

// set appends key or, for a repeated string key, replaces the earlier value
// in place.
func (d *Dictionary) set(key, value interface{}) {
	if s, ok := key.(string); ok {
		if i, ok := d.index[s]; ok {
			d.values[i] = value
			return
		}
		d.index[s] = len(d.keys)
	}
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
}

// Len returns the number of entries.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Keys returns a copy of the keys in document order.
func (d *Dictionary) Keys() []interface{} {
	if d == nil {
		return nil
	}
	return append([]interface{}(nil), d.keys...)
}

// Values returns a copy of the values in document order.
func (d *Dictionary) Values() []interface{} {
	if d == nil {
		return nil
	}
	return append([]interface{}(nil), d.values...)
}

// KeyAt returns the i'th key. It panics if i is not below Len.
func (d *Dictionary) KeyAt(i int) interface{} { return d.keys[i] }

// ValueAt returns the i'th value. It panics if i is not below Len.
func (d *Dictionary) ValueAt(i int) interface{} { return d.values[i] }

// Get returns the value stored under the string key.
func (d *Dictionary) Get(key string) (interface{}, bool) {
	if d == nil {
		return nil, false
	}
	i, ok := d.index[key]
	if !ok {
		return nil, false
	}
	return d.values[i], true
}

// Map returns the string-keyed entries as an unordered map. Entries with
// non-string keys are omitted.
func (d *Dictionary) Map() map[string]interface{} {
	m := make(map[string]interface{}, d.Len())
	if d == nil {
		return m
	}
	for k, i := range d.index {
		m[k] = d.values[i]
	}
	return m
}
