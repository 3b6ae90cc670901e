package bplist

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON renders d as a JSON object in document order. Non-string keys
// are formatted with fmt.
func (d *Dictionary) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i := 0; i < d.Len(); i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, ok := d.keys[i].(string)
		if !ok {
			key = fmt.Sprint(d.keys[i])
		}
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(d.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ConvertToJSON decodes a binary property list and renders it as JSON.
func ConvertToJSON(data []byte, opts ...Option) ([]byte, error) {
	pval, err := Decode(data, opts...)
	if err != nil {
		return nil, err
	}
	return json.Marshal(pval)
}
