package bplist

import (
	"fmt"
	"math/big"
	"reflect"
	"time"
)

// UnmarshalValue stores the decoded value pval in the value pointed to by v.
//
// Values are assigned directly when their Go type is assignable to the target
// (interface{}, Integer, UID, *Dictionary, time.Time, ...). Otherwise strings,
// booleans, integers, reals and data convert to the matching Go kinds, arrays
// fill slices and arrays, and dictionaries fill string-keyed maps or structs.
// Struct fields are matched by their `plist:"name"` tag or, without one, by
// field name; `plist:"-"` skips a field. A null leaves the target zeroed.
func UnmarshalValue(pval interface{}, v interface{}) error {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("bplist: Unmarshal target must be a non-nil pointer, got %T", v)
	}
	return unmarshal(pval, val.Elem())
}

func unmarshal(pval interface{}, val reflect.Value) error {
	if pval == nil {
		val.Set(reflect.Zero(val.Type()))
		return nil
	}
	if pv := reflect.ValueOf(pval); pv.Type().AssignableTo(val.Type()) {
		val.Set(pv)
		return nil
	}
	if val.Kind() == reflect.Ptr {
		if val.IsNil() {
			val.Set(reflect.New(val.Type().Elem()))
		}
		return unmarshal(pval, val.Elem())
	}

	switch pval := pval.(type) {
	case string:
		if val.Kind() == reflect.String {
			val.SetString(pval)
			return nil
		}
	case bool:
		if val.Kind() == reflect.Bool {
			val.SetBool(pval)
			return nil
		}
	case Integer:
		if unmarshalInteger(pval, val) {
			return nil
		}
	case UID:
		if unmarshalInteger(NewInteger(uint64(pval)), val) {
			return nil
		}
	case WideUID:
		if unmarshalInteger(pval.Integer, val) {
			return nil
		}
	case float32:
		if isFloatKind(val.Kind()) {
			val.SetFloat(float64(pval))
			return nil
		}
	case float64:
		if isFloatKind(val.Kind()) && !val.OverflowFloat(pval) {
			val.SetFloat(pval)
			return nil
		}
	case []byte:
		switch {
		case val.Kind() == reflect.Slice && val.Type().Elem().Kind() == reflect.Uint8:
			val.SetBytes(append([]byte{}, pval...))
			return nil
		case val.Kind() == reflect.Array && val.Type().Elem().Kind() == reflect.Uint8 && val.Len() == len(pval):
			reflect.Copy(val, reflect.ValueOf(pval))
			return nil
		}
	case []interface{}:
		switch val.Kind() {
		case reflect.Slice:
			return unmarshalSlice(pval, val)
		case reflect.Array:
			if val.Len() == len(pval) {
				return unmarshalArray(pval, val)
			}
		}
	case *Dictionary:
		switch val.Kind() {
		case reflect.Map:
			if val.Type().Key().Kind() == reflect.String {
				return unmarshalMap(pval, val)
			}
		case reflect.Struct:
			return unmarshalStruct(pval, val)
		}
	case *ArchivedObject:
		return unmarshal(pval.Fields, val)
	}
	return &UnmarshalTypeError{Value: plistTypeName(pval), Type: val.Type()}
}

func isFloatKind(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func unmarshalInteger(n Integer, val reflect.Value) bool {
	switch val.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, ok := n.Int64()
		if !ok || val.OverflowInt(i) {
			return false
		}
		val.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, ok := n.Uint64()
		if !ok || val.OverflowUint(u) {
			return false
		}
		val.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, _ := new(big.Float).SetInt(n.Big()).Float64()
		val.SetFloat(f)
	default:
		return false
	}
	return true
}

func unmarshalSlice(array []interface{}, val reflect.Value) error {
	slice := reflect.MakeSlice(val.Type(), len(array), len(array))
	for i, v := range array {
		if err := unmarshal(v, slice.Index(i)); err != nil {
			return err
		}
	}
	val.Set(slice)
	return nil
}

func unmarshalArray(array []interface{}, val reflect.Value) error {
	for i, v := range array {
		if err := unmarshal(v, val.Index(i)); err != nil {
			return err
		}
	}
	return nil
}

func unmarshalMap(dict *Dictionary, val reflect.Value) error {
	typ := val.Type()
	if val.IsNil() {
		val.Set(reflect.MakeMapWithSize(typ, dict.Len()))
	}
	for i := 0; i < dict.Len(); i++ {
		key, ok := dict.KeyAt(i).(string)
		if !ok {
			return &UnmarshalTypeError{Value: "dictionary key " + plistTypeName(dict.KeyAt(i)), Type: typ.Key()}
		}
		elem := reflect.New(typ.Elem()).Elem()
		if err := unmarshal(dict.ValueAt(i), elem); err != nil {
			return err
		}
		val.SetMapIndex(reflect.ValueOf(key).Convert(typ.Key()), elem)
	}
	return nil
}

func unmarshalStruct(dict *Dictionary, val reflect.Value) error {
	tinfo := getTypeInfo(val.Type())
	for i := range tinfo.fields {
		finfo := &tinfo.fields[i]
		if dval, ok := dict.Get(finfo.name); ok {
			if err := unmarshal(dval, finfo.value(val)); err != nil {
				return fmt.Errorf("field %s: %w", finfo.name, err)
			}
		}
	}
	return nil
}

func plistTypeName(pval interface{}) string {
	switch pval.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case Integer:
		return "integer"
	case float32, float64:
		return "real"
	case time.Time:
		return "date"
	case []byte:
		return "data"
	case string:
		return "string"
	case UID, WideUID:
		return "uid"
	case []interface{}:
		return "array"
	case *Dictionary:
		return "dictionary"
	case *ArchivedObject:
		return "archived object"
	}
	return fmt.Sprintf("%T", pval)
}
