package bplist

import (
	"reflect"
	"strings"
	"sync"
)

// typeInfo holds the plist names of a struct type's fields.
type typeInfo struct {
	fields []fieldInfo
}

// fieldInfo holds details for the plist representation of a single field.
type fieldInfo struct {
	idx  []int
	name string
}

var tinfoMap sync.Map // map[reflect.Type]*typeInfo

// getTypeInfo returns the typeInfo for typ, building and caching it on first
// use.
func getTypeInfo(typ reflect.Type) *typeInfo {
	if ti, ok := tinfoMap.Load(typ); ok {
		return ti.(*typeInfo)
	}
	tinfo := &typeInfo{}
	if typ.Kind() == reflect.Struct {
		for i := 0; i < typ.NumField(); i++ {
			f := typ.Field(i)
			if f.Tag.Get("plist") == "-" || (!f.Anonymous && f.PkgPath != "") {
				continue
			}

			// Embedded structs contribute their own fields.
			if f.Anonymous {
				t := f.Type
				if t.Kind() == reflect.Ptr {
					t = t.Elem()
				}
				if f.PkgPath != "" && f.Type.Kind() == reflect.Ptr {
					continue
				}
				if t.Kind() == reflect.Struct && f.Tag.Get("plist") == "" {
					for _, inner := range getTypeInfo(t).fields {
						inner.idx = append([]int{i}, inner.idx...)
						tinfo.add(inner)
					}
					continue
				}
				if f.PkgPath != "" {
					continue
				}
			}
			tinfo.add(structFieldInfo(&f))
		}
	}
	ti, _ := tinfoMap.LoadOrStore(typ, tinfo)
	return ti.(*typeInfo)
}

func structFieldInfo(f *reflect.StructField) fieldInfo {
	name := strings.Split(f.Tag.Get("plist"), ",")[0]
	if name == "" {
		name = f.Name
	}
	return fieldInfo{idx: f.Index, name: name}
}

// add appends newf unless a shallower field already claims its name. A
// shallower newf replaces deeper fields of the same name, following Go's
// embedding rules.
func (tinfo *typeInfo) add(newf fieldInfo) {
	var conflicts []int
	for i := range tinfo.fields {
		if tinfo.fields[i].name == newf.name {
			conflicts = append(conflicts, i)
		}
	}
	if conflicts == nil {
		tinfo.fields = append(tinfo.fields, newf)
		return
	}
	for _, i := range conflicts {
		if len(tinfo.fields[i].idx) <= len(newf.idx) {
			return
		}
	}
	for c := len(conflicts) - 1; c >= 0; c-- {
		i := conflicts[c]
		tinfo.fields = append(tinfo.fields[:i], tinfo.fields[i+1:]...)
	}
	tinfo.fields = append(tinfo.fields, newf)
}

// value returns v's field for finfo, allocating nil embedded pointers on the
// way.
func (finfo *fieldInfo) value(v reflect.Value) reflect.Value {
	for i, x := range finfo.idx {
		if i > 0 {
			if v.Kind() == reflect.Ptr && v.Type().Elem().Kind() == reflect.Struct {
				if v.IsNil() {
					v.Set(reflect.New(v.Type().Elem()))
				}
				v = v.Elem()
			}
		}
		v = v.Field(x)
	}
	return v
}
