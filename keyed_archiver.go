package bplist

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	uuid "github.com/satori/go.uuid"
)

const (
	keyedArchiverName = "NSKeyedArchiver"
	archiverNullName  = "$null"
)

var (
	ErrNotKeyedArchive = errors.New("not a keyed archive")
	ErrArchiveCycle    = errors.New("keyed archive object refers to itself")
	ErrArchiveUID      = errors.New("keyed archive uid out of range")
)

type archiverClass struct {
	ClassName string   `plist:"$classname"`
	Classes   []string `plist:"$classes"`
}

func (c *archiverClass) is(names ...string) bool {
	for _, n := range names {
		if c.ClassName == n {
			return true
		}
	}
	return false
}

func (c *archiverClass) isDictionary() bool { return c.is("NSDictionary", "NSMutableDictionary") }
func (c *archiverClass) isArray() bool {
	return c.is("NSArray", "NSMutableArray", "NSSet", "NSMutableSet", "NSOrderedSet", "NSMutableOrderedSet")
}
func (c *archiverClass) isData() bool   { return c.is("NSData", "NSMutableData") }
func (c *archiverClass) isString() bool { return c.is("NSString", "NSMutableString") }
func (c *archiverClass) isUUID() bool   { return c.is("NSUUID") }
func (c *archiverClass) isDate() bool   { return c.is("NSDate") }

// ArchivedObject is an archived instance of a class without a plain-value
// mapping. Fields holds its resolved coder keys, without "$class".
type ArchivedObject struct {
	Class   string
	Classes []string
	Fields  *Dictionary
}

// Archiver is a decoded NSKeyedArchiver document. Objects holds the raw
// object table; Top names the entry points into it.
type Archiver struct {
	Version  int            `plist:"$version"`
	Archiver string         `plist:"$archiver"`
	Objects  []interface{}  `plist:"$objects"`
	Top      map[string]UID `plist:"$top"`
}

// ReadArchive decodes a keyed archive from a binary property list.
func ReadArchive(data []byte, opts ...Option) (*Archiver, error) {
	return ReadArchiveFrom(bytes.NewReader(data), opts...)
}

// ReadGzipArchive decodes a gzip-compressed keyed archive.
func ReadGzipArchive(data []byte, opts ...Option) (*Archiver, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return ReadArchiveFrom(reader, opts...)
}

// ReadArchiveFrom reads and decodes a keyed archive from r.
func ReadArchiveFrom(r io.Reader, opts ...Option) (*Archiver, error) {
	a := &Archiver{}
	if err := NewDecoder(r, opts...).Decode(a); err != nil {
		return nil, err
	}
	if a.Archiver != keyedArchiverName {
		return nil, fmt.Errorf("%w: $archiver is %q", ErrNotKeyedArchive, a.Archiver)
	}
	return a, nil
}

// Root resolves the archive's "root" object.
func (a *Archiver) Root() (interface{}, error) {
	return a.Resolve("root")
}

// Resolve follows the UID graph from the named top-level entry and returns
// it as plain values: "$null" becomes nil, dictionaries become *Dictionary,
// arrays and sets become []interface{}, and NSData, NSDate, NSUUID and
// NSString become []byte, time.Time, uuid.UUID and string. Instances of other
// classes become *ArchivedObject.
func (a *Archiver) Resolve(name string) (interface{}, error) {
	uid, ok := a.Top[name]
	if !ok {
		return nil, fmt.Errorf("%w: no top-level object %q", ErrNotKeyedArchive, name)
	}
	r := &archiveResolver{
		a:       a,
		done:    make(map[UID]interface{}),
		active:  make(map[UID]bool),
		classes: make(map[UID]*archiverClass),
	}
	return r.object(uid)
}

// Unmarshal resolves the root object and stores it in v.
func (a *Archiver) Unmarshal(v interface{}) error {
	root, err := a.Root()
	if err != nil {
		return err
	}
	return UnmarshalValue(root, v)
}

type archiveResolver struct {
	a       *Archiver
	done    map[UID]interface{}
	active  map[UID]bool
	classes map[UID]*archiverClass
}

func (r *archiveResolver) object(uid UID) (interface{}, error) {
	if uint64(uid) >= uint64(len(r.a.Objects)) {
		return nil, fmt.Errorf("%w: %v (%d objects)", ErrArchiveUID, uid, len(r.a.Objects))
	}
	if v, ok := r.done[uid]; ok {
		return v, nil
	}
	if r.active[uid] {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCycle, uid)
	}
	r.active[uid] = true
	defer delete(r.active, uid)

	v, err := r.value(r.a.Objects[uid])
	if err != nil {
		return nil, err
	}
	r.done[uid] = v
	return v, nil
}

func (r *archiveResolver) class(ref interface{}) (*archiverClass, error) {
	uid, ok := ref.(UID)
	if !ok {
		return nil, fmt.Errorf("%w: $class is a %s, not a uid", ErrNotKeyedArchive, plistTypeName(ref))
	}
	if c, ok := r.classes[uid]; ok {
		return c, nil
	}
	if uint64(uid) >= uint64(len(r.a.Objects)) {
		return nil, fmt.Errorf("%w: class %v", ErrArchiveUID, uid)
	}
	c := &archiverClass{}
	if err := UnmarshalValue(r.a.Objects[uid], c); err != nil {
		return nil, err
	}
	r.classes[uid] = c
	return c, nil
}

func (r *archiveResolver) value(v interface{}) (interface{}, error) {
	switch pval := v.(type) {
	case UID:
		return r.object(pval)
	case WideUID:
		return nil, fmt.Errorf("%w: %v (%d objects)", ErrArchiveUID, pval, len(r.a.Objects))
	case string:
		if pval == archiverNullName {
			return nil, nil
		}
		return pval, nil
	case []interface{}:
		return r.values(pval)
	case *Dictionary:
		classRef, ok := pval.Get("$class")
		if !ok {
			return r.dictionary(pval.Keys(), pval.Values())
		}
		class, err := r.class(classRef)
		if err != nil {
			return nil, err
		}
		return r.instance(class, pval)
	}
	return v, nil
}

func (r *archiveResolver) values(in []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(in))
	for i, v := range in {
		rv, err := r.value(v)
		if err != nil {
			return nil, err
		}
		out[i] = rv
	}
	return out, nil
}

func (r *archiveResolver) dictionary(keys, values []interface{}) (*Dictionary, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("%w: %d keys for %d values", ErrNotKeyedArchive, len(keys), len(values))
	}
	dict := newDictionary(len(keys))
	for i := range keys {
		k, err := r.value(keys[i])
		if err != nil {
			return nil, err
		}
		v, err := r.value(values[i])
		if err != nil {
			return nil, err
		}
		dict.set(k, v)
	}
	return dict, nil
}

// field resolves a coder key of an archived instance.
func (r *archiveResolver) field(obj *Dictionary, key string) (interface{}, error) {
	v, ok := obj.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrNotKeyedArchive, key)
	}
	return r.value(v)
}

func (r *archiveResolver) instance(class *archiverClass, obj *Dictionary) (interface{}, error) {
	switch {
	case class.isDictionary():
		keys, err := r.rawArray(obj, "NS.keys")
		if err != nil {
			return nil, err
		}
		values, err := r.rawArray(obj, "NS.objects")
		if err != nil {
			return nil, err
		}
		return r.dictionary(keys, values)
	case class.isArray():
		values, err := r.rawArray(obj, "NS.objects")
		if err != nil {
			return nil, err
		}
		return r.values(values)
	case class.isData():
		v, err := r.field(obj, "NS.data")
		if err != nil {
			return nil, err
		}
		data, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: NS.data is a %s", ErrNotKeyedArchive, plistTypeName(v))
		}
		return data, nil
	case class.isDate():
		v, err := r.field(obj, "NS.time")
		if err != nil {
			return nil, err
		}
		var secs float64
		if err := UnmarshalValue(v, &secs); err != nil {
			return nil, err
		}
		return appleTime(secs), nil
	case class.isUUID():
		v, err := r.field(obj, "NS.uuidbytes")
		if err != nil {
			return nil, err
		}
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: NS.uuidbytes is a %s", ErrNotKeyedArchive, plistTypeName(v))
		}
		u, err := uuid.FromBytes(b)
		if err != nil {
			return nil, err
		}
		return u, nil
	case class.isString():
		if _, ok := obj.Get("NS.string"); ok {
			return r.field(obj, "NS.string")
		}
		v, err := r.field(obj, "NS.bytes")
		if err != nil {
			return nil, err
		}
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("%w: NS.bytes is a %s", ErrNotKeyedArchive, plistTypeName(v))
		}
		return string(b), nil
	}

	fields := newDictionary(obj.Len())
	for i := 0; i < obj.Len(); i++ {
		if obj.KeyAt(i) == "$class" {
			continue
		}
		v, err := r.value(obj.ValueAt(i))
		if err != nil {
			return nil, err
		}
		fields.set(obj.KeyAt(i), v)
	}
	return &ArchivedObject{Class: class.ClassName, Classes: class.Classes, Fields: fields}, nil
}

// rawArray returns an unresolved array-valued coder key.
func (r *archiveResolver) rawArray(obj *Dictionary, key string) ([]interface{}, error) {
	v, ok := obj.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", ErrNotKeyedArchive, key)
	}
	if uid, ok := v.(UID); ok {
		if uint64(uid) >= uint64(len(r.a.Objects)) {
			return nil, fmt.Errorf("%w: %v", ErrArchiveUID, uid)
		}
		v = r.a.Objects[uid]
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: %s is a %s", ErrNotKeyedArchive, key, plistTypeName(v))
	}
	return arr, nil
}

// Print renders the resolved root object for debugging.
func (a *Archiver) Print() string {
	root, err := a.Root()
	if err != nil {
		return fmt.Sprintf("error(%v)", err)
	}
	builder := &strings.Builder{}
	printObject(builder, root, 0)
	return builder.String()
}

func printObject(builder *strings.Builder, v interface{}, depth int) {
	indent := strings.Repeat("\t", depth)
	switch pval := v.(type) {
	case nil:
		builder.WriteString("null")
	case string:
		fmt.Fprintf(builder, "string(%v)", pval)
	case Integer:
		fmt.Fprintf(builder, "integer(%v)", pval)
	case float32:
		fmt.Fprintf(builder, "float32(%v)", pval)
	case float64:
		fmt.Fprintf(builder, "float64(%v)", pval)
	case bool:
		fmt.Fprintf(builder, "bool(%v)", pval)
	case []byte:
		fmt.Fprintf(builder, "[]byte(%x)", pval)
	case time.Time:
		fmt.Fprintf(builder, "time(%v)", pval.Format(time.RFC3339Nano))
	case uuid.UUID:
		fmt.Fprintf(builder, "uuid(%v)", pval)
	case []interface{}:
		builder.WriteString("array{\n")
		for i, e := range pval {
			fmt.Fprintf(builder, "%s\t[%d]: ", indent, i)
			printObject(builder, e, depth+1)
			builder.WriteString("\n")
		}
		builder.WriteString(indent + "}")
	case *Dictionary:
		builder.WriteString("dict{\n")
		printFields(builder, pval, depth)
		builder.WriteString(indent + "}")
	case *ArchivedObject:
		builder.WriteString(pval.Class + "{\n")
		printFields(builder, pval.Fields, depth)
		builder.WriteString(indent + "}")
	default:
		fmt.Fprintf(builder, "%T(%v)", pval, pval)
	}
}

func printFields(builder *strings.Builder, dict *Dictionary, depth int) {
	indent := strings.Repeat("\t", depth)
	for i := 0; i < dict.Len(); i++ {
		fmt.Fprintf(builder, "%s\t[%v]: ", indent, dict.KeyAt(i))
		printObject(builder, dict.ValueAt(i), depth+1)
		builder.WriteString("\n")
	}
}
