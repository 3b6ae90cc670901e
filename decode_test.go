package bplist

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zdypro888/go-bplist/internal/plisttest"
)

func itunesSmall() []byte {
	b := plisttest.New()
	k1 := b.String("Major Version")
	k2 := b.String("Application Version")
	k3 := b.String("Library Persistent ID")
	v1 := b.Uint(1)
	v2 := b.String("9.0.3")
	v3 := b.String("6F81D37F95101437")
	top := b.Dict([]int{k1, k2, k3}, []int{v1, v2, v3})
	return b.Build(top)
}

func TestDecodeDictionary(t *testing.T) {
	pval, err := Decode(itunesSmall())
	require.NoError(t, err)

	d, ok := pval.(*Dictionary)
	require.True(t, ok, "top object is %T", pval)
	v, ok := d.Get("Application Version")
	require.True(t, ok)
	require.Equal(t, "9.0.3", v)
	v, _ = d.Get("Library Persistent ID")
	require.Equal(t, "6F81D37F95101437", v)

	requireTree(t, dict(
		"Major Version", NewInteger(1),
		"Application Version", "9.0.3",
		"Library Persistent ID", "6F81D37F95101437",
	), pval)
	require.Equal(t, []interface{}{"Major Version", "Application Version", "Library Persistent ID"}, d.Keys())
}

func TestDecodeScalars(t *testing.T) {
	b := plisttest.New()
	refs := []int{
		b.Null(),
		b.Raw(0x0F),
		b.Bool(false),
		b.Bool(true),
		b.IntBytes([]byte{0xFF}),
		b.IntBytes([]byte{0x12, 0x34}),
		b.IntBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF}),
		b.IntBytes([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}),
		b.Real32(1.5),
		b.Real64(4.6269989039999997),
		b.Date(0),
		b.Date(1.5),
		b.Date(-0.25),
		b.Data([]byte{0xCA, 0xFE}),
		b.String(""),
		b.UTF16("©2008-2012, sellStuff, Inc."),
		b.UID(42),
	}
	pval, err := Decode(b.Build(b.Array(refs...)))
	require.NoError(t, err)

	epoch := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	requireTree(t, []interface{}{
		nil,
		nil,
		false,
		true,
		NewInteger(0xFF),
		NewInteger(0x1234),
		NewInteger(0xDEADBEEF),
		NewInteger(0x0102030405060708),
		float32(1.5),
		4.6269989039999997,
		epoch,
		epoch.Add(1500 * time.Millisecond),
		epoch.Add(-250 * time.Millisecond),
		[]byte{0xCA, 0xFE},
		"",
		"©2008-2012, sellStuff, Inc.",
		UID(42),
	}, pval)

	arr := pval.([]interface{})
	require.Equal(t, time.UTC, arr[10].(time.Time).Location())
	require.Equal(t, 1, arr[4].(Integer).Width())
	require.Equal(t, 8, arr[7].(Integer).Width())
}

func TestDecodeUTF16Strings(t *testing.T) {
	b := plisttest.New()
	k1 := b.String("CFBundleName")
	k2 := b.String("CFBundleDisplayName")
	v := b.UTF16("天翼阅读")
	pval, err := Decode(b.Build(b.Dict([]int{k1, k2}, []int{v, v})))
	require.NoError(t, err)
	requireTree(t, dict("CFBundleName", "天翼阅读", "CFBundleDisplayName", "天翼阅读"), pval)
}

func TestDecodeUIDs(t *testing.T) {
	b := plisttest.New()
	null := b.String("$null")
	keysKey, objectsKey := b.String("NS.keys"), b.String("NS.objects")
	var keyUIDs, objUIDs []int
	for i := uint64(2); i <= 4; i++ {
		keyUIDs = append(keyUIDs, b.UID(i))
		objUIDs = append(objUIDs, b.UID(i+3))
	}
	nsDict := b.Dict([]int{keysKey, objectsKey}, []int{b.Array(keyUIDs...), b.Array(objUIDs...)})
	rootKey := b.String("root")
	top := b.Dict([]int{rootKey}, []int{b.UID(1)})
	objectsName, topName := b.String("$objects"), b.String("$top")
	one := b.Uint(1)
	doc := b.Dict([]int{objectsName, topName, b.String("plain")}, []int{b.Array(null, nsDict), top, b.Array(one)})

	pval, err := Decode(b.Build(doc))
	require.NoError(t, err)
	d := pval.(*Dictionary)

	objects, _ := d.Get("$objects")
	ns := objects.([]interface{})[1].(*Dictionary)
	keys, _ := ns.Get("NS.keys")
	require.Equal(t, []interface{}{UID(2), UID(3), UID(4)}, keys)
	objs, _ := ns.Get("NS.objects")
	require.Equal(t, []interface{}{UID(5), UID(6), UID(7)}, objs)

	topVal, _ := d.Get("$top")
	root, _ := topVal.(*Dictionary).Get("root")
	require.Equal(t, UID(1), root)

	plain, _ := d.Get("plain")
	_, isUID := plain.([]interface{})[0].(UID)
	require.False(t, isUID, "plain integer decoded as a UID")
	_, isInt := plain.([]interface{})[0].(Integer)
	require.True(t, isInt)
}

func TestDecodeWideUID(t *testing.T) {
	b := plisttest.New()
	wide := b.Raw(0x83, 0x00, 0x01, 0x00, 0x00)
	pval, err := Decode(b.Build(wide))
	require.NoError(t, err)
	require.Equal(t, UID(0x10000), pval)

	b = plisttest.New()
	fits := append([]byte{0x8F}, make([]byte, 16)...)
	fits[16] = 0x07
	pval, err = Decode(b.Build(b.Raw(fits...)))
	require.NoError(t, err)
	require.Equal(t, UID(7), pval)

	b = plisttest.New()
	over := append([]byte{0x8F}, make([]byte, 16)...)
	over[1] = 0x01
	pval, err = Decode(b.Build(b.Raw(over...)))
	require.NoError(t, err)
	uid, ok := pval.(WideUID)
	require.True(t, ok, "decoded %T", pval)
	require.Equal(t, 0, uid.Big().Cmp(bigFromHex(t, "1000000000000000000000000000000")))
	require.Equal(t, 16, uid.Width())
	_, ok = uid.Uint64()
	require.False(t, ok)
	require.Equal(t, "{UID: 1329227995784915872903807060280344576}", uid.String())

	out, err := json.Marshal(uid)
	require.NoError(t, err)
	require.Equal(t, `{"UID":1329227995784915872903807060280344576}`, string(out))
}

func TestDecodeLargeIntegers(t *testing.T) {
	b := plisttest.New()
	k1, k2, k3, k4 := b.String("int64item"), b.String("int32itemsigned"), b.String("int128"), b.String("zero")
	v1 := b.IntBytes([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0xAB, 0x54, 0xA9, 0x8C, 0xEB, 0x1F, 0x0A, 0xD2})
	v2 := b.Int64(-1234567890)
	v3 := b.IntBytes([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10})
	v4 := b.Uint(0)
	pval, err := Decode(b.Build(b.Dict([]int{k1, k2, k3, k4}, []int{v1, v2, v3, v4})))
	require.NoError(t, err)
	d := pval.(*Dictionary)

	v, _ := d.Get("int64item")
	n := v.(Integer)
	require.Equal(t, 16, n.Width())
	require.Equal(t, "12345678901234567890", n.String())
	u, ok := n.Uint64()
	require.True(t, ok)
	require.Equal(t, uint64(12345678901234567890), u)

	v, _ = d.Get("int32itemsigned")
	i, ok := v.(Integer).Int64()
	require.True(t, ok)
	require.Equal(t, int64(-1234567890), i)

	v, _ = d.Get("int128")
	require.Equal(t, 0, v.(Integer).Big().Cmp(bigFromHex(t, "0102030405060708090a0b0c0d0e0f10")))
	_, ok = v.(Integer).Int64()
	require.False(t, ok)

	v, _ = d.Get("zero")
	require.Equal(t, "0", v.(Integer).String())
}

func TestDecodeArrayLengths(t *testing.T) {
	for _, n := range []int{0, 1, 14, 15, 200} {
		b := plisttest.New()
		refs := make([]int, n)
		want := make([]interface{}, n)
		for i := range refs {
			refs[i] = b.Uint(uint64(i))
			want[i] = NewInteger(uint64(i))
		}
		top := b.Array(refs...)
		doc := b.Build(top)

		pval, err := Decode(doc)
		require.NoError(t, err, "length %d", n)
		requireTree(t, want, pval)
		require.Len(t, pval.([]interface{}), n)
	}
}

func TestArrayCountEncoding(t *testing.T) {
	// Fourteen elements fit in the info nibble.
	b := plisttest.New()
	refs := make([]int, 14)
	for i := range refs {
		refs[i] = b.Bool(i%2 == 0)
	}
	top := b.Array(refs...)
	doc := b.Build(top)
	arrayOff := 8 + 14 // fourteen one-byte records precede the array
	require.Equal(t, byte(0xAE), doc[arrayOff])
	require.Equal(t, byte(0), doc[arrayOff+1], "first reference starts right after the tag")

	// Two hundred elements spill into an integer record after the tag.
	b = plisttest.New()
	refs = make([]int, 200)
	for i := range refs {
		refs[i] = b.Null()
	}
	doc = b.Build(b.Array(refs...))
	arrayOff = 8 + 200
	require.Equal(t, []byte{0xAF, 0x10, 0xC8, 0x00}, doc[arrayOff:arrayOff+4])
	pval, err := Decode(doc)
	require.NoError(t, err)
	require.Len(t, pval.([]interface{}), 200)
}

func TestSizeEncodingBoundary(t *testing.T) {
	tests := []struct {
		name   string
		record []byte
		want   string
	}{
		{"literal 14", append([]byte{0x5E}, "abcdefghijklmn"...), "abcdefghijklmn"},
		{"one byte count", append([]byte{0x5F, 0x10, 0x0F}, "abcdefghijklmno"...), "abcdefghijklmno"},
		{"two byte count", append([]byte{0x5F, 0x11, 0x00, 0x03}, "xyz"...), "xyz"},
		{"four byte count", append([]byte{0x5F, 0x12, 0x00, 0x00, 0x00, 0x02}, "hi"...), "hi"},
		{"eight byte count", append([]byte{0x5F, 0x13, 0, 0, 0, 0, 0, 0, 0, 0x01}, "!"...), "!"},
		{"utf16 units", []byte{0x6F, 0x10, 0x02, 0x00, 0x61, 0x00, 0x62}, "ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := plisttest.New()
			pval, err := Decode(b.Build(b.Raw(tt.record...)))
			require.NoError(t, err)
			require.Equal(t, tt.want, pval)
		})
	}

	b := plisttest.New()
	_, err := Decode(b.Build(b.Raw(0x4F, 0x50, 0x00)))
	require.ErrorIs(t, err, ErrUnexpectedSizeEncoding)

	b = plisttest.New()
	_, err = Decode(b.Build(b.Raw(append([]byte{0x4F, 0x14}, make([]byte, 16)...)...)))
	require.ErrorIs(t, err, ErrUnexpectedSizeEncoding)
}

func TestDictionaryKeyValueBlocks(t *testing.T) {
	b := plisttest.New()
	ka, kb := b.String("a"), b.String("b")
	v1, v2 := b.Uint(1), b.Uint(2)
	// Key references occupy bytes [0,2) after the tag, values [2,4).
	top := b.Raw(0xD2, byte(ka), byte(kb), byte(v1), byte(v2))
	pval, err := Decode(b.Build(top))
	require.NoError(t, err)
	requireTree(t, dict("a", NewInteger(1), "b", NewInteger(2)), pval)
}

func TestDictionaryDuplicateKeys(t *testing.T) {
	b := plisttest.New()
	ka, kb := b.String("a"), b.String("b")
	v1, v2, v3 := b.Uint(1), b.Uint(2), b.Uint(3)
	pval, err := Decode(b.Build(b.Dict([]int{ka, kb, ka}, []int{v1, v2, v3})))
	require.NoError(t, err)
	requireTree(t, dict("a", NewInteger(3), "b", NewInteger(2)), pval)
}

func TestDictionaryNonStringKeys(t *testing.T) {
	b := plisttest.New()
	k := b.Uint(7)
	v := b.String("seven")
	pval, err := Decode(b.Build(b.Dict([]int{k}, []int{v})))
	require.NoError(t, err)
	d := pval.(*Dictionary)
	require.Equal(t, 1, d.Len())
	require.Equal(t, NewInteger(7).String(), d.KeyAt(0).(Integer).String())
	require.Equal(t, "seven", d.ValueAt(0))
	require.Empty(t, d.Map())
}

func TestDecodeHeaderChecks(t *testing.T) {
	b := plisttest.New()
	b.Magic = "bpliss00"
	doc := b.Build(b.String("ok"))

	_, err := Decode(doc)
	require.ErrorIs(t, err, ErrFormat)
	pval, err := Decode(doc, WithPermissive(true))
	require.NoError(t, err)
	require.Equal(t, "ok", pval)

	b = plisttest.New()
	b.Magic = "bplist01"
	doc = b.Build(b.String("ok"))
	_, err = Decode(doc)
	require.ErrorIs(t, err, ErrVersion)
	pval, err = Decode(doc, WithPermissive(true))
	require.NoError(t, err)
	require.Equal(t, "ok", pval)
}

func TestDecodeWideReferences(t *testing.T) {
	b := plisttest.New()
	b.RefSize = 2
	b.OffsetSize = 4
	v := b.String("wide")
	pval, err := Decode(b.Build(b.Array(v, v)))
	require.NoError(t, err)
	require.Equal(t, []interface{}{"wide", "wide"}, pval)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *plisttest.Builder) int
		err   error
	}{
		{"simple type", func(b *plisttest.Builder) int { return b.Raw(0x01) }, ErrUnhandledSimpleType},
		{"object type", func(b *plisttest.Builder) int { return b.Raw(0x70) }, ErrUnhandledObjectType},
		{"set type", func(b *plisttest.Builder) int { return b.Raw(0xC0) }, ErrUnhandledObjectType},
		{"float length", func(b *plisttest.Builder) int { return b.Raw(0x21, 0x00, 0x00) }, ErrUnhandledFloatLength},
		{"float info", func(b *plisttest.Builder) int { return b.Raw(0x24) }, ErrUnhandledFloatLength},
		{"integer width", func(b *plisttest.Builder) int { return b.Raw(0x15) }, ErrUnhandledIntegerWidth},
		{"child index", func(b *plisttest.Builder) int { return b.Raw(0xA1, 0x09) }, ErrInvalidObjectIndex},
		{"string past end", func(b *plisttest.Builder) int {
			return b.Raw(append([]byte{0x5F, 0x10, 0xC8}, "abc"...)...)
		}, ErrObjectOutOfBounds},
		{"data past end", func(b *plisttest.Builder) int { return b.Raw(0x4F, 0x10, 0x40) }, ErrObjectOutOfBounds},
		{"self reference", func(b *plisttest.Builder) int { return b.Raw(0xA1, 0x00) }, ErrMaxDepth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := plisttest.New()
			doc := b.Build(tt.build(b))
			pval, err := Decode(doc)
			require.ErrorIs(t, err, tt.err)
			require.Nil(t, pval)
		})
	}
}

func TestObjectError(t *testing.T) {
	b := plisttest.New()
	bad := b.Raw(0x70)
	top := b.Array(b.Null(), bad)
	_, err := Decode(b.Build(top))

	var oerr *ObjectError
	require.True(t, errors.As(err, &oerr))
	require.Equal(t, uint64(bad), oerr.Index)
	require.Equal(t, uint8(0x70), oerr.Tag)
	require.Equal(t, uint64(8), oerr.Offset)
	require.ErrorIs(t, err, ErrUnhandledObjectType)
}

func TestDecodeStructuralErrors(t *testing.T) {
	_, err := Decode([]byte("bplist00"))
	require.ErrorIs(t, err, ErrTruncatedBuffer)

	b := plisttest.New()
	doc := b.Build(b.String("x"))

	bad := append([]byte{}, doc...)
	binary.BigEndian.PutUint64(bad[len(bad)-16:], 5) // top object
	_, err = Decode(bad)
	require.ErrorIs(t, err, ErrInvalidObjectIndex)

	bad = append([]byte{}, doc...)
	binary.BigEndian.PutUint64(bad[len(bad)-24:], 40) // object count
	_, err = Decode(bad)
	require.ErrorIs(t, err, ErrTruncatedOffsetTable)

	bad = append([]byte{}, doc...)
	binary.BigEndian.PutUint64(bad[len(bad)-8:], 1<<20) // offset table offset
	_, err = Decode(bad)
	require.ErrorIs(t, err, ErrTruncatedOffsetTable)

	bad = append([]byte{}, doc...)
	bad[len(bad)-26] = 0 // offset size
	_, err = Decode(bad)
	require.ErrorIs(t, err, ErrInvalidTrailer)

	bad = append([]byte{}, doc...)
	tableOffset := binary.BigEndian.Uint64(bad[len(bad)-8:])
	bad[tableOffset] = 0xFF // object offset beyond the buffer
	_, err = Decode(bad)
	require.ErrorIs(t, err, ErrObjectOutOfBounds)
}

func TestDecodeSharedChildren(t *testing.T) {
	b := plisttest.New()
	inner := b.String("leaf")
	for i := 0; i < 40; i++ {
		inner = b.Array(inner, inner)
	}
	pval, err := Decode(b.Build(inner), WithMaxDepth(64))
	require.NoError(t, err)

	for depth := 0; depth < 40; depth++ {
		arr, ok := pval.([]interface{})
		require.True(t, ok, "level %d decoded as %T", depth, pval)
		require.Len(t, arr, 2)
		if depth < 39 {
			require.Equal(t, reflect.ValueOf(arr[0]).Pointer(), reflect.ValueOf(arr[1]).Pointer(),
				"level %d children decoded separately", depth)
		}
		pval = arr[0]
	}
	require.Equal(t, "leaf", pval)
}

func TestDecodeMaxDepth(t *testing.T) {
	b := plisttest.New()
	inner := b.Null()
	for i := 0; i < 5; i++ {
		inner = b.Array(inner)
	}
	doc := b.Build(inner)

	_, err := Decode(doc, WithMaxDepth(4))
	require.ErrorIs(t, err, ErrMaxDepth)
	_, err = Decode(doc, WithMaxDepth(5))
	require.NoError(t, err)
	_, err = Decode(doc, WithMaxDepth(0))
	require.NoError(t, err)
}

func TestDecodeDataIsCopied(t *testing.T) {
	b := plisttest.New()
	doc := b.Build(b.Data([]byte{1, 2, 3}))
	pval, err := Decode(doc)
	require.NoError(t, err)
	for i := range doc {
		doc[i] = 0
	}
	require.Equal(t, []byte{1, 2, 3}, pval)
}

func TestDecodeConcurrent(t *testing.T) {
	doc := itunesSmall()
	want, err := Decode(doc)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]interface{}, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = Decode(doc)
		}(i)
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		requireTree(t, want, results[i])
	}
}

func TestDecodeWithLogger(t *testing.T) {
	pval, err := Decode(itunesSmall(), WithLogger(zap.NewExample()), WithLogger(nil))
	require.NoError(t, err)
	require.NotNil(t, pval)
}

func TestDecoderReader(t *testing.T) {
	var got struct {
		Version string `plist:"Application Version"`
		Major   int    `plist:"Major Version"`
	}
	require.NoError(t, NewDecoder(bytes.NewReader(itunesSmall())).Decode(&got))
	require.Equal(t, "9.0.3", got.Version)
	require.Equal(t, 1, got.Major)
}
