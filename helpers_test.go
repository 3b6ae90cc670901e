package bplist

import (
	"math/big"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type dictEntry struct {
	Key, Value interface{}
}

// treeOpts compares decoded trees: integers by value, dictionaries as ordered
// entry lists.
var treeOpts = cmp.Options{
	cmp.Comparer(func(a, b Integer) bool { return a.Equal(b) }),
	cmp.Transformer("Entries", func(d *Dictionary) []dictEntry {
		entries := make([]dictEntry, d.Len())
		for i := range entries {
			entries[i] = dictEntry{d.KeyAt(i), d.ValueAt(i)}
		}
		return entries
	}),
}

func requireTree(t *testing.T, want, got interface{}) {
	t.Helper()
	if diff := cmp.Diff(want, got, treeOpts); diff != "" {
		t.Fatalf("decoded tree mismatch (-want +got):\n%s", diff)
	}
}

func dict(kv ...interface{}) *Dictionary {
	d := newDictionary(len(kv) / 2)
	for i := 0; i+1 < len(kv); i += 2 {
		d.set(kv[i], kv[i+1])
	}
	return d
}

func bigFromHex(t *testing.T, s string) *big.Int {
	t.Helper()
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		t.Fatalf("bad hex %q", s)
	}
	return n
}
