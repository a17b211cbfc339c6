// Package bencode implements the bencode wire format used by the
// BitTorrent Mainline DHT and by torrent metainfo files.
//
// Bencode is a self-describing binary format with four forms: integers
// ("i42e"), byte strings ("4:abcd"), lists ("l...e") and dictionaries
// ("d...e"). Dictionary keys are byte strings and must appear on the
// wire in strictly ascending lexicographic byte order.
//
// The decoder is strict: it rejects non-canonical integers, unordered
// or duplicate dictionary keys, and truncated input. Every decoded
// value retains the exact byte range it was decoded from (see
// Value.Raw), so a digest can be taken over the original bytes without
// re-encoding.
package bencode

import (
	"bytes"
	"sort"
)

// Kind identifies which of the four bencode forms a Value holds.
type Kind int

const (
	KindInteger Kind = iota
	KindString
	KindList
	KindDict
)

// Value is a decoded bencode value. The zero Value is the integer 0.
type Value struct {
	kind    Kind
	integer int64
	str     []byte
	list    []Value
	dict    *Dict
	raw     []byte
}

// Integer returns a Value holding a signed 64-bit integer.
func Integer(v int64) Value {
	return Value{kind: KindInteger, integer: v}
}

// String returns a Value holding the bytes of s.
func String(s string) Value {
	return Value{kind: KindString, str: []byte(s)}
}

// Bytes returns a Value holding an opaque byte string. The slice is
// used directly and must not be mutated afterwards.
func Bytes(b []byte) Value {
	return Value{kind: KindString, str: b}
}

// NewList returns a Value holding the given items in order.
func NewList(items ...Value) Value {
	return Value{kind: KindList, list: items}
}

// DictValue wraps a Dict as a Value.
func DictValue(d *Dict) Value {
	return Value{kind: KindDict, dict: d}
}

// Kind reports which form the value holds.
func (v Value) Kind() Kind { return v.kind }

// Int returns the integer payload. The second result is false when the
// value is not an integer.
func (v Value) Int() (int64, bool) {
	if v.kind != KindInteger {
		return 0, false
	}
	return v.integer, true
}

// StringBytes returns the byte-string payload. The second result is
// false when the value is not a byte string.
func (v Value) StringBytes() ([]byte, bool) {
	if v.kind != KindString {
		return nil, false
	}
	return v.str, true
}

// List returns the list payload. The second result is false when the
// value is not a list.
func (v Value) List() ([]Value, bool) {
	if v.kind != KindList {
		return nil, false
	}
	return v.list, true
}

// Dict returns the dictionary payload. The second result is false when
// the value is not a dictionary.
func (v Value) Dict() (*Dict, bool) {
	if v.kind != KindDict {
		return nil, false
	}
	return v.dict, true
}

// Raw returns the exact input bytes this value was decoded from, or
// nil for a value constructed programmatically. The infohash of a
// torrent is the SHA-1 of the Raw bytes of its "info" dictionary.
func (v Value) Raw() []byte { return v.raw }

// Equal reports deep equality of two values. Raw byte ranges are not
// part of the comparison.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInteger:
		return v.integer == other.integer
	case KindString:
		return bytes.Equal(v.str, other.str)
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		return v.dict.equal(other.dict)
	}
	return false
}

// Dict is a bencode dictionary: a mapping from byte-string keys to
// values. Insertion order is preserved for iteration, but encoding
// always emits keys in ascending lexicographic byte order.
type Dict struct {
	keys  []string
	index map[string]Value
}

// NewDict returns an empty dictionary.
func NewDict() *Dict {
	return &Dict{index: make(map[string]Value)}
}

// Set stores value under key, replacing any previous entry.
func (d *Dict) Set(key string, value Value) {
	if _, ok := d.index[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.index[key] = value
}

// Get returns the value stored under key.
func (d *Dict) Get(key string) (Value, bool) {
	v, ok := d.index[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []string {
	keys := make([]string, len(d.keys))
	copy(keys, d.keys)
	return keys
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

// sortedKeys returns the keys in ascending lexicographic byte order,
// the order they are encoded in.
func (d *Dict) sortedKeys() []string {
	keys := d.Keys()
	sort.Strings(keys)
	return keys
}

func (d *Dict) equal(other *Dict) bool {
	if d == nil || other == nil {
		return d == other
	}
	if len(d.keys) != len(other.keys) {
		return false
	}
	for key, v := range d.index {
		ov, ok := other.index[key]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}
