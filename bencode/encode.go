package bencode

import (
	"bytes"
	"strconv"
)

// Encode renders a value in canonical bencode form. Integers are
// written as minimal decimals and dictionary keys are emitted in
// ascending lexicographic byte order regardless of insertion order,
// so encoding is deterministic.
//
// For any value v built by the decoder, Decode(Encode(v)) yields a
// value equal to v. If the decoder's input was itself canonical, the
// encoding reproduces it byte for byte.
func Encode(v Value) []byte {
	var buf bytes.Buffer
	encodeValue(&buf, v)
	return buf.Bytes()
}

func encodeValue(buf *bytes.Buffer, v Value) {
	switch v.kind {
	case KindInteger:
		buf.WriteByte('i')
		buf.WriteString(strconv.FormatInt(v.integer, 10))
		buf.WriteByte('e')
	case KindString:
		encodeString(buf, v.str)
	case KindList:
		buf.WriteByte('l')
		for _, item := range v.list {
			encodeValue(buf, item)
		}
		buf.WriteByte('e')
	case KindDict:
		buf.WriteByte('d')
		for _, key := range v.dict.sortedKeys() {
			encodeString(buf, []byte(key))
			item, _ := v.dict.Get(key)
			encodeValue(buf, item)
		}
		buf.WriteByte('e')
	}
}

func encodeString(buf *bytes.Buffer, s []byte) {
	buf.WriteString(strconv.Itoa(len(s)))
	buf.WriteByte(':')
	buf.Write(s)
}
