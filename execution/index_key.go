package execution

import (
	"encoding/binary"

	"github.com/corvidb/corvid/index"
	"github.com/corvidb/corvid/types"
)

// buildIndexKey concatenates row's columns at keyColumns, each
// length-prefixed, into the single opaque sort key index.Key expects.
// Length-prefixing (rather than bare concatenation) keeps column
// boundaries unambiguous: without it, a short value in one column
// could straddle into the next column's bytes. Keys compare column by
// column, each by encoded length first and bytes second, so integer
// columns (fixed 8-byte encodings) keep numeric order, while varchar
// values of different lengths order by length, not lexicographically.
func buildIndexKey(row types.Row, keyColumns []int) index.Key {
	var buf []byte
	for _, col := range keyColumns {
		enc := row.Values[col].EncodeKey()
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(enc)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, enc...)
	}
	return index.Key(buf)
}
