package types

import "github.com/vmihailenco/msgpack/v5"

// Row is a materialized tuple: one Value per column of some Schema.
type Row struct {
	Values []Value
}

// wireValue mirrors Value with exported fields for the msgpack codec — Value
// keeps its fields unexported so CompareEq/Add/etc. stay the only way
// to observe or combine values; wireValue exists purely for encoding.
type wireValue struct {
	Kind   Kind
	IsNull bool
	I      int64
	S      string
	B      bool
}

func (v Value) toWire() wireValue {
	return wireValue{Kind: v.kind, IsNull: v.isNull, I: v.i, S: v.s, B: v.b}
}

func fromWire(w wireValue) Value {
	return Value{kind: w.Kind, isNull: w.IsNull, i: w.I, s: w.S, b: w.B}
}

// EncodeRow serializes row's values to bytes for storage as a table
// heap tuple payload (variable-width, unlike the page-sized codec
// util.ToByteSlice uses for fixed-size index/buffer pages).
func EncodeRow(row Row) ([]byte, error) {
	wire := make([]wireValue, len(row.Values))
	for i, v := range row.Values {
		wire[i] = v.toWire()
	}
	return msgpack.Marshal(wire)
}

// DecodeRow is EncodeRow's inverse.
func DecodeRow(data []byte) (Row, error) {
	var wire []wireValue
	if err := msgpack.Unmarshal(data, &wire); err != nil {
		return Row{}, err
	}
	values := make([]Value, len(wire))
	for i, w := range wire {
		values[i] = fromWire(w)
	}
	return Row{Values: values}, nil
}
