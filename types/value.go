// Package types implements the external value/type-system contract of
// spec §6: comparable, null-aware values with tri-valued comparison
// and the small arithmetic aggregation needs, plus the schema and row
// codec the executors and catalog build on.
package types

import "fmt"

// Kind tags a Value's underlying representation.
type Kind uint8

const (
	Integer Kind = iota
	Varchar
	Boolean
)

func (k Kind) String() string {
	switch k {
	case Integer:
		return "integer"
	case Varchar:
		return "varchar"
	case Boolean:
		return "boolean"
	default:
		return "unknown"
	}
}

// Value is a typed, possibly-null column value (spec §6).
type Value struct {
	kind   Kind
	isNull bool
	i      int64
	s      string
	b      bool
}

// NewInteger builds a non-null integer value.
func NewInteger(v int64) Value { return Value{kind: Integer, i: v} }

// NewVarchar builds a non-null string value.
func NewVarchar(v string) Value { return Value{kind: Varchar, s: v} }

// NewBoolean builds a non-null boolean value.
func NewBoolean(v bool) Value { return Value{kind: Boolean, b: v} }

// NewNull builds a null value of the given kind; Kind is preserved so
// schema-typed operations (e.g. arithmetic) still know how to treat it.
func NewNull(kind Kind) Value { return Value{kind: kind, isNull: true} }

func (v Value) Kind() Kind    { return v.kind }
func (v Value) IsNull() bool  { return v.isNull }
func (v Value) Integer() int64 { return v.i }
func (v Value) Varchar() string { return v.s }
func (v Value) Boolean() bool  { return v.b }

func (v Value) String() string {
	if v.isNull {
		return "NULL"
	}
	switch v.kind {
	case Integer:
		return fmt.Sprintf("%d", v.i)
	case Varchar:
		return v.s
	case Boolean:
		return fmt.Sprintf("%t", v.b)
	default:
		return "?"
	}
}

// Tri is a three-valued logic result (spec §6 compare_<op>).
type Tri uint8

const (
	False Tri = iota
	True
	Unknown
)

// And/Or implement three-valued logic composition for predicate trees.
func (t Tri) And(o Tri) Tri {
	if t == False || o == False {
		return False
	}
	if t == Unknown || o == Unknown {
		return Unknown
	}
	return True
}

func (t Tri) Or(o Tri) Tri {
	if t == True || o == True {
		return True
	}
	if t == Unknown || o == Unknown {
		return Unknown
	}
	return False
}

func (t Tri) Not() Tri {
	switch t {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// IsTrue is the fast-path predicate test executors use to decide
// whether a row survives a filter.
func (t Tri) IsTrue() bool { return t == True }

func triOf(b bool) Tri {
	if b {
		return True
	}
	return False
}

// compare returns -1/0/1 ordering two non-null values of the same
// kind, or an error if the kinds mismatch.
func compare(a, b Value) (int, error) {
	if a.kind != b.kind {
		return 0, fmt.Errorf("types: cannot compare %s with %s", a.kind, b.kind)
	}
	switch a.kind {
	case Integer:
		switch {
		case a.i < b.i:
			return -1, nil
		case a.i > b.i:
			return 1, nil
		default:
			return 0, nil
		}
	case Varchar:
		switch {
		case a.s < b.s:
			return -1, nil
		case a.s > b.s:
			return 1, nil
		default:
			return 0, nil
		}
	case Boolean:
		switch {
		case !a.b && b.b:
			return -1, nil
		case a.b && !b.b:
			return 1, nil
		default:
			return 0, nil
		}
	default:
		return 0, fmt.Errorf("types: unknown kind %d", a.kind)
	}
}

// CompareEq, CompareLt, CompareLe, CompareGt, CompareGe are the
// tri-valued comparison operators of spec §6: any null operand yields
// Unknown, per standard NULL-propagation semantics.
func (v Value) CompareEq(o Value) Tri {
	if v.isNull || o.isNull {
		return Unknown
	}
	c, err := compare(v, o)
	if err != nil {
		return Unknown
	}
	return triOf(c == 0)
}

func (v Value) CompareLt(o Value) Tri { return v.compareOp(o, func(c int) bool { return c < 0 }) }
func (v Value) CompareLe(o Value) Tri { return v.compareOp(o, func(c int) bool { return c <= 0 }) }
func (v Value) CompareGt(o Value) Tri { return v.compareOp(o, func(c int) bool { return c > 0 }) }
func (v Value) CompareGe(o Value) Tri { return v.compareOp(o, func(c int) bool { return c >= 0 }) }

func (v Value) compareOp(o Value, test func(int) bool) Tri {
	if v.isNull || o.isNull {
		return Unknown
	}
	c, err := compare(v, o)
	if err != nil {
		return Unknown
	}
	return triOf(test(c))
}

// Add implements the aggregation SUM step: null plus anything is the
// other operand (SQL SUM ignores nulls), null plus null stays null.
func (v Value) Add(o Value) Value {
	if v.isNull {
		return o
	}
	if o.isNull {
		return v
	}
	return NewInteger(v.i + o.i)
}

// Min/Max implement the aggregation MIN/MAX step, also null-ignoring.
func (v Value) Min(o Value) Value {
	if v.isNull {
		return o
	}
	if o.isNull {
		return v
	}
	if c, err := compare(v, o); err == nil && c <= 0 {
		return v
	}
	return o
}

func (v Value) Max(o Value) Value {
	if v.isNull {
		return o
	}
	if o.isNull {
		return v
	}
	if c, err := compare(v, o); err == nil && c >= 0 {
		return v
	}
	return o
}

// EncodeKey produces order-preserving bytes for use as an index key
// (index.Key is a plain []byte): integers are big-endian with the
// sign bit flipped so byte-comparison matches numeric ordering,
// varchars are their raw bytes, booleans a single 0/1 byte. Null
// values are not indexable and encode to nil.
func (v Value) EncodeKey() []byte {
	if v.isNull {
		return nil
	}
	switch v.kind {
	case Integer:
		buf := make([]byte, 8)
		u := uint64(v.i) ^ (1 << 63)
		for i := 7; i >= 0; i-- {
			buf[i] = byte(u)
			u >>= 8
		}
		return buf
	case Varchar:
		return []byte(v.s)
	case Boolean:
		if v.b {
			return []byte{1}
		}
		return []byte{0}
	default:
		return nil
	}
}
