package types

import "testing"

func TestValueCompare(t *testing.T) {
	t.Run("equal integers", func(t *testing.T) {
		if got := NewInteger(5).CompareEq(NewInteger(5)); got != True {
			t.Fatalf("got %v, want True", got)
		}
	})

	t.Run("null propagates to unknown", func(t *testing.T) {
		n := NewNull(Integer)
		if got := n.CompareEq(NewInteger(5)); got != Unknown {
			t.Fatalf("got %v, want Unknown", got)
		}
		if got := n.CompareLt(NewInteger(5)); got != Unknown {
			t.Fatalf("got %v, want Unknown", got)
		}
	})

	t.Run("varchar ordering", func(t *testing.T) {
		if got := NewVarchar("a").CompareLt(NewVarchar("b")); got != True {
			t.Fatalf("got %v, want True", got)
		}
	})

	t.Run("mismatched kinds compare as unknown", func(t *testing.T) {
		if got := NewInteger(1).CompareEq(NewVarchar("1")); got != Unknown {
			t.Fatalf("got %v, want Unknown", got)
		}
	})
}

func TestTriLogic(t *testing.T) {
	t.Run("unknown and false is false", func(t *testing.T) {
		if got := Unknown.And(False); got != False {
			t.Fatalf("got %v, want False", got)
		}
	})
	t.Run("unknown or true is true", func(t *testing.T) {
		if got := Unknown.Or(True); got != True {
			t.Fatalf("got %v, want True", got)
		}
	})
	t.Run("unknown and true is unknown", func(t *testing.T) {
		if got := Unknown.And(True); got != Unknown {
			t.Fatalf("got %v, want Unknown", got)
		}
	})
	t.Run("not unknown is unknown", func(t *testing.T) {
		if got := Unknown.Not(); got != Unknown {
			t.Fatalf("got %v, want Unknown", got)
		}
	})
	t.Run("IsTrue only true on True", func(t *testing.T) {
		if Unknown.IsTrue() {
			t.Fatal("Unknown must not be IsTrue")
		}
		if !True.IsTrue() {
			t.Fatal("True must be IsTrue")
		}
	})
}

func TestValueAggregationArithmetic(t *testing.T) {
	t.Run("Add ignores null operands", func(t *testing.T) {
		n := NewNull(Integer)
		if got := n.Add(NewInteger(3)); got.Integer() != 3 {
			t.Fatalf("got %d, want 3", got.Integer())
		}
		if got := NewInteger(3).Add(n); got.Integer() != 3 {
			t.Fatalf("got %d, want 3", got.Integer())
		}
		if got := NewInteger(2).Add(NewInteger(3)); got.Integer() != 5 {
			t.Fatalf("got %d, want 5", got.Integer())
		}
	})

	t.Run("Min/Max ignore null operands", func(t *testing.T) {
		n := NewNull(Integer)
		if got := n.Min(NewInteger(3)); got.Integer() != 3 {
			t.Fatalf("got %d, want 3", got.Integer())
		}
		if got := NewInteger(5).Min(NewInteger(3)); got.Integer() != 3 {
			t.Fatalf("got %d, want 3", got.Integer())
		}
		if got := NewInteger(5).Max(NewInteger(3)); got.Integer() != 5 {
			t.Fatalf("got %d, want 5", got.Integer())
		}
	})
}

func TestValueEncodeKey(t *testing.T) {
	t.Run("integer ordering is preserved byte-wise", func(t *testing.T) {
		lo := NewInteger(-5).EncodeKey()
		hi := NewInteger(5).EncodeKey()
		if !bytesLess(lo, hi) {
			t.Fatalf("expected -5's encoding to sort before 5's")
		}
	})

	t.Run("null encodes to nil", func(t *testing.T) {
		if got := NewNull(Integer).EncodeKey(); got != nil {
			t.Fatalf("got %v, want nil", got)
		}
	})

	t.Run("varchar encodes to its raw bytes", func(t *testing.T) {
		got := NewVarchar("abc").EncodeKey()
		if string(got) != "abc" {
			t.Fatalf("got %q, want %q", got, "abc")
		}
	})
}

func bytesLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
