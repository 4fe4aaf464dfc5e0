package types

import (
	"testing"
)

func TestRowEncodeDecodeRoundTrip(t *testing.T) {
	row := Row{Values: []Value{
		NewInteger(42),
		NewVarchar("hello"),
		NewBoolean(true),
		NewNull(Integer),
	}}

	data, err := EncodeRow(row)
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}

	got, err := DecodeRow(data)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}

	if len(got.Values) != len(row.Values) {
		t.Fatalf("got %d values, want %d", len(got.Values), len(row.Values))
	}
	if got.Values[0].Integer() != 42 {
		t.Fatalf("got %d, want 42", got.Values[0].Integer())
	}
	if got.Values[1].Varchar() != "hello" {
		t.Fatalf("got %q, want %q", got.Values[1].Varchar(), "hello")
	}
	if got.Values[2].Boolean() != true {
		t.Fatal("got false, want true")
	}
	if !got.Values[3].IsNull() || got.Values[3].Kind() != Integer {
		t.Fatalf("got %+v, want null integer", got.Values[3])
	}
}

func TestRowEncodeEmpty(t *testing.T) {
	data, err := EncodeRow(Row{})
	if err != nil {
		t.Fatalf("EncodeRow: %v", err)
	}
	got, err := DecodeRow(data)
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	if len(got.Values) != 0 {
		t.Fatalf("got %d values, want 0", len(got.Values))
	}
}
