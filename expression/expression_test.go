package expression

import (
	"testing"

	"github.com/corvidb/corvid/types"
)

func testSchema() types.Schema {
	return types.NewSchema(
		types.Column{Name: "id", Kind: types.Integer},
		types.Column{Name: "name", Kind: types.Varchar},
	)
}

func TestColumnRefEvaluate(t *testing.T) {
	schema := testSchema()
	row := types.Row{Values: []types.Value{types.NewInteger(7), types.NewVarchar("x")}}

	got, err := ColumnRef{Name: "name"}.Evaluate(row, schema)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if got.Varchar() != "x" {
		t.Fatalf("got %q, want %q", got.Varchar(), "x")
	}
}

func TestColumnRefEvaluateUnknownColumn(t *testing.T) {
	schema := testSchema()
	row := types.Row{Values: []types.Value{types.NewInteger(7), types.NewVarchar("x")}}
	if _, err := (ColumnRef{Name: "missing"}).Evaluate(row, schema); err == nil {
		t.Fatal("expected an error for a missing column")
	}
}

func TestComparisonEvaluate(t *testing.T) {
	schema := testSchema()
	row := types.Row{Values: []types.Value{types.NewInteger(7), types.NewVarchar("x")}}

	expr := Comparison{Op: Eq, Left: ColumnRef{Name: "id"}, Right: Literal{Value: types.NewInteger(7)}}
	ok, err := IsTrue(expr, row, schema)
	if err != nil {
		t.Fatalf("IsTrue: %v", err)
	}
	if !ok {
		t.Fatal("expected id = 7 to be true")
	}
}

func TestComparisonNullPropagation(t *testing.T) {
	schema := types.NewSchema(types.Column{Name: "id", Kind: types.Integer})
	row := types.Row{Values: []types.Value{types.NewNull(types.Integer)}}

	expr := Comparison{Op: Eq, Left: ColumnRef{Name: "id"}, Right: Literal{Value: types.NewInteger(7)}}
	v, err := expr.Evaluate(row, schema)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !v.IsNull() {
		t.Fatalf("expected a null result from comparing against a null column, got %v", v)
	}

	ok, err := IsTrue(expr, row, schema)
	if err != nil {
		t.Fatalf("IsTrue: %v", err)
	}
	if ok {
		t.Fatal("a null comparison must never be IsTrue")
	}
}

func TestAndOrNot(t *testing.T) {
	schema := testSchema()
	row := types.Row{Values: []types.Value{types.NewInteger(7), types.NewVarchar("x")}}

	idEq7 := Comparison{Op: Eq, Left: ColumnRef{Name: "id"}, Right: Literal{Value: types.NewInteger(7)}}
	idEq8 := Comparison{Op: Eq, Left: ColumnRef{Name: "id"}, Right: Literal{Value: types.NewInteger(8)}}

	t.Run("and of true and false is false", func(t *testing.T) {
		ok, err := IsTrue(And{Left: idEq7, Right: idEq8}, row, schema)
		if err != nil {
			t.Fatalf("IsTrue: %v", err)
		}
		if ok {
			t.Fatal("expected And(true, false) to be false")
		}
	})

	t.Run("or of true and false is true", func(t *testing.T) {
		ok, err := IsTrue(Or{Left: idEq7, Right: idEq8}, row, schema)
		if err != nil {
			t.Fatalf("IsTrue: %v", err)
		}
		if !ok {
			t.Fatal("expected Or(true, false) to be true")
		}
	})

	t.Run("not of false is true", func(t *testing.T) {
		ok, err := IsTrue(Not{Expr: idEq8}, row, schema)
		if err != nil {
			t.Fatalf("IsTrue: %v", err)
		}
		if !ok {
			t.Fatal("expected Not(false) to be true")
		}
	})
}

func TestJoinPredicateEvaluate(t *testing.T) {
	leftSchema := types.NewSchema(types.Column{Name: "id", Kind: types.Integer})
	rightSchema := types.NewSchema(types.Column{Name: "ref_id", Kind: types.Integer})
	left := types.Row{Values: []types.Value{types.NewInteger(3)}}
	right := types.Row{Values: []types.Value{types.NewInteger(3)}}

	expr := Comparison{
		Op:    Eq,
		Left:  ColumnRef{Name: "id", Side: LeftSide},
		Right: ColumnRef{Name: "ref_id", Side: RightSide},
	}
	ok, err := IsTrueJoin(expr, left, leftSchema, right, rightSchema)
	if err != nil {
		t.Fatalf("IsTrueJoin: %v", err)
	}
	if !ok {
		t.Fatal("expected the join predicate to match")
	}
}
