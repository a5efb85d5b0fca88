package condition

import "testing"

func TestCompare_Numeric(t *testing.T) {
	ok, err := Compare("10", GT, "3")
	if err != nil || !ok {
		t.Fatalf("expected 10 > 3 true, got %v, err=%v", ok, err)
	}

	ok, err = Compare("10", LT, "3")
	if err != nil || ok {
		t.Fatalf("expected 10 < 3 false, got %v, err=%v", ok, err)
	}
}

func TestCompare_StringFallback(t *testing.T) {
	ok, err := Compare("banana", EQ, "apple")
	if err != nil || ok {
		t.Fatalf("expected banana != apple, got %v, err=%v", ok, err)
	}

	ok, err = Compare("apple", EQ, "apple")
	if err != nil || !ok {
		t.Fatalf("expected apple == apple, got %v, err=%v", ok, err)
	}
}

func TestCompare_MixedTypesFallsBackToString(t *testing.T) {
	// "10a" doesn't parse as a number, so even though rhs does,
	// the comparison falls back to string compare of both sides.
	ok, err := Compare("10a", NE, "10")
	if err != nil || !ok {
		t.Fatalf("expected string inequality, got %v, err=%v", ok, err)
	}
}

func TestCompare_UnknownOperator(t *testing.T) {
	if _, err := Compare("1", Operator("??"), "2"); err == nil {
		t.Fatalf("expected error for unknown operator")
	}
}

func TestCELEvaluator_EvalBoolean(t *testing.T) {
	e := NewCELEvaluator()
	ok, err := e.Eval("output.score > 80.0", map[string]interface{}{"score": 95.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Errorf("expected true for score=95 > 80")
	}

	ok, err = e.Eval("output.score > 80.0", map[string]interface{}{"score": 10.0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Errorf("expected false for score=10 > 80")
	}
}

func TestCELEvaluator_CachesCompiledProgram(t *testing.T) {
	e := NewCELEvaluator()
	expr := "output.ready == true"
	if _, err := e.Eval(expr, map[string]interface{}{"ready": true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := e.cache[expr]; !ok {
		t.Errorf("expected compiled program to be cached")
	}
}

func TestCELEvaluator_NonBooleanResultErrors(t *testing.T) {
	e := NewCELEvaluator()
	if _, err := e.Eval("output.score", map[string]interface{}{"score": 5.0}); err == nil {
		t.Errorf("expected error for non-boolean CEL result")
	}
}
