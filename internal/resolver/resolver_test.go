package resolver

import "testing"

func TestResolve_SimplePath(t *testing.T) {
	input := map[string]interface{}{"score": 42, "name": "ada"}
	got := Resolve("hello {{input.name}}, score={{input.score}}", input)
	if got != "hello ada, score=42" {
		t.Errorf("unexpected resolution: %q", got)
	}
}

func TestResolve_NestedPath(t *testing.T) {
	input := map[string]interface{}{
		"user": map[string]interface{}{"email": "a@b.com"},
	}
	got := Resolve("{{input.user.email}}", input)
	if got != "a@b.com" {
		t.Errorf("expected a@b.com, got %q", got)
	}
}

func TestResolve_MissingPathYieldsUndefined(t *testing.T) {
	input := map[string]interface{}{"a": 1}
	got := Resolve("{{input.nope}}", input)
	if got != "undefined" {
		t.Errorf("expected literal undefined, got %q", got)
	}
}

func TestResolve_NoTemplatePassesThrough(t *testing.T) {
	got := Resolve("a plain string", map[string]interface{}{})
	if got != "a plain string" {
		t.Errorf("expected unchanged string, got %q", got)
	}
}

func TestAsNumber(t *testing.T) {
	if n, ok := AsNumber("3.14"); !ok || n != 3.14 {
		t.Errorf("expected 3.14/true, got %v/%v", n, ok)
	}
	if _, ok := AsNumber("not-a-number"); ok {
		t.Errorf("expected false for non-numeric string")
	}
}
