package engine

import (
	"testing"

	"github.com/kingerharshit/toolgate/internal/store"
)

func str(s string) Value  { return Value{Kind: KindString, Str: s} }
func num(f float64) Value { return Value{Kind: KindNumber, Num: f} }

func TestMatchOperator_EndsWith(t *testing.T) {
	got, err := matchOperator(store.OpEndsWith, "pdf", str("report.pdf"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error(`endsWith("report.pdf", "pdf") should match`)
	}
}

func TestMatchOperator_StartsWith(t *testing.T) {
	got, err := matchOperator(store.OpStartsWith, "/etc/", str("/etc/passwd"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error(`startsWith("/etc/passwd", "/etc/") should match`)
	}
}

func TestMatchOperator_Contains(t *testing.T) {
	got, err := matchOperator(store.OpContains, "world", str("hello world"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error(`contains("hello world", "world") should match`)
	}
}

func TestMatchOperator_NotContains(t *testing.T) {
	got, err := matchOperator(store.OpNotContains, "xyz", str("hello world"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error(`notContains("hello world", "xyz") should match`)
	}
}

func TestMatchOperator_EqualIsTypeExact(t *testing.T) {
	// Numeric 5 never equals the string "5": no coercion.
	got, err := matchOperator(store.OpEqual, "5", num(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error(`equal(5, "5") must be false`)
	}

	got, err = matchOperator(store.OpEqual, "5", str("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error(`equal("5", "5") should match`)
	}
}

func TestMatchOperator_NotEqual(t *testing.T) {
	got, err := matchOperator(store.OpNotEqual, "5", num(5))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error(`notEqual(5, "5") should be true under type-exact comparison`)
	}

	got, err = matchOperator(store.OpNotEqual, "5", str("5"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Error(`notEqual("5", "5") must be false`)
	}
}

func TestMatchOperator_Regex(t *testing.T) {
	got, err := matchOperator(store.OpRegex, `^[a-z]+\d+$`, str("abc123"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Error(`regex("abc123", "^[a-z]+\d+$") should match`)
	}
}

func TestMatchOperator_RegexCompileError(t *testing.T) {
	_, err := matchOperator(store.OpRegex, "([unclosed", str("anything"))
	if err == nil {
		t.Fatal("malformed pattern must surface a compile error, not a silent false")
	}
}

func TestMatchOperator_StringOperatorsNeverMatchNonStrings(t *testing.T) {
	for _, op := range []store.Operator{
		store.OpContains, store.OpNotContains,
		store.OpStartsWith, store.OpEndsWith, store.OpRegex,
	} {
		got, err := matchOperator(op, "5", num(5))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", op, err)
		}
		if got {
			t.Errorf("%s must never match a non-string value", op)
		}
	}
}

func TestMatchOperator_UnknownOperator(t *testing.T) {
	_, err := matchOperator(store.Operator("glob"), "*", str("x"))
	if err == nil {
		t.Fatal("unknown operator must be a configuration error")
	}
}
