package engine

import (
	"encoding/json"
	"testing"
)

func TestLookup_TopLevelString(t *testing.T) {
	in := Input{"path": "/tmp/x"}
	v, ok := in.Lookup("path")
	if !ok {
		t.Fatal("expected value present")
	}
	if v.Kind != KindString || v.Str != "/tmp/x" {
		t.Errorf("got %+v, want string /tmp/x", v)
	}
}

func TestLookup_NestedPath(t *testing.T) {
	in := Input{"request": map[string]any{"headers": map[string]any{"host": "example.com"}}}
	v, ok := in.Lookup("request.headers.host")
	if !ok {
		t.Fatal("expected value present")
	}
	if v.Str != "example.com" {
		t.Errorf("got %q, want example.com", v.Str)
	}
}

func TestLookup_ArrayIndex(t *testing.T) {
	in := Input{"attachments": []any{
		map[string]any{"url": "https://a.example/file.pdf"},
		map[string]any{"url": "https://b.example/file.zip"},
	}}
	v, ok := in.Lookup("attachments.1.url")
	if !ok {
		t.Fatal("expected value present")
	}
	if v.Str != "https://b.example/file.zip" {
		t.Errorf("got %q", v.Str)
	}
}

func TestLookup_Absent(t *testing.T) {
	in := Input{"path": "/tmp/x"}
	for _, path := range []string{"missing", "path.deeper", "attachments.0", ""} {
		if v, ok := in.Lookup(path); ok || v.Kind != KindAbsent {
			t.Errorf("Lookup(%q) = %+v, %v; want absent", path, v, ok)
		}
	}
}

func TestLookup_ArrayIndexOutOfRange(t *testing.T) {
	in := Input{"items": []any{"a"}}
	if _, ok := in.Lookup("items.3"); ok {
		t.Error("out-of-range index should be absent")
	}
	if _, ok := in.Lookup("items.-1"); ok {
		t.Error("negative index should be absent")
	}
	if _, ok := in.Lookup("items.first"); ok {
		t.Error("non-numeric index should be absent")
	}
}

func TestLookup_TypeTags(t *testing.T) {
	in := Input{
		"count":   float64(3),
		"dry_run": true,
		"extra":   nil,
		"nested":  map[string]any{},
	}

	if v, _ := in.Lookup("count"); v.Kind != KindNumber || v.Num != 3 {
		t.Errorf("count = %+v, want number 3", v)
	}
	if v, _ := in.Lookup("dry_run"); v.Kind != KindBool || !v.Bool {
		t.Errorf("dry_run = %+v, want bool true", v)
	}
	if v, _ := in.Lookup("extra"); v.Kind != KindOther {
		t.Errorf("null should classify as other, got %+v", v)
	}
	if v, _ := in.Lookup("nested"); v.Kind != KindOther {
		t.Errorf("object should classify as other, got %+v", v)
	}
}

func TestParseInput(t *testing.T) {
	in, err := ParseInput(json.RawMessage(`{"path": "/tmp/x", "count": 2}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v, _ := in.Lookup("count"); v.Kind != KindNumber || v.Num != 2 {
		t.Errorf("count = %+v", v)
	}
}

func TestParseInput_Empty(t *testing.T) {
	in, err := ParseInput(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := in.Lookup("anything"); ok {
		t.Error("empty input should have no values")
	}
}

func TestParseInput_Malformed(t *testing.T) {
	if _, err := ParseInput(json.RawMessage(`{not json`)); err == nil {
		t.Error("malformed JSON should error")
	}
}
