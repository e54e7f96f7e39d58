package keys

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"
)

func mustKey(t *testing.T, tool string, args map[string]any) string {
	t.Helper()
	k, err := ForTool(tool, args)
	if err != nil {
		t.Fatalf("ForTool: %v", err)
	}
	return k
}

func TestForToolDeterministic(t *testing.T) {
	a := map[string]any{
		"interests":   []any{"go", "distributed systems"},
		"count":       float64(5),
		"past_topics": []any{"channels"},
	}
	b := map[string]any{
		"past_topics": []any{"channels"},
		"count":       float64(5),
		"interests":   []any{"go", "distributed systems"},
	}

	if ka, kb := mustKey(t, "topics", a), mustKey(t, "topics", b); ka != kb {
		t.Errorf("expected identical keys, got %s and %s", ka, kb)
	}
}

func TestForToolFieldOrderOverWire(t *testing.T) {
	var a, b map[string]any
	if err := json.Unmarshal([]byte(`{"topic":"caching","audience":"beginners","length":"short"}`), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`{"length":"short","audience":"beginners","topic":"caching"}`), &b); err != nil {
		t.Fatal(err)
	}

	if ka, kb := mustKey(t, "outline", a), mustKey(t, "outline", b); ka != kb {
		t.Errorf("expected identical keys regardless of wire order, got %s and %s", ka, kb)
	}
}

func TestForToolDistinguishesTools(t *testing.T) {
	args := map[string]any{"topic": "caching"}
	if ka, kb := mustKey(t, "outline", args), mustKey(t, "topics", args); ka == kb {
		t.Errorf("expected distinct keys per tool, both %s", ka)
	}
}

func TestForToolDistinguishesArguments(t *testing.T) {
	ka := mustKey(t, "outline", map[string]any{"topic": "caching"})
	kb := mustKey(t, "outline", map[string]any{"topic": "sharding"})
	if ka == kb {
		t.Errorf("expected distinct keys per arguments, both %s", ka)
	}

	// Array order is semantic and must produce distinct keys.
	kc := mustKey(t, "topics", map[string]any{"interests": []any{"go", "redis"}})
	kd := mustKey(t, "topics", map[string]any{"interests": []any{"redis", "go"}})
	if kc == kd {
		t.Errorf("expected array order to matter, both %s", kc)
	}
}

func TestForToolEmptyArguments(t *testing.T) {
	ka := mustKey(t, "health", nil)
	kb := mustKey(t, "health", map[string]any{})
	if ka != kb {
		t.Errorf("expected nil and empty args to match, got %s and %s", ka, kb)
	}
}

func TestForToolShape(t *testing.T) {
	k := mustKey(t, "topics", map[string]any{"count": float64(3)})
	re := regexp.MustCompile(`^bw:v1:topics:[0-9a-f]{16}$`)
	if !re.MatchString(k) {
		t.Errorf("unexpected key shape: %s", k)
	}
}

func TestForToolRejectsUnencodableArguments(t *testing.T) {
	if _, err := ForTool("topics", map[string]any{"ch": make(chan int)}); err == nil {
		t.Error("expected error for unencodable arguments")
	}
}

func TestCanonicalNestedMaps(t *testing.T) {
	a := map[string]any{"filter": map[string]any{"lang": "go", "level": "advanced"}}
	b := map[string]any{"filter": map[string]any{"level": "advanced", "lang": "go"}}

	ca, err := Canonical(a)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := Canonical(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(ca, cb) {
		t.Errorf("expected identical canonical forms, got %s and %s", ca, cb)
	}
}
