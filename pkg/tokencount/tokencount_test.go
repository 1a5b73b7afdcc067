package tokencount

import "testing"

func TestFallbackCountDeterministic(t *testing.T) {
	a := fallbackCount("hello world, this is a test string")
	b := fallbackCount("hello world, this is a test string")
	if a != b {
		t.Fatalf("fallbackCount not deterministic: %d != %d", a, b)
	}
	if a <= 0 {
		t.Fatalf("expected positive count, got %d", a)
	}
}

func TestCounterEmptyString(t *testing.T) {
	c := New()
	if got := c.Count(""); got != 0 {
		t.Fatalf("expected 0 for empty string, got %d", got)
	}
}

func TestCounterMonotonicWithLength(t *testing.T) {
	c := New()
	short := c.Count("hi")
	long := c.Count("hi, this is a substantially longer piece of text than the first one")
	if long <= short {
		t.Fatalf("expected longer text to have a higher token count: %d vs %d", long, short)
	}
}
