package config

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("SHORT_INTERVAL", "250ms")
	if d := Duration("SHORT_INTERVAL", time.Second); d != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %s", d)
	}
	t.Setenv("BAD_INTERVAL", "soon")
	if d := Duration("BAD_INTERVAL", 2*time.Second); d != 2*time.Second {
		t.Fatalf("expected fallback 2s, got %s", d)
	}
	t.Setenv("NEG_INTERVAL", "-5s")
	if d := Duration("NEG_INTERVAL", time.Minute); d != time.Minute {
		t.Fatalf("expected fallback 1m for negative value, got %s", d)
	}
}

func TestInt(t *testing.T) {
	t.Setenv("BATCH", "25")
	if n := Int("BATCH", 50); n != 25 {
		t.Fatalf("expected 25, got %d", n)
	}
	if n := Int("BATCH_MISSING", 50); n != 50 {
		t.Fatalf("expected fallback 50, got %d", n)
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"1": true, "true": true, "YES": true, "on": true,
		"0": false, "false": false, "no": false, "off": false,
	}
	for raw, want := range cases {
		t.Setenv("FLAG", raw)
		if got := Bool("FLAG", !want); got != want {
			t.Fatalf("Bool(%q) = %v, want %v", raw, got, want)
		}
	}
	t.Setenv("FLAG", "maybe")
	if !Bool("FLAG", true) {
		t.Fatal("expected fallback true for unparseable value")
	}
}

func TestPort(t *testing.T) {
	if _, err := Port("PORT_MISSING", "70000"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	p, err := Port("PORT_MISSING", "8090")
	if err != nil || p != "8090" {
		t.Fatalf("expected 8090, got %q err=%v", p, err)
	}
}
