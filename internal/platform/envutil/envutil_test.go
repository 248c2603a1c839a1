package envutil

import (
	"testing"
	"time"
)

func TestEnvDefaultsAndParsing(t *testing.T) {
	t.Setenv("ATTUNE_TEST_INT", "42")
	t.Setenv("ATTUNE_TEST_BAD_INT", "forty")
	t.Setenv("ATTUNE_TEST_FLOAT", "0.25")
	t.Setenv("ATTUNE_TEST_BOOL", "off")
	t.Setenv("ATTUNE_TEST_SECONDS", "90")
	t.Setenv("ATTUNE_TEST_STRING", "  value  ")

	if got := Int("ATTUNE_TEST_INT", 1); got != 42 {
		t.Fatalf("Int: got %d", got)
	}
	if got := Int("ATTUNE_TEST_BAD_INT", 7); got != 7 {
		t.Fatalf("Int fallback: got %d", got)
	}
	if got := Float("ATTUNE_TEST_FLOAT", 1); got != 0.25 {
		t.Fatalf("Float: got %v", got)
	}
	if got := Bool("ATTUNE_TEST_BOOL", true); got {
		t.Fatalf("Bool: expected false")
	}
	if got := Bool("ATTUNE_TEST_MISSING", true); !got {
		t.Fatalf("Bool default: expected true")
	}
	if got := Seconds("ATTUNE_TEST_SECONDS", time.Second); got != 90*time.Second {
		t.Fatalf("Seconds: got %v", got)
	}
	if got := String("ATTUNE_TEST_STRING", "x"); got != "value" {
		t.Fatalf("String: got %q", got)
	}
}
