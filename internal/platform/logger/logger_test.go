package logger

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedactorScrubsSensitiveFields(t *testing.T) {
	r := &redactor{enabled: true, salt: "s"}
	got := r.apply([]interface{}{
		"transcript", "you never listen",
		"Phrase", "whatever",
		"partner_id", "p-1",
		"conflict_id", "c-1",
		"extra", map[string]interface{}{"api_key": "k", "count": 2},
		"dangling",
	})
	if got[1] != "[REDACTED]" || got[3] != "[REDACTED]" {
		t.Fatalf("content not redacted: %v", got)
	}
	if h, _ := got[5].(string); !strings.HasPrefix(h, "hash:") || len(h) != len("hash:")+12 {
		t.Fatalf("partner id not hashed: %v", got[5])
	}
	if got[7] != "c-1" {
		t.Fatalf("plain field changed: %v", got[7])
	}
	nested := got[9].(map[string]interface{})
	if nested["api_key"] != "[REDACTED]" || nested["count"] != 2 {
		t.Fatalf("nested map not scrubbed: %v", nested)
	}
	if got[len(got)-1] != "dangling" {
		t.Fatalf("odd trailing value dropped: %v", got)
	}
}

func TestRedactorHashIsStable(t *testing.T) {
	a := &redactor{enabled: true, salt: "one"}
	b := &redactor{enabled: true, salt: "two"}
	if a.hash("p-1") != a.hash("p-1") {
		t.Fatalf("hash not deterministic")
	}
	if a.hash("p-1") == b.hash("p-1") {
		t.Fatalf("salt ignored")
	}
	if a.hash("") != "" {
		t.Fatalf("empty value should hash to empty")
	}
}

func TestRedactorDisabled(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "off")
	r := redactorFromEnv()
	kv := []interface{}{"transcript", "raw"}
	if got := r.apply(kv); got[1] != "raw" {
		t.Fatalf("expected passthrough, got %v", got)
	}
}

func TestWithCarriesRedaction(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &Logger{SugaredLogger: zap.New(core).Sugar(), redact: &redactor{enabled: true}}
	l.With("service", "X").Info("captured", "utterance", "secret words")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["utterance"] != "[REDACTED]" || fields["service"] != "X" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")
	if _, err := New("development"); err == nil {
		t.Fatalf("expected error for invalid LOG_LEVEL")
	}
}
