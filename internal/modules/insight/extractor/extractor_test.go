package extractor

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
	"github.com/yungbote/attune-backend/internal/domain/conflict"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/platform/logger"
	"github.com/yungbote/attune-backend/internal/platform/openai"
)

func fixture() Input {
	rel := &types.Relationship{ID: uuid.New(), PartnerAID: uuid.New(), PartnerBID: uuid.New()}
	at := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)
	return Input{
		Relationship: rel,
		Turns: []types.TranscriptTurn{
			{SpeakerID: rel.PartnerAID, Text: "You never listen to me.", Timestamp: at},
			{SpeakerID: rel.PartnerBID, Text: "That's not true.", Timestamp: at.Add(5 * time.Second)},
			{SpeakerID: rel.PartnerBID, Text: "Okay, I'm sorry. Tell me again?", Timestamp: at.Add(15 * time.Second)},
		},
	}
}

func validOutput() map[string]any {
	return map[string]any{
		"topic":            "Listening",
		"root_cause":       "Partner A feels unheard during busy weeks.",
		"resentment_level": 6,
		"trigger_phrases": []any{
			map[string]any{"phrase": "You never listen to me.", "category": "criticism", "speaker": "partner_a", "emotional_intensity": 6, "escalation_flag": true},
			map[string]any{"phrase": "you NEVER listen to me", "category": "criticism", "speaker": "partner_a", "emotional_intensity": 8, "escalation_flag": false},
			map[string]any{"phrase": "That's not true.", "category": "defensiveness", "speaker": "partner_b", "emotional_intensity": 4, "escalation_flag": false},
		},
		"unmet_needs": []any{
			map[string]any{"need": "feeling_heard", "confidence": 0.6},
			map[string]any{"need": "feeling_heard", "confidence": 0.9},
		},
		"repair_attempts": []any{
			map[string]any{"phrase": "Okay, I'm sorry.", "technique": "apology", "speaker": "partner_b", "turn_index": 2, "de_escalated": true},
		},
	}
}

func testPolicy() policy.ExtractionPolicy { return policy.Default().Extraction }

func TestExtractNormalizesAndDedupes(t *testing.T) {
	in := fixture()
	stub := &StubClient{Responses: []map[string]any{validOutput()}}
	x := NewLLMExtractor(stub, testPolicy(), logger.Nop())

	out, err := x.Extract(context.Background(), in)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if stub.Calls != 1 || out.Attempts != 1 {
		t.Fatalf("expected one call, got calls=%d attempts=%d", stub.Calls, out.Attempts)
	}
	if len(out.TriggerPhrases) != 2 {
		t.Fatalf("expected duplicate phrases to collapse to 2, got %d", len(out.TriggerPhrases))
	}
	first := out.TriggerPhrases[0]
	if first.PhraseNorm != "you never listen to me" || first.SpeakerID != in.Relationship.PartnerAID {
		t.Fatalf("unexpected first trigger: %+v", first)
	}
	if first.EmotionalIntensity != 8 || !first.EscalationFlag {
		t.Fatalf("merge should keep max intensity and any escalation: %+v", first)
	}
	if len(out.UnmetNeeds) != 1 || out.UnmetNeeds[0].Confidence != 0.9 {
		t.Fatalf("unexpected needs: %+v", out.UnmetNeeds)
	}
	if len(out.RepairAttempts) != 1 || out.RepairAttempts[0].SpeakerID != in.Relationship.PartnerBID {
		t.Fatalf("unexpected repairs: %+v", out.RepairAttempts)
	}
	if out.Model != "stub" {
		t.Fatalf("model not recorded: %q", out.Model)
	}
	if strings.Contains(stub.Users[0], in.Relationship.PartnerAID.String()) {
		t.Fatalf("prompt must not leak partner ids")
	}
}

func TestExtractIsDeterministicForSameOutput(t *testing.T) {
	in := fixture()
	stub := &StubClient{Responses: []map[string]any{validOutput()}}
	x := NewLLMExtractor(stub, testPolicy(), logger.Nop())
	a, err := x.Extract(context.Background(), in)
	if err != nil {
		t.Fatalf("Extract #1: %v", err)
	}
	b, err := x.Extract(context.Background(), in)
	if err != nil {
		t.Fatalf("Extract #2: %v", err)
	}
	if len(a.TriggerPhrases) != len(b.TriggerPhrases) {
		t.Fatalf("phrase sets differ")
	}
	for i := range a.TriggerPhrases {
		if a.TriggerPhrases[i] != b.TriggerPhrases[i] {
			t.Fatalf("phrase %d differs: %+v vs %+v", i, a.TriggerPhrases[i], b.TriggerPhrases[i])
		}
	}
}

func TestExtractRetriesOnceWithStricterPrompt(t *testing.T) {
	bad := validOutput()
	bad["trigger_phrases"] = []any{
		map[string]any{"phrase": "whatever", "category": "rudeness", "speaker": "partner_a", "emotional_intensity": 3, "escalation_flag": false},
	}
	stub := &StubClient{Responses: []map[string]any{bad, validOutput()}}
	x := NewLLMExtractor(stub, testPolicy(), logger.Nop())

	out, err := x.Extract(context.Background(), fixture())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.Attempts != 2 || stub.Calls != 2 {
		t.Fatalf("expected retry, attempts=%d calls=%d", out.Attempts, stub.Calls)
	}
	if !strings.Contains(stub.Systems[1], "rudeness") || !strings.Contains(stub.Systems[1], "rejected") {
		t.Fatalf("stricter prompt should cite the violation, got %q", stub.Systems[1])
	}
}

func TestExtractFailsAfterSecondBadAnswer(t *testing.T) {
	bad := validOutput()
	bad["resentment_level"] = 42
	stub := &StubClient{Responses: []map[string]any{bad}}
	x := NewLLMExtractor(stub, testPolicy(), logger.Nop())

	_, err := x.Extract(context.Background(), fixture())
	var failed *errs.ExtractionFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected ExtractionFailedError, got %v", err)
	}
	if failed.Attempts != 2 || stub.Calls != 2 {
		t.Fatalf("expected exactly two attempts, got attempts=%d calls=%d", failed.Attempts, stub.Calls)
	}
}

func TestExtractTransportErrorThenSuccess(t *testing.T) {
	stub := &StubClient{
		Responses: []map[string]any{nil, validOutput()},
		Errs:      []error{errors.New("bad gateway")},
	}
	x := NewLLMExtractor(stub, testPolicy(), logger.Nop())
	out, err := x.Extract(context.Background(), fixture())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if out.Attempts != 2 {
		t.Fatalf("expected second attempt to succeed, got %d", out.Attempts)
	}
}

func TestExtractRequiresBothSpeakers(t *testing.T) {
	in := fixture()
	in.Turns = in.Turns[:1]
	stub := &StubClient{Responses: []map[string]any{validOutput()}}
	x := NewLLMExtractor(stub, testPolicy(), logger.Nop())

	_, err := x.Extract(context.Background(), in)
	var insufficient *errs.InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
	if len(insufficient.MissingSpeakers) != 1 || insufficient.MissingSpeakers[0] != in.Relationship.PartnerBID {
		t.Fatalf("expected partner_b missing, got %v", insufficient.MissingSpeakers)
	}
	if stub.Calls != 0 {
		t.Fatalf("model must not be called without both speakers")
	}
}

func TestExtractCapsLists(t *testing.T) {
	out := validOutput()
	phrases := make([]any, 0, 15)
	for i := 0; i < 15; i++ {
		phrases = append(phrases, map[string]any{
			"phrase": "phrase " + string(rune('a'+i)), "category": "blame", "speaker": "partner_a",
			"emotional_intensity": 5, "escalation_flag": false,
		})
	}
	out["trigger_phrases"] = phrases
	stub := &StubClient{Responses: []map[string]any{out}}
	x := NewLLMExtractor(stub, testPolicy(), logger.Nop())
	got, err := x.Extract(context.Background(), fixture())
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.TriggerPhrases) != 10 {
		t.Fatalf("expected cap of 10, got %d", len(got.TriggerPhrases))
	}
	props := x.schema["properties"].(map[string]any)
	for _, field := range []string{"trigger_phrases", "unmet_needs", "repair_attempts"} {
		if max := props[field].(map[string]any)["maxItems"]; max != 10 {
			t.Fatalf("%s: expected schema maxItems 10, got %v", field, max)
		}
	}
}

func TestSchemaEnumsMatchVocabularies(t *testing.T) {
	schema := openai.ReflectSchema[llmOutput]()
	items := func(field string) map[string]any {
		props := schema["properties"].(map[string]any)
		return props[field].(map[string]any)["items"].(map[string]any)["properties"].(map[string]any)
	}
	check := func(name string, prop map[string]any, want []string) {
		raw, ok := prop["enum"].([]any)
		if !ok {
			t.Fatalf("%s: missing enum", name)
		}
		got := make([]string, 0, len(raw))
		for _, v := range raw {
			got = append(got, v.(string))
		}
		sort.Strings(got)
		w := append([]string(nil), want...)
		sort.Strings(w)
		if strings.Join(got, ",") != strings.Join(w, ",") {
			t.Fatalf("%s enum drifted: got %v want %v", name, got, w)
		}
	}
	check("category", items("trigger_phrases")["category"].(map[string]any), conflict.TriggerCategories)
	check("need", items("unmet_needs")["need"].(map[string]any), conflict.NeedLabels)
	check("technique", items("repair_attempts")["technique"].(map[string]any), conflict.RepairTechniques)
}
