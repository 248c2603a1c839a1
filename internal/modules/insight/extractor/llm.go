package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/attune-backend/internal/domain/conflict"
	"github.com/yungbote/attune-backend/internal/modules/insight/errs"
	"github.com/yungbote/attune-backend/internal/modules/insight/policy"
	"github.com/yungbote/attune-backend/internal/normalization"
	"github.com/yungbote/attune-backend/internal/observability"
	"github.com/yungbote/attune-backend/internal/platform/logger"
	"github.com/yungbote/attune-backend/internal/platform/openai"
)

const maxAttempts = 2

type LLMExtractor struct {
	ai     openai.Client
	policy policy.ExtractionPolicy
	schema map[string]any
	log    *logger.Logger
}

func NewLLMExtractor(ai openai.Client, p policy.ExtractionPolicy, baseLog *logger.Logger) *LLMExtractor {
	schema := openai.ReflectSchema[llmOutput]()
	openai.CapArray(schema, "trigger_phrases", p.MaxTriggerPhrases)
	openai.CapArray(schema, "unmet_needs", p.MaxUnmetNeeds)
	openai.CapArray(schema, "repair_attempts", p.MaxRepairAttempts)
	return &LLMExtractor{
		ai:     ai,
		policy: p,
		schema: schema,
		log:    baseLog.With("service", "StructuredExtractor"),
	}
}

// Extract calls the model once, and once more with the rejection reasons appended when the
// output fails validation. A second failure becomes ExtractionFailedError.
func (x *LLMExtractor) Extract(ctx context.Context, in Input) (*StructuredExtraction, error) {
	if err := CheckParticipants(in); err != nil {
		return nil, err
	}
	ctx, span := observability.StartSpan(ctx, "extractor.Extract")
	defer span.End()
	span.SetAttributes(attribute.Int("transcript.turns", len(in.Turns)))

	user := buildUser(in)
	var lastErr error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		system := buildSystem(x.policy.MaxTriggerPhrases, x.policy.MaxUnmetNeeds, x.policy.MaxRepairAttempts, lastErr)
		obj, err := x.ai.GenerateJSON(ctx, system, user, schemaName, x.schema)
		if err == nil {
			var out *StructuredExtraction
			out, err = x.decode(obj, in)
			if err == nil {
				out.Model = x.ai.Model()
				out.Attempts = attempts
				span.SetAttributes(attribute.Int("extraction.attempts", attempts))
				return out, nil
			}
		}
		lastErr = err
		x.log.Warn("extraction attempt rejected", "attempt", attempts, "error", err)
		if ctx.Err() != nil {
			lastErr = fmt.Errorf("%w (last: %v)", ctx.Err(), err)
			break
		}
	}
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "extraction failed")
	return nil, &errs.ExtractionFailedError{Attempts: attempts, Err: lastErr}
}

// validationError lists every schema or vocabulary violation in one model answer.
type validationError struct {
	problems []string
}

func (e *validationError) Error() string {
	return "invalid extraction: " + strings.Join(e.problems, "; ")
}

func (x *LLMExtractor) decode(obj map[string]any, in Input) (*StructuredExtraction, error) {
	raw, _ := json.Marshal(obj)
	var m llmOutput
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &validationError{problems: []string{"output does not match schema: " + err.Error()}}
	}
	if err := validate(m, len(in.Turns)); err != nil {
		return nil, err
	}
	out, dropped := normalize(m, in, x.policy)
	if dropped > 0 {
		x.log.Warn("extraction lists truncated to policy caps",
			"dropped", dropped,
			"trigger_phrases", len(m.TriggerPhrases),
			"unmet_needs", len(m.UnmetNeeds),
			"repair_attempts", len(m.RepairAttempts),
		)
	}
	return out, nil
}

func validate(m llmOutput, turnCount int) error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if m.ResentmentLevel < 1 || m.ResentmentLevel > 10 {
		add("resentment_level %d outside 1-10", m.ResentmentLevel)
	}
	for i, t := range m.TriggerPhrases {
		if normalization.Phrase(t.Phrase) == "" {
			add("trigger_phrases[%d] has an empty phrase", i)
		}
		if !conflict.IsTriggerCategory(t.Category) {
			add("trigger_phrases[%d] category %q is not allowed", i, t.Category)
		}
		if !validSide(t.Speaker) {
			add("trigger_phrases[%d] speaker %q must be partner_a or partner_b", i, t.Speaker)
		}
		if t.EmotionalIntensity < 0 || t.EmotionalIntensity > 10 {
			add("trigger_phrases[%d] emotional_intensity %d outside 0-10", i, t.EmotionalIntensity)
		}
	}
	for i, n := range m.UnmetNeeds {
		if !conflict.IsNeedLabel(n.Need) {
			add("unmet_needs[%d] need %q is not allowed", i, n.Need)
		}
		if n.Confidence < 0 || n.Confidence > 1 {
			add("unmet_needs[%d] confidence %v outside 0-1", i, n.Confidence)
		}
	}
	for i, r := range m.RepairAttempts {
		if normalization.Phrase(r.Phrase) == "" {
			add("repair_attempts[%d] has an empty phrase", i)
		}
		if !conflict.IsRepairTechnique(r.Technique) {
			add("repair_attempts[%d] technique %q is not allowed", i, r.Technique)
		}
		if !validSide(r.Speaker) {
			add("repair_attempts[%d] speaker %q must be partner_a or partner_b", i, r.Speaker)
		}
		if r.TurnIndex < 0 || r.TurnIndex >= turnCount {
			add("repair_attempts[%d] turn_index %d outside transcript", i, r.TurnIndex)
		}
	}
	if len(problems) > 0 {
		return &validationError{problems: problems}
	}
	return nil
}

func validSide(s string) bool { return s == "partner_a" || s == "partner_b" }

// normalize dedupes on natural keys and applies the list caps. It also returns how many
// distinct items the caps dropped.
func normalize(m llmOutput, in Input, p policy.ExtractionPolicy) (*StructuredExtraction, int) {
	rel := in.Relationship
	speaker := func(side string) uuid.UUID {
		if side == "partner_a" {
			return rel.PartnerAID
		}
		return rel.PartnerBID
	}
	out := &StructuredExtraction{
		Topic:           strings.TrimSpace(m.Topic),
		RootCause:       strings.TrimSpace(m.RootCause),
		ResentmentLevel: m.ResentmentLevel,
	}

	dropped := 0
	triggerIdx := map[string]int{}
	for _, t := range m.TriggerPhrases {
		norm := normalization.Phrase(t.Phrase)
		sid := speaker(t.Speaker)
		key := norm + "|" + sid.String()
		if i, ok := triggerIdx[key]; ok {
			cur := &out.TriggerPhrases[i]
			if t.EmotionalIntensity > cur.EmotionalIntensity {
				cur.EmotionalIntensity = t.EmotionalIntensity
			}
			cur.EscalationFlag = cur.EscalationFlag || t.EscalationFlag
			continue
		}
		if len(out.TriggerPhrases) >= p.MaxTriggerPhrases {
			dropped++
			continue
		}
		triggerIdx[key] = len(out.TriggerPhrases)
		out.TriggerPhrases = append(out.TriggerPhrases, TriggerCandidate{
			Phrase:             strings.TrimSpace(t.Phrase),
			PhraseNorm:         norm,
			Category:           t.Category,
			SpeakerID:          sid,
			EmotionalIntensity: t.EmotionalIntensity,
			EscalationFlag:     t.EscalationFlag,
		})
	}

	needIdx := map[string]int{}
	for _, n := range m.UnmetNeeds {
		if i, ok := needIdx[n.Need]; ok {
			if n.Confidence > out.UnmetNeeds[i].Confidence {
				out.UnmetNeeds[i].Confidence = n.Confidence
			}
			continue
		}
		if len(out.UnmetNeeds) >= p.MaxUnmetNeeds {
			dropped++
			continue
		}
		needIdx[n.Need] = len(out.UnmetNeeds)
		out.UnmetNeeds = append(out.UnmetNeeds, NeedCandidate{Need: n.Need, Confidence: n.Confidence})
	}

	repairSeen := map[string]bool{}
	for _, r := range m.RepairAttempts {
		norm := normalization.Phrase(r.Phrase)
		sid := speaker(r.Speaker)
		key := r.Technique + "|" + sid.String() + "|" + norm
		if repairSeen[key] {
			continue
		}
		if len(out.RepairAttempts) >= p.MaxRepairAttempts {
			dropped++
			continue
		}
		repairSeen[key] = true
		out.RepairAttempts = append(out.RepairAttempts, RepairCandidate{
			Phrase:      strings.TrimSpace(r.Phrase),
			PhraseNorm:  norm,
			Technique:   r.Technique,
			SpeakerID:   sid,
			TurnIndex:   r.TurnIndex,
			DeEscalated: r.DeEscalated,
		})
	}
	return out, dropped
}
