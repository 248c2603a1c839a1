package extractor

import (
	"encoding/json"
	"fmt"
	"strings"
)

const schemaName = "conflict_extraction_v1"

// llmOutput is the wire shape requested from the model. Speakers are side labels, never ids.
type llmOutput struct {
	Topic           string       `json:"topic" jsonschema:"description=Short noun phrase naming what the conflict is about"`
	RootCause       string       `json:"root_cause" jsonschema:"description=One or two sentences on the underlying cause"`
	ResentmentLevel int          `json:"resentment_level" jsonschema:"description=Overall lingering resentment from 1 (none) to 10 (severe)"`
	TriggerPhrases  []llmTrigger `json:"trigger_phrases"`
	UnmetNeeds      []llmNeed    `json:"unmet_needs"`
	RepairAttempts  []llmRepair  `json:"repair_attempts"`
}

type llmTrigger struct {
	Phrase             string `json:"phrase" jsonschema:"description=Verbatim words from the transcript"`
	Category           string `json:"category" jsonschema:"enum=blame,enum=contempt,enum=dismissal,enum=stonewalling_cue,enum=criticism,enum=defensiveness,enum=threat,enum=sarcasm"`
	Speaker            string `json:"speaker" jsonschema:"enum=partner_a,enum=partner_b"`
	EmotionalIntensity int    `json:"emotional_intensity" jsonschema:"description=0 (calm) to 10 (extreme)"`
	EscalationFlag     bool   `json:"escalation_flag" jsonschema:"description=True when the conversation visibly escalated right after this phrase"`
}

type llmNeed struct {
	Need       string  `json:"need" jsonschema:"enum=feeling_heard,enum=trust,enum=respect,enum=autonomy,enum=affection,enum=appreciation,enum=security,enum=fairness,enum=support,enum=quality_time,enum=reassurance"`
	Confidence float64 `json:"confidence" jsonschema:"description=0 to 1"`
}

type llmRepair struct {
	Phrase      string `json:"phrase" jsonschema:"description=Verbatim words from the transcript"`
	Technique   string `json:"technique" jsonschema:"enum=apology,enum=validation,enum=humor,enum=break_request,enum=reassurance,enum=compromise,enum=affection,enum=accountability,enum=curiosity"`
	Speaker     string `json:"speaker" jsonschema:"enum=partner_a,enum=partner_b"`
	TurnIndex   int    `json:"turn_index" jsonschema:"description=Index of the turn the bid appears in"`
	DeEscalated bool   `json:"de_escalated" jsonschema:"description=True when intensity dropped after the bid"`
}

const systemPrompt = `You analyze transcripts of arguments between two partners for a couples-support product.
Extract only what the transcript supports. Quote trigger and repair phrases verbatim.
Speakers are labeled partner_a and partner_b; use exactly those labels.
Return at most %d trigger phrases, %d unmet needs and %d repair attempts.
Use only the allowed categories, need labels and techniques. Intensities are integers 0-10,
resentment_level is an integer 1-10, confidences are numbers between 0 and 1.`

const strictAddendum = `

Your previous answer was rejected:
%s
Fix every listed problem. Do not invent phrases that are not in the transcript.`

type promptTurn struct {
	Index   int    `json:"index"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func buildSystem(maxTriggers, maxNeeds, maxRepairs int, previous error) string {
	s := fmt.Sprintf(systemPrompt, maxTriggers, maxNeeds, maxRepairs)
	if previous != nil {
		s += fmt.Sprintf(strictAddendum, previous.Error())
	}
	return s
}

func buildUser(in Input) string {
	turns := make([]promptTurn, 0, len(in.Turns))
	for i, t := range in.Turns {
		side := in.Relationship.Side(t.SpeakerID)
		if side == "" || strings.TrimSpace(t.Text) == "" {
			continue
		}
		turns = append(turns, promptTurn{Index: i, Speaker: side, Text: strings.TrimSpace(t.Text)})
	}
	var b strings.Builder
	if in.Topic != "" {
		b.WriteString("Topic given by the couple: ")
		b.WriteString(in.Topic)
		b.WriteString("\n\n")
	}
	b.WriteString("Partner profiles:\n")
	b.Write(toJSON(in.Profiles))
	b.WriteString("\n\nTranscript turns:\n")
	b.Write(toJSON(turns))
	return b.String()
}

func toJSON(v any) []byte {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return []byte("null")
	}
	return b
}
