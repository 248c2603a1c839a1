package policy

import (
	"embed"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/attune-backend/internal/platform/logger"
)

const policyEnv = "INSIGHT_POLICY_YAML"

//go:embed insight_policy.yaml
var policyFS embed.FS

type Policy struct {
	Policy      string            `yaml:"policy"`
	Version     int               `yaml:"version"`
	Extraction  ExtractionPolicy  `yaml:"extraction"`
	Chain       ChainPolicy       `yaml:"chain"`
	Chronic     ChronicPolicy     `yaml:"chronic"`
	Risk        RiskPolicy        `yaml:"risk"`
	Aggregation AggregationPolicy `yaml:"aggregation"`
	Health      HealthPolicy      `yaml:"health"`
}

type ExtractionPolicy struct {
	MaxTriggerPhrases int `yaml:"max_trigger_phrases"`
	MaxUnmetNeeds     int `yaml:"max_unmet_needs"`
	MaxRepairAttempts int `yaml:"max_repair_attempts"`
	TimeoutSeconds    int `yaml:"timeout_seconds"`
}

func (e ExtractionPolicy) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

type ChainPolicy struct {
	TopicWeight float64 `yaml:"topic_weight"`
	NeedWeight  float64 `yaml:"need_weight"`
	Threshold   float64 `yaml:"threshold"`
}

// ChronicPolicy: a need is chronic at MinConflicts occurrences, or at MinShare of all
// conflicts once it has appeared in at least MinShareConflicts of them.
type ChronicPolicy struct {
	MinConflicts      int     `yaml:"min_conflicts"`
	MinShare          float64 `yaml:"min_share"`
	MinShareConflicts int     `yaml:"min_share_conflicts"`
}

type RiskWeights struct {
	Unresolved float64 `yaml:"unresolved"`
	Resentment float64 `yaml:"resentment"`
	Recency    float64 `yaml:"recency"`
	Recurrence float64 `yaml:"recurrence"`
}

func (w RiskWeights) Sum() float64 { return w.Unresolved + w.Resentment + w.Recency + w.Recurrence }

type RiskPolicy struct {
	Weights                RiskWeights `yaml:"weights"`
	UnresolvedSaturation   int         `yaml:"unresolved_saturation"`
	ResentmentHalfLifeDays float64     `yaml:"resentment_half_life_days"`
	ResentmentSaturation   float64     `yaml:"resentment_saturation"`
	RecencyHalfLifeDays    float64     `yaml:"recency_half_life_days"`
	RecurrenceSaturation   int         `yaml:"recurrence_saturation"`
	DefaultIntervalDays    float64     `yaml:"default_interval_days"`
	MinPredictedDays       float64     `yaml:"min_predicted_days"`
	CacheTTLSeconds        int         `yaml:"cache_ttl_seconds"`
}

func (r RiskPolicy) CacheTTL() time.Duration { return time.Duration(r.CacheTTLSeconds) * time.Second }

type AggregationPolicy struct {
	MinRecords              int `yaml:"min_records"`
	Cadence                 int `yaml:"cadence"`
	LookbackDays            int `yaml:"lookback_days"`
	TopN                    int `yaml:"top_n"`
	MinOccurrences          int `yaml:"min_occurrences"`
	RepairWindowDays        int `yaml:"repair_window_days"`
	ChronicTopicOccurrences int `yaml:"chronic_topic_occurrences"`
}

// ShouldSchedule reports whether reaching count enriched conflicts triggers aggregation:
// exactly at MinRecords, then every Cadence-th record after it.
func (a AggregationPolicy) ShouldSchedule(count int) bool {
	if count < a.MinRecords {
		return false
	}
	if count == a.MinRecords {
		return true
	}
	if a.Cadence <= 0 {
		return false
	}
	return (count-a.MinRecords)%a.Cadence == 0
}

type HealthWeights struct {
	Risk       float64 `yaml:"risk"`
	Resolution float64 `yaml:"resolution"`
	Resentment float64 `yaml:"resentment"`
}

func (w HealthWeights) Sum() float64 { return w.Risk + w.Resolution + w.Resentment }

type HealthPolicy struct {
	Weights                 HealthWeights `yaml:"weights"`
	Baseline                float64       `yaml:"baseline"`
	TrendWindowDays         int           `yaml:"trend_window_days"`
	TrendThreshold          float64       `yaml:"trend_threshold"`
	SnapshotIntervalMinutes int           `yaml:"snapshot_interval_minutes"`
}

// SnapshotInterval is the minimum spacing between recorded snapshots of one relationship.
func (h HealthPolicy) SnapshotInterval() time.Duration {
	if h.SnapshotIntervalMinutes <= 0 {
		return 0
	}
	return time.Duration(h.SnapshotIntervalMinutes) * time.Minute
}

// Default is the compiled fallback, identical to the embedded YAML.
func Default() *Policy {
	return &Policy{
		Policy:     "insight",
		Version:    1,
		Extraction: ExtractionPolicy{MaxTriggerPhrases: 10, MaxUnmetNeeds: 10, MaxRepairAttempts: 10, TimeoutSeconds: 90},
		Chain:      ChainPolicy{TopicWeight: 0.7, NeedWeight: 0.3, Threshold: 0.5},
		Chronic:    ChronicPolicy{MinConflicts: 3, MinShare: 0.4, MinShareConflicts: 2},
		Risk: RiskPolicy{
			Weights:                RiskWeights{Unresolved: 0.30, Resentment: 0.25, Recency: 0.25, Recurrence: 0.20},
			UnresolvedSaturation:   5,
			ResentmentHalfLifeDays: 30,
			ResentmentSaturation:   3.0,
			RecencyHalfLifeDays:    7,
			RecurrenceSaturation:   3,
			DefaultIntervalDays:    14,
			MinPredictedDays:       1,
			CacheTTLSeconds:        300,
		},
		Aggregation: AggregationPolicy{
			MinRecords: 3, Cadence: 5, LookbackDays: 0, TopN: 10, MinOccurrences: 2,
			RepairWindowDays: 14, ChronicTopicOccurrences: 3,
		},
		Health: HealthPolicy{
			Weights:                 HealthWeights{Risk: 0.40, Resolution: 0.35, Resentment: 0.25},
			Baseline:                100,
			TrendWindowDays:         30,
			TrendThreshold:          5,
			SnapshotIntervalMinutes: 60,
		},
	}
}

var (
	loadOnce sync.Once
	loaded   *Policy
	loadErr  error
)

// Current returns the process-wide policy, falling back to Default when the YAML is invalid.
func Current(log *logger.Logger) *Policy {
	loadOnce.Do(func() {
		loaded, loadErr = Load()
	})
	if loadErr != nil {
		if log != nil {
			log.Warn("insight policy load failed; using defaults", "error", loadErr)
		}
		return Default()
	}
	return loaded
}

func Load() (*Policy, error) {
	data, err := readPolicy()
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func readPolicy() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(policyEnv)); path != "" {
		return os.ReadFile(path)
	}
	return policyFS.ReadFile("insight_policy.yaml")
}

const weightTolerance = 1e-6

func Validate(p *Policy) error {
	if p == nil {
		return errors.New("missing policy")
	}
	if strings.TrimSpace(p.Policy) != "insight" {
		return fmt.Errorf("unexpected policy: %s", p.Policy)
	}
	if s := p.Risk.Weights.Sum(); math.Abs(s-1) > weightTolerance {
		return fmt.Errorf("risk weights sum to %.6f, want 1.0", s)
	}
	if s := p.Health.Weights.Sum(); math.Abs(s-1) > weightTolerance {
		return fmt.Errorf("health weights sum to %.6f, want 1.0", s)
	}
	if s := p.Chain.TopicWeight + p.Chain.NeedWeight; math.Abs(s-1) > weightTolerance {
		return fmt.Errorf("chain weights sum to %.6f, want 1.0", s)
	}
	if p.Chain.Threshold <= 0 || p.Chain.Threshold > 1 {
		return fmt.Errorf("chain threshold out of range: %v", p.Chain.Threshold)
	}
	if p.Aggregation.MinRecords < 1 {
		return errors.New("aggregation.min_records must be >= 1")
	}
	if p.Aggregation.TopN < 1 || p.Aggregation.MinOccurrences < 1 {
		return errors.New("aggregation.top_n and min_occurrences must be >= 1")
	}
	if p.Aggregation.LookbackDays < 0 {
		return errors.New("aggregation.lookback_days must be >= 0")
	}
	if p.Risk.UnresolvedSaturation < 1 || p.Risk.RecurrenceSaturation < 1 || p.Risk.ResentmentSaturation <= 0 {
		return errors.New("risk saturations must be positive")
	}
	if p.Risk.ResentmentHalfLifeDays <= 0 || p.Risk.RecencyHalfLifeDays <= 0 {
		return errors.New("risk half-lives must be positive")
	}
	if p.Extraction.MaxTriggerPhrases < 1 || p.Extraction.MaxUnmetNeeds < 1 || p.Extraction.MaxRepairAttempts < 1 {
		return errors.New("extraction caps must be >= 1")
	}
	if p.Extraction.TimeoutSeconds < 1 {
		return errors.New("extraction.timeout_seconds must be >= 1")
	}
	if p.Chronic.MinConflicts < 1 || p.Chronic.MinShare <= 0 || p.Chronic.MinShare > 1 {
		return errors.New("chronic thresholds out of range")
	}
	return nil
}
