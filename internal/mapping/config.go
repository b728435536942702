package mapping

import "time"

// Config holds term-mapping tuning knobs. The heuristic scores have no
// derived justification; they are configuration so they can be recalibrated
// from observed query quality without a code change.
type Config struct {
	// MaxAlternatives truncates every mapping result list.
	MaxAlternatives int `yaml:"max_alternatives"`

	// MinConfidence discards heuristic matches scoring below it.
	MinConfidence float64 `yaml:"min_confidence"`

	// ConfidenceThreshold is passed to the external intelligence service.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`

	// Heuristic scores.
	ColumnMatchScore  float64 `yaml:"column_match_score"`  // term contained in a column name
	TableMatchScore   float64 `yaml:"table_match_score"`   // term contained in a table name
	KeywordMatchScore float64 `yaml:"keyword_match_score"` // related keyword-category token present

	// LearnQueueSize bounds the fire-and-forget feedback queue.
	LearnQueueSize int `yaml:"learn_queue_size"`

	// LearnTimeout bounds each feedback call to the intelligence service.
	LearnTimeout time.Duration `yaml:"learn_timeout"`
}

// DefaultConfig returns production-ready mapping settings.
func DefaultConfig() *Config {
	return &Config{
		MaxAlternatives:     5,
		MinConfidence:       0.5,
		ConfidenceThreshold: 0.5,
		ColumnMatchScore:    0.9,
		TableMatchScore:     0.7,
		KeywordMatchScore:   0.6,
		LearnQueueSize:      64,
		LearnTimeout:        10 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.MaxAlternatives <= 0 {
		out.MaxAlternatives = def.MaxAlternatives
	}
	if out.MinConfidence <= 0 {
		out.MinConfidence = def.MinConfidence
	}
	if out.ConfidenceThreshold <= 0 {
		out.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if out.ColumnMatchScore <= 0 {
		out.ColumnMatchScore = def.ColumnMatchScore
	}
	if out.TableMatchScore <= 0 {
		out.TableMatchScore = def.TableMatchScore
	}
	if out.KeywordMatchScore <= 0 {
		out.KeywordMatchScore = def.KeywordMatchScore
	}
	if out.LearnQueueSize <= 0 {
		out.LearnQueueSize = def.LearnQueueSize
	}
	if out.LearnTimeout <= 0 {
		out.LearnTimeout = def.LearnTimeout
	}
	return &out
}
