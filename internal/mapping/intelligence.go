package mapping

import "context"

// ExternalMapping is one candidate returned by the mapping-intelligence
// service for a business term.
type ExternalMapping struct {
	Database   string  `json:"database,omitempty"`
	Table      string  `json:"table"`
	Column     string  `json:"column,omitempty"`
	Confidence float64 `json:"confidence"`
	Source     string  `json:"source,omitempty"` // "learned" when fed back by feedback, else service-defined
}

// Intelligence is the optional external collaborator that resolves business
// terms and accepts learning feedback. The engine works without one: all
// lookups then fall back to local heuristics.
type Intelligence interface {
	// DiscoverBusinessMappings resolves terms to schema candidates with at
	// least the given confidence.
	DiscoverBusinessMappings(ctx context.Context, terms []string, confidenceThreshold float64) (map[string][]ExternalMapping, error)

	// LearnFromSuccessfulMapping reports a mapping that produced a good
	// query, so the service can rank it higher next time.
	LearnFromSuccessfulMapping(ctx context.Context, term, database, table, column string, score float64) (bool, error)
}
