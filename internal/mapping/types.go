package mapping

import "time"

// Type records the provenance of a mapping.
type Type string

const (
	TypeExact    Type = "exact"    // term equals the schema name
	TypeSemantic Type = "semantic" // heuristic name/keyword match
	TypeLearned  Type = "learned"  // previously confirmed by feedback
	TypeExternal Type = "external" // produced by the mapping-intelligence service
)

// Mapping ties a business term to one concrete schema location. Mappings
// are produced per request and may be cached; they are never mutated after
// construction.
type Mapping struct {
	Term       string  `json:"term"`
	Database   string  `json:"database"`
	Table      string  `json:"table"`
	Column     string  `json:"column,omitempty"`
	Confidence float64 `json:"confidence"` // always clamped to [0,1]
	Type       Type    `json:"type"`
}

// TimeRange bounds the period a query should cover.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Intent is the extracted analytical request handed in by the (external)
// natural-language layer.
type Intent struct {
	Metric            string     `json:"metric"`
	Filters           []string   `json:"filters,omitempty"`
	ComparisonPeriods []string   `json:"comparison_periods,omitempty"`
	TimeRange         *TimeRange `json:"time_range,omitempty"`
}

// Join suggests how two mapped tables can be combined.
type Join struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	Reason     string `json:"reason"`
}

// QueryContext is the assembled input for the downstream SQL generator.
// It is built fresh per request and never mutated afterwards.
type QueryContext struct {
	Intent            Intent               `json:"intent"`
	TableMappings     []Mapping            `json:"table_mappings"`
	ColumnMappings    map[string][]Mapping `json:"column_mappings,omitempty"`
	SuggestedJoins    []Join               `json:"suggested_joins,omitempty"`
	OptimizationHints []string             `json:"optimization_hints,omitempty"`
	GeneratedAt       time.Time            `json:"generated_at"`
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
