package discovery

import (
	"time"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
)

// Table is one discovered table. SchemaFetched distinguishes a cheap
// name-only listing (fast mode) from a fully hydrated table.
type Table struct {
	Name          string                  `json:"name"`
	SchemaFetched bool                    `json:"schema_fetched"`
	Columns       []dbclient.ColumnSchema `json:"columns,omitempty"`
	Indexes       []dbclient.IndexSchema  `json:"indexes,omitempty"`
	PrimaryKeys   []string                `json:"primary_keys,omitempty"`
	ForeignKeys   []dbclient.ForeignKey   `json:"foreign_keys,omitempty"`
	RowCount      *int64                  `json:"row_count,omitempty"`
}

// Database is one discovered database and its tables, sorted by name.
type Database struct {
	Name   string  `json:"name"`
	Tables []Table `json:"tables"`
}

// Snapshot is the result of one discovery run.
type Snapshot struct {
	Databases    []Database `json:"databases"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	FastMode     bool       `json:"fast_mode"`

	// Complete is false when any database or table was skipped due to a
	// partial failure, or when the snapshot is the hard-coded fallback.
	Complete bool `json:"complete"`

	// Fallback marks the degraded snapshot served when live discovery was
	// impossible.
	Fallback bool `json:"fallback,omitempty"`
}

// TableCount returns the total number of tables across all databases.
func (s *Snapshot) TableCount() int {
	n := 0
	for _, db := range s.Databases {
		n += len(db.Tables)
	}
	return n
}

func tableFromSchema(ts *dbclient.TableSchema) Table {
	return Table{
		Name:          ts.Name,
		SchemaFetched: true,
		Columns:       ts.Columns,
		Indexes:       ts.Indexes,
		PrimaryKeys:   ts.PrimaryKeys,
		ForeignKeys:   ts.ForeignKeys,
		RowCount:      ts.RowCount,
	}
}
