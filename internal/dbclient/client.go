// Package dbclient defines the contract every schema backend must satisfy.
//
// All layers above this package talk only to the SchemaClient interface —
// they never import the mcp, postgres, or mysql packages directly. The pool
// hands out SchemaClient instances; discovery drives them.
package dbclient

import "context"

// SchemaClient is the central contract for remote schema access.
// Implementations must be safe for use by a single goroutine at a time;
// the connection pool guarantees exclusive ownership while acquired.
type SchemaClient interface {
	// ListDatabases returns the names of all databases visible to the client.
	ListDatabases(ctx context.Context) ([]string, error)

	// ListTables returns all table names in the given database.
	ListTables(ctx context.Context, database string) ([]string, error)

	// GetTableSchema returns the full column/index/key detail for one table.
	// This is the expensive call — callers should cache the result.
	GetTableSchema(ctx context.Context, database, table string) (*TableSchema, error)

	// HealthCheck reports whether the backend is currently reachable.
	// It must never panic and should respect ctx deadlines.
	HealthCheck(ctx context.Context) bool

	// Close releases all resources held by the client.
	Close(ctx context.Context) error
}

// Factory creates a new SchemaClient. The connection pool calls it whenever
// it needs to grow; it assumes nothing about the backend's wire format.
type Factory func(ctx context.Context) (SchemaClient, error)
