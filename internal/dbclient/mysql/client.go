// Package mysql provides a MySQL/TiDB implementation of
// dbclient.SchemaClient backed by database/sql and go-sql-driver.
//
// Each Client is pinned to a single underlying connection so the connection
// pool above it remains the sole owner of pooling decisions.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
)

// Client implements dbclient.SchemaClient for MySQL-compatible servers
// (MySQL, MariaDB, TiDB).
type Client struct {
	db *sql.DB
}

// Connect opens a connection using the given DSN and validates it with a
// ping before returning.
//
// DSN format: user:pass@tcp(host:port)/?parseTime=true
func Connect(ctx context.Context, dsn string) (*Client, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to open mysql", err)
	}

	// One pooled connection per client: the middleware pool owns fan-out.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &Client{db: db}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, mapError(err)
	}
	return c, nil
}

// NewFactory returns a dbclient.Factory producing mysql clients for dsn.
func NewFactory(dsn string) dbclient.Factory {
	return func(ctx context.Context) (dbclient.SchemaClient, error) {
		return Connect(ctx, dsn)
	}
}

// --- dbclient.SchemaClient implementation ---

// ListDatabases returns every schema visible to the connected user.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	const q = `
		SELECT schema_name
		FROM information_schema.schemata
		ORDER BY schema_name`

	rows, err := c.db.QueryContext(ctx, q)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err)
		}
		names = append(names, name)
	}
	return names, mapError(rows.Err())
}

// ListTables returns all base table names in the given database.
func (c *Client) ListTables(ctx context.Context, database string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = ?
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := c.db.QueryContext(ctx, q, database)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, mapError(err)
		}
		tables = append(tables, name)
	}
	return tables, mapError(rows.Err())
}

// GetTableSchema returns full column, index, and key detail for one table.
func (c *Client) GetTableSchema(ctx context.Context, database, table string) (*dbclient.TableSchema, error) {
	ts := &dbclient.TableSchema{Database: database, Name: table}

	cols, err := c.inspectColumns(ctx, database, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errs.New(errs.ErrKindNotFound,
			fmt.Sprintf("table %s.%s not found or has no columns", database, table))
	}
	ts.Columns = cols
	for _, col := range cols {
		if col.IsPrimaryKey {
			ts.PrimaryKeys = append(ts.PrimaryKeys, col.Name)
		}
	}

	if ts.Indexes, err = c.listIndexes(ctx, database, table); err != nil {
		return nil, err
	}
	if ts.ForeignKeys, err = c.listForeignKeys(ctx, database, table); err != nil {
		return nil, err
	}
	if ts.RowCount, err = c.approxRowCount(ctx, database, table); err != nil {
		return nil, err
	}
	return ts, nil
}

// HealthCheck pings the connection with the caller's deadline.
func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.db.PingContext(ctx) == nil
}

// Close shuts the underlying connection down.
func (c *Client) Close(_ context.Context) error {
	return mapError(c.db.Close())
}

// --- introspection queries ---

func (c *Client) inspectColumns(ctx context.Context, database, table string) ([]dbclient.ColumnSchema, error) {
	const q = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES'  AS is_nullable,
			c.column_default,
			c.character_maximum_length,
			(c.column_key = 'PRI') AS is_primary_key,
			(c.column_key = 'UNI') AS is_unique,
			c.column_comment
		FROM information_schema.columns c
		WHERE c.table_schema = ? AND c.table_name = ?
		ORDER BY c.ordinal_position`

	rows, err := c.db.QueryContext(ctx, q, database, table)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var cols []dbclient.ColumnSchema
	for rows.Next() {
		var col dbclient.ColumnSchema
		var defaultVal sql.NullString
		var maxLen sql.NullInt64
		if err := rows.Scan(
			&col.Name,
			&col.DataType,
			&col.IsNullable,
			&defaultVal,
			&maxLen,
			&col.IsPrimaryKey,
			&col.IsUnique,
			&col.Comment,
		); err != nil {
			return nil, mapError(err)
		}
		if defaultVal.Valid {
			v := defaultVal.String
			col.DefaultValue = &v
		}
		if maxLen.Valid {
			n := int(maxLen.Int64)
			col.MaxLength = &n
		}
		cols = append(cols, col)
	}
	return cols, mapError(rows.Err())
}

func (c *Client) listIndexes(ctx context.Context, database, table string) ([]dbclient.IndexSchema, error) {
	const q = `
		SELECT
			index_name,
			GROUP_CONCAT(column_name ORDER BY seq_in_index SEPARATOR ','),
			MAX(non_unique) = 0
		FROM information_schema.statistics
		WHERE table_schema = ? AND table_name = ?
		GROUP BY index_name
		ORDER BY index_name`

	rows, err := c.db.QueryContext(ctx, q, database, table)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var indexes []dbclient.IndexSchema
	for rows.Next() {
		var idx dbclient.IndexSchema
		var cols string
		if err := rows.Scan(&idx.Name, &cols, &idx.Unique); err != nil {
			return nil, mapError(err)
		}
		idx.Columns = splitColumns(cols)
		indexes = append(indexes, idx)
	}
	return indexes, mapError(rows.Err())
}

func (c *Client) listForeignKeys(ctx context.Context, database, table string) ([]dbclient.ForeignKey, error) {
	const q = `
		SELECT
			constraint_name,
			column_name,
			referenced_table_name,
			referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = ?
		  AND table_name = ?
		  AND referenced_table_name IS NOT NULL
		ORDER BY constraint_name`

	rows, err := c.db.QueryContext(ctx, q, database, table)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var fks []dbclient.ForeignKey
	for rows.Next() {
		var fk dbclient.ForeignKey
		if err := rows.Scan(&fk.Name, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return nil, mapError(err)
		}
		fks = append(fks, fk)
	}
	return fks, mapError(rows.Err())
}

// approxRowCount reads the statistics-based row estimate; cheap but inexact.
func (c *Client) approxRowCount(ctx context.Context, database, table string) (*int64, error) {
	const q = `
		SELECT table_rows
		FROM information_schema.tables
		WHERE table_schema = ? AND table_name = ?`

	var n sql.NullInt64
	if err := c.db.QueryRowContext(ctx, q, database, table).Scan(&n); err != nil {
		return nil, mapError(err)
	}
	if !n.Valid {
		return nil, nil
	}
	return &n.Int64, nil
}

func splitColumns(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}
