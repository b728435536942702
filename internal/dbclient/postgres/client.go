// Package postgres provides a PostgreSQL implementation of
// dbclient.SchemaClient backed by a single pgx connection.
//
// Each Client owns exactly one connection: pooling, health checking, and
// lifecycle are the responsibility of the connection pool that created it.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/dbclient"
	"github.com/obaidsafi51/Multi-Agent-BI-System-sub002/internal/errs"
)

// Client implements dbclient.SchemaClient for PostgreSQL.
type Client struct {
	conn *pgx.Conn
}

// Connect opens a single connection using the given DSN and validates it
// with a ping before returning.
func Connect(ctx context.Context, dsn string) (*Client, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to connect to postgres", err)
	}

	c := &Client{conn: conn}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, mapError(err)
	}
	return c, nil
}

// NewFactory returns a dbclient.Factory producing postgres clients for dsn.
func NewFactory(dsn string) dbclient.Factory {
	return func(ctx context.Context) (dbclient.SchemaClient, error) {
		return Connect(ctx, dsn)
	}
}

// --- dbclient.SchemaClient implementation ---

// ListDatabases returns all non-template databases on the server.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	const q = `
		SELECT datname
		FROM pg_database
		WHERE datistemplate = false
		ORDER BY datname`

	rows, err := c.conn.Query(ctx, q)
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

// ListTables returns all user-defined table names in the public schema of
// the connected database. The database argument is validated against the
// current connection; cross-database listing requires a dedicated client.
func (c *Client) ListTables(ctx context.Context, database string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_catalog = $1
		  AND table_schema = 'public'
		  AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := c.conn.Query(ctx, q, database)
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

	cols, err := c.inspectColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errs.New(errs.ErrKindNotFound, "table "+database+"."+table+" not found or has no columns")
	}
	ts.Columns = cols
	for _, col := range cols {
		if col.IsPrimaryKey {
			ts.PrimaryKeys = append(ts.PrimaryKeys, col.Name)
		}
	}

	if ts.Indexes, err = c.listIndexes(ctx, table); err != nil {
		return nil, err
	}
	if ts.ForeignKeys, err = c.listForeignKeys(ctx, table); err != nil {
		return nil, err
	}
	return ts, nil
}

// HealthCheck pings the connection with the caller's deadline.
func (c *Client) HealthCheck(ctx context.Context) bool {
	return c.conn.Ping(ctx) == nil
}

// Close terminates the underlying connection.
func (c *Client) Close(ctx context.Context) error {
	return mapError(c.conn.Close(ctx))
}

// --- introspection queries ---

func (c *Client) inspectColumns(ctx context.Context, table string) ([]dbclient.ColumnSchema, error) {
	const q = `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES'              AS is_nullable,
			c.column_default,
			c.character_maximum_length,
			COALESCE(pk.is_pk, false)          AS is_primary_key,
			COALESCE(uq.is_unique, false)      AS is_unique
		FROM information_schema.columns c

		-- Primary key check
		LEFT JOIN (
			SELECT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
			  AND tc.table_schema = 'public'
			  AND tc.table_name   = $1
		) pk ON pk.column_name = c.column_name

		-- Unique constraint check
		LEFT JOIN (
			SELECT kcu.column_name, true AS is_unique
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'UNIQUE'
			  AND tc.table_schema = 'public'
			  AND tc.table_name   = $1
		) uq ON uq.column_name = c.column_name

		WHERE c.table_schema = 'public' AND c.table_name = $1
		ORDER BY c.ordinal_position`

	rows, err := c.conn.Query(ctx, q, table)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var cols []dbclient.ColumnSchema
	for rows.Next() {
		var col dbclient.ColumnSchema
		if err := rows.Scan(
			&col.Name,
			&col.DataType,
			&col.IsNullable,
			&col.DefaultValue,
			&col.MaxLength,
			&col.IsPrimaryKey,
			&col.IsUnique,
		); err != nil {
			return nil, mapError(err)
		}
		cols = append(cols, col)
	}
	return cols, mapError(rows.Err())
}

func (c *Client) listIndexes(ctx context.Context, table string) ([]dbclient.IndexSchema, error) {
	const q = `
		SELECT
			i.relname                          AS index_name,
			array_agg(a.attname ORDER BY k.n)  AS columns,
			ix.indisunique                     AS is_unique
		FROM pg_class t
		JOIN pg_index ix      ON t.oid = ix.indrelid
		JOIN pg_class i       ON i.oid = ix.indexrelid
		CROSS JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, n)
		JOIN pg_attribute a   ON a.attrelid = t.oid AND a.attnum = k.attnum
		WHERE t.relname = $1
		  AND t.relkind = 'r'
		GROUP BY i.relname, ix.indisunique
		ORDER BY i.relname`

	rows, err := c.conn.Query(ctx, q, table)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var indexes []dbclient.IndexSchema
	for rows.Next() {
		var idx dbclient.IndexSchema
		if err := rows.Scan(&idx.Name, &idx.Columns, &idx.Unique); err != nil {
			return nil, mapError(err)
		}
		indexes = append(indexes, idx)
	}
	return indexes, mapError(rows.Err())
}

func (c *Client) listForeignKeys(ctx context.Context, table string) ([]dbclient.ForeignKey, error) {
	const q = `
		SELECT
			tc.constraint_name,
			kcu.column_name  AS from_column,
			ccu.table_name   AS to_table,
			ccu.column_name  AS to_column
		FROM information_schema.table_constraints AS tc
		JOIN information_schema.key_column_usage AS kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage AS ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public'
		  AND tc.table_name = $1
		ORDER BY tc.constraint_name`

	rows, err := c.conn.Query(ctx, q, table)
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
