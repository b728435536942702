package dbclient

// ColumnSchema describes a single column in a table.
type ColumnSchema struct {
	Name         string  `json:"name"`
	DataType     string  `json:"data_type"`
	IsNullable   bool    `json:"is_nullable"`
	IsPrimaryKey bool    `json:"is_primary_key"`
	IsUnique     bool    `json:"is_unique"`
	DefaultValue *string `json:"default_value,omitempty"`
	MaxLength    *int    `json:"max_length,omitempty"`
	Comment      string  `json:"comment,omitempty"`
}

// IndexSchema describes a single index on a table.
type IndexSchema struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// ForeignKey describes a relationship between two tables.
type ForeignKey struct {
	Name       string `json:"name"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
}

// TableSchema is the fully hydrated description of one table.
type TableSchema struct {
	Database    string         `json:"database"`
	Name        string         `json:"name"`
	Columns     []ColumnSchema `json:"columns"`
	Indexes     []IndexSchema  `json:"indexes,omitempty"`
	PrimaryKeys []string       `json:"primary_keys,omitempty"`
	ForeignKeys []ForeignKey   `json:"foreign_keys,omitempty"`
	RowCount    *int64         `json:"row_count,omitempty"`
}
