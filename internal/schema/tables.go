// Package schema declares the static table registry for the sync engine.
//
// Every table eligible for replication is described by a TableConfig:
// its name, primary-key column, full column list, and the subset of
// columns that hold JSON-encoded text. The registry is fixed at compile
// time; one generic loader/applier code path handles any declared table.
package schema

// TableConfig describes one replicated table.
//
// The primary key is a string identifier (a UUID), never the
// auto-increment rowid, so upserts are safe across installations.
// Every replicated table must expose version, updated_at, deleted_at,
// and the primary-key column. created_at is store-managed and excluded
// from wire payloads.
type TableConfig struct {
	// Name is the SQL table name.
	Name string

	// PrimaryKey is the column used for cross-installation identity.
	PrimaryKey string

	// Columns lists every replicated column, in declaration order.
	Columns []string

	// JSONColumns is the subset of Columns holding JSON-encoded text.
	// Their values pass through the wire as raw text; clearing them
	// on a tombstone writes "[]" rather than "".
	JSONColumns []string
}

// Tables is the full registry of replicated tables. Settings are
// deliberately absent (device-local secrets never replicate).
var Tables = []TableConfig{
	{
		Name:        "notes",
		PrimaryKey:  "uuid",
		Columns:     []string{"uuid", "title", "content", "tags", "created_at", "updated_at", "deleted_at", "version"},
		JSONColumns: []string{"tags"},
	},
	{
		Name:        "moments",
		PrimaryKey:  "uuid",
		Columns:     []string{"uuid", "content", "images", "tags", "created_at", "updated_at", "deleted_at", "version"},
		JSONColumns: []string{"images", "tags"},
	},
	{
		Name:        "assets",
		PrimaryKey:  "uuid",
		Columns:     []string{"uuid", "url", "path", "filename", "size", "mime_type", "storage_type", "created_at", "updated_at", "deleted_at", "version"},
		JSONColumns: []string{},
	},
	{
		Name:        "workflows",
		PrimaryKey:  "uuid",
		Columns:     []string{"uuid", "name", "description", "steps", "schema_id", "type", "created_at", "updated_at", "deleted_at", "version"},
		JSONColumns: []string{"steps"},
	},
	{
		Name:        "workflow_schemas",
		PrimaryKey:  "uuid",
		Columns:     []string{"uuid", "name", "description", "fields", "created_at", "updated_at", "deleted_at", "version"},
		JSONColumns: []string{"fields"},
	},
}

// Lookup returns the configuration for a table, or nil if the table is
// not registered. Callers treat nil as "unsupported table, skip".
func Lookup(name string) *TableConfig {
	for i := range Tables {
		if Tables[i].Name == name {
			return &Tables[i]
		}
	}
	return nil
}

// TableNames returns the names of all registered tables.
func TableNames() []string {
	names := make([]string, len(Tables))
	for i, t := range Tables {
		names[i] = t.Name
	}
	return names
}

// WireColumns returns the table's columns minus created_at, which the
// store manages locally and never replicates.
func (c *TableConfig) WireColumns() []string {
	cols := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		if col == "created_at" {
			continue
		}
		cols = append(cols, col)
	}
	return cols
}

// IsJSON reports whether the named column holds JSON-encoded text.
func (c *TableConfig) IsJSON(column string) bool {
	for _, jc := range c.JSONColumns {
		if jc == column {
			return true
		}
	}
	return false
}
