package ddl

// ColumnDef describes a single column in a table definition produced by
// Materialize and consumed by the backend renderers.
//
// Fields:
//   - Name: column name (unquoted; quoting happens at render time)
//   - SQLType: fully rendered target type (e.g. NVARCHAR(MAX), DECIMAL(18,2))
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression copied from the source catalog
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the table's dotted name (e.g. "dbo.Orders") and its ordered
// columns. Renderers split and quote FQN per dialect.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}
