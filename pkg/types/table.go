// Package types provides core data types for litekeep.
package types

import "strings"

// ColumnType is the declared SQLite type of a column. The set is open:
// SQLite accepts any declared type and resolves affinity from it, so values
// outside the listed constants are rendered verbatim.
type ColumnType string

const (
	TypeInteger   ColumnType = "INTEGER"
	TypeText      ColumnType = "TEXT"
	TypeReal      ColumnType = "REAL"
	TypeBlob      ColumnType = "BLOB"
	TypeNumeric   ColumnType = "NUMERIC"
	TypeTimestamp ColumnType = "TIMESTAMP"
)

// ColumnSpec declares a single column: its name, type, and the fixed
// constraint set. Default, when non-nil, is a SQL literal rendered verbatim
// into the DDL (so text defaults must carry their own quotes, e.g. `'pending'`).
type ColumnSpec struct {
	// Name is the column name
	Name string `json:"name"`

	// Type is the declared column type
	Type ColumnType `json:"type"`

	// PrimaryKey marks the column as the table's primary key
	PrimaryKey bool `json:"primary_key,omitempty"`

	// Autoincrement requires PrimaryKey and an INTEGER type
	Autoincrement bool `json:"autoincrement,omitempty"`

	// NotNull forbids NULL values
	NotNull bool `json:"not_null,omitempty"`

	// Unique enforces uniqueness across rows
	Unique bool `json:"unique,omitempty"`

	// Default is the DEFAULT literal, nil when absent
	Default *string `json:"default,omitempty"`
}

// TableSpec declares a table as an ordered list of column specs.
type TableSpec struct {
	// Name is the table name
	Name string `json:"name"`

	// Columns lists the column declarations in DDL order
	Columns []ColumnSpec `json:"columns"`
}

// Validate checks the structural invariants of the spec: a name, at least
// one column, unique column names, at most one PRIMARY KEY declaration, and
// AUTOINCREMENT only on an INTEGER PRIMARY KEY column. Identifier lexical
// rules are enforced separately by the schema operator.
func (t TableSpec) Validate() error {
	if t.Name == "" {
		return ErrEmptyTableName
	}
	if len(t.Columns) == 0 {
		return ErrNoColumns
	}
	seen := make(map[string]struct{}, len(t.Columns))
	pkCount := 0
	for _, col := range t.Columns {
		key := strings.ToLower(col.Name)
		if _, dup := seen[key]; dup {
			return ErrDuplicateColumn
		}
		seen[key] = struct{}{}
		if col.PrimaryKey {
			pkCount++
		}
		if col.Autoincrement {
			if !col.PrimaryKey || !strings.EqualFold(string(col.Type), string(TypeInteger)) {
				return ErrAutoincrementNotIntegerPK
			}
		}
	}
	if pkCount > 1 {
		return ErrMultiplePrimaryKeys
	}
	return nil
}

// Equal reports whether two specs are equivalent: same table name, same
// column order, and per-column equality with case-insensitive names and
// types. Used by idempotence and round-trip checks.
func (t TableSpec) Equal(other TableSpec) bool {
	if !strings.EqualFold(t.Name, other.Name) || len(t.Columns) != len(other.Columns) {
		return false
	}
	for i := range t.Columns {
		if !t.Columns[i].Equal(other.Columns[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether two column specs are equivalent.
func (c ColumnSpec) Equal(other ColumnSpec) bool {
	if !strings.EqualFold(c.Name, other.Name) || !strings.EqualFold(string(c.Type), string(other.Type)) {
		return false
	}
	if c.PrimaryKey != other.PrimaryKey || c.Autoincrement != other.Autoincrement ||
		c.NotNull != other.NotNull || c.Unique != other.Unique {
		return false
	}
	if (c.Default == nil) != (other.Default == nil) {
		return false
	}
	if c.Default != nil && *c.Default != *other.Default {
		return false
	}
	return true
}
