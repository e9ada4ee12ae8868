package types

import "errors"

// TableSpec validation errors
var (
	// ErrEmptyTableName is returned when a spec has no table name
	ErrEmptyTableName = errors.New("table name is empty")

	// ErrNoColumns is returned when a spec declares no columns
	ErrNoColumns = errors.New("table spec has no columns")

	// ErrDuplicateColumn is returned when two columns share a name
	ErrDuplicateColumn = errors.New("duplicate column name")

	// ErrMultiplePrimaryKeys is returned when more than one column declares PRIMARY KEY
	ErrMultiplePrimaryKeys = errors.New("multiple primary key declarations")

	// ErrAutoincrementNotIntegerPK is returned when AUTOINCREMENT is declared
	// on a column that is not an INTEGER PRIMARY KEY
	ErrAutoincrementNotIntegerPK = errors.New("autoincrement requires an integer primary key column")
)
