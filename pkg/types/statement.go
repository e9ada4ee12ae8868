package types

// FetchMode controls whether Execute materializes result rows.
type FetchMode string

const (
	// FetchNone suppresses result rows; only rows_affected is reported.
	// Used for DDL and DML where no result set matters.
	FetchNone FetchMode = "none"

	// FetchOne materializes at most one row.
	FetchOne FetchMode = "one"

	// FetchAll materializes every row produced.
	FetchAll FetchMode = "all"
)

// Valid reports whether the mode is one of the three defined values.
func (m FetchMode) Valid() bool {
	switch m {
	case FetchNone, FetchOne, FetchAll:
		return true
	}
	return false
}

// Statement is a SQL text plus its positional parameters. Values are only
// ever bound through placeholders, never interpolated into the text.
type Statement struct {
	// SQL is the statement text with ? placeholders
	SQL string `json:"sql"`

	// Args are the positional parameter values, in placeholder order
	Args []interface{} `json:"args,omitempty"`
}

// ExecutionResult is the outcome of a single statement.
type ExecutionResult struct {
	// RowsAffected is the number of rows changed by a mutating statement
	RowsAffected int64 `json:"rows_affected"`

	// LastInsertID is the rowid of the last inserted row, when applicable
	LastInsertID int64 `json:"last_insert_id,omitempty"`

	// Columns names the result columns, present only when rows were fetched
	Columns []string `json:"columns,omitempty"`

	// Rows holds the materialized result rows, present only when the
	// statement is a read query and the fetch mode requested them
	Rows [][]interface{} `json:"rows,omitempty"`

	// Changed reports whether the statement mutated database state:
	// true for DDL, true for DML with RowsAffected > 0
	Changed bool `json:"changed"`
}

// BatchResult is the outcome of a statement batch. In transactional mode a
// failed batch is rolled back and no BatchResult is produced. In
// non-transactional mode earlier statements stay committed: Results holds
// one entry per completed statement, FailedIndex names the statement that
// stopped the batch (-1 when none did), and Partial is true when the batch
// did not run to completion.
type BatchResult struct {
	// Results holds the per-statement outcomes, in batch order
	Results []ExecutionResult `json:"results"`

	// Transactional records the mode the batch ran under
	Transactional bool `json:"transactional"`

	// FailedIndex is the zero-based index of the failing statement, -1 if none
	FailedIndex int `json:"failed_index"`

	// Partial is true when some statements committed and a later one failed
	Partial bool `json:"partial"`

	// Changed reports whether any statement mutated database state
	Changed bool `json:"changed"`
}
