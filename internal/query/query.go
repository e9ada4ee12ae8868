// Package query executes SQL statements against an open database handle.
// Binding is positional only and validated before anything touches the
// database, fetch modes control result materialization, and busy errors
// are retried with exponential backoff.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/litekeep/litekeep/internal/conn"
	lkerrors "github.com/litekeep/litekeep/internal/errors"
	"github.com/litekeep/litekeep/pkg/types"
)

const (
	defaultMaxRetries = 3
	defaultRetryBase  = 100 * time.Millisecond
)

// Executor runs statements on a single handle with a bounded busy-retry
// policy.
type Executor struct {
	h          *conn.Handle
	maxRetries int
	baseDelay  time.Duration
}

// NewExecutor creates an executor. maxRetries bounds additional attempts
// after a busy error; baseDelay seeds the exponential backoff. Zero or
// negative values fall back to the defaults.
func NewExecutor(h *conn.Handle, maxRetries int, baseDelay time.Duration) *Executor {
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = defaultRetryBase
	}
	return &Executor{h: h, maxRetries: maxRetries, baseDelay: baseDelay}
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Execute runs a single statement. Binding arity is checked against the
// placeholder count before execution, so a mismatch never reaches the
// database. FetchNone executes without materializing rows; FetchOne and
// FetchAll run the statement as a query and materialize one or all rows.
func (e *Executor) Execute(ctx context.Context, stmt types.Statement, fetch types.FetchMode) (*types.ExecutionResult, error) {
	if !fetch.Valid() {
		return nil, lkerrors.NewValidationError(lkerrors.CodeInvalidFetchMode,
			fmt.Sprintf("invalid fetch mode %q: must be none, one, or all", fetch))
	}
	if err := validateBinding(stmt); err != nil {
		return nil, err
	}

	kind := ClassifyStatement(stmt.SQL)
	if fetch == types.FetchNone {
		return e.exec(ctx, e.h.DB(), stmt, kind)
	}
	return e.query(ctx, e.h.DB(), stmt, kind, fetch)
}

// ExecuteBatch runs statements in order. In transactional mode the whole
// batch commits or rolls back as one unit; a failure reports the index of
// the failing statement and leaves the database untouched. In independent
// mode each statement commits on its own; a failure stops the batch and
// the result reports which statements had already committed.
//
// Binding for every statement is validated up front in both modes, so an
// arity mistake anywhere in the batch fails it before anything runs.
func (e *Executor) ExecuteBatch(ctx context.Context, stmts []types.Statement, transactional bool) (*types.BatchResult, error) {
	result := &types.BatchResult{
		Transactional: transactional,
		FailedIndex:   -1,
	}
	if len(stmts) == 0 {
		return result, nil
	}

	for i, stmt := range stmts {
		if err := validateBinding(stmt); err != nil {
			result.FailedIndex = i
			return result, wrapIndexed(err, i)
		}
	}

	if transactional {
		return e.batchTransactional(ctx, stmts, result)
	}
	return e.batchIndependent(ctx, stmts, result)
}

func (e *Executor) batchTransactional(ctx context.Context, stmts []types.Statement, result *types.BatchResult) (*types.BatchResult, error) {
	var tx *sql.Tx
	err := e.withRetry(ctx, "BEGIN", func() error {
		var beginErr error
		tx, beginErr = e.h.DB().BeginTx(ctx, nil)
		return beginErr
	})
	if err != nil {
		return result, classifyExec(err, "failed to begin transaction")
	}

	for i, stmt := range stmts {
		kind := ClassifyStatement(stmt.SQL)
		res, err := e.exec(ctx, tx, stmt, kind)
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.WithFields(log.Fields{
					"path":  e.h.Path(),
					"error": rbErr,
				}).Warn("rollback after batch failure also failed")
			}
			result.Results = nil
			result.FailedIndex = i
			result.Changed = false
			return result, wrapIndexed(err, i)
		}
		result.Results = append(result.Results, *res)
		if res.Changed {
			result.Changed = true
		}
	}

	if err := e.withRetry(ctx, "COMMIT", tx.Commit); err != nil {
		result.Results = nil
		result.Changed = false
		return result, classifyExec(err, "failed to commit batch")
	}
	return result, nil
}

func (e *Executor) batchIndependent(ctx context.Context, stmts []types.Statement, result *types.BatchResult) (*types.BatchResult, error) {
	for i, stmt := range stmts {
		kind := ClassifyStatement(stmt.SQL)
		res, err := e.exec(ctx, e.h.DB(), stmt, kind)
		if err != nil {
			result.FailedIndex = i
			result.Partial = len(result.Results) > 0
			return result, wrapIndexed(err, i)
		}
		result.Results = append(result.Results, *res)
		if res.Changed {
			result.Changed = true
		}
	}
	return result, nil
}

func (e *Executor) exec(ctx context.Context, runner execer, stmt types.Statement, kind StatementKind) (*types.ExecutionResult, error) {
	var res sql.Result
	err := e.withRetry(ctx, stmt.SQL, func() error {
		var execErr error
		res, execErr = runner.ExecContext(ctx, stmt.SQL, stmt.Args...)
		return execErr
	})
	if err != nil {
		return nil, classifyExec(err, "statement execution failed")
	}

	rowsAffected, _ := res.RowsAffected()
	lastID, _ := res.LastInsertId()
	return &types.ExecutionResult{
		RowsAffected: rowsAffected,
		LastInsertID: lastID,
		Changed:      changedFor(kind, rowsAffected),
	}, nil
}

func (e *Executor) query(ctx context.Context, runner execer, stmt types.Statement, kind StatementKind, fetch types.FetchMode) (*types.ExecutionResult, error) {
	var rows *sql.Rows
	err := e.withRetry(ctx, stmt.SQL, func() error {
		var queryErr error
		rows, queryErr = runner.QueryContext(ctx, stmt.SQL, stmt.Args...)
		return queryErr
	})
	if err != nil {
		return nil, classifyExec(err, "query execution failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, classifyExec(err, "failed to read result columns")
	}

	result := &types.ExecutionResult{Columns: columns}

	values := make([]interface{}, len(columns))
	valuePtrs := make([]interface{}, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, classifyExec(err, "failed to scan result row")
		}

		rowCopy := make([]interface{}, len(values))
		for i, v := range values {
			rowCopy[i] = normalizeValue(v)
		}
		result.Rows = append(result.Rows, rowCopy)

		for i := range values {
			values[i] = nil
		}
		if fetch == types.FetchOne {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, classifyExec(err, "failed to iterate result rows")
	}

	result.RowsAffected = int64(len(result.Rows))
	// DML observed through a RETURNING clause: the returned rows are the
	// affected rows.
	result.Changed = changedFor(kind, int64(len(result.Rows)))
	return result, nil
}

// withRetry runs op, retrying on busy errors with exponential backoff up
// to maxRetries additional attempts. All other errors return immediately.
func (e *Executor) withRetry(ctx context.Context, label string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !lkerrors.IsBusyMessage(lastErr.Error()) {
			return lastErr
		}

		if attempt < e.maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * e.baseDelay
			log.WithFields(log.Fields{
				"path":    e.h.Path(),
				"attempt": attempt + 1,
				"backoff": backoff,
				"stmt":    truncateSQL(label),
			}).Warn("database busy, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

// validateBinding compares the statement's placeholder count with the
// provided argument count and rejects non-positional parameter styles.
func validateBinding(stmt types.Statement) error {
	if strings.TrimSpace(stmt.SQL) == "" {
		return lkerrors.NewQueryError(lkerrors.CodeSyntaxError, "statement is empty", nil)
	}
	info := scanBindings(stmt.SQL)
	if info.named {
		return lkerrors.NewQueryError(lkerrors.CodeBindingMismatch,
			"named and numbered parameters are not supported, use positional '?'", nil)
	}
	if info.positional != len(stmt.Args) {
		return lkerrors.NewQueryError(lkerrors.CodeBindingMismatch,
			fmt.Sprintf("statement expects %d arguments, got %d", info.positional, len(stmt.Args)), nil)
	}
	return nil
}

// classifyExec maps a driver error onto a structured query error.
func classifyExec(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return lkerrors.NewQueryError(lkerrors.CodeTimeout, message, err)
	}
	code := lkerrors.ClassifyQueryMessage(err.Error())
	return lkerrors.NewQueryError(code, message, err)
}

func wrapIndexed(err error, index int) error {
	var le *lkerrors.LitekeepError
	if errors.As(err, &le) {
		return le.WithDetails(map[string]interface{}{"statement_index": index})
	}
	return err
}

// normalizeValue converts driver []byte text into string so results look
// the same under both drivers and marshal cleanly to JSON.
func normalizeValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func truncateSQL(sql string) string {
	const max = 80
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) > max {
		return sql[:max] + "..."
	}
	return sql
}
