package query

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/litekeep/litekeep/internal/conn"
	lkerrors "github.com/litekeep/litekeep/internal/errors"
	"github.com/litekeep/litekeep/pkg/types"
)

func openTestDB(t *testing.T) *conn.Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "query_test.db")
	h, err := conn.Open(context.Background(), path, conn.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func newTestExecutor(h *conn.Handle) *Executor {
	return NewExecutor(h, 2, 5*time.Millisecond)
}

func createItems(t *testing.T, e *Executor) {
	t.Helper()
	_, err := e.Execute(context.Background(), types.Statement{
		SQL: "CREATE TABLE items (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE)",
	}, types.FetchNone)
	if err != nil {
		t.Fatalf("failed to create items table: %v", err)
	}
}

func countItems(t *testing.T, e *Executor) int64 {
	t.Helper()
	res, err := e.Execute(context.Background(), types.Statement{
		SQL: "SELECT COUNT(*) FROM items",
	}, types.FetchOne)
	if err != nil {
		t.Fatalf("failed to count items: %v", err)
	}
	n, ok := res.Rows[0][0].(int64)
	if !ok {
		t.Fatalf("count column has unexpected type %T", res.Rows[0][0])
	}
	return n
}

func TestExecute_InsertAndFetchAll(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(openTestDB(t))
	createItems(t, e)

	res, err := e.Execute(ctx, types.Statement{
		SQL:  "INSERT INTO items (name) VALUES (?)",
		Args: []interface{}{"alpha"},
	}, types.FetchNone)
	if err != nil {
		t.Fatalf("Execute(insert) error = %v", err)
	}
	if res.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", res.RowsAffected)
	}
	if res.LastInsertID != 1 {
		t.Errorf("LastInsertID = %d, want 1", res.LastInsertID)
	}
	if !res.Changed {
		t.Error("Changed = false for insert, want true")
	}

	if _, err := e.Execute(ctx, types.Statement{
		SQL:  "INSERT INTO items (name) VALUES (?)",
		Args: []interface{}{"beta"},
	}, types.FetchNone); err != nil {
		t.Fatalf("Execute(insert) error = %v", err)
	}

	got, err := e.Execute(ctx, types.Statement{
		SQL: "SELECT id, name FROM items ORDER BY id",
	}, types.FetchAll)
	if err != nil {
		t.Fatalf("Execute(select) error = %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(got.Rows))
	}
	if got.Columns[0] != "id" || got.Columns[1] != "name" {
		t.Errorf("Columns = %v, want [id name]", got.Columns)
	}
	if got.Rows[0][1] != "alpha" || got.Rows[1][1] != "beta" {
		t.Errorf("Rows = %v, want alpha then beta", got.Rows)
	}
	if got.Changed {
		t.Error("Changed = true for select, want false")
	}
}

func TestExecute_FetchOne(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(openTestDB(t))
	createItems(t, e)

	for _, name := range []string{"a", "b", "c"} {
		if _, err := e.Execute(ctx, types.Statement{
			SQL:  "INSERT INTO items (name) VALUES (?)",
			Args: []interface{}{name},
		}, types.FetchNone); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	res, err := e.Execute(ctx, types.Statement{
		SQL: "SELECT name FROM items ORDER BY name",
	}, types.FetchOne)
	if err != nil {
		t.Fatalf("Execute(fetch one) error = %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(res.Rows))
	}
	if res.Rows[0][0] != "a" {
		t.Errorf("Rows[0][0] = %v, want a", res.Rows[0][0])
	}
}

func TestExecute_FetchNoneSuppressesRows(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(openTestDB(t))
	createItems(t, e)

	res, err := e.Execute(ctx, types.Statement{SQL: "SELECT 1"}, types.FetchNone)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Rows != nil {
		t.Errorf("Rows = %v, want nil for fetch none", res.Rows)
	}
}

func TestExecute_InvalidFetchMode(t *testing.T) {
	e := newTestExecutor(openTestDB(t))
	_, err := e.Execute(context.Background(), types.Statement{SQL: "SELECT 1"}, types.FetchMode("some"))
	if err == nil {
		t.Fatal("Execute() with bad fetch mode = nil, want error")
	}
	if lkerrors.GetCode(err) != lkerrors.CodeInvalidFetchMode {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeInvalidFetchMode)
	}
}

func TestExecute_BindingMismatchLeavesDatabaseUnmodified(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(openTestDB(t))
	createItems(t, e)

	_, err := e.Execute(ctx, types.Statement{
		SQL:  "INSERT INTO items (name) VALUES (?)",
		Args: []interface{}{"x", "extra"},
	}, types.FetchNone)
	if err == nil {
		t.Fatal("Execute() with extra arg = nil, want error")
	}
	if lkerrors.GetCategory(err) != lkerrors.ErrCategoryQuery {
		t.Errorf("category = %s, want %s", lkerrors.GetCategory(err), lkerrors.ErrCategoryQuery)
	}
	if lkerrors.GetCode(err) != lkerrors.CodeBindingMismatch {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeBindingMismatch)
	}
	if n := countItems(t, e); n != 0 {
		t.Errorf("row count after binding mismatch = %d, want 0", n)
	}

	// Too few arguments is the same error.
	_, err = e.Execute(ctx, types.Statement{
		SQL: "INSERT INTO items (name) VALUES (?)",
	}, types.FetchNone)
	if lkerrors.GetCode(err) != lkerrors.CodeBindingMismatch {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeBindingMismatch)
	}

	// Named parameters are rejected outright.
	_, err = e.Execute(ctx, types.Statement{
		SQL:  "INSERT INTO items (name) VALUES (:name)",
		Args: []interface{}{"x"},
	}, types.FetchNone)
	if lkerrors.GetCode(err) != lkerrors.CodeBindingMismatch {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeBindingMismatch)
	}

	if n := countItems(t, e); n != 0 {
		t.Errorf("row count after rejected statements = %d, want 0", n)
	}
}

func TestExecute_SyntaxError(t *testing.T) {
	e := newTestExecutor(openTestDB(t))
	_, err := e.Execute(context.Background(), types.Statement{SQL: "SELEC 1"}, types.FetchAll)
	if err == nil {
		t.Fatal("Execute() with bad SQL = nil, want error")
	}
	if lkerrors.GetCode(err) != lkerrors.CodeSyntaxError {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeSyntaxError)
	}
	if lkerrors.IsRetryable(err) {
		t.Error("syntax error reported retryable")
	}
}

func TestExecute_DuplicateInsertKeepsCount(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(openTestDB(t))
	createItems(t, e)

	names := []string{"alice", "bob", "carol", "dave", "erin", "frank"}
	for _, name := range names {
		if _, err := e.Execute(ctx, types.Statement{
			SQL:  "INSERT INTO items (name) VALUES (?)",
			Args: []interface{}{name},
		}, types.FetchNone); err != nil {
			t.Fatalf("insert %s failed: %v", name, err)
		}
	}

	_, err := e.Execute(ctx, types.Statement{
		SQL:  "INSERT INTO items (name) VALUES (?)",
		Args: []interface{}{"alice"},
	}, types.FetchNone)
	if err == nil {
		t.Fatal("duplicate insert = nil, want error")
	}
	if lkerrors.GetCode(err) != lkerrors.CodeConstraintViolation {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeConstraintViolation)
	}
	if lkerrors.IsRetryable(err) {
		t.Error("constraint violation reported retryable")
	}

	if n := countItems(t, e); n != int64(len(names)) {
		t.Errorf("row count after failed duplicate = %d, want %d", n, len(names))
	}
}

func TestExecute_BusyIsRetryableAndBounded(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "busy_test.db")

	// DELETE journal mode so an exclusive writer blocks other connections.
	opts := conn.Options{JournalMode: "DELETE", Synchronous: "NORMAL"}
	h1, err := conn.Open(ctx, path, opts)
	if err != nil {
		t.Fatalf("open h1: %v", err)
	}
	defer h1.Close()

	e := newTestExecutor(h1)
	createItems(t, e)

	h2, err := conn.Open(ctx, path, opts)
	if err != nil {
		t.Fatalf("open h2: %v", err)
	}
	defer h2.Close()

	if _, err := h2.DB().ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		t.Fatalf("failed to take exclusive lock: %v", err)
	}
	defer h2.DB().ExecContext(context.Background(), "ROLLBACK")

	start := time.Now()
	_, err = e.Execute(ctx, types.Statement{
		SQL:  "INSERT INTO items (name) VALUES (?)",
		Args: []interface{}{"blocked"},
	}, types.FetchNone)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Execute() against locked database = nil, want error")
	}
	if lkerrors.GetCode(err) != lkerrors.CodeBusy {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeBusy)
	}
	if !lkerrors.IsRetryable(err) {
		t.Error("busy error not reported retryable")
	}
	// Two retries at 5ms and 10ms backoff: the executor must have slept.
	if elapsed < 15*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 15ms of backoff", elapsed)
	}
}

func TestExecuteBatch_TransactionalCommits(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(openTestDB(t))
	createItems(t, e)

	stmts := []types.Statement{
		{SQL: "INSERT INTO items (name) VALUES (?)", Args: []interface{}{"one"}},
		{SQL: "INSERT INTO items (name) VALUES (?)", Args: []interface{}{"two"}},
		{SQL: "UPDATE items SET name = ? WHERE name = ?", Args: []interface{}{"uno", "one"}},
	}
	result, err := e.ExecuteBatch(ctx, stmts, true)
	if err != nil {
		t.Fatalf("ExecuteBatch() error = %v", err)
	}
	if result.FailedIndex != -1 {
		t.Errorf("FailedIndex = %d, want -1", result.FailedIndex)
	}
	if len(result.Results) != 3 {
		t.Errorf("len(Results) = %d, want 3", len(result.Results))
	}
	if !result.Changed {
		t.Error("Changed = false, want true")
	}
	if result.Partial {
		t.Error("Partial = true for successful batch")
	}
	if n := countItems(t, e); n != 2 {
		t.Errorf("row count = %d, want 2", n)
	}
}

func TestExecuteBatch_TransactionalRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(openTestDB(t))
	createItems(t, e)

	stmts := []types.Statement{
		{SQL: "INSERT INTO items (name) VALUES (?)", Args: []interface{}{"keep"}},
		{SQL: "INSERT INTO items (name) VALUES (NULL)"},
		{SQL: "INSERT INTO items (name) VALUES (?)", Args: []interface{}{"never"}},
	}
	result, err := e.ExecuteBatch(ctx, stmts, true)
	if err == nil {
		t.Fatal("ExecuteBatch() with failing statement = nil, want error")
	}
	if lkerrors.GetCode(err) != lkerrors.CodeConstraintViolation {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeConstraintViolation)
	}
	if result.FailedIndex != 1 {
		t.Errorf("FailedIndex = %d, want 1", result.FailedIndex)
	}
	if result.Partial {
		t.Error("Partial = true for transactional batch, want false")
	}
	if len(result.Results) != 0 {
		t.Errorf("len(Results) = %d, want 0 after rollback", len(result.Results))
	}
	if n := countItems(t, e); n != 0 {
		t.Errorf("row count after rollback = %d, want 0", n)
	}
}

func TestExecuteBatch_IndependentReportsPartial(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(openTestDB(t))
	createItems(t, e)

	stmts := []types.Statement{
		{SQL: "INSERT INTO items (name) VALUES (?)", Args: []interface{}{"kept"}},
		{SQL: "INSERT INTO items (name) VALUES (NULL)"},
		{SQL: "INSERT INTO items (name) VALUES (?)", Args: []interface{}{"skipped"}},
	}
	result, err := e.ExecuteBatch(ctx, stmts, false)
	if err == nil {
		t.Fatal("ExecuteBatch() with failing statement = nil, want error")
	}
	if result.FailedIndex != 1 {
		t.Errorf("FailedIndex = %d, want 1", result.FailedIndex)
	}
	if !result.Partial {
		t.Error("Partial = false, want true: first insert stays committed")
	}
	if len(result.Results) != 1 {
		t.Errorf("len(Results) = %d, want 1", len(result.Results))
	}
	if n := countItems(t, e); n != 1 {
		t.Errorf("row count = %d, want 1: first statement committed independently", n)
	}
}

func TestExecuteBatch_BindingValidatedUpFront(t *testing.T) {
	ctx := context.Background()
	e := newTestExecutor(openTestDB(t))
	createItems(t, e)

	stmts := []types.Statement{
		{SQL: "INSERT INTO items (name) VALUES (?)", Args: []interface{}{"fine"}},
		{SQL: "INSERT INTO items (name) VALUES (?, ?)", Args: []interface{}{"short"}},
	}
	// Even in independent mode a binding mistake anywhere fails the batch
	// before any statement runs.
	result, err := e.ExecuteBatch(ctx, stmts, false)
	if err == nil {
		t.Fatal("ExecuteBatch() with binding mismatch = nil, want error")
	}
	if lkerrors.GetCode(err) != lkerrors.CodeBindingMismatch {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeBindingMismatch)
	}
	if result.FailedIndex != 1 {
		t.Errorf("FailedIndex = %d, want 1", result.FailedIndex)
	}
	if result.Partial {
		t.Error("Partial = true, want false: nothing executed")
	}
	if n := countItems(t, e); n != 0 {
		t.Errorf("row count = %d, want 0: nothing may run", n)
	}
}

func TestExecuteBatch_Empty(t *testing.T) {
	e := newTestExecutor(openTestDB(t))
	result, err := e.ExecuteBatch(context.Background(), nil, true)
	if err != nil {
		t.Fatalf("ExecuteBatch(nil) error = %v", err)
	}
	if result.FailedIndex != -1 || result.Changed || len(result.Results) != 0 {
		t.Errorf("empty batch result = %+v, want clean no-op", result)
	}
}

// TestProperty_TransactionalBatchAtomicity checks that a transactional
// batch with a failure anywhere leaves the table exactly as it was.
func TestProperty_TransactionalBatchAtomicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	ctx := context.Background()
	e := newTestExecutor(openTestDB(t))
	createItems(t, e)

	seq := 0
	properties.Property("failed transactional batch leaves no trace", prop.ForAll(
		func(goodCount, failPos int) bool {
			if failPos > goodCount {
				failPos = goodCount
			}
			seq++

			before := countItems(t, e)

			var stmts []types.Statement
			for i := 0; i < goodCount; i++ {
				if i == failPos {
					stmts = append(stmts, types.Statement{
						SQL: "INSERT INTO items (name) VALUES (NULL)",
					})
				}
				stmts = append(stmts, types.Statement{
					SQL:  "INSERT INTO items (name) VALUES (?)",
					Args: []interface{}{fmt.Sprintf("prop_%d_%d", seq, i)},
				})
			}
			if failPos >= goodCount {
				stmts = append(stmts, types.Statement{
					SQL: "INSERT INTO items (name) VALUES (NULL)",
				})
			}

			_, err := e.ExecuteBatch(ctx, stmts, true)
			if err == nil {
				t.Log("batch with failing statement did not fail")
				return false
			}

			after := countItems(t, e)
			if after != before {
				t.Logf("count changed across failed batch: %d -> %d", before, after)
				return false
			}
			return true
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}
