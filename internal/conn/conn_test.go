package conn

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	lkerrors "github.com/litekeep/litekeep/internal/errors"
)

func pragmaValue(t *testing.T, h *Handle, name string) string {
	t.Helper()
	var v string
	if err := h.DB().QueryRowContext(context.Background(), "PRAGMA "+name).Scan(&v); err != nil {
		t.Fatalf("read pragma %s: %v", name, err)
	}
	return v
}

func TestOpen_AppliesPragmas(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")

	h, err := Open(ctx, path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	if got := pragmaValue(t, h, "journal_mode"); got != "wal" {
		t.Errorf("journal_mode = %q, want wal", got)
	}
	if got := pragmaValue(t, h, "foreign_keys"); got != "1" {
		t.Errorf("foreign_keys = %q, want 1", got)
	}
	if got := pragmaValue(t, h, "busy_timeout"); got != "5000" {
		t.Errorf("busy_timeout = %q, want 5000", got)
	}
	if got := pragmaValue(t, h, "cache_size"); got != "-2000" {
		t.Errorf("cache_size = %q, want -2000", got)
	}
	// MEMORY temp_store reads back as 2.
	if got := pragmaValue(t, h, "temp_store"); got != "2" {
		t.Errorf("temp_store = %q, want 2", got)
	}
}

func TestOpen_ZeroOptions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "zero.db")

	h, err := Open(ctx, path, Options{})
	if err != nil {
		t.Fatalf("Open with zero options failed: %v", err)
	}
	defer h.Close()

	// foreign_keys is always applied, even from the zero value.
	if got := pragmaValue(t, h, "foreign_keys"); got != "0" {
		t.Errorf("foreign_keys = %q, want 0", got)
	}
}

func TestOpen_InvalidOptions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "x.db")

	_, err := Open(ctx, path, Options{JournalMode: "ROLLBACK"})
	if err == nil {
		t.Fatal("expected error for invalid journal mode")
	}
	if lkerrors.GetCode(err) != lkerrors.CodeInvalidOptions {
		t.Errorf("code = %q, want INVALID_OPTIONS", lkerrors.GetCode(err))
	}
}

func TestOpen_PathInvalid(t *testing.T) {
	ctx := context.Background()

	// Missing parent directory.
	_, err := Open(ctx, filepath.Join(t.TempDir(), "no", "such", "dir", "x.db"), DefaultOptions())
	if lkerrors.GetCode(err) != lkerrors.CodePathInvalid {
		t.Errorf("missing parent: code = %q, want PATH_INVALID", lkerrors.GetCode(err))
	}

	// Directory where a file is expected.
	dir := t.TempDir()
	_, err = Open(ctx, dir, DefaultOptions())
	if lkerrors.GetCode(err) != lkerrors.CodePathInvalid {
		t.Errorf("directory path: code = %q, want PATH_INVALID", lkerrors.GetCode(err))
	}

	// Empty path.
	_, err = Open(ctx, "", DefaultOptions())
	if lkerrors.GetCode(err) != lkerrors.CodePathInvalid {
		t.Errorf("empty path: code = %q, want PATH_INVALID", lkerrors.GetCode(err))
	}
}

func TestOpen_CorruptHeader(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "corrupt.db")

	garbage := make([]byte, 1024)
	for i := range garbage {
		garbage[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, garbage, 0644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	_, err := Open(ctx, path, DefaultOptions())
	if err == nil {
		t.Fatal("expected error for corrupt database")
	}
	if lkerrors.GetCode(err) != lkerrors.CodeCorrupt {
		t.Errorf("code = %q, want CORRUPT (err: %v)", lkerrors.GetCode(err), err)
	}
}

func TestOpen_LockedDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "locked.db")

	// DELETE-mode exclusive writer blocks any other handle's header read.
	opts := Options{JournalMode: "DELETE", BusyTimeout: 5 * time.Second}
	if _, err := Create(ctx, path, opts); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	h1, err := Open(ctx, path, opts)
	if err != nil {
		t.Fatalf("first open failed: %v", err)
	}
	defer h1.Close()

	if _, err := h1.DB().ExecContext(ctx, "BEGIN EXCLUSIVE"); err != nil {
		t.Fatalf("begin exclusive: %v", err)
	}
	defer h1.DB().ExecContext(ctx, "ROLLBACK")

	_, err = Open(ctx, path, Options{JournalMode: "DELETE"})
	if err == nil {
		t.Fatal("expected error opening locked database")
	}
	if lkerrors.GetCode(err) != lkerrors.CodeLocked {
		t.Errorf("code = %q, want LOCKED (err: %v)", lkerrors.GetCode(err), err)
	}
	if !lkerrors.IsRetryable(err) {
		t.Error("locked open should be retryable")
	}
}

func TestCreate_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fresh.db")

	created, err := Create(ctx, path, DefaultOptions())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !created {
		t.Error("first Create should report created=true")
	}

	created, err = Create(ctx, path, DefaultOptions())
	if err != nil {
		t.Fatalf("second Create failed: %v", err)
	}
	if created {
		t.Error("second Create should report created=false")
	}

	h, err := Open(ctx, path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open after Create failed: %v", err)
	}
	defer h.Close()

	v, err := h.UserVersion(ctx)
	if err != nil {
		t.Fatalf("UserVersion failed: %v", err)
	}
	if v != 1 {
		t.Errorf("user_version = %d, want 1", v)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.db")

	if _, err := Create(ctx, path, DefaultOptions()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	// Fabricate side files; the engine usually cleans them up on close.
	for _, side := range []string{path + "-wal", path + "-shm"} {
		if err := os.WriteFile(side, []byte("x"), 0644); err != nil {
			t.Fatalf("write side file: %v", err)
		}
	}

	removed, err := Remove(path)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if !removed {
		t.Error("Remove should report removed=true")
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should be gone", p)
		}
	}

	removed, err = Remove(path)
	if err != nil || removed {
		t.Errorf("second Remove = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ro.db")

	if _, err := Create(ctx, path, DefaultOptions()); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	h, err := OpenReadOnly(ctx, path, time.Second)
	if err != nil {
		t.Fatalf("OpenReadOnly failed: %v", err)
	}
	defer h.Close()

	if !h.ReadOnly() {
		t.Error("handle should report read-only")
	}
	if _, err := h.DB().ExecContext(ctx, "CREATE TABLE t (a INTEGER)"); err == nil {
		t.Error("write through read-only handle should fail")
	}

	// Missing file is an open error, not a silent create.
	_, err = OpenReadOnly(ctx, filepath.Join(t.TempDir(), "absent.db"), 0)
	if lkerrors.GetCode(err) != lkerrors.CodePathInvalid {
		t.Errorf("code = %q, want PATH_INVALID", lkerrors.GetCode(err))
	}
}

func TestCheckpoint(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "wal.db")

	h, err := Open(ctx, path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer h.Close()

	if _, err := h.DB().ExecContext(ctx, "CREATE TABLE t (a INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	if _, err := h.DB().ExecContext(ctx, "INSERT INTO t VALUES (1), (2), (3)"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := h.Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}
}

func TestHandle_CloseIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "close.db")

	h, err := Open(ctx, path, DefaultOptions())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestDriver(t *testing.T) {
	info := Driver()
	if info.Name == "" || info.Type == "" || info.Package == "" {
		t.Errorf("incomplete driver info: %+v", info)
	}
}

func TestOpen_ErrorTypes(t *testing.T) {
	_, err := Open(context.Background(), "", DefaultOptions())
	var le *lkerrors.LitekeepError
	if !errors.As(err, &le) {
		t.Fatal("open errors should be structured")
	}
	if le.Category != lkerrors.ErrCategoryConn {
		t.Errorf("category = %q, want CONN", le.Category)
	}
}
