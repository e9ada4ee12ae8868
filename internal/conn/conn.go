// Package conn manages SQLite database handles: opening with a fixed,
// deterministic pragma sequence, classifying open failures, and creating or
// removing database files together with their WAL side files.
package conn

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	lkerrors "github.com/litekeep/litekeep/internal/errors"
)

// Options control the pragma state applied at open. The five contract
// pragmas apply in a fixed order (journal_mode, synchronous, foreign_keys,
// cache_size, busy_timeout); temp_store and mmap_size follow. Empty or zero
// fields are skipped, except foreign_keys which is always set explicitly.
type Options struct {
	// JournalMode is DELETE, TRUNCATE, PERSIST, MEMORY, WAL, or OFF
	JournalMode string

	// Synchronous is OFF, NORMAL, FULL, or EXTRA
	Synchronous string

	// ForeignKeys enables foreign key enforcement
	ForeignKeys bool

	// CacheSize is the page cache size in pages; negative values are KiB
	CacheSize int

	// BusyTimeout bounds how long statements wait on a locked database
	BusyTimeout time.Duration

	// TempStore is DEFAULT, FILE, or MEMORY
	TempStore string

	// MmapSize is the memory-map window in bytes, 0 to disable
	MmapSize int64
}

// DefaultOptions returns the library defaults: WAL journaling, NORMAL
// durability, enforced foreign keys, in-memory temp storage.
func DefaultOptions() Options {
	return Options{
		JournalMode: "WAL",
		Synchronous: "NORMAL",
		ForeignKeys: true,
		CacheSize:   -2000,
		BusyTimeout: 5 * time.Second,
		TempStore:   "MEMORY",
		MmapSize:    256 * 1024 * 1024,
	}
}

var (
	journalModes = map[string]bool{
		"": true, "DELETE": true, "TRUNCATE": true, "PERSIST": true,
		"MEMORY": true, "WAL": true, "OFF": true,
	}
	synchronousLevels = map[string]bool{
		"": true, "OFF": true, "NORMAL": true, "FULL": true, "EXTRA": true,
	}
	tempStores = map[string]bool{
		"": true, "DEFAULT": true, "FILE": true, "MEMORY": true,
	}
)

func (o Options) validate() error {
	if !journalModes[strings.ToUpper(o.JournalMode)] {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidOptions,
			fmt.Sprintf("invalid journal_mode %q", o.JournalMode))
	}
	if !synchronousLevels[strings.ToUpper(o.Synchronous)] {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidOptions,
			fmt.Sprintf("invalid synchronous %q", o.Synchronous))
	}
	if !tempStores[strings.ToUpper(o.TempStore)] {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidOptions,
			fmt.Sprintf("invalid temp_store %q", o.TempStore))
	}
	if o.BusyTimeout < 0 {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidOptions, "busy_timeout must not be negative")
	}
	return nil
}

// Handle owns one open database connection plus the pragma state applied at
// open time. A handle is bound to the operation that created it: it must be
// closed on every exit path and never shared across concurrent operations.
type Handle struct {
	db       *sql.DB
	path     string
	opts     Options
	readOnly bool
	closed   bool
}

// DB exposes the underlying connection for statement execution.
func (h *Handle) DB() *sql.DB { return h.db }

// Path returns the database file path.
func (h *Handle) Path() string { return h.path }

// Opts returns the pragma options the handle was opened with.
func (h *Handle) Opts() Options { return h.opts }

// ReadOnly reports whether the handle was opened without write access.
func (h *Handle) ReadOnly() bool { return h.readOnly }

// Close releases the handle. Safe to call more than once.
func (h *Handle) Close() error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	return h.db.Close()
}

// Open opens the database at path and applies the pragma sequence. A
// missing file is created by the engine, so path validation only requires
// the parent directory to exist. The returned handle must be closed by the
// caller on every path.
func Open(ctx context.Context, path string, opts Options) (*Handle, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := validatePath(path); err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("open %s", path), err)
	}
	// Pragmas are per connection: pin the pool to a single connection so
	// the state applied here holds for the handle's lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ok := false
	defer func() {
		if !ok {
			db.Close()
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return nil, classifyOpen(path, err)
	}
	// Force a header read so a corrupt or locked file fails here, before
	// any pragma is applied.
	if _, err := runPragma(ctx, db, "PRAGMA schema_version"); err != nil {
		return nil, classifyOpen(path, err)
	}
	if err := applyPragmas(ctx, db, path, opts); err != nil {
		return nil, err
	}

	ok = true
	return &Handle{db: db, path: path, opts: opts}, nil
}

// OpenReadOnly opens an existing database without write access. Only
// busy_timeout is applied: the remaining pragmas either require writes or
// configure state a read-only inspection does not need.
func OpenReadOnly(ctx context.Context, path string, busyTimeout time.Duration) (*Handle, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, lkerrors.NewOpenError(lkerrors.CodePathInvalid,
				fmt.Sprintf("database %s does not exist", path), err)
		}
		if os.IsPermission(err) {
			return nil, lkerrors.NewOpenError(lkerrors.CodePermissionDenied,
				fmt.Sprintf("cannot access %s", path), err)
		}
		return nil, lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("cannot stat %s", path), err)
	}

	db, err := sql.Open(driverName, "file:"+path+"?mode=ro")
	if err != nil {
		return nil, lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("open %s", path), err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ok := false
	defer func() {
		if !ok {
			db.Close()
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return nil, classifyOpen(path, err)
	}
	if _, err := runPragma(ctx, db, "PRAGMA schema_version"); err != nil {
		return nil, classifyOpen(path, err)
	}
	if busyTimeout > 0 {
		stmt := fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds())
		if _, err := runPragma(ctx, db, stmt); err != nil {
			return nil, classifyOpen(path, err)
		}
	}

	ok = true
	return &Handle{db: db, path: path, opts: Options{BusyTimeout: busyTimeout}, readOnly: true}, nil
}

// Create ensures a database file exists at path. A fresh database is opened
// with the given pragmas and stamped with user_version 1. Returns true when
// a new file was created, false when one already existed. A half-created
// file is removed on failure.
func Create(ctx context.Context, path string, opts Options) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("cannot stat %s", path), err)
	}

	h, err := Open(ctx, path, opts)
	if err != nil {
		return false, err
	}
	if _, err := h.db.ExecContext(ctx, "PRAGMA user_version = 1"); err != nil {
		h.Close()
		os.Remove(path)
		return false, lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("initialize %s", path), err)
	}
	if err := h.Close(); err != nil {
		os.Remove(path)
		return false, lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("close %s", path), err)
	}

	log.WithField("path", path).Info("database created")
	return true, nil
}

// Remove deletes the database file plus any -wal/-shm side files. Returns
// true when a file was removed. The caller guarantees no handle is open on
// the file elsewhere; removing a live database is a precondition violation.
func Remove(path string) (bool, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("cannot stat %s", path), err)
	}

	if err := os.Remove(path); err != nil {
		code := lkerrors.CodeOpenFailed
		if os.IsPermission(err) {
			code = lkerrors.CodePermissionDenied
		}
		return false, lkerrors.NewOpenError(code, fmt.Sprintf("remove %s", path), err)
	}
	for _, side := range []string{path + "-wal", path + "-shm"} {
		if err := os.Remove(side); err != nil && !os.IsNotExist(err) {
			log.WithFields(log.Fields{"path": side, "error": err}).Warn("failed to remove side file")
		}
	}

	log.WithField("path", path).Info("database removed")
	return true, nil
}

// Checkpoint forces a WAL checkpoint so the main file holds every committed
// transaction. Used before file-level copies of the database.
func (h *Handle) Checkpoint(ctx context.Context) error {
	if _, err := runPragma(ctx, h.db, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("checkpoint %s", h.path), err)
	}
	return nil
}

// UserVersion reads the user_version pragma.
func (h *Handle) UserVersion(ctx context.Context) (int, error) {
	val, err := runPragma(ctx, h.db, "PRAGMA user_version")
	if err != nil {
		return 0, lkerrors.NewOpenError(lkerrors.CodeOpenFailed, "read user_version", err)
	}
	var v int
	fmt.Sscanf(val, "%d", &v)
	return v, nil
}

type pragmaDirective struct {
	name   string
	stmt   string
	expect string
}

// pragmaSequence renders the directives in the contract order. The expect
// field, when set, is compared against the engine's readback.
func pragmaSequence(o Options) []pragmaDirective {
	var seq []pragmaDirective
	if o.JournalMode != "" {
		mode := strings.ToUpper(o.JournalMode)
		seq = append(seq, pragmaDirective{"journal_mode", "PRAGMA journal_mode = " + mode, mode})
	}
	if o.Synchronous != "" {
		seq = append(seq, pragmaDirective{"synchronous", "PRAGMA synchronous = " + strings.ToUpper(o.Synchronous), ""})
	}
	seq = append(seq, pragmaDirective{"foreign_keys", "PRAGMA foreign_keys = " + onOff(o.ForeignKeys), ""})
	if o.CacheSize != 0 {
		seq = append(seq, pragmaDirective{"cache_size", fmt.Sprintf("PRAGMA cache_size = %d", o.CacheSize), ""})
	}
	if o.BusyTimeout > 0 {
		seq = append(seq, pragmaDirective{"busy_timeout", fmt.Sprintf("PRAGMA busy_timeout = %d", o.BusyTimeout.Milliseconds()), ""})
	}
	if o.TempStore != "" {
		seq = append(seq, pragmaDirective{"temp_store", "PRAGMA temp_store = " + strings.ToUpper(o.TempStore), ""})
	}
	if o.MmapSize > 0 {
		seq = append(seq, pragmaDirective{"mmap_size", fmt.Sprintf("PRAGMA mmap_size = %d", o.MmapSize), ""})
	}
	return seq
}

func applyPragmas(ctx context.Context, db *sql.DB, path string, opts Options) error {
	for _, p := range pragmaSequence(opts) {
		result, err := runPragma(ctx, db, p.stmt)
		if err != nil {
			code := lkerrors.ClassifyOpenMessage(err.Error())
			return lkerrors.NewOpenError(code, fmt.Sprintf("apply %s on %s", p.name, path), err)
		}
		if p.expect != "" && result != "" && !strings.EqualFold(result, p.expect) {
			log.WithFields(log.Fields{
				"path":      path,
				"pragma":    p.name,
				"requested": p.expect,
				"actual":    result,
			}).Warn("pragma not honored by engine")
		}
	}

	// Read back foreign_keys; the engine accepts the pragma in builds that
	// do not enforce it, so the setting is verified rather than trusted.
	val, err := runPragma(ctx, db, "PRAGMA foreign_keys")
	if err != nil {
		return classifyOpen(path, err)
	}
	want := "0"
	if opts.ForeignKeys {
		want = "1"
	}
	if val != want {
		return lkerrors.NewOpenError(lkerrors.CodeOpenFailed,
			fmt.Sprintf("foreign_keys pragma not applied on %s (got %q)", path, val), nil)
	}
	return nil
}

// runPragma executes a pragma through the query path, because many pragmas
// return a result row, and returns the first column of the first row.
func runPragma(ctx context.Context, db *sql.DB, stmt string) (string, error) {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	var result string
	if rows.Next() {
		if err := rows.Scan(&result); err != nil {
			// Multi-column pragma output; the value is not needed.
			result = ""
		}
	}
	return result, rows.Err()
}

func classifyOpen(path string, err error) error {
	code := lkerrors.ClassifyOpenMessage(err.Error())
	return lkerrors.NewOpenError(code, fmt.Sprintf("open %s", path), err)
}

func validatePath(path string) error {
	if path == "" {
		return lkerrors.NewOpenError(lkerrors.CodePathInvalid, "database path is empty", nil)
	}
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if info.IsDir() {
			return lkerrors.NewOpenError(lkerrors.CodePathInvalid, fmt.Sprintf("%s is a directory", path), nil)
		}
	case os.IsNotExist(err):
		dir := filepath.Dir(path)
		di, derr := os.Stat(dir)
		if derr != nil || !di.IsDir() {
			return lkerrors.NewOpenError(lkerrors.CodePathInvalid,
				fmt.Sprintf("parent directory %s does not exist", dir), derr)
		}
	case os.IsPermission(err):
		return lkerrors.NewOpenError(lkerrors.CodePermissionDenied, fmt.Sprintf("cannot access %s", path), err)
	default:
		return lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("cannot stat %s", path), err)
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
