// Package backup implements backups and restores of SQLite databases:
// offline file copies, online VACUUM INTO snapshots, optional artifact
// compression, post-backup verification, and replication to object
// storage.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/litekeep/litekeep/internal/codec"
	"github.com/litekeep/litekeep/internal/conn"
	lkerrors "github.com/litekeep/litekeep/internal/errors"
	"github.com/litekeep/litekeep/internal/integrity"
	"github.com/litekeep/litekeep/internal/schema"
	"github.com/litekeep/litekeep/internal/storage"
	"github.com/litekeep/litekeep/pkg/types"
)

const (
	// safetyTimestampFormat names pre-restore snapshots of the destination.
	safetyTimestampFormat = "20060102_150405"

	tempPrefix = ".litekeep-tmp-"
)

// Options configure an Engine.
type Options struct {
	// Codec selects artifact compression. None writes plain copies.
	Codec codec.Codec

	// Overwrite allows replacing an existing destination artifact, remote
	// object, or restore target.
	Overwrite bool

	// Safety snapshots an existing restore destination to a timestamped
	// sibling before it is replaced.
	Safety bool

	// Verify runs an integrity check on every source before backing it up
	// and proves every finished artifact holds a consistent database.
	Verify bool

	// BusyTimeout bounds lock waits when the engine opens databases.
	BusyTimeout time.Duration

	// Store, when set, replicates finished artifacts to object storage.
	Store storage.ObjectStorage

	// StorePrefix prefixes replicated object keys.
	StorePrefix string
}

// DefaultOptions returns the engine defaults: no compression, no
// overwriting, verification on.
func DefaultOptions() Options {
	return Options{
		Codec:       codec.None,
		Verify:      true,
		BusyTimeout: 5 * time.Second,
	}
}

// Engine runs backup and restore operations with one fixed set of options.
type Engine struct {
	opts Options
}

// NewEngine creates an engine. Zero-valued options fall back to defaults.
func NewEngine(opts Options) *Engine {
	if opts.Codec == "" {
		opts.Codec = codec.None
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultOptions().BusyTimeout
	}
	return &Engine{opts: opts}
}

// Backup copies the database file at sourcePath into an artifact at
// destPath. The source must not be open elsewhere for writing: a pending
// WAL is checkpointed first so the file copy carries every committed
// transaction. The artifact is streamed through the configured codec into
// a scratch file and moved into place with a rename.
func (e *Engine) Backup(ctx context.Context, sourcePath, destPath string) (*types.BackupRecord, error) {
	start := time.Now()

	srcInfo, err := os.Stat(sourcePath)
	if err != nil {
		return nil, lkerrors.NewBackupError(lkerrors.CodeSourceMissing,
			fmt.Sprintf("source database %s does not exist", sourcePath), err)
	}
	if srcInfo.IsDir() {
		return nil, lkerrors.NewBackupError(lkerrors.CodeSourceMissing,
			fmt.Sprintf("source %s is a directory", sourcePath), nil)
	}
	if destExists(destPath) && !e.opts.Overwrite {
		return nil, lkerrors.NewBackupError(lkerrors.CodeDestExists,
			fmt.Sprintf("destination %s already exists (use overwrite)", destPath), nil)
	}

	if err := e.checkpointIfWAL(ctx, sourcePath); err != nil {
		return nil, err
	}
	// Checkpointing may have grown the main file.
	if info, err := os.Stat(sourcePath); err == nil {
		srcInfo = info
	}

	if e.opts.Verify {
		report, err := integrity.CheckPath(ctx, sourcePath, e.opts.BusyTimeout)
		if err != nil {
			return nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
				fmt.Sprintf("source database %s is not readable", sourcePath), err)
		}
		if !report.Passed {
			return nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
				fmt.Sprintf("source database %s failed integrity check", sourcePath), nil).
				WithDetails(map[string]interface{}{"diagnostics": report.Diagnostics})
		}
	}

	sourceDigest, destSize, err := e.writeArtifact(sourcePath, destPath)
	if err != nil {
		return nil, err
	}

	record := &types.BackupRecord{
		ID:                   uuid.New().String(),
		SourcePath:           sourcePath,
		DestinationPath:      destPath,
		Method:               types.BackupMethodFileCopy,
		Compressed:           e.opts.Codec != codec.None,
		SourceSizeBytes:      srcInfo.Size(),
		DestinationSizeBytes: destSize,
		SourceDigest:         sourceDigest,
	}
	if record.Compressed {
		record.Codec = string(e.opts.Codec)
	}

	if e.opts.Verify {
		destDigest, counts, err := e.verifyArtifact(ctx, destPath, sourceDigest, nil)
		if err != nil {
			// A failed artifact is useless; do not leave it behind.
			if rmErr := os.Remove(destPath); rmErr != nil {
				log.WithFields(log.Fields{"path": destPath, "error": rmErr}).
					Warn("failed to remove unverifiable artifact")
			}
			return nil, err
		}
		record.Verified = true
		record.DestinationDigest = destDigest
		record.RowCounts = counts
	}

	if e.opts.Store != nil {
		key, err := e.replicate(ctx, destPath)
		if err != nil {
			return nil, err
		}
		record.Replicated = key
	}

	record.Elapsed = time.Since(start)
	log.WithFields(log.Fields{
		"source":   sourcePath,
		"artifact": destPath,
		"method":   record.Method,
		"codec":    record.Codec,
		"bytes":    record.DestinationSizeBytes,
		"verified": record.Verified,
		"elapsed":  record.Elapsed,
	}).Info("backup complete")
	return record, nil
}

// BackupLive snapshots an open database through its own handle. VACUUM
// INTO serializes a transactionally consistent copy while readers and
// writers on other connections keep running. Verification compares
// per-table row counts instead of file digests: the vacuumed copy is
// logically identical to the source but its pages are rewritten.
func (e *Engine) BackupLive(ctx context.Context, h *conn.Handle, destPath string) (*types.BackupRecord, error) {
	start := time.Now()
	sourcePath := h.Path()

	if destExists(destPath) && !e.opts.Overwrite {
		return nil, lkerrors.NewBackupError(lkerrors.CodeDestExists,
			fmt.Sprintf("destination %s already exists (use overwrite)", destPath), nil)
	}

	var sourceCounts map[string]int64
	if e.opts.Verify {
		report, err := integrity.Check(ctx, h)
		if err != nil {
			return nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
				fmt.Sprintf("source database %s is not readable", sourcePath), err)
		}
		if !report.Passed {
			return nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
				fmt.Sprintf("source database %s failed integrity check", sourcePath), nil).
				WithDetails(map[string]interface{}{"diagnostics": report.Diagnostics})
		}
		if sourceCounts, err = schema.RowCounts(ctx, h); err != nil {
			return nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
				fmt.Sprintf("cannot count rows in %s", sourcePath), err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, lkerrors.NewBackupError(lkerrors.CodeCopyFailed,
			fmt.Sprintf("cannot create destination directory for %s", destPath), err)
	}

	// VACUUM INTO refuses to write over an existing file, so the snapshot
	// lands under a fresh scratch name beside the destination.
	snapPath := tempName(filepath.Dir(destPath))
	if _, err := h.DB().ExecContext(ctx, "VACUUM INTO ?", snapPath); err != nil {
		os.Remove(snapPath)
		return nil, lkerrors.NewBackupError(lkerrors.CodeCopyFailed,
			fmt.Sprintf("online snapshot of %s", sourcePath), err)
	}

	var snapDigest string
	var destSize int64
	if e.opts.Codec == codec.None {
		if e.opts.Verify {
			d, err := fileDigest(snapPath)
			if err != nil {
				os.Remove(snapPath)
				return nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
					fmt.Sprintf("cannot digest snapshot of %s", sourcePath), err)
			}
			snapDigest = d
		}
		if err := os.Rename(snapPath, destPath); err != nil {
			os.Remove(snapPath)
			return nil, lkerrors.NewBackupError(lkerrors.CodeCopyFailed,
				fmt.Sprintf("move snapshot into %s", destPath), err)
		}
		if info, err := os.Stat(destPath); err == nil {
			destSize = info.Size()
		}
	} else {
		var err error
		snapDigest, destSize, err = e.writeArtifact(snapPath, destPath)
		os.Remove(snapPath)
		if err != nil {
			return nil, err
		}
	}

	record := &types.BackupRecord{
		ID:                   uuid.New().String(),
		SourcePath:           sourcePath,
		DestinationPath:      destPath,
		Method:               types.BackupMethodOnline,
		Compressed:           e.opts.Codec != codec.None,
		DestinationSizeBytes: destSize,
	}
	if record.Compressed {
		record.Codec = string(e.opts.Codec)
	}
	if info, err := os.Stat(sourcePath); err == nil {
		record.SourceSizeBytes = info.Size()
	}

	if e.opts.Verify {
		destDigest, counts, err := e.verifyArtifact(ctx, destPath, snapDigest, sourceCounts)
		if err != nil {
			if rmErr := os.Remove(destPath); rmErr != nil {
				log.WithFields(log.Fields{"path": destPath, "error": rmErr}).
					Warn("failed to remove unverifiable artifact")
			}
			return nil, err
		}
		record.Verified = true
		record.DestinationDigest = destDigest
		record.RowCounts = counts
	}

	if e.opts.Store != nil {
		key, err := e.replicate(ctx, destPath)
		if err != nil {
			return nil, err
		}
		record.Replicated = key
	}

	record.Elapsed = time.Since(start)
	log.WithFields(log.Fields{
		"source":   sourcePath,
		"artifact": destPath,
		"method":   record.Method,
		"codec":    record.Codec,
		"bytes":    record.DestinationSizeBytes,
		"verified": record.Verified,
		"elapsed":  record.Elapsed,
	}).Info("backup complete")
	return record, nil
}

// checkpointIfWAL folds a pending WAL sidecar into the main database file.
// A file copy that ignores the WAL silently drops recent commits.
func (e *Engine) checkpointIfWAL(ctx context.Context, sourcePath string) error {
	info, err := os.Stat(sourcePath + "-wal")
	if err != nil || info.Size() == 0 {
		return nil
	}

	h, err := conn.Open(ctx, sourcePath, conn.Options{BusyTimeout: e.opts.BusyTimeout})
	if err != nil {
		return lkerrors.NewBackupError(lkerrors.CodeCopyFailed,
			fmt.Sprintf("cannot open %s to checkpoint its WAL", sourcePath), err)
	}
	defer h.Close()

	if err := h.Checkpoint(ctx); err != nil {
		return lkerrors.NewBackupError(lkerrors.CodeCopyFailed,
			fmt.Sprintf("checkpoint WAL of %s", sourcePath), err)
	}
	return nil
}

// writeArtifact streams sourcePath through the configured codec into a
// scratch file beside destPath, then renames it into place. Returns the
// BLAKE3 digest of the uncompressed content and the artifact size.
func (e *Engine) writeArtifact(sourcePath, destPath string) (string, int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", 0, lkerrors.NewBackupError(lkerrors.CodeCopyFailed,
			fmt.Sprintf("cannot create destination directory for %s", destPath), err)
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return "", 0, lkerrors.NewBackupError(lkerrors.CodeCopyFailed,
			fmt.Sprintf("cannot read source %s", sourcePath), err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(destPath), tempPrefix)
	if err != nil {
		return "", 0, lkerrors.NewBackupError(lkerrors.CodeCopyFailed,
			fmt.Sprintf("cannot create scratch file for %s", destPath), err)
	}
	tmpPath := tmp.Name()

	fail := func(code, msg string, cause error) (string, int64, error) {
		tmp.Close()
		os.Remove(tmpPath)
		return "", 0, lkerrors.NewBackupError(code, msg, cause)
	}

	cw, err := codec.NewWriter(tmp, e.opts.Codec)
	if err != nil {
		return fail(lkerrors.CodeCompressionFailed,
			fmt.Sprintf("cannot initialize %s writer", e.opts.Codec), err)
	}

	copyCode := lkerrors.CodeCopyFailed
	if e.opts.Codec != codec.None {
		copyCode = lkerrors.CodeCompressionFailed
	}

	hasher := newDigestWriter()
	if _, err := io.Copy(cw, io.TeeReader(src, hasher)); err != nil {
		cw.Close()
		return fail(copyCode, fmt.Sprintf("write artifact for %s", sourcePath), err)
	}
	if err := cw.Close(); err != nil {
		return fail(copyCode, fmt.Sprintf("finalize artifact for %s", sourcePath), err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(lkerrors.CodeCopyFailed, fmt.Sprintf("sync artifact for %s", sourcePath), err)
	}
	info, err := tmp.Stat()
	if err != nil {
		return fail(lkerrors.CodeCopyFailed, fmt.Sprintf("stat artifact for %s", sourcePath), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", 0, lkerrors.NewBackupError(lkerrors.CodeCopyFailed,
			fmt.Sprintf("close artifact for %s", sourcePath), err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return "", 0, lkerrors.NewBackupError(lkerrors.CodeCopyFailed,
			fmt.Sprintf("move artifact into %s", destPath), err)
	}

	return hasher.Sum(), info.Size(), nil
}

// verifyArtifact proves an artifact holds a readable, consistent database.
// Compressed artifacts are unpacked to a scratch file first. When
// wantDigest is set the database content must hash to it; when wantCounts
// is set every table must hold exactly that many rows. Returns the content
// digest and the per-table row counts.
func (e *Engine) verifyArtifact(ctx context.Context, artifactPath, wantDigest string, wantCounts map[string]int64) (string, map[string]int64, error) {
	dbPath := artifactPath
	if e.opts.Codec != codec.None {
		tmpPath, err := unpackArtifact(artifactPath, filepath.Dir(artifactPath), e.opts.Codec)
		if err != nil {
			return "", nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
				fmt.Sprintf("cannot unpack artifact %s", artifactPath), err)
		}
		defer os.Remove(tmpPath)
		dbPath = tmpPath
	}

	digest, err := fileDigest(dbPath)
	if err != nil {
		return "", nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
			fmt.Sprintf("cannot digest artifact %s", artifactPath), err)
	}
	if wantDigest != "" && digest != wantDigest {
		return "", nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
			fmt.Sprintf("artifact %s does not match source content", artifactPath), nil).
			WithDetails(map[string]interface{}{"want": wantDigest, "got": digest})
	}

	report, err := integrity.CheckPath(ctx, dbPath, e.opts.BusyTimeout)
	if err != nil {
		return "", nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
			fmt.Sprintf("artifact %s does not hold a readable database", artifactPath), err)
	}
	if !report.Passed {
		return "", nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
			fmt.Sprintf("artifact %s failed integrity check", artifactPath), nil).
			WithDetails(map[string]interface{}{"diagnostics": report.Diagnostics})
	}

	counts, err := e.artifactRowCounts(ctx, dbPath)
	if err != nil {
		return "", nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
			fmt.Sprintf("cannot count rows in artifact %s", artifactPath), err)
	}
	if wantCounts != nil {
		if err := compareCounts(wantCounts, counts); err != nil {
			return "", nil, lkerrors.NewBackupError(lkerrors.CodeVerificationFailed,
				fmt.Sprintf("artifact %s does not match source tables", artifactPath), err)
		}
	}

	return digest, counts, nil
}

func (e *Engine) artifactRowCounts(ctx context.Context, dbPath string) (map[string]int64, error) {
	h, err := conn.OpenReadOnly(ctx, dbPath, e.opts.BusyTimeout)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return schema.RowCounts(ctx, h)
}

func compareCounts(want, got map[string]int64) error {
	for table, n := range want {
		m, ok := got[table]
		if !ok {
			return fmt.Errorf("table %s missing from artifact", table)
		}
		if m != n {
			return fmt.Errorf("table %s holds %d rows, source holds %d", table, m, n)
		}
	}
	for table := range got {
		if _, ok := want[table]; !ok {
			return fmt.Errorf("artifact holds unexpected table %s", table)
		}
	}
	return nil
}

// replicate pushes the artifact to object storage under the configured
// prefix. Without overwrite, an occupied key fails the same way an
// occupied local destination does.
func (e *Engine) replicate(ctx context.Context, artifactPath string) (string, error) {
	key := filepath.Base(artifactPath)
	if e.opts.StorePrefix != "" {
		key = path.Join(e.opts.StorePrefix, key)
	}

	if !e.opts.Overwrite {
		exists, err := e.opts.Store.Exists(ctx, key)
		if err != nil {
			return "", lkerrors.NewStorageError(lkerrors.CodeUploadFailed,
				fmt.Sprintf("cannot probe remote object %s", key), err)
		}
		if exists {
			return "", lkerrors.NewBackupError(lkerrors.CodeDestExists,
				fmt.Sprintf("remote object %s already exists (use overwrite)", key), nil)
		}
	}

	etag, err := e.opts.Store.Upload(ctx, artifactPath, key)
	if err != nil {
		return "", lkerrors.NewStorageError(lkerrors.CodeUploadFailed,
			fmt.Sprintf("replicate artifact to %s", key), err)
	}

	log.WithFields(log.Fields{"object": key, "etag": etag}).Info("artifact replicated")
	return key, nil
}

// unpackArtifact writes the artifact's database content to a scratch file
// in dir. The caller removes the returned path.
func unpackArtifact(artifactPath, dir string, c codec.Codec) (string, error) {
	src, err := os.Open(artifactPath)
	if err != nil {
		return "", err
	}
	defer src.Close()

	cr, err := codec.NewReader(src, c)
	if err != nil {
		return "", err
	}
	defer cr.Close()

	tmp, err := os.CreateTemp(dir, tempPrefix)
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, cr); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", err
	}
	return tmpPath, nil
}

func destExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// tempName returns a unique path for a scratch file that must not exist
// yet. VACUUM INTO refuses targets that already exist, so CreateTemp
// cannot be used there.
func tempName(dir string) string {
	return filepath.Join(dir, fmt.Sprintf("%svacuum-%d-%d", tempPrefix, os.Getpid(), time.Now().UnixNano()))
}
