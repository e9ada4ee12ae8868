package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/litekeep/litekeep/internal/codec"
	lkerrors "github.com/litekeep/litekeep/internal/errors"
	"github.com/litekeep/litekeep/internal/integrity"
	"github.com/litekeep/litekeep/pkg/types"
)

// Restore replaces destPath with the database held in the artifact at
// artifactPath. Compression is detected from the artifact's leading bytes,
// never from its name. The incoming database is unpacked and validated in
// a scratch file beside the destination, an existing destination is
// snapshotted when Safety is set, and the validated file moves into place
// with a rename. A failed restore never leaves a partially written
// destination.
func (e *Engine) Restore(ctx context.Context, artifactPath, destPath string) (*types.RestoreRecord, error) {
	start := time.Now()

	if _, err := os.Stat(artifactPath); err != nil {
		return nil, lkerrors.NewRestoreError(lkerrors.CodeSourceMissing,
			fmt.Sprintf("backup artifact %s does not exist", artifactPath), err)
	}

	hadDest := destExists(destPath)
	if hadDest && !e.opts.Overwrite {
		return nil, lkerrors.NewRestoreError(lkerrors.CodeDestExists,
			fmt.Sprintf("destination %s already exists (use overwrite)", destPath), nil)
	}

	c, err := codec.Detect(artifactPath)
	if err != nil {
		return nil, lkerrors.NewRestoreError(lkerrors.CodeCorruptSource,
			fmt.Sprintf("cannot read artifact %s", artifactPath), err)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, lkerrors.NewRestoreError(lkerrors.CodeWriteFailed,
			fmt.Sprintf("cannot create destination directory for %s", destPath), err)
	}

	// Unpack beside the destination so the final rename stays on one
	// filesystem.
	tmpPath, err := unpackArtifact(artifactPath, filepath.Dir(destPath), c)
	if err != nil {
		return nil, lkerrors.NewRestoreError(lkerrors.CodeCorruptSource,
			fmt.Sprintf("cannot unpack artifact %s", artifactPath), err)
	}
	moved := false
	defer func() {
		if !moved {
			os.Remove(tmpPath)
		}
	}()

	report, err := integrity.CheckPath(ctx, tmpPath, e.opts.BusyTimeout)
	if err != nil {
		return nil, lkerrors.NewRestoreError(lkerrors.CodeCorruptSource,
			fmt.Sprintf("artifact %s does not hold a readable database", artifactPath), err)
	}
	if !report.Passed {
		return nil, lkerrors.NewRestoreError(lkerrors.CodeCorruptSource,
			fmt.Sprintf("artifact %s failed integrity check", artifactPath), nil).
			WithDetails(map[string]interface{}{"diagnostics": report.Diagnostics})
	}

	record := &types.RestoreRecord{
		SourcePath:      artifactPath,
		DestinationPath: destPath,
		Decompressed:    c != codec.None,
	}
	if record.Decompressed {
		record.Codec = string(c)
	}

	if hadDest && e.opts.Safety {
		safety := destPath + ".backup." + time.Now().Format(safetyTimestampFormat)
		if err := copyFile(destPath, safety); err != nil {
			return nil, lkerrors.NewRestoreError(lkerrors.CodeWriteFailed,
				fmt.Sprintf("cannot snapshot existing %s", destPath), err)
		}
		record.SafetyBackupPath = safety
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return nil, lkerrors.NewRestoreError(lkerrors.CodeWriteFailed,
			fmt.Sprintf("move restored database into %s", destPath), err)
	}
	moved = true

	// Side files from the replaced database describe pages that no longer
	// exist.
	for _, side := range []string{destPath + "-wal", destPath + "-shm"} {
		if err := os.Remove(side); err != nil && !os.IsNotExist(err) {
			log.WithFields(log.Fields{"path": side, "error": err}).Warn("failed to remove stale side file")
		}
	}

	record.Elapsed = time.Since(start)
	log.WithFields(log.Fields{
		"artifact":      artifactPath,
		"destination":   destPath,
		"codec":         record.Codec,
		"safety_backup": record.SafetyBackupPath,
		"elapsed":       record.Elapsed,
	}).Info("restore complete")
	return record, nil
}

// copyFile copies src to dst and fsyncs the copy.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
