package backup

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/litekeep/litekeep/internal/codec"
	lkerrors "github.com/litekeep/litekeep/internal/errors"
)

func TestRestore_SourceMissing(t *testing.T) {
	engine := NewEngine(DefaultOptions())
	_, err := engine.Restore(context.Background(),
		filepath.Join(t.TempDir(), "absent.bak"), filepath.Join(t.TempDir(), "out.db"))
	if err == nil {
		t.Fatal("expected error for missing artifact")
	}
	if lkerrors.GetCategory(err) != lkerrors.ErrCategoryRestore {
		t.Errorf("category = %s, want %s", lkerrors.GetCategory(err), lkerrors.ErrCategoryRestore)
	}
	if lkerrors.GetCode(err) != lkerrors.CodeSourceMissing {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeSourceMissing)
	}
}

func TestRestore_DestExistsGuard(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.db")
	artifact := filepath.Join(dir, "source.db.bak")
	dest := filepath.Join(dir, "dest.db")
	makeSourceDB(t, source, 4)
	makeSourceDB(t, dest, 9)

	engine := NewEngine(DefaultOptions())
	if _, err := engine.Backup(ctx, source, artifact); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	_, err := engine.Restore(ctx, artifact, dest)
	if lkerrors.GetCode(err) != lkerrors.CodeDestExists {
		t.Fatalf("code = %s, want %s", lkerrors.GetCode(err), lkerrors.CodeDestExists)
	}
	if n := countNotes(t, dest); n != 9 {
		t.Errorf("refused restore modified destination: row count = %d, want 9", n)
	}
}

func TestRestore_SafetySnapshotOfReplacedDatabase(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.db")
	artifact := filepath.Join(dir, "source.db.bak")
	dest := filepath.Join(dir, "dest.db")
	makeSourceDB(t, source, 7)
	makeSourceDB(t, dest, 3)

	opts := DefaultOptions()
	opts.Overwrite = true
	opts.Safety = true
	engine := NewEngine(opts)
	if _, err := engine.Backup(ctx, source, artifact); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	record, err := engine.Restore(ctx, artifact, dest)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	if n := countNotes(t, dest); n != 7 {
		t.Errorf("destination row count = %d, want 7", n)
	}
	if record.SafetyBackupPath == "" {
		t.Fatal("no safety snapshot recorded")
	}
	if !strings.HasPrefix(record.SafetyBackupPath, dest+".backup.") {
		t.Errorf("safety snapshot %q does not sit beside the destination", record.SafetyBackupPath)
	}
	// The snapshot preserves the replaced database.
	if n := countNotes(t, record.SafetyBackupPath); n != 3 {
		t.Errorf("safety snapshot row count = %d, want 3", n)
	}
}

func TestRestore_NoSafetySnapshotByDefault(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.db")
	artifact := filepath.Join(dir, "source.db.bak")
	dest := filepath.Join(dir, "dest.db")
	makeSourceDB(t, source, 7)
	makeSourceDB(t, dest, 3)

	opts := DefaultOptions()
	opts.Overwrite = true
	engine := NewEngine(opts)
	if _, err := engine.Backup(ctx, source, artifact); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	record, err := engine.Restore(ctx, artifact, dest)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if record.SafetyBackupPath != "" {
		t.Errorf("snapshot %q taken without the safety option", record.SafetyBackupPath)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".backup.") {
			t.Errorf("stray snapshot %s left behind", e.Name())
		}
	}
}

func TestRestore_CorruptArtifactLeavesDestinationUntouched(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	artifact := filepath.Join(dir, "bogus.bak")
	dest := filepath.Join(dir, "dest.db")
	makeSourceDB(t, dest, 6)

	if err := os.WriteFile(artifact, []byte("this is not a database at all"), 0644); err != nil {
		t.Fatalf("write bogus artifact: %v", err)
	}
	before, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read destination: %v", err)
	}

	opts := DefaultOptions()
	opts.Overwrite = true
	_, rerr := NewEngine(opts).Restore(ctx, artifact, dest)
	if lkerrors.GetCategory(rerr) != lkerrors.ErrCategoryRestore {
		t.Errorf("category = %s, want %s", lkerrors.GetCategory(rerr), lkerrors.ErrCategoryRestore)
	}
	if lkerrors.GetCode(rerr) != lkerrors.CodeCorruptSource {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(rerr), lkerrors.CodeCorruptSource)
	}

	after, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read destination after failed restore: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("failed restore modified the destination")
	}

	// No scratch or safety files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) || strings.Contains(e.Name(), ".backup.") {
			t.Errorf("failed restore left %s behind", e.Name())
		}
	}
}

func TestRestore_TruncatedCompressedArtifact(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.db")
	artifact := filepath.Join(dir, "source.db.gz")
	makeSourceDB(t, source, 200)

	opts := DefaultOptions()
	opts.Codec = codec.Gzip
	if _, err := NewEngine(opts).Backup(ctx, source, artifact); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	// Drop the tail of the artifact so decompression fails mid-stream.
	data, err := os.ReadFile(artifact)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if err := os.WriteFile(artifact, data[:len(data)/2], 0644); err != nil {
		t.Fatalf("truncate artifact: %v", err)
	}

	_, rerr := NewEngine(opts).Restore(ctx, artifact, filepath.Join(dir, "restored.db"))
	if lkerrors.GetCode(rerr) != lkerrors.CodeCorruptSource {
		t.Errorf("code = %s, want %s", lkerrors.GetCode(rerr), lkerrors.CodeCorruptSource)
	}
}

func TestRestore_RemovesStaleSidecars(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.db")
	artifact := filepath.Join(dir, "source.db.bak")
	dest := filepath.Join(dir, "dest.db")
	makeSourceDB(t, source, 5)
	makeSourceDB(t, dest, 2)

	for _, side := range []string{dest + "-wal", dest + "-shm"} {
		if err := os.WriteFile(side, []byte("stale"), 0644); err != nil {
			t.Fatalf("write sidecar: %v", err)
		}
	}

	opts := DefaultOptions()
	opts.Overwrite = true
	engine := NewEngine(opts)
	if _, err := engine.Backup(ctx, source, artifact); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if _, err := engine.Restore(ctx, artifact, dest); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	for _, side := range []string{dest + "-wal", dest + "-shm"} {
		if _, err := os.Stat(side); !os.IsNotExist(err) {
			t.Errorf("stale sidecar %s survived the restore", side)
		}
	}
	if n := countNotes(t, dest); n != 5 {
		t.Errorf("destination row count = %d, want 5", n)
	}
}

func TestRestore_DetectsCodecFromContentNotName(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	source := filepath.Join(dir, "source.db")
	// Extension lies: the artifact is zstd despite the name.
	artifact := filepath.Join(dir, "artifact.bin")
	makeSourceDB(t, source, 30)

	opts := DefaultOptions()
	opts.Codec = codec.Zstd
	if _, err := NewEngine(opts).Backup(ctx, source, artifact); err != nil {
		t.Fatalf("Backup() error = %v", err)
	}

	restored := filepath.Join(dir, "restored.db")
	record, err := NewEngine(DefaultOptions()).Restore(ctx, artifact, restored)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !record.Decompressed || record.Codec != "zstd" {
		t.Errorf("codec not detected from content: decompressed=%v codec=%q", record.Decompressed, record.Codec)
	}
	if n := countNotes(t, restored); n != 30 {
		t.Errorf("restored row count = %d, want 30", n)
	}
}
