package types

import "time"

// Backup methods.
const (
	// BackupMethodOnline is a page-level copy through a live connection
	BackupMethodOnline = "online"

	// BackupMethodFileCopy is a direct filesystem copy of a closed database
	BackupMethodFileCopy = "file-copy"
)

// BackupRecord describes one completed backup. Immutable once produced;
// never persisted by the library itself.
type BackupRecord struct {
	// ID uniquely identifies this backup run
	ID string `json:"id"`

	// SourcePath is the database that was backed up
	SourcePath string `json:"source_path"`

	// DestinationPath is the artifact that was written
	DestinationPath string `json:"destination_path"`

	// Method is BackupMethodOnline or BackupMethodFileCopy
	Method string `json:"method"`

	// Compressed reports whether the artifact is compressed
	Compressed bool `json:"compressed"`

	// Codec names the compression codec when Compressed is true
	Codec string `json:"codec,omitempty"`

	// SourceSizeBytes is the size of the source database file
	SourceSizeBytes int64 `json:"source_size_bytes"`

	// DestinationSizeBytes is the size of the written artifact
	DestinationSizeBytes int64 `json:"destination_size_bytes"`

	// Elapsed is the wall-clock duration of the backup
	Elapsed time.Duration `json:"elapsed_ns"`

	// Verified reports whether post-backup verification ran and passed
	Verified bool `json:"verified"`

	// SourceDigest is the BLAKE3 hex digest of the source file
	SourceDigest string `json:"source_digest,omitempty"`

	// DestinationDigest is the BLAKE3 hex digest of the artifact's database
	// content (after transient decompression for compressed artifacts)
	DestinationDigest string `json:"destination_digest,omitempty"`

	// RowCounts maps table name to row count in the backup, populated
	// during verification
	RowCounts map[string]int64 `json:"row_counts,omitempty"`

	// Replicated holds the object-storage key when the artifact was
	// replicated to remote storage
	Replicated string `json:"replicated,omitempty"`
}

// RestoreRecord describes one completed restore.
type RestoreRecord struct {
	// SourcePath is the backup artifact that was restored
	SourcePath string `json:"source_path"`

	// DestinationPath is the database that was replaced or created
	DestinationPath string `json:"destination_path"`

	// Decompressed reports whether the artifact needed decompression
	Decompressed bool `json:"decompressed"`

	// Codec names the detected compression codec, empty for plain artifacts
	Codec string `json:"codec,omitempty"`

	// SafetyBackupPath is the pre-restore snapshot of the previous
	// destination, empty when none was taken
	SafetyBackupPath string `json:"safety_backup_path,omitempty"`

	// Elapsed is the wall-clock duration of the restore
	Elapsed time.Duration `json:"elapsed_ns"`
}

// IntegrityReport is the outcome of a logical consistency check. Produced
// fresh on every verification call.
type IntegrityReport struct {
	// Path is the database file that was checked
	Path string `json:"path"`

	// Passed is true when the engine reported no inconsistencies
	Passed bool `json:"passed"`

	// Diagnostics holds every diagnostic line the engine produced, in
	// order; empty when Passed is true
	Diagnostics []string `json:"diagnostics,omitempty"`
}

// MaintenanceStep records one pass of a maintenance run.
type MaintenanceStep struct {
	// Name is the step name: integrity_check, vacuum, analyze,
	// wal_checkpoint, optimize
	Name string `json:"name"`

	// Elapsed is the step duration
	Elapsed time.Duration `json:"elapsed_ns"`

	// Detail is an optional engine-reported detail line
	Detail string `json:"detail,omitempty"`
}

// MaintenanceReport summarizes a maintenance run over one database.
type MaintenanceReport struct {
	// Path is the database that was maintained
	Path string `json:"path"`

	// Steps lists the passes that ran, in execution order
	Steps []MaintenanceStep `json:"steps"`

	// SizeBeforeBytes is the file size before maintenance
	SizeBeforeBytes int64 `json:"size_before_bytes"`

	// SizeAfterBytes is the file size after maintenance
	SizeAfterBytes int64 `json:"size_after_bytes"`
}

// RotationResult reports a backup rotation pass: which artifacts were kept
// and which were removed.
type RotationResult struct {
	// Dir is the directory that was rotated
	Dir string `json:"dir"`

	// Kept lists the retained artifact paths, newest first
	Kept []string `json:"kept"`

	// Removed lists the deleted artifact paths
	Removed []string `json:"removed"`
}
