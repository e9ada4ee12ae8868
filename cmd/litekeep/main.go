// Command litekeep is the CLI for the litekeep SQLite maintenance toolkit.
// It covers database lifecycle, schema operations, statement execution,
// backups with optional replication, restores, and integrity checks.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alecthomas/kong"
	log "github.com/sirupsen/logrus"

	"github.com/litekeep/litekeep/internal/backup"
	"github.com/litekeep/litekeep/internal/codec"
	"github.com/litekeep/litekeep/internal/config"
	"github.com/litekeep/litekeep/internal/conn"
	"github.com/litekeep/litekeep/internal/integrity"
	"github.com/litekeep/litekeep/internal/maintain"
	"github.com/litekeep/litekeep/internal/observability"
	"github.com/litekeep/litekeep/internal/query"
	"github.com/litekeep/litekeep/internal/schema"
	"github.com/litekeep/litekeep/internal/storage"
	"github.com/litekeep/litekeep/pkg/types"
)

var (
	version = "dev"
	commit  = "unknown"
)

// CLI defines the command-line interface for litekeep.
var CLI struct {
	// Global flags
	Config    string `help:"Configuration file (YAML or JSON)" type:"existingfile"`
	EnvFile   string `name:"env-file" help:"Dotenv file loaded before LITEKEEP_* variables apply" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level: debug, info, warn, error"`
	LogFormat string `name:"log-format" help:"Log format: text, json"`
	Stats     bool   `help:"Print per-operation statistics after the command runs"`

	Db      DbGroup     `cmd:"" help:"Database lifecycle (create, delete, maintain)"`
	Table   TableGroup  `cmd:"" help:"Schema operations (create, drop, inspect, list)"`
	Query   QueryGroup  `cmd:"" help:"Statement execution (exec, batch)"`
	Backup  BackupGroup `cmd:"" help:"Backup artifacts (run, rotate, pull)"`
	Restore RestoreCmd  `cmd:"" help:"Restore a database from a backup artifact"`
	Verify  VerifyCmd   `cmd:"" help:"Check database integrity"`
	Version VersionCmd  `cmd:"" help:"Print version information"`
}

// runCtx carries the resolved configuration and the per-run operation
// statistics into every command.
type runCtx struct {
	cfg   *config.Config
	stats *observability.OpStats
}

// track runs fn and records its duration and outcome under op.
func (rc *runCtx) track(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	rc.stats.Record(op, time.Since(start), err != nil)
	return err
}

// DbGroup contains database lifecycle operations.
type DbGroup struct {
	Create   DbCreateCmd   `cmd:"" help:"Create a database file"`
	Delete   DbDeleteCmd   `cmd:"" help:"Delete a database file and its side files"`
	Maintain DbMaintainCmd `cmd:"" help:"Run maintenance passes over a database"`
}

// TableGroup contains schema operations.
type TableGroup struct {
	Create  TableCreateCmd  `cmd:"" help:"Create a table from a JSON spec"`
	Drop    TableDropCmd    `cmd:"" help:"Drop a table"`
	Inspect TableInspectCmd `cmd:"" help:"Reconstruct a table's spec from the catalog"`
	List    TableListCmd    `cmd:"" help:"List user tables"`
}

// QueryGroup contains statement execution operations.
type QueryGroup struct {
	Exec  QueryExecCmd  `cmd:"" help:"Execute one statement"`
	Batch QueryBatchCmd `cmd:"" help:"Execute a batch of statements"`
}

// BackupGroup contains backup artifact operations.
type BackupGroup struct {
	Run    BackupRunCmd    `cmd:"" help:"Back up a database into an artifact"`
	Rotate BackupRotateCmd `cmd:"" help:"Prune old backup artifacts"`
	Pull   BackupPullCmd   `cmd:"" help:"Stage replicated artifacts from object storage"`
}

// DbCreateCmd creates a database file with the configured pragmas.
type DbCreateCmd struct {
	Path string `arg:"" help:"Database file to create" type:"path"`
}

func (c *DbCreateCmd) Run(rc *runCtx) error {
	return rc.track("db.create", func() error {
		created, err := conn.Create(context.Background(), c.Path, pragmaOptions(rc.cfg))
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("Created: %s\n", c.Path)
		} else {
			fmt.Printf("Already exists: %s\n", c.Path)
		}
		return nil
	})
}

// DbDeleteCmd deletes a database file plus its -wal/-shm side files.
type DbDeleteCmd struct {
	Path string `arg:"" help:"Database file to delete" type:"path"`
}

func (c *DbDeleteCmd) Run(rc *runCtx) error {
	return rc.track("db.delete", func() error {
		removed, err := conn.Remove(c.Path)
		if err != nil {
			return err
		}
		if removed {
			fmt.Printf("Removed: %s\n", c.Path)
		} else {
			fmt.Printf("Not present: %s\n", c.Path)
		}
		return nil
	})
}

// DbMaintainCmd runs maintenance passes. With no step flags the default
// passes run: integrity check, vacuum, analyze.
type DbMaintainCmd struct {
	Path       string `arg:"" help:"Database file to maintain" type:"existingfile"`
	Integrity  bool   `help:"Run the integrity gate"`
	Vacuum     bool   `help:"Run VACUUM"`
	Analyze    bool   `help:"Run ANALYZE"`
	Checkpoint bool   `help:"Run a TRUNCATE WAL checkpoint"`
	Optimize   bool   `help:"Run PRAGMA optimize"`
}

func (c *DbMaintainCmd) Run(rc *runCtx) error {
	opts := maintain.Options{
		IntegrityCheck: c.Integrity,
		Vacuum:         c.Vacuum,
		Analyze:        c.Analyze,
		WalCheckpoint:  c.Checkpoint,
		Optimize:       c.Optimize,
	}
	if !c.Integrity && !c.Vacuum && !c.Analyze && !c.Checkpoint && !c.Optimize {
		opts = maintain.DefaultOptions()
	}
	opts.Conn = pragmaOptions(rc.cfg)

	var report *types.MaintenanceReport
	err := rc.track("db.maintain", func() error {
		var runErr error
		report, runErr = maintain.Run(context.Background(), c.Path, opts)
		return runErr
	})
	if err != nil {
		return err
	}
	return printJSON(report)
}

// TableCreateCmd creates a table from a JSON spec file. The spec holds the
// table name and its ordered column declarations.
type TableCreateCmd struct {
	Spec        string `arg:"" help:"JSON table spec file" type:"existingfile"`
	Db          string `required:"" help:"Database file" type:"existingfile"`
	IfNotExists bool   `name:"if-not-exists" help:"Succeed when the table already exists"`
}

func (c *TableCreateCmd) Run(rc *runCtx) error {
	data, err := os.ReadFile(c.Spec)
	if err != nil {
		return fmt.Errorf("failed to read spec file: %w", err)
	}
	var spec types.TableSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return fmt.Errorf("failed to parse spec file: %w", err)
	}

	ctx := context.Background()
	h, err := conn.Open(ctx, c.Db, pragmaOptions(rc.cfg))
	if err != nil {
		return err
	}
	defer h.Close()

	var outcome schema.CreateOutcome
	err = rc.track("table.create", func() error {
		var opErr error
		outcome, opErr = schema.CreateTable(ctx, h, spec, c.IfNotExists)
		return opErr
	})
	if err != nil {
		return err
	}
	if outcome == schema.OutcomeAlreadyExists {
		fmt.Printf("Table already exists: %s\n", spec.Name)
	} else {
		fmt.Printf("Created table: %s\n", spec.Name)
	}
	return nil
}

// TableDropCmd drops a table.
type TableDropCmd struct {
	Name     string `arg:"" help:"Table name"`
	Db       string `required:"" help:"Database file" type:"existingfile"`
	IfExists bool   `name:"if-exists" help:"Succeed when the table does not exist"`
}

func (c *TableDropCmd) Run(rc *runCtx) error {
	ctx := context.Background()
	h, err := conn.Open(ctx, c.Db, pragmaOptions(rc.cfg))
	if err != nil {
		return err
	}
	defer h.Close()

	var dropped bool
	err = rc.track("table.drop", func() error {
		var opErr error
		dropped, opErr = schema.DropTable(ctx, h, c.Name, c.IfExists)
		return opErr
	})
	if err != nil {
		return err
	}
	if dropped {
		fmt.Printf("Dropped table: %s\n", c.Name)
	} else {
		fmt.Printf("No such table: %s\n", c.Name)
	}
	return nil
}

// TableInspectCmd reconstructs a table's spec, row count, and stored DDL.
type TableInspectCmd struct {
	Name string `arg:"" help:"Table name"`
	Db   string `required:"" help:"Database file" type:"existingfile"`
}

func (c *TableInspectCmd) Run(rc *runCtx) error {
	ctx := context.Background()
	h, err := conn.OpenReadOnly(ctx, c.Db, rc.cfg.Pragmas.BusyTimeout)
	if err != nil {
		return err
	}
	defer h.Close()

	var info *schema.TableInfo
	err = rc.track("table.inspect", func() error {
		var opErr error
		info, opErr = schema.Info(ctx, h, c.Name)
		return opErr
	})
	if err != nil {
		return err
	}
	return printJSON(info)
}

// TableListCmd lists user tables, optionally with row counts.
type TableListCmd struct {
	Db     string `required:"" help:"Database file" type:"existingfile"`
	Counts bool   `help:"Include per-table row counts"`
}

func (c *TableListCmd) Run(rc *runCtx) error {
	ctx := context.Background()
	h, err := conn.OpenReadOnly(ctx, c.Db, rc.cfg.Pragmas.BusyTimeout)
	if err != nil {
		return err
	}
	defer h.Close()

	if c.Counts {
		var counts map[string]int64
		err = rc.track("table.list", func() error {
			var opErr error
			counts, opErr = schema.RowCounts(ctx, h)
			return opErr
		})
		if err != nil {
			return err
		}
		return printJSON(counts)
	}

	var names []string
	err = rc.track("table.list", func() error {
		var opErr error
		names, opErr = schema.TableNames(ctx, h)
		return opErr
	})
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// QueryExecCmd executes one statement. Values bind through ? placeholders
// only; positional args bind as text, --args-json binds typed values.
type QueryExecCmd struct {
	SQL      string   `arg:"" help:"Statement text with ? placeholders"`
	Args     []string `arg:"" optional:"" help:"Positional parameter values, bound as text"`
	Db       string   `required:"" help:"Database file" type:"existingfile"`
	ArgsJSON string   `name:"args-json" help:"Positional parameters as a JSON array, for typed values"`
	Fetch    string   `enum:"none,one,all" default:"all" help:"Row materialization: none, one, all"`
}

func (c *QueryExecCmd) Run(rc *runCtx) error {
	stmt := types.Statement{SQL: c.SQL}
	if c.ArgsJSON != "" {
		if len(c.Args) > 0 {
			return fmt.Errorf("positional args and --args-json are mutually exclusive")
		}
		if err := json.Unmarshal([]byte(c.ArgsJSON), &stmt.Args); err != nil {
			return fmt.Errorf("failed to parse --args-json: %w", err)
		}
	} else {
		for _, a := range c.Args {
			stmt.Args = append(stmt.Args, a)
		}
	}

	ctx := context.Background()
	h, err := conn.Open(ctx, c.Db, pragmaOptions(rc.cfg))
	if err != nil {
		return err
	}
	defer h.Close()
	exec := query.NewExecutor(h, rc.cfg.Query.MaxRetries, rc.cfg.Query.RetryBaseDelay)

	var result *types.ExecutionResult
	err = rc.track("query.exec", func() error {
		var opErr error
		result, opErr = exec.Execute(ctx, stmt, types.FetchMode(c.Fetch))
		return opErr
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

// QueryBatchCmd executes a batch of statements read from a JSON file. The
// file holds an array of {"sql": ..., "args": [...]} objects. Batches run
// in one transaction unless --independent is set.
type QueryBatchCmd struct {
	File        string `arg:"" help:"JSON file holding an array of statements" type:"existingfile"`
	Db          string `required:"" help:"Database file" type:"existingfile"`
	Independent bool   `help:"Run statements outside a transaction; earlier statements stay committed on failure"`
}

func (c *QueryBatchCmd) Run(rc *runCtx) error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}
	var stmts []types.Statement
	if err := json.Unmarshal(data, &stmts); err != nil {
		return fmt.Errorf("failed to parse batch file: %w", err)
	}

	ctx := context.Background()
	h, err := conn.Open(ctx, c.Db, pragmaOptions(rc.cfg))
	if err != nil {
		return err
	}
	defer h.Close()
	exec := query.NewExecutor(h, rc.cfg.Query.MaxRetries, rc.cfg.Query.RetryBaseDelay)

	var result *types.BatchResult
	batchErr := rc.track("query.batch", func() error {
		var opErr error
		result, opErr = exec.ExecuteBatch(ctx, stmts, !c.Independent)
		return opErr
	})
	// A failed batch still reports which statement stopped it and, in
	// independent mode, what committed before that.
	if result != nil {
		if err := printJSON(result); err != nil {
			return err
		}
	}
	return batchErr
}

// BackupRunCmd backs up a database into an artifact. The default
// destination carries a timestamp so rotation and remote staging order
// artifacts by name.
type BackupRunCmd struct {
	Source    string `arg:"" help:"Database file to back up" type:"existingfile"`
	Dest      string `help:"Artifact path; defaults into the backup directory with a timestamped name" type:"path"`
	Codec     string `help:"Compression codec: none, gzip, snappy, xz, zstd; defaults to the configured codec"`
	Live      bool   `help:"Back up through a live connection (VACUUM INTO)"`
	Overwrite bool   `help:"Replace an existing artifact"`
	NoVerify  bool   `name:"no-verify" help:"Skip post-backup verification"`
	Replicate bool   `help:"Replicate the artifact to the configured object storage"`
}

func (c *BackupRunCmd) Run(rc *runCtx) error {
	codecName := c.Codec
	if codecName == "" {
		codecName = rc.cfg.Backup.Codec
	}
	cd, err := codec.Parse(codecName)
	if err != nil {
		return err
	}

	dest := c.Dest
	if dest == "" {
		if err := rc.cfg.EnsureDirectories(); err != nil {
			return err
		}
		dest = filepath.Join(rc.cfg.Backup.Dir, fmt.Sprintf("%s.%s.bak%s",
			filepath.Base(c.Source), time.Now().Format("20060102_150405"), cd.Extension()))
	}

	ctx := context.Background()
	opts := backup.Options{
		Codec:       cd,
		Overwrite:   c.Overwrite,
		Verify:      rc.cfg.Backup.Verify && !c.NoVerify,
		BusyTimeout: rc.cfg.Pragmas.BusyTimeout,
	}
	if c.Replicate {
		store, prefix, err := buildStore(ctx, rc.cfg)
		if err != nil {
			return err
		}
		opts.Store = store
		opts.StorePrefix = prefix
	}
	engine := backup.NewEngine(opts)

	var rec *types.BackupRecord
	err = rc.track("backup.run", func() error {
		if c.Live {
			h, openErr := conn.Open(ctx, c.Source, pragmaOptions(rc.cfg))
			if openErr != nil {
				return openErr
			}
			defer h.Close()
			var opErr error
			rec, opErr = engine.BackupLive(ctx, h, dest)
			return opErr
		}
		var opErr error
		rec, opErr = engine.Backup(ctx, c.Source, dest)
		return opErr
	})
	if err != nil {
		return err
	}
	rc.stats.AddBytes("backup.run", rec.DestinationSizeBytes)
	return printJSON(rec)
}

// BackupRotateCmd prunes old backup artifacts, locally or in object
// storage.
type BackupRotateCmd struct {
	Dir     string `help:"Artifact directory; defaults to the configured backup directory" type:"path"`
	Pattern string `default:"*" help:"Glob limiting rotation to matching artifact names"`
	Keep    int    `help:"How many newest artifacts to retain; defaults to the configured keep count"`
	Remote  bool   `help:"Rotate replicated objects in object storage instead"`
	Prefix  string `help:"Remote object prefix; defaults to the configured prefix"`
}

func (c *BackupRotateCmd) Run(rc *runCtx) error {
	keep := c.Keep
	if keep == 0 {
		keep = rc.cfg.Backup.KeepCount
	}

	var result *types.RotationResult
	err := rc.track("backup.rotate", func() error {
		if c.Remote {
			ctx := context.Background()
			store, prefix, err := buildStore(ctx, rc.cfg)
			if err != nil {
				return err
			}
			if c.Prefix != "" {
				prefix = c.Prefix
			}
			var opErr error
			result, opErr = backup.RotateRemote(ctx, store, prefix, keep)
			return opErr
		}
		dir := c.Dir
		if dir == "" {
			dir = rc.cfg.Backup.Dir
		}
		var opErr error
		result, opErr = backup.Rotate(dir, c.Pattern, keep)
		return opErr
	})
	if err != nil {
		return err
	}
	return printJSON(result)
}

// BackupPullCmd stages replicated artifacts from object storage into a
// local directory, newest first.
type BackupPullCmd struct {
	Prefix      string `help:"Remote object prefix to stage; defaults to the configured prefix"`
	Stage       string `help:"Local staging directory" type:"path"`
	Concurrency int    `default:"4" help:"Parallel downloads"`
}

func (c *BackupPullCmd) Run(rc *runCtx) error {
	ctx := context.Background()
	store, prefix, err := buildStore(ctx, rc.cfg)
	if err != nil {
		return err
	}
	if c.Prefix != "" {
		prefix = c.Prefix
	}
	stage := c.Stage
	if stage == "" {
		if err := rc.cfg.EnsureDirectories(); err != nil {
			return err
		}
		stage = filepath.Join(rc.cfg.DataDir, "stage")
	}

	fetcher := storage.NewFetcher(store, c.Concurrency, stage)
	var res *storage.FetchResult
	err = rc.track("backup.pull", func() error {
		var opErr error
		res, opErr = fetcher.FetchPrefix(ctx, prefix)
		return opErr
	})
	if err != nil {
		return err
	}

	out := struct {
		LocalPaths map[string]string `json:"local_paths"`
		Errors     map[string]string `json:"errors,omitempty"`
		Skipped    int               `json:"skipped"`
		Downloads  int               `json:"downloads"`
	}{LocalPaths: res.LocalPaths, Skipped: res.Skipped, Downloads: res.Downloads}
	if len(res.Errors) > 0 {
		out.Errors = make(map[string]string, len(res.Errors))
		for object, ferr := range res.Errors {
			out.Errors[object] = ferr.Error()
		}
	}
	if err := printJSON(out); err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		return fmt.Errorf("%d object(s) failed to stage", len(res.Errors))
	}
	return nil
}

// RestoreCmd restores a database from a backup artifact. Compression is
// detected from the artifact content, never from its name.
type RestoreCmd struct {
	Artifact  string `arg:"" help:"Backup artifact to restore" type:"existingfile"`
	Dest      string `arg:"" help:"Database file to write" type:"path"`
	Overwrite bool   `help:"Replace an existing destination"`
	Safety    bool   `help:"Snapshot an existing destination before replacing it"`
}

func (c *RestoreCmd) Run(rc *runCtx) error {
	engine := backup.NewEngine(backup.Options{
		Overwrite:   c.Overwrite,
		Safety:      c.Safety || rc.cfg.Backup.SafetyBackup,
		BusyTimeout: rc.cfg.Pragmas.BusyTimeout,
	})

	var rec *types.RestoreRecord
	err := rc.track("restore", func() error {
		var opErr error
		rec, opErr = engine.Restore(context.Background(), c.Artifact, c.Dest)
		return opErr
	})
	if err != nil {
		return err
	}
	return printJSON(rec)
}

// VerifyCmd checks database integrity. The full suite runs
// integrity_check plus foreign_key_check; --quick runs quick_check only.
// A failed check exits non-zero with the diagnostics in the report.
type VerifyCmd struct {
	Path  string `arg:"" help:"Database file to check" type:"existingfile"`
	Quick bool   `help:"Run PRAGMA quick_check instead of the full suite"`
}

func (c *VerifyCmd) Run(rc *runCtx) error {
	ctx := context.Background()
	h, err := conn.OpenReadOnly(ctx, c.Path, rc.cfg.Pragmas.BusyTimeout)
	if err != nil {
		return err
	}
	defer h.Close()

	var report *types.IntegrityReport
	err = rc.track("verify", func() error {
		var opErr error
		if c.Quick {
			report, opErr = integrity.QuickCheck(ctx, h)
		} else {
			report, opErr = integrity.Verify(ctx, h)
		}
		return opErr
	})
	if err != nil {
		return err
	}
	if err := printJSON(report); err != nil {
		return err
	}
	if !report.Passed {
		return fmt.Errorf("integrity check failed: %d finding(s)", len(report.Diagnostics))
	}
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	drv := conn.Driver()
	fmt.Printf("litekeep version %s (commit: %s)\n", version, commit)
	fmt.Printf("sqlite driver: %s (%s)\n", drv.Name, drv.Package)
	return nil
}

// setup layers the configuration (file, then environment, then flags) and
// configures logging.
func setup() (*runCtx, error) {
	if err := config.LoadEnvFile(CLI.EnvFile); err != nil {
		return nil, err
	}

	var cfg *config.Config
	if CLI.Config != "" {
		loaded, err := config.LoadFromFile(CLI.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)

	if CLI.LogLevel != "" {
		cfg.Logging.Level = CLI.LogLevel
	}
	if CLI.LogFormat != "" {
		cfg.Logging.Format = CLI.LogFormat
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := configureLogging(cfg.Logging); err != nil {
		return nil, err
	}

	return &runCtx{cfg: cfg, stats: observability.NewOpStats(time.Hour)}, nil
}

func configureLogging(cfg config.LoggingConfig) error {
	level := cfg.Level
	if level == "" {
		level = "info"
	}
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&log.TextFormatter{})
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}
	return nil
}

// pragmaOptions maps the configured pragma defaults onto connection
// options.
func pragmaOptions(cfg *config.Config) conn.Options {
	return conn.Options{
		JournalMode: cfg.Pragmas.JournalMode,
		Synchronous: cfg.Pragmas.Synchronous,
		ForeignKeys: cfg.Pragmas.ForeignKeys,
		CacheSize:   cfg.Pragmas.CacheSize,
		BusyTimeout: cfg.Pragmas.BusyTimeout,
		TempStore:   cfg.Pragmas.TempStore,
		MmapSize:    cfg.Pragmas.MmapSize,
	}
}

// buildStore creates the configured object storage backend and returns it
// with the configured object prefix.
func buildStore(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, string, error) {
	switch cfg.Storage.Type {
	case "s3":
		s3cfg := storage.DefaultS3Config()
		if cfg.Storage.S3.Region != "" {
			s3cfg.Region = cfg.Storage.S3.Region
		}
		s3cfg.Endpoint = cfg.Storage.S3.Endpoint
		s3cfg.UsePathStyle = cfg.Storage.S3.Endpoint != ""
		store, err := storage.NewS3Storage(ctx, cfg.Storage.S3.Bucket, s3cfg)
		if err != nil {
			return nil, "", err
		}
		return store, cfg.Storage.S3.Prefix, nil
	default:
		store, err := storage.NewLocalStorage(cfg.Storage.Path)
		if err != nil {
			return nil, "", err
		}
		return store, cfg.Storage.S3.Prefix, nil
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func dumpStats(stats *observability.OpStats) {
	for _, rec := range stats.Snapshot() {
		fmt.Fprintf(os.Stderr, "%-14s count=%d failures=%d elapsed=%s bytes=%d\n",
			rec.Name, rec.Count, rec.Failures, rec.Elapsed, rec.Bytes)
	}
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("litekeep"),
		kong.Description("SQLite maintenance toolkit: lifecycle, schema, queries, backups, and integrity checks"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	rc, err := setup()
	ctx.FatalIfErrorf(err)

	err = ctx.Run(rc)
	if CLI.Stats {
		dumpStats(rc.stats)
	}
	ctx.FatalIfErrorf(err)
}
