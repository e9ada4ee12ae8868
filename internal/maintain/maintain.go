// Package maintain runs upkeep passes over a database file: an integrity
// gate, VACUUM, ANALYZE, and optional WAL checkpoint and optimizer passes.
// Steps run in a fixed order and each is timed in the resulting report.
package maintain

import (
	"context"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/litekeep/litekeep/internal/conn"
	lkerrors "github.com/litekeep/litekeep/internal/errors"
	"github.com/litekeep/litekeep/internal/integrity"
	"github.com/litekeep/litekeep/pkg/types"
)

// Step names as they appear in a MaintenanceReport, in execution order.
const (
	StepIntegrityCheck = "integrity_check"
	StepVacuum         = "vacuum"
	StepAnalyze        = "analyze"
	StepWalCheckpoint  = "wal_checkpoint"
	StepOptimize       = "optimize"
)

// Options select the passes to run. The zero value runs nothing.
type Options struct {
	// IntegrityCheck verifies the database before any destructive pass
	// and aborts the run on findings
	IntegrityCheck bool

	// Vacuum rebuilds the database file to reclaim free pages
	Vacuum bool

	// Analyze refreshes the query planner statistics
	Analyze bool

	// WalCheckpoint truncates the write-ahead log into the main file
	WalCheckpoint bool

	// Optimize runs PRAGMA optimize for incremental planner upkeep
	Optimize bool

	// Conn is the pragma state for the maintenance connection
	Conn conn.Options
}

// DefaultOptions enables the integrity gate, VACUUM, and ANALYZE.
func DefaultOptions() Options {
	return Options{
		IntegrityCheck: true,
		Vacuum:         true,
		Analyze:        true,
		Conn:           conn.DefaultOptions(),
	}
}

// Run executes the selected passes against the database at path. An
// inconsistent database fails the integrity gate before VACUUM or ANALYZE
// can touch it; a database that cannot run a pass at all surfaces that
// pass's error and no report. The report carries per-step timings plus the
// file size before and after the run.
func Run(ctx context.Context, path string, opts Options) (*types.MaintenanceReport, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lkerrors.NewOpenError(lkerrors.CodePathInvalid,
				fmt.Sprintf("database %s does not exist", path), err)
		}
		return nil, lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("cannot stat %s", path), err)
	}

	started := time.Now()
	report := &types.MaintenanceReport{Path: path, SizeBeforeBytes: info.Size()}

	h, err := conn.Open(ctx, path, opts.Conn)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	if opts.IntegrityCheck {
		err := runStep(report, StepIntegrityCheck, func() (string, error) {
			rep, err := integrity.Verify(ctx, h)
			if err != nil {
				return "", err
			}
			if !rep.Passed {
				return "", lkerrors.New(lkerrors.ErrCategoryIntegrity, lkerrors.CodeVerificationFailed,
					fmt.Sprintf("database %s failed its integrity check, maintenance aborted", path)).
					WithDetails(map[string]interface{}{"diagnostics": rep.Diagnostics})
			}
			return "ok", nil
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.Vacuum {
		err := runStep(report, StepVacuum, func() (string, error) {
			if _, err := h.DB().ExecContext(ctx, "VACUUM"); err != nil {
				return "", lkerrors.NewQueryError(lkerrors.ClassifyQueryMessage(err.Error()),
					fmt.Sprintf("vacuum failed on %s", path), err)
			}
			// In WAL mode the main file shrinks at checkpoint, not here,
			// so a missing detail line does not mean nothing was freed.
			if fi, serr := os.Stat(path); serr == nil && fi.Size() < report.SizeBeforeBytes {
				return fmt.Sprintf("reclaimed %d bytes", report.SizeBeforeBytes-fi.Size()), nil
			}
			return "", nil
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.Analyze {
		err := runStep(report, StepAnalyze, func() (string, error) {
			if _, err := h.DB().ExecContext(ctx, "ANALYZE"); err != nil {
				return "", lkerrors.NewQueryError(lkerrors.ClassifyQueryMessage(err.Error()),
					fmt.Sprintf("analyze failed on %s", path), err)
			}
			return "", nil
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.WalCheckpoint {
		err := runStep(report, StepWalCheckpoint, func() (string, error) {
			return "", h.Checkpoint(ctx)
		})
		if err != nil {
			return nil, err
		}
	}

	if opts.Optimize {
		err := runStep(report, StepOptimize, func() (string, error) {
			if _, err := h.DB().ExecContext(ctx, "PRAGMA optimize"); err != nil {
				return "", lkerrors.NewQueryError(lkerrors.ClassifyQueryMessage(err.Error()),
					fmt.Sprintf("optimize failed on %s", path), err)
			}
			return "", nil
		})
		if err != nil {
			return nil, err
		}
	}

	if err := h.Close(); err != nil {
		return nil, lkerrors.NewOpenError(lkerrors.CodeOpenFailed, fmt.Sprintf("close %s", path), err)
	}
	if fi, serr := os.Stat(path); serr == nil {
		report.SizeAfterBytes = fi.Size()
	}

	log.WithFields(log.Fields{
		"path":        path,
		"steps":       len(report.Steps),
		"size_before": report.SizeBeforeBytes,
		"size_after":  report.SizeAfterBytes,
		"elapsed":     time.Since(started),
	}).Info("maintenance complete")
	return report, nil
}

func runStep(report *types.MaintenanceReport, name string, fn func() (string, error)) error {
	start := time.Now()
	detail, err := fn()
	if err != nil {
		return err
	}
	report.Steps = append(report.Steps, types.MaintenanceStep{
		Name:    name,
		Elapsed: time.Since(start),
		Detail:  detail,
	})
	return nil
}
