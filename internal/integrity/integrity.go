// Package integrity distinguishes databases that cannot be read at all
// from databases that open but carry inconsistencies. Structural damage
// surfaces as an error; logical findings come back as a report with the
// engine's diagnostic lines.
package integrity

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/litekeep/litekeep/internal/conn"
	lkerrors "github.com/litekeep/litekeep/internal/errors"
	"github.com/litekeep/litekeep/pkg/types"
)

// CheckPath opens path read-only and runs the full check suite. A file
// that cannot be opened or whose header cannot be parsed fails with an
// UNREADABLE error rather than a report.
func CheckPath(ctx context.Context, path string, busyTimeout time.Duration) (*types.IntegrityReport, error) {
	h, err := conn.OpenReadOnly(ctx, path, busyTimeout)
	if err != nil {
		return nil, lkerrors.NewIntegrityError(
			fmt.Sprintf("database %s is unreadable", path), err)
	}
	defer h.Close()

	return Verify(ctx, h)
}

// Verify runs integrity_check plus foreign_key_check on an open handle
// and merges the findings into one report.
func Verify(ctx context.Context, h *conn.Handle) (*types.IntegrityReport, error) {
	report, err := Check(ctx, h)
	if err != nil {
		return nil, err
	}

	violations, err := ForeignKeyCheck(ctx, h)
	if err != nil {
		return nil, err
	}
	if len(violations) > 0 {
		report.Passed = false
		report.Diagnostics = append(report.Diagnostics, violations...)
	}

	if !report.Passed {
		log.WithFields(log.Fields{
			"path":        h.Path(),
			"diagnostics": len(report.Diagnostics),
		}).Warn("integrity check found inconsistencies")
	}
	return report, nil
}

// Check runs PRAGMA integrity_check and collects every diagnostic row.
// The engine reports a single "ok" row for a healthy database.
func Check(ctx context.Context, h *conn.Handle) (*types.IntegrityReport, error) {
	return runCheck(ctx, h, "PRAGMA integrity_check")
}

// QuickCheck runs PRAGMA quick_check, which skips index content
// verification and is much faster on large databases.
func QuickCheck(ctx context.Context, h *conn.Handle) (*types.IntegrityReport, error) {
	return runCheck(ctx, h, "PRAGMA quick_check")
}

func runCheck(ctx context.Context, h *conn.Handle, pragma string) (*types.IntegrityReport, error) {
	rows, err := h.DB().QueryContext(ctx, pragma)
	if err != nil {
		return nil, lkerrors.NewIntegrityError(
			fmt.Sprintf("integrity check could not run on %s", h.Path()), err)
	}
	defer rows.Close()

	report := &types.IntegrityReport{Path: h.Path()}
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, lkerrors.NewIntegrityError(
				fmt.Sprintf("integrity check could not be read on %s", h.Path()), err)
		}
		if line == "ok" {
			continue
		}
		report.Diagnostics = append(report.Diagnostics, line)
	}
	if err := rows.Err(); err != nil {
		return nil, lkerrors.NewIntegrityError(
			fmt.Sprintf("integrity check aborted on %s", h.Path()), err)
	}

	report.Passed = len(report.Diagnostics) == 0
	return report, nil
}

// ForeignKeyCheck runs PRAGMA foreign_key_check and formats each
// violation row. Enforcement being off at write time does not matter;
// the check inspects the data as stored.
func ForeignKeyCheck(ctx context.Context, h *conn.Handle) ([]string, error) {
	rows, err := h.DB().QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return nil, lkerrors.NewIntegrityError(
			fmt.Sprintf("foreign key check could not run on %s", h.Path()), err)
	}
	defer rows.Close()

	var violations []string
	for rows.Next() {
		var (
			table  string
			rowid  interface{}
			parent string
			fkID   int64
		)
		if err := rows.Scan(&table, &rowid, &parent, &fkID); err != nil {
			return nil, lkerrors.NewIntegrityError(
				fmt.Sprintf("foreign key check could not be read on %s", h.Path()), err)
		}
		violations = append(violations, fmt.Sprintf(
			"foreign key violation: table %s rowid %v references missing row in %s (fk %d)",
			table, rowid, parent, fkID))
	}
	if err := rows.Err(); err != nil {
		return nil, lkerrors.NewIntegrityError(
			fmt.Sprintf("foreign key check aborted on %s", h.Path()), err)
	}
	return violations, nil
}
