// Package schema implements table-level DDL for litekeep databases:
// deterministic CREATE TABLE rendering, creation, inspection, and removal.
// Inspection reconstructs a TableSpec from the live catalog so that a
// created table can be read back as the spec that produced it.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/litekeep/litekeep/internal/conn"
	lkerrors "github.com/litekeep/litekeep/internal/errors"
	"github.com/litekeep/litekeep/pkg/types"
)

// CreateOutcome reports what CreateTable did.
type CreateOutcome string

const (
	// OutcomeCreated means the table did not exist and was created.
	OutcomeCreated CreateOutcome = "created"
	// OutcomeAlreadyExists means the table existed and was left untouched.
	OutcomeAlreadyExists CreateOutcome = "already-exists"
)

// TableInfo bundles the reconstructed spec with catalog details.
type TableInfo struct {
	Spec     types.TableSpec `json:"spec"`
	RowCount int64           `json:"row_count"`
	SQL      string          `json:"sql"`
}

// CreateTable creates the table described by spec. When ifNotExists is set
// and the table already exists, it returns OutcomeAlreadyExists without
// touching the schema; otherwise an existing table is an error.
func CreateTable(ctx context.Context, h *conn.Handle, spec types.TableSpec, ifNotExists bool) (CreateOutcome, error) {
	ddl, err := RenderCreateTable(spec, ifNotExists)
	if err != nil {
		return "", err
	}

	exists, err := TableExists(ctx, h, spec.Name)
	if err != nil {
		return "", err
	}
	if exists {
		if ifNotExists {
			log.WithFields(log.Fields{
				"table": spec.Name,
				"path":  h.Path(),
			}).Debug("table already exists, skipping create")
			return OutcomeAlreadyExists, nil
		}
		return "", lkerrors.NewSchemaError(lkerrors.CodeTableExists,
			fmt.Sprintf("table %q already exists", spec.Name), nil)
	}

	if _, err := h.DB().ExecContext(ctx, ddl); err != nil {
		return "", lkerrors.NewSchemaError(lkerrors.ClassifyQueryMessage(err.Error()),
			fmt.Sprintf("failed to create table %q", spec.Name), err)
	}

	log.WithFields(log.Fields{
		"table":   spec.Name,
		"columns": len(spec.Columns),
		"path":    h.Path(),
	}).Info("created table")
	return OutcomeCreated, nil
}

// DropTable removes the named table. When ifExists is set a missing table
// is not an error; the bool reports whether a table was actually dropped.
func DropTable(ctx context.Context, h *conn.Handle, name string, ifExists bool) (bool, error) {
	if err := ValidateIdentifier(name, "table"); err != nil {
		return false, err
	}

	exists, err := TableExists(ctx, h, name)
	if err != nil {
		return false, err
	}
	if !exists {
		if ifExists {
			return false, nil
		}
		return false, lkerrors.NewSchemaError(lkerrors.CodeTableNotFound,
			fmt.Sprintf("table %q does not exist", name), nil)
	}

	stmt := "DROP TABLE " + name
	if ifExists {
		stmt = "DROP TABLE IF EXISTS " + name
	}
	if _, err := h.DB().ExecContext(ctx, stmt); err != nil {
		return false, lkerrors.NewSchemaError(lkerrors.ClassifyQueryMessage(err.Error()),
			fmt.Sprintf("failed to drop table %q", name), err)
	}

	log.WithFields(log.Fields{
		"table": name,
		"path":  h.Path(),
	}).Info("dropped table")
	return true, nil
}

// Inspect reconstructs the TableSpec for an existing table from the
// catalog. Column order follows the declared order. Declared types and
// default literals are returned verbatim as SQLite stores them.
func Inspect(ctx context.Context, h *conn.Handle, name string) (types.TableSpec, error) {
	if err := ValidateIdentifier(name, "table"); err != nil {
		return types.TableSpec{}, err
	}

	ddl, err := tableSQL(ctx, h.DB(), name)
	if err != nil {
		return types.TableSpec{}, err
	}

	cols, err := tableColumns(ctx, h.DB(), name)
	if err != nil {
		return types.TableSpec{}, err
	}

	uniqueCols, err := uniqueColumns(ctx, h.DB(), name)
	if err != nil {
		return types.TableSpec{}, err
	}
	for i := range cols {
		if _, ok := uniqueCols[strings.ToLower(cols[i].Name)]; ok {
			cols[i].Unique = true
		}
	}

	// AUTOINCREMENT is not surfaced by table_info, only by the stored DDL.
	// It is only legal on the INTEGER PRIMARY KEY column.
	if strings.Contains(strings.ToUpper(ddl), "AUTOINCREMENT") {
		for i := range cols {
			if cols[i].PrimaryKey {
				cols[i].Autoincrement = true
				break
			}
		}
	}

	return types.TableSpec{Name: name, Columns: cols}, nil
}

// Info returns the reconstructed spec plus row count and stored DDL.
func Info(ctx context.Context, h *conn.Handle, name string) (*TableInfo, error) {
	spec, err := Inspect(ctx, h, name)
	if err != nil {
		return nil, err
	}
	ddl, err := tableSQL(ctx, h.DB(), name)
	if err != nil {
		return nil, err
	}
	var count int64
	row := h.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name))
	if err := row.Scan(&count); err != nil {
		return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			fmt.Sprintf("failed to count rows in %q", name), err)
	}
	return &TableInfo{Spec: spec, RowCount: count, SQL: ddl}, nil
}

// TableExists reports whether a user table with the given name exists.
func TableExists(ctx context.Context, h *conn.Handle, name string) (bool, error) {
	var found string
	row := h.DB().QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	switch err := row.Scan(&found); {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			"failed to query sqlite_master", err)
	default:
		return true, nil
	}
}

// TableNames lists user tables in name order, excluding SQLite internals.
func TableNames(ctx context.Context, h *conn.Handle) ([]string, error) {
	rows, err := h.DB().QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			"failed to list tables", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
				"failed to scan table name", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			"failed to list tables", err)
	}
	return names, nil
}

// RowCounts returns the row count of every user table, keyed by table name.
func RowCounts(ctx context.Context, h *conn.Handle) (map[string]int64, error) {
	names, err := TableNames(ctx, h)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(names))
	for _, name := range names {
		var n int64
		row := h.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(name))
		if err := row.Scan(&n); err != nil {
			return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
				fmt.Sprintf("failed to count rows in %q", name), err)
		}
		counts[name] = n
	}
	return counts, nil
}

func tableSQL(ctx context.Context, db *sql.DB, name string) (string, error) {
	var ddl sql.NullString
	row := db.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", name)
	switch err := row.Scan(&ddl); {
	case err == sql.ErrNoRows:
		return "", lkerrors.NewSchemaError(lkerrors.CodeTableNotFound,
			fmt.Sprintf("table %q does not exist", name), nil)
	case err != nil:
		return "", lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			"failed to query sqlite_master", err)
	}
	return ddl.String, nil
}

func tableColumns(ctx context.Context, db *sql.DB, name string) ([]types.ColumnSpec, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", name))
	if err != nil {
		return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			fmt.Sprintf("failed to read columns of %q", name), err)
	}
	defer rows.Close()

	var cols []types.ColumnSpec
	for rows.Next() {
		var (
			cid     int
			colName string
			colType string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
				fmt.Sprintf("failed to scan column of %q", name), err)
		}
		col := types.ColumnSpec{
			Name:       colName,
			Type:       types.ColumnType(colType),
			PrimaryKey: pk > 0,
			NotNull:    notNull == 1,
		}
		if dflt.Valid {
			v := dflt.String
			col.Default = &v
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			fmt.Sprintf("failed to read columns of %q", name), err)
	}
	return cols, nil
}

// uniqueColumns finds columns covered by a single-column UNIQUE constraint,
// via the auto-indexes SQLite creates for them (origin "u" in index_list).
func uniqueColumns(ctx context.Context, db *sql.DB, name string) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_list(%s)", name))
	if err != nil {
		return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			fmt.Sprintf("failed to read indexes of %q", name), err)
	}
	defer rows.Close()

	var uniqueIndexes []string
	for rows.Next() {
		var (
			seq     int
			idxName string
			uniq    int
			origin  string
			partial int
		)
		if err := rows.Scan(&seq, &idxName, &uniq, &origin, &partial); err != nil {
			return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
				fmt.Sprintf("failed to scan index of %q", name), err)
		}
		if uniq == 1 && origin == "u" {
			uniqueIndexes = append(uniqueIndexes, idxName)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			fmt.Sprintf("failed to read indexes of %q", name), err)
	}

	unique := make(map[string]struct{})
	for _, idx := range uniqueIndexes {
		cols, err := indexColumns(ctx, db, idx)
		if err != nil {
			return nil, err
		}
		if len(cols) == 1 {
			unique[strings.ToLower(cols[0])] = struct{}{}
		}
	}
	return unique, nil
}

func indexColumns(ctx context.Context, db *sql.DB, index string) ([]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA index_info(%s)", quoteIdent(index)))
	if err != nil {
		return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			fmt.Sprintf("failed to read index %q", index), err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			seqno int
			cid   int
			col   sql.NullString
		)
		if err := rows.Scan(&seqno, &cid, &col); err != nil {
			return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
				fmt.Sprintf("failed to scan index %q", index), err)
		}
		if col.Valid {
			cols = append(cols, col.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, lkerrors.NewSchemaError(lkerrors.CodeExecutionFailed,
			fmt.Sprintf("failed to read index %q", index), err)
	}
	return cols, nil
}

// quoteIdent double-quotes an identifier for interpolation into SQL where
// binding is not possible, doubling any embedded quote.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
