package schema

import (
	"fmt"
	"strings"

	lkerrors "github.com/litekeep/litekeep/internal/errors"
	"github.com/litekeep/litekeep/pkg/types"
)

// RenderCreateTable builds the CREATE TABLE statement for spec. Column
// constraints render in a fixed order: type, PRIMARY KEY, AUTOINCREMENT,
// NOT NULL, UNIQUE, DEFAULT. The same spec always yields the same SQL.
func RenderCreateTable(spec types.TableSpec, ifNotExists bool) (string, error) {
	if err := ValidateSpec(spec); err != nil {
		return "", err
	}

	cols := make([]string, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		cols = append(cols, renderColumn(col))
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(spec.Name)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(")")
	return b.String(), nil
}

func renderColumn(col types.ColumnSpec) string {
	parts := []string{col.Name, strings.ToUpper(string(col.Type))}
	if col.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if col.Autoincrement {
		parts = append(parts, "AUTOINCREMENT")
	}
	if col.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if col.Unique {
		parts = append(parts, "UNIQUE")
	}
	if col.Default != nil {
		parts = append(parts, "DEFAULT "+*col.Default)
	}
	return strings.Join(parts, " ")
}

// ValidateSpec runs structural validation plus identifier and type checks
// over every name the rendered DDL will contain.
func ValidateSpec(spec types.TableSpec) error {
	if err := spec.Validate(); err != nil {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidSpec, err.Error())
	}
	if err := ValidateIdentifier(spec.Name, "table"); err != nil {
		return err
	}
	for _, col := range spec.Columns {
		if err := ValidateIdentifier(col.Name, "column"); err != nil {
			return err
		}
		if err := validateDeclaredType(strings.ToUpper(string(col.Type))); err != nil {
			return err
		}
		if col.Default != nil && strings.ContainsRune(*col.Default, ';') {
			return lkerrors.NewValidationError(lkerrors.CodeInvalidSpec,
				fmt.Sprintf("default literal %q for column %q must not contain ';'", *col.Default, col.Name))
		}
	}
	return nil
}
