package schema

import (
	"testing"

	lkerrors "github.com/litekeep/litekeep/internal/errors"
	"github.com/litekeep/litekeep/pkg/types"
)

func strPtr(s string) *string { return &s }

func TestRenderCreateTable_ConstraintOrder(t *testing.T) {
	spec := types.TableSpec{
		Name: "users",
		Columns: []types.ColumnSpec{
			{Name: "id", Type: types.TypeInteger, PrimaryKey: true, Autoincrement: true},
			{Name: "email", Type: types.TypeText, NotNull: true, Unique: true},
			{Name: "status", Type: types.TypeText, NotNull: true, Default: strPtr("'active'")},
			{Name: "age", Type: types.TypeInteger},
		},
	}

	got, err := RenderCreateTable(spec, false)
	if err != nil {
		t.Fatalf("RenderCreateTable() error = %v", err)
	}
	want := "CREATE TABLE users (" +
		"id INTEGER PRIMARY KEY AUTOINCREMENT, " +
		"email TEXT NOT NULL UNIQUE, " +
		"status TEXT NOT NULL DEFAULT 'active', " +
		"age INTEGER)"
	if got != want {
		t.Errorf("rendered DDL:\n got: %s\nwant: %s", got, want)
	}
}

func TestRenderCreateTable_IfNotExists(t *testing.T) {
	spec := types.TableSpec{
		Name:    "logs",
		Columns: []types.ColumnSpec{{Name: "msg", Type: types.TypeText}},
	}
	got, err := RenderCreateTable(spec, true)
	if err != nil {
		t.Fatalf("RenderCreateTable() error = %v", err)
	}
	want := "CREATE TABLE IF NOT EXISTS logs (msg TEXT)"
	if got != want {
		t.Errorf("rendered DDL = %s, want %s", got, want)
	}
}

func TestRenderCreateTable_Deterministic(t *testing.T) {
	spec := types.TableSpec{
		Name: "events",
		Columns: []types.ColumnSpec{
			{Name: "id", Type: types.TypeInteger, PrimaryKey: true},
			{Name: "at", Type: types.TypeTimestamp, Default: strPtr("CURRENT_TIMESTAMP")},
			{Name: "payload", Type: types.TypeBlob},
		},
	}
	first, err := RenderCreateTable(spec, false)
	if err != nil {
		t.Fatalf("RenderCreateTable() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := RenderCreateTable(spec, false)
		if err != nil {
			t.Fatalf("RenderCreateTable() error = %v", err)
		}
		if again != first {
			t.Fatalf("rendering not deterministic: %s vs %s", again, first)
		}
	}
}

func TestRenderCreateTable_UppercasesType(t *testing.T) {
	spec := types.TableSpec{
		Name:    "notes",
		Columns: []types.ColumnSpec{{Name: "body", Type: types.ColumnType("text")}},
	}
	got, err := RenderCreateTable(spec, false)
	if err != nil {
		t.Fatalf("RenderCreateTable() error = %v", err)
	}
	want := "CREATE TABLE notes (body TEXT)"
	if got != want {
		t.Errorf("rendered DDL = %s, want %s", got, want)
	}
}

func TestRenderCreateTable_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		spec     types.TableSpec
		wantCode string
	}{
		{
			name:     "no columns",
			spec:     types.TableSpec{Name: "empty"},
			wantCode: lkerrors.CodeInvalidSpec,
		},
		{
			name: "reserved table name",
			spec: types.TableSpec{
				Name:    "order",
				Columns: []types.ColumnSpec{{Name: "id", Type: types.TypeInteger}},
			},
			wantCode: lkerrors.CodeInvalidIdentifier,
		},
		{
			name: "reserved column name",
			spec: types.TableSpec{
				Name:    "items",
				Columns: []types.ColumnSpec{{Name: "group", Type: types.TypeText}},
			},
			wantCode: lkerrors.CodeInvalidIdentifier,
		},
		{
			name: "injection in column name",
			spec: types.TableSpec{
				Name:    "items",
				Columns: []types.ColumnSpec{{Name: "x); DROP TABLE items; --", Type: types.TypeText}},
			},
			wantCode: lkerrors.CodeInvalidIdentifier,
		},
		{
			name: "semicolon in default literal",
			spec: types.TableSpec{
				Name:    "items",
				Columns: []types.ColumnSpec{{Name: "status", Type: types.TypeText, Default: strPtr("'a'; DROP TABLE items")}},
			},
			wantCode: lkerrors.CodeInvalidSpec,
		},
		{
			name: "multiple primary keys",
			spec: types.TableSpec{
				Name: "pairs",
				Columns: []types.ColumnSpec{
					{Name: "a", Type: types.TypeInteger, PrimaryKey: true},
					{Name: "b", Type: types.TypeInteger, PrimaryKey: true},
				},
			},
			wantCode: lkerrors.CodeInvalidSpec,
		},
		{
			name: "autoincrement without integer pk",
			spec: types.TableSpec{
				Name: "bad",
				Columns: []types.ColumnSpec{
					{Name: "id", Type: types.TypeText, PrimaryKey: true, Autoincrement: true},
				},
			},
			wantCode: lkerrors.CodeInvalidSpec,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RenderCreateTable(tt.spec, false)
			if err == nil {
				t.Fatal("RenderCreateTable() = nil, want error")
			}
			if lkerrors.GetCode(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", lkerrors.GetCode(err), tt.wantCode)
			}
			if lkerrors.GetCategory(err) != lkerrors.ErrCategoryValidation {
				t.Errorf("category = %s, want %s", lkerrors.GetCategory(err), lkerrors.ErrCategoryValidation)
			}
		})
	}
}
