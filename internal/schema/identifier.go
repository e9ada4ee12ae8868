package schema

import (
	"fmt"
	"regexp"
	"strings"

	lkerrors "github.com/litekeep/litekeep/internal/errors"
)

// maxIdentifierLen keeps generated DDL readable; SQLite itself accepts far
// longer names.
const maxIdentifierLen = 64

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// typePattern admits declared types like INTEGER, TEXT, or VARCHAR(30).
var typePattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_ ()]*$`)

// reservedKeywords are SQL keywords rejected as table or column names.
var reservedKeywords = map[string]struct{}{
	"abort": {}, "action": {}, "add": {}, "after": {}, "all": {},
	"alter": {}, "analyze": {}, "and": {}, "as": {}, "asc": {},
	"attach": {}, "autoincrement": {}, "before": {}, "begin": {},
	"between": {}, "by": {}, "cascade": {}, "case": {}, "cast": {},
	"check": {}, "collate": {}, "column": {}, "commit": {}, "conflict": {},
	"constraint": {}, "create": {}, "cross": {}, "current_date": {},
	"current_time": {}, "current_timestamp": {}, "database": {},
	"default": {}, "deferrable": {}, "deferred": {}, "delete": {},
	"desc": {}, "detach": {}, "distinct": {}, "drop": {}, "each": {},
	"else": {}, "end": {}, "escape": {}, "except": {}, "exclusive": {},
	"exists": {}, "explain": {}, "fail": {}, "for": {}, "foreign": {},
	"from": {}, "full": {}, "glob": {}, "group": {}, "having": {},
	"if": {}, "ignore": {}, "immediate": {}, "in": {}, "index": {},
	"indexed": {}, "initially": {}, "inner": {}, "insert": {},
	"instead": {}, "intersect": {}, "into": {}, "is": {}, "isnull": {},
	"join": {}, "key": {}, "left": {}, "like": {}, "limit": {},
	"match": {}, "natural": {}, "no": {}, "not": {}, "notnull": {},
	"null": {}, "of": {}, "offset": {}, "on": {}, "or": {}, "order": {},
	"outer": {}, "plan": {}, "pragma": {}, "primary": {}, "query": {},
	"raise": {}, "recursive": {}, "references": {}, "regexp": {},
	"reindex": {}, "release": {}, "rename": {}, "replace": {},
	"restrict": {}, "right": {}, "rollback": {}, "row": {},
	"savepoint": {}, "select": {}, "set": {}, "table": {}, "temp": {},
	"temporary": {}, "then": {}, "to": {}, "transaction": {},
	"trigger": {}, "union": {}, "unique": {}, "update": {}, "using": {},
	"vacuum": {}, "values": {}, "view": {}, "virtual": {}, "when": {},
	"where": {}, "with": {}, "without": {},
}

// ValidateIdentifier checks that name is usable as a table or column name:
// letter or underscore first, then letters, digits, underscores, no
// reserved keywords. kind names the identifier in error messages.
func ValidateIdentifier(name, kind string) error {
	if name == "" {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidIdentifier,
			fmt.Sprintf("%s name cannot be empty", kind))
	}
	if len(name) > maxIdentifierLen {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidIdentifier,
			fmt.Sprintf("%s name %q exceeds %d characters", kind, name, maxIdentifierLen))
	}
	if !identifierPattern.MatchString(name) {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidIdentifier,
			fmt.Sprintf("invalid %s name %q: must start with a letter or underscore and contain only letters, digits, and underscores", kind, name))
	}
	if _, reserved := reservedKeywords[strings.ToLower(name)]; reserved {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidIdentifier,
			fmt.Sprintf("%s name %q is a reserved keyword", kind, name))
	}
	return nil
}

func validateDeclaredType(typ string) error {
	if typ == "" {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidSpec, "column type cannot be empty")
	}
	if !typePattern.MatchString(typ) {
		return lkerrors.NewValidationError(lkerrors.CodeInvalidSpec,
			fmt.Sprintf("invalid column type %q", typ))
	}
	return nil
}
