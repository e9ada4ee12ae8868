package query

import (
	"strings"
	"unicode"
)

// StatementKind buckets a statement by its effect on the database.
type StatementKind int

const (
	// KindRead covers SELECT, VALUES, PRAGMA, and EXPLAIN.
	KindRead StatementKind = iota
	// KindDML covers INSERT, UPDATE, DELETE, and REPLACE.
	KindDML
	// KindDDL covers CREATE, DROP, and ALTER.
	KindDDL
	// KindOther covers everything else (VACUUM, ANALYZE, ATTACH, ...).
	KindOther
)

// bindingInfo is what a scan of the statement text found about parameters.
type bindingInfo struct {
	positional int
	named      bool
}

// scanBindings counts ? placeholders in the statement text, skipping string
// literals, quoted identifiers, and comments. Named or numbered parameters
// (:name, @name, $name, ?NNN) are flagged rather than counted; only plain
// positional binding is supported.
func scanBindings(sql string) bindingInfo {
	var info bindingInfo
	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == '\'':
			i = skipQuoted(sql, i, '\'')
		case c == '"':
			i = skipQuoted(sql, i, '"')
		case c == '`':
			i = skipQuoted(sql, i, '`')
		case c == '[':
			i = skipBracketed(sql, i)
		case c == '-' && i+1 < n && sql[i+1] == '-':
			i = skipLineComment(sql, i)
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i = skipBlockComment(sql, i)
		case c == '?':
			if i+1 < n && isDigit(sql[i+1]) {
				info.named = true
				i++
			} else {
				info.positional++
				i++
			}
		case (c == ':' || c == '@' || c == '$') && i+1 < n && isIdentByte(sql[i+1]):
			info.named = true
			i++
		default:
			i++
		}
	}
	return info
}

// ClassifyStatement determines the kind of a statement from its first
// significant keyword. WITH is resolved by scanning the rest of the text
// outside literals for a writing verb, so CTE-fronted DML classifies as DML.
func ClassifyStatement(sql string) StatementKind {
	kw := strings.ToUpper(leadingKeyword(sql))
	switch kw {
	case "SELECT", "VALUES", "PRAGMA", "EXPLAIN":
		return KindRead
	case "INSERT", "UPDATE", "DELETE", "REPLACE":
		return KindDML
	case "CREATE", "DROP", "ALTER":
		return KindDDL
	case "WITH":
		for _, word := range keywords(sql) {
			switch word {
			case "INSERT", "UPDATE", "DELETE", "REPLACE":
				return KindDML
			}
		}
		return KindRead
	default:
		return KindOther
	}
}

// changedFor applies the mutation rule per kind: DDL always changes the
// schema, DML changes state only when rows were affected, reads never do.
func changedFor(kind StatementKind, rowsAffected int64) bool {
	switch kind {
	case KindDDL:
		return true
	case KindDML:
		return rowsAffected > 0
	default:
		return false
	}
}

// leadingKeyword returns the first bare word of the statement, skipping
// whitespace and comments.
func leadingKeyword(sql string) string {
	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case unicode.IsSpace(rune(c)):
			i++
		case c == '-' && i+1 < n && sql[i+1] == '-':
			i = skipLineComment(sql, i)
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i = skipBlockComment(sql, i)
		case c == '(':
			// parenthesized statements like (SELECT ...)
			i++
		default:
			start := i
			for i < n && isIdentByte(sql[i]) {
				i++
			}
			return sql[start:i]
		}
	}
	return ""
}

// keywords lists every bare word in the statement outside literals and
// comments, uppercased.
func keywords(sql string) []string {
	var words []string
	i := 0
	n := len(sql)
	for i < n {
		c := sql[i]
		switch {
		case c == '\'':
			i = skipQuoted(sql, i, '\'')
		case c == '"':
			i = skipQuoted(sql, i, '"')
		case c == '`':
			i = skipQuoted(sql, i, '`')
		case c == '[':
			i = skipBracketed(sql, i)
		case c == '-' && i+1 < n && sql[i+1] == '-':
			i = skipLineComment(sql, i)
		case c == '/' && i+1 < n && sql[i+1] == '*':
			i = skipBlockComment(sql, i)
		case isIdentStart(c):
			start := i
			for i < n && isIdentByte(sql[i]) {
				i++
			}
			words = append(words, strings.ToUpper(sql[start:i]))
		default:
			i++
		}
	}
	return words
}

// skipQuoted advances past a quoted region starting at i, honoring the
// doubled-quote escape.
func skipQuoted(sql string, i int, quote byte) int {
	i++
	n := len(sql)
	for i < n {
		if sql[i] == quote {
			if i+1 < n && sql[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		}
		i++
	}
	return n
}

func skipBracketed(sql string, i int) int {
	i++
	n := len(sql)
	for i < n && sql[i] != ']' {
		i++
	}
	if i < n {
		i++
	}
	return i
}

func skipLineComment(sql string, i int) int {
	n := len(sql)
	for i < n && sql[i] != '\n' {
		i++
	}
	return i
}

func skipBlockComment(sql string, i int) int {
	n := len(sql)
	i += 2
	for i+1 < n {
		if sql[i] == '*' && sql[i+1] == '/' {
			return i + 2
		}
		i++
	}
	return n
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
