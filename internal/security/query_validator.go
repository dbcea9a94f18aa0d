package security

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyQuery       = errors.New("query is empty")
	ErrMultipleQueries  = errors.New("multi-statement queries are not allowed")
	ErrNotSelect        = errors.New("only SELECT queries are allowed")
	ErrForbiddenKeyword = errors.New("forbidden keyword detected")
	ErrSystemTable      = errors.New("access to system table blocked")
)

// forbiddenWords are matched as whole words anywhere in the statement.
var forbiddenWords = []string{
	"DELETE", "DROP", "INSERT", "UPDATE", "ALTER", "TRUNCATE", "GRANT", "REVOKE",
	"CREATE", "REPLACE", "CALL", "DO", "HANDLER", "LOAD", "UNION", "ATTACH", "PRAGMA",
	"INTO", "COPY",
}

// forbiddenCalls leak server details.
var forbiddenCalls = []string{
	"USER(", "VERSION(", "DATABASE(", "LOAD_FILE(", "PG_READ_FILE(", "SLEEP(", "PG_SLEEP(",
	"@@VERSION", "@@HOSTNAME",
}

var systemSchemas = []string{
	"INFORMATION_SCHEMA", "MYSQL", "PERFORMANCE_SCHEMA", "SYS", "PG_CATALOG",
	"SQLITE_MASTER", "SQLITE_SCHEMA",
}

// ValidateQuery accepts a single read-only SELECT (or WITH ... SELECT) statement
// that stays out of system schemas. Words inside identifiers like deleted_at are allowed.
func ValidateQuery(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return ErrEmptyQuery
	}
	upper := strings.ToUpper(q)

	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return ErrNotSelect
	}
	if strings.Contains(q, ";") {
		return ErrMultipleQueries
	}
	if strings.Contains(q, "--") || strings.Contains(q, "/*") {
		return fmt.Errorf("%w: comment", ErrForbiddenKeyword)
	}

	for _, word := range forbiddenWords {
		if containsWord(upper, word) {
			return fmt.Errorf("%w: %s", ErrForbiddenKeyword, word)
		}
	}
	for _, call := range forbiddenCalls {
		if strings.Contains(upper, call) {
			return fmt.Errorf("%w: %s", ErrForbiddenKeyword, strings.TrimSuffix(call, "("))
		}
	}
	for _, schema := range systemSchemas {
		if containsWord(upper, schema) {
			return fmt.Errorf("%w: %s", ErrSystemTable, schema)
		}
	}
	return nil
}

// containsWord reports whether word occurs in s delimited by SQL punctuation,
// whitespace or the ends of s. s must already be upper case.
func containsWord(s, word string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if (start == 0 || isBoundary(s[start-1])) && (end == len(s) || isBoundary(s[end])) {
			return true
		}
		from = start + 1
	}
}

func isBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '(', ')', ',', '=', '<', '>', '`', '.', '"', '[', ']':
		return true
	}
	return false
}
