package security

import (
	"errors"
	"regexp"
	"strings"

	"vitess.io/vitess/go/vt/sqlparser"
)

var (
	ErrNotReadOnly      = errors.New("only read-only statements are allowed")
	ErrEmptyQuery       = errors.New("query cannot be empty")
	ErrQueryTooLong     = errors.New("query exceeds maximum length")
	ErrMultiStatement   = errors.New("multiple statements are not allowed")
	ErrDangerousKeyword = errors.New("dangerous SQL keyword detected")
)

// readOnlyLeaders are the statement keywords accepted when the parser cannot
// read the dialect (quoted identifiers, Dremio table functions)
var readOnlyLeaders = []string{"SELECT", "WITH", "VALUES", "SHOW", "DESCRIBE", "EXPLAIN"}

var dangerousKeywords = regexp.MustCompile(`(?i)\b(DROP|DELETE|UPDATE|INSERT|CREATE|ALTER|TRUNCATE|MERGE|GRANT|REVOKE|COPY\s+INTO|REFRESH)\b`)

var leadingComments = regexp.MustCompile(`(?s)^(\s*(--[^\n]*\n|/\*.*?\*/))*`)

// SQLValidator rejects statements that could modify data
type SQLValidator struct {
	maxQueryLength int
	parser         *sqlparser.Parser
}

// NewSQLValidator creates a new SQLValidator instance
func NewSQLValidator(maxQueryLength int) *SQLValidator {
	if maxQueryLength <= 0 {
		maxQueryLength = 100000
	}
	return &SQLValidator{
		maxQueryLength: maxQueryLength,
		parser:         sqlparser.NewTestParser(),
	}
}

// ValidateStatement returns nil when sql is a single read-only statement
func (sv *SQLValidator) ValidateStatement(sql string) error {
	if strings.TrimSpace(sql) == "" {
		return ErrEmptyQuery
	}
	if len(sql) > sv.maxQueryLength {
		return ErrQueryTooLong
	}

	normalized := normalizeSQL(sql)

	if stmt, err := sv.parser.Parse(normalized); err == nil {
		if !isReadOnlyStatement(stmt) {
			return ErrNotReadOnly
		}
		return nil
	}

	// The MySQL grammar does not cover every Dremio construct, so fall back
	// to a lexical check when parsing fails.
	if strings.Contains(normalized, ";") {
		return ErrMultiStatement
	}
	if !hasReadOnlyLeader(normalized) {
		return ErrNotReadOnly
	}
	if dangerousKeywords.MatchString(stripStringLiterals(normalized)) {
		return ErrDangerousKeyword
	}
	return nil
}

// IsReadOnly checks if the SQL statement is read-only
func (sv *SQLValidator) IsReadOnly(sql string) bool {
	return sv.ValidateStatement(sql) == nil
}

func isReadOnlyStatement(stmt sqlparser.Statement) bool {
	switch stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.Show, *sqlparser.ExplainStmt, *sqlparser.ExplainTab:
		return true
	default:
		return false
	}
}

func hasReadOnlyLeader(sql string) bool {
	upper := strings.ToUpper(sql)
	for _, leader := range readOnlyLeaders {
		if strings.HasPrefix(upper, leader) {
			rest := upper[len(leader):]
			if rest == "" || rest[0] == ' ' || rest[0] == '\n' || rest[0] == '\t' || rest[0] == '(' {
				return true
			}
		}
	}
	return false
}

func stripStringLiterals(sql string) string {
	var b strings.Builder
	inString := false
	for _, r := range sql {
		if r == '\'' {
			inString = !inString
			continue
		}
		if !inString {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeSQL(sql string) string {
	sql = strings.TrimSpace(sql)
	sql = strings.TrimSpace(leadingComments.ReplaceAllString(sql, ""))
	for strings.HasSuffix(sql, ";") {
		sql = strings.TrimSpace(strings.TrimSuffix(sql, ";"))
	}
	return sql
}
