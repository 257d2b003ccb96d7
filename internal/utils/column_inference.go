package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// InferColumnsFromSQL guesses result column names from a statement's SELECT
// list. It is used only when a driver cannot report a schema and the names it
// returns are not authoritative.
func InferColumnsFromSQL(sql string) []string {
	clause, ok := selectList(stripComments(sql))
	if !ok {
		return []string{placeholderName(0)}
	}

	parts := splitTopLevel(clause, ',')
	columns := make([]string, 0, len(parts))
	for i, part := range parts {
		columns = append(columns, inferColumnName(strings.TrimSpace(part), i))
	}
	if len(columns) == 0 {
		return []string{placeholderName(0)}
	}
	return columns
}

var (
	blockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment   = regexp.MustCompile(`--[^\n]*`)
	quotedAlias   = regexp.MustCompile(`"([^"]+)"$`)
	asAlias       = regexp.MustCompile(`(?i)\s+AS\s+(\S+)$`)
	bareAlias     = regexp.MustCompile(`\s+([A-Za-z_][A-Za-z0-9_$]*)$`)
	columnRef     = regexp.MustCompile(`^(?:[A-Za-z_][A-Za-z0-9_$]*\.)*([A-Za-z_][A-Za-z0-9_$]*)$`)
	distinctQuals = regexp.MustCompile(`(?i)^(DISTINCT|ALL)\s+`)
)

// words that end an expression rather than name it
var nonAliasWords = map[string]bool{
	"END": true, "NULL": true, "TRUE": true, "FALSE": true, "ASC": true, "DESC": true,
	"AND": true, "OR": true, "NOT": true, "THEN": true, "ELSE": true, "WHEN": true,
}

func placeholderName(ordinal int) string {
	return fmt.Sprintf("EXPR$%d", ordinal)
}

func stripComments(sql string) string {
	sql = blockComment.ReplaceAllString(sql, " ")
	return lineComment.ReplaceAllString(sql, " ")
}

// selectList returns the text between the first top-level SELECT and the
// matching top-level FROM, or the end of the statement.
func selectList(sql string) (string, bool) {
	start := findKeyword(sql, "SELECT", 0)
	if start < 0 {
		return "", false
	}
	from := start + len("SELECT")
	end := findKeyword(sql, "FROM", from)
	if end < 0 {
		end = len(sql)
		if semi := indexTopLevel(sql[from:], ';'); semi >= 0 {
			end = from + semi
		}
	}
	clause := strings.TrimSpace(sql[from:end])
	clause = distinctQuals.ReplaceAllString(clause, "")
	return clause, clause != ""
}

// findKeyword locates a keyword at parenthesis depth zero outside quotes.
func findKeyword(sql, keyword string, from int) int {
	depth := 0
	var quote byte
	upper := strings.ToUpper(sql)
	for i := from; i < len(sql); i++ {
		c := sql[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			continue
		case c == '\'' || c == '"' || c == '`':
			quote = c
			continue
		case c == '(':
			depth++
			continue
		case c == ')':
			depth--
			continue
		}
		if depth != 0 || !strings.HasPrefix(upper[i:], keyword) {
			continue
		}
		before := i == 0 || !isWordChar(rune(sql[i-1]))
		afterIdx := i + len(keyword)
		after := afterIdx >= len(sql) || !isWordChar(rune(sql[afterIdx]))
		if before && after {
			return i
		}
	}
	return -1
}

func indexTopLevel(s string, sep byte) int {
	parts := splitTopLevel(s, sep)
	if len(parts) < 2 {
		return -1
	}
	return len(parts[0])
}

// splitTopLevel splits on sep while respecting parentheses and quotes.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if tail := s[start:]; strings.TrimSpace(tail) != "" || len(parts) > 0 {
		parts = append(parts, tail)
	}
	return parts
}

func inferColumnName(part string, ordinal int) string {
	if part == "" {
		return placeholderName(ordinal)
	}
	if m := quotedAlias.FindStringSubmatch(part); m != nil {
		return m[1]
	}
	if m := asAlias.FindStringSubmatch(part); m != nil {
		return strings.Trim(m[1], "\"'`")
	}
	if m := bareAlias.FindStringSubmatchIndex(part); m != nil {
		word := part[m[2]:m[3]]
		head := strings.TrimRightFunc(part[:m[0]], unicode.IsSpace)
		if !nonAliasWords[strings.ToUpper(word)] && endsExpression(head) {
			return word
		}
	}
	if m := columnRef.FindStringSubmatch(part); m != nil {
		return m[1]
	}
	return placeholderName(ordinal)
}

// endsExpression reports whether text can be followed by an alias, which is
// not the case after a binary operator or keyword.
func endsExpression(head string) bool {
	if head == "" {
		return false
	}
	last := head[len(head)-1]
	if strings.ContainsRune("+-*/%=<>|&,(^", rune(last)) {
		return false
	}
	fields := strings.Fields(head)
	lastWord := strings.ToUpper(fields[len(fields)-1])
	switch lastWord {
	case "AND", "OR", "NOT", "IS", "LIKE", "IN", "BETWEEN", "CASE", "WHEN", "THEN", "ELSE", "DISTINCT":
		return false
	}
	return true
}

func isWordChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
