// Package sqlgate classifies SQL text by statement kind and decides whether a
// tool may run it.
//
// Classification is lexical: the first keyword(s) of the trimmed text decide
// the kind. It does not parse SQL, so a write hidden behind a leading comment
// or after a semicolon is not detected; SingleStatement narrows the latter
// when strict mode is enabled.
package sqlgate

import (
	"strings"
	"unicode"
)

// Kind is the coarse classification of a statement.
type Kind int

const (
	Write Kind = iota
	Read
	CreateTable
)

func (k Kind) String() string {
	switch k {
	case Read:
		return "read"
	case CreateTable:
		return "create_table"
	default:
		return "write"
	}
}

// Classify returns the kind of sql. The caller keeps the original text for
// execution; only an uppercased copy is inspected here.
func Classify(sql string) Kind {
	upper := strings.ToUpper(strings.TrimSpace(sql))
	switch {
	case strings.HasPrefix(upper, "SELECT"):
		return Read
	case strings.HasPrefix(upper, "CREATE TABLE"):
		return CreateTable
	default:
		return Write
	}
}

// SingleStatement reports whether sql holds at most one statement: once
// string literals, quoted identifiers and comments are stripped, the only
// semicolon allowed is a trailing one.
func SingleStatement(sql string) bool {
	stripped := strings.TrimRightFunc(stripLiterals(sql), unicode.IsSpace)
	stripped = strings.TrimSuffix(stripped, ";")
	return !strings.Contains(stripped, ";")
}

// stripLiterals removes '...', "...", `...`, [...] quoting along with -- and
// /* */ comments. Unterminated constructs run to the end of the input.
func stripLiterals(sql string) string {
	var b strings.Builder
	b.Grow(len(sql))
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(sql, i, c)
			b.WriteByte(' ')
		case c == '[':
			if j := strings.IndexByte(sql[i+1:], ']'); j >= 0 {
				i += j + 1
			} else {
				i = len(sql)
			}
			b.WriteByte(' ')
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			if j := strings.IndexByte(sql[i:], '\n'); j >= 0 {
				i += j
			} else {
				i = len(sql)
			}
			b.WriteByte(' ')
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			if j := strings.Index(sql[i+2:], "*/"); j >= 0 {
				i += j + 3
			} else {
				i = len(sql)
			}
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// skipQuoted returns the index of the closing quote matching sql[start],
// honouring doubled quotes as escapes.
func skipQuoted(sql string, start int, q byte) int {
	for i := start + 1; i < len(sql); i++ {
		if sql[i] != q {
			continue
		}
		if i+1 < len(sql) && sql[i+1] == q {
			i++
			continue
		}
		return i
	}
	return len(sql)
}
