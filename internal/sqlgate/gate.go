package sqlgate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Policy is the statement kind rule attached to a SQL-bearing tool.
type Policy struct {
	// Expected names the accepted kind in error messages.
	Expected string
	Allow    func(Kind) bool
}

var (
	// ReadOnly accepts SELECT statements only.
	ReadOnly = Policy{Expected: "SELECT", Allow: func(k Kind) bool { return k == Read }}
	// NonRead accepts anything that is not a SELECT, CREATE TABLE included.
	NonRead = Policy{Expected: "non-SELECT", Allow: func(k Kind) bool { return k != Read }}
	// TableCreation accepts CREATE TABLE statements only.
	TableCreation = Policy{Expected: "CREATE TABLE", Allow: func(k Kind) bool { return k == CreateTable }}
)

// prefixLen bounds the SQL excerpt carried by GatingError.
const prefixLen = 32

// GatingError reports SQL whose kind the tool does not accept.
type GatingError struct {
	Tool     string
	Expected string
	Got      Kind
	Prefix   string
}

func (e *GatingError) Error() string {
	if e.Expected == ReadOnly.Expected {
		return fmt.Sprintf("only SELECT queries are allowed for %s (got %s statement %q)", e.Tool, e.Got, e.Prefix)
	}
	if e.Expected == NonRead.Expected {
		return fmt.Sprintf("SELECT queries are not allowed for %s (got %s statement %q)", e.Tool, e.Got, e.Prefix)
	}
	return fmt.Sprintf("only %s statements are allowed for %s (got %s statement %q)", e.Expected, e.Tool, e.Got, e.Prefix)
}

// MultiStatementError is returned in strict mode for input holding more than
// one statement.
type MultiStatementError struct {
	Tool   string
	Prefix string
}

func (e *MultiStatementError) Error() string {
	return fmt.Sprintf("multiple statements are not allowed for %s (got %q)", e.Tool, e.Prefix)
}

// Gate checks sql against the tool's policy. With strict set, input holding
// more than one statement is rejected as well.
func Gate(tool string, p Policy, sql string, strict bool) error {
	if k := Classify(sql); !p.Allow(k) {
		return &GatingError{Tool: tool, Expected: p.Expected, Got: k, Prefix: excerpt(sql)}
	}
	if strict && !SingleStatement(sql) {
		return &MultiStatementError{Tool: tool, Prefix: excerpt(sql)}
	}
	return nil
}

func excerpt(sql string) string {
	s := strings.Join(strings.Fields(sql), " ")
	if len(s) <= prefixLen {
		return s
	}
	n := prefixLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
