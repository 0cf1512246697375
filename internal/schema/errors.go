package schema

import (
	"fmt"
	"strings"
)

// UnknownToolError is returned by Lookup for names outside the registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

// ValidationError lists every reason a set of arguments was rejected.
type ValidationError struct {
	Tool    string
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %s", e.Tool, strings.Join(e.Reasons, "; "))
}
