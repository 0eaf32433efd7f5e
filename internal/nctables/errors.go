package nctables

import (
	"fmt"
	"strings"
)

// StatusError reports a non-success response from the Tables API.
type StatusError struct {
	Method     string
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Endpoint, e.StatusCode, e.Body)
}

// UnknownColumnError reports upload columns that do not exist in the target
// table. The upload is rejected before any row is sent.
type UnknownColumnError struct {
	Columns []string
}

func (e *UnknownColumnError) Error() string {
	return "target table has no columns named: " + strings.Join(e.Columns, ", ")
}
