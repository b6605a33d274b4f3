package errors

import (
	"fmt"
	"strings"
)

// FormatForCLI renders an error for terminal output: message first, then
// the suggestion when one is attached, then the code for bug reports.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	e, ok := err.(*Error)
	if !ok {
		return "Error: " + err.Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s", e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&sb, "\n  Hint: %s", e.Suggestion)
	}
	fmt.Fprintf(&sb, "\n  Code: %s", e.Code)
	return sb.String()
}

// FormatForLog flattens an error into slog attribute key-value pairs.
func FormatForLog(err error) []any {
	if err == nil {
		return nil
	}

	e, ok := err.(*Error)
	if !ok {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", e.Code,
		"message", e.Message,
		"category", string(e.Category),
		"retryable", e.Retryable,
	}
	if e.Cause != nil {
		attrs = append(attrs, "cause", e.Cause.Error())
	}
	return attrs
}
