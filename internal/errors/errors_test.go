package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndRetryable(t *testing.T) {
	err := New(ErrCodeConnection, "store unavailable", nil)
	assert.Equal(t, CategoryConnection, err.Category)
	assert.True(t, err.Retryable)
	assert.Equal(t, SeverityFatal, err.Severity)
}

func TestCancellationError_IsCancellationCategory(t *testing.T) {
	err := CancellationError("job cancelled during scraping progress")
	assert.True(t, IsCancellation(err))
	assert.False(t, IsFatal(err))
}

func TestDimensionError_Category(t *testing.T) {
	err := DimensionError("model dimension exceeds store dimension", nil)
	assert.Equal(t, CategoryDimension, GetCategory(err))
}

func TestError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("disk full")
	wrapped := Wrap(ErrCodeConnection, cause)
	assert.ErrorIs(t, wrapped, cause)

	a := New(ErrCodeNotFound, "x", nil)
	b := New(ErrCodeNotFound, "y", nil)
	assert.True(t, errors.Is(a, b))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := ValidationError("missing url", nil).WithDetail("field", "url").WithSuggestion("set url")
	assert.Equal(t, "url", err.Details["field"])
	assert.Equal(t, "set url", err.Suggestion)
}

func TestLibraryNotFoundError(t *testing.T) {
	err := &LibraryNotFoundError{Library: "reactt", Suggestions: []string{"react"}}
	assert.Contains(t, err.Error(), "react")
}

func TestVersionNotFoundError(t *testing.T) {
	err := &VersionNotFoundError{Library: "lib", RequestedVersion: "9.0.0"}
	assert.Contains(t, err.Error(), "lib")
}

func TestFormatForCLI_IncludesSuggestionAndCode(t *testing.T) {
	err := ValidationError("missing url", nil).WithSuggestion("set url on every document")
	out := FormatForCLI(err)
	assert.Contains(t, out, "missing url")
	assert.Contains(t, out, "set url on every document")
	assert.Contains(t, out, ErrCodeInvalidInput)

	assert.Contains(t, FormatForCLI(errors.New("plain")), "plain")
	assert.Empty(t, FormatForCLI(nil))
}

func TestFormatForLog_FlattensToAttrPairs(t *testing.T) {
	attrs := FormatForLog(Wrap(ErrCodeConnection, errors.New("disk full")))
	require.NotEmpty(t, attrs)
	assert.Equal(t, "error_code", attrs[0])
	assert.Equal(t, ErrCodeConnection, attrs[1])
	assert.Contains(t, attrs, "disk full")
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	err := Retry(context.Background(), cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, DefaultRetryConfig(), func() error { return errors.New("x") })
	assert.ErrorIs(t, err, context.Canceled)
}
