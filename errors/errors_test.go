package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.Nil(t, WrapRuntime(nil, "context"))
}

func TestStackTrace(t *testing.T) {
	err := NewNotFoundError("job %q not found", "nightly")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     string
		exitCode int
	}{
		{"nil", nil, "", ExitOK},
		{"invalid input", NewInvalidInputError("job name is required"), KindInvalidInput, ExitInvalidInput},
		{"not found", NewNotFoundError("job %q not found", "x"), KindNotFound, ExitNotFound},
		{"conflict", NewConflictError("job %q already exists", "x"), KindConflict, ExitConflict},
		{"runtime", WrapRuntime(New("disk full"), "failed to append log"), KindRuntime, ExitRuntime},
		{"unclassified", New("boom"), KindRuntime, ExitRuntime},
		{"execution failure", Wrap(ErrExecutionFailure, "exit 9"), KindExecutionFailure, ExitRuntime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, Kind(tt.err))
			assert.Equal(t, tt.exitCode, ExitCode(tt.err))
		})
	}
}

func TestMarkedErrorsSurviveWrapping(t *testing.T) {
	err := Wrap(NewNotFoundError("job %q not found", "backup"), "disable job")

	require.True(t, IsNotFoundError(err))
	assert.False(t, IsConflictError(err))
	assert.False(t, IsInvalidInputError(err))
	assert.Equal(t, `disable job: job "backup" not found`, err.Error())
}

func TestErrorChaining(t *testing.T) {
	base := NewInvalidInputError("schedule %q is not valid", "5x")

	err := WithHint(base, "use <N><s|m|h|d>, @hourly, @daily or an RFC3339 instant")
	err = Wrap(err, "create job")

	assert.True(t, IsInvalidInputError(err))
	assert.Contains(t, GetAllHints(err), "use <N><s|m|h|d>, @hourly, @daily or an RFC3339 instant")
}

func ExampleNewNotFoundError() {
	err := NewNotFoundError("job %q not found", "nightly")
	fmt.Println(err, ExitCode(err))
	// Output: job "nightly" not found 3
}
