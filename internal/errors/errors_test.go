package errors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dserrors "github.com/CourageToGroww/secret-keeper/internal/errors"
)

func TestUserErrorFormatting(t *testing.T) {
	t.Parallel()

	err := dserrors.UserError{
		Message:    "Operation failed",
		Details:    "Connection timeout",
		Suggestion: "Check network connectivity",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "Operation failed")
	assert.Contains(t, errMsg, "Connection timeout")
	assert.Contains(t, errMsg, "Check network connectivity")
}

func TestConfigErrorFormatting(t *testing.T) {
	t.Parallel()

	err := dserrors.ConfigError{
		Field:      "socketDir",
		Value:      "invalid-path",
		Message:    "Invalid path",
		Suggestion: "Use an absolute path",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "socketDir")
	assert.Contains(t, errMsg, "invalid-path")
	assert.Contains(t, errMsg, "Invalid path")
	assert.Contains(t, errMsg, "Use an absolute path")
}

func TestCommandErrorFormatting(t *testing.T) {
	t.Parallel()

	err := dserrors.CommandError{
		Command:    "env",
		ExitCode:   1,
		Message:    "blocked by policy",
		Suggestion: "use a non-introspecting command",
	}

	errMsg := err.Error()

	assert.Contains(t, errMsg, "env")
	assert.Contains(t, errMsg, "exit code: 1")
	assert.Contains(t, errMsg, "blocked by policy")
}

func TestUserErrorUnwrap(t *testing.T) {
	t.Parallel()

	root := fmt.Errorf("root cause")
	err := dserrors.UserError{Message: "wrapped", Err: root}

	assert.Equal(t, root, errors.Unwrap(err))
	assert.ErrorIs(t, err, root)
}

func TestCommandBlockedIsFirstClassOutcome(t *testing.T) {
	t.Parallel()

	blocked := dserrors.CommandBlocked{Reason: "Command 'env' is blocked for security"}
	assert.Equal(t, "Command 'env' is blocked for security", blocked.Error())
}

func TestRotationErrorWrapsProviderFailure(t *testing.T) {
	t.Parallel()

	inner := fmt.Errorf("exit status 1")
	err := dserrors.RotationError{Secret: "DB_PASSWORD", Provider: "custom", Message: "rotate command failed", Err: inner}

	assert.Contains(t, err.Error(), "DB_PASSWORD")
	assert.Contains(t, err.Error(), "custom")
	assert.ErrorIs(t, err, inner)
}

func TestSentinelErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	assert.NotErrorIs(t, dserrors.ErrVaultNotInitialized, dserrors.ErrVaultLocked)
	assert.NotErrorIs(t, dserrors.ErrDecryptionFailed, dserrors.ErrSecretNotFound)
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, dserrors.IsRetryable(fmt.Errorf("connection reset by peer")))
	assert.True(t, dserrors.IsRetryable(fmt.Errorf("ThrottlingException: rate limit exceeded")))
	assert.False(t, dserrors.IsRetryable(fmt.Errorf("secret not found")))
	assert.False(t, dserrors.IsRetryable(nil))
}

func TestWrapCommandNotFound(t *testing.T) {
	t.Parallel()

	err := dserrors.WrapCommandNotFound("npm", fmt.Errorf("exec: \"npm\": executable file not found in $PATH"))
	var cmdErr dserrors.CommandError
	assert.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "npm", cmdErr.Command)
	assert.Equal(t, 127, cmdErr.ExitCode)
}
