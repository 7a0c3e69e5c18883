package api

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeoutError(t *testing.T) {
	err := fmt.Errorf("restart: %w", &TimeoutError{Kind: WaitRestartDrain, Timeout: 5 * time.Minute})

	assert.True(t, IsTimeout(err))
	assert.False(t, IsRemoteBusy(err))
	kind, ok := TimeoutKind(err)
	assert.True(t, ok)
	assert.Equal(t, WaitRestartDrain, kind)
	assert.Contains(t, err.Error(), "restart-drain")

	_, ok = TimeoutKind(errors.New("plain"))
	assert.False(t, ok)
}

func TestRemoteBusyErrorUnwrapsWait(t *testing.T) {
	wait := &TimeoutError{Kind: WaitDownloadQuiescence, Timeout: time.Minute}
	err := &RemoteBusyError{Reason: "plugin downloads in progress", Pending: []string{"git.jpi.tmp"}, Cause: wait}

	assert.True(t, IsRemoteBusy(err))
	assert.True(t, IsTimeout(err))
	kind, _ := TimeoutKind(err)
	assert.Equal(t, WaitDownloadQuiescence, kind)
	assert.Equal(t, "remote workload busy: plugin downloads in progress (1 pending: git.jpi.tmp)", err.Error())
}

func TestRemoteAPIError(t *testing.T) {
	cause := errors.New("HTTP 500")
	err := NewRemoteAPIError("delete-plugins", cause, "a", "b")

	assert.True(t, IsRemoteAPI(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "remote delete-plugins failed for a, b: HTTP 500", err.Error())
	assert.Equal(t, "remote list-plugins failed: HTTP 500", NewRemoteAPIError("list-plugins", cause).Error())
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Source: "agent/0", Field: "executors", Value: "abc", Reason: "not an integer"}

	assert.True(t, IsValidation(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, `invalid agent/0 field executors "abc": not an integer`, err.Error())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ok", OutcomeOK.String())
	assert.Equal(t, "already-exists", OutcomeAlreadyExists.String())
	assert.Equal(t, "not-found", OutcomeNotFound.String())
	assert.Equal(t, "error", OutcomeError.String())
}
