package apperror_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/internal/apperror"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(apperror.NotFound("test run", 7)))
	assert.Equal(t, apperror.KindValidation, apperror.KindOf(apperror.Validation("user_id", "must not be empty")))
	assert.Equal(t, apperror.KindInvalidCredential, apperror.KindOf(apperror.InvalidCredential("token rejected")))
	assert.Equal(t, apperror.KindAccessDenied, apperror.KindOf(apperror.AccessDenied("no read permission")))
	assert.Equal(t, apperror.KindRepoNotFound, apperror.KindOf(apperror.RepoNotFound("octocat/gone")))
	assert.Equal(t, apperror.KindNetwork, apperror.KindOf(apperror.Network(errors.New("connection refused"))))
	assert.Equal(t, apperror.KindTimeout, apperror.KindOf(apperror.Timeout("listing pull requests", nil)))

	assert.Equal(t, apperror.KindInternal, apperror.KindOf(errors.New("plain error")))
	assert.Equal(t, apperror.KindInternal, apperror.KindOf(nil))
}

func TestKindOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("poll subscription 3: %w", apperror.RepoNotFound("octocat/gone"))
	assert.Equal(t, apperror.KindRepoNotFound, apperror.KindOf(err))
}

func TestRateLimit_CarriesResetAndTier(t *testing.T) {
	resetAt := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	cause := errors.New("403 rate limit exceeded")

	err := apperror.RateLimit("anonymous", resetAt, cause)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.KindRateLimit, appErr.Kind)
	assert.Equal(t, "anonymous", appErr.Tier)
	assert.Equal(t, resetAt, appErr.ResetAt)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "2026-03-10T13:00:00Z")
}

func TestNotFound_Message(t *testing.T) {
	assert.EqualError(t, apperror.NotFound("subscription", 12), "subscription 12 not found")
	assert.EqualError(t, apperror.Validation("token", "must not be empty"), "token: must not be empty")
}
