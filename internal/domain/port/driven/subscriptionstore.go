// Package driven declares the outbound port interfaces the application layer
// depends on. Adapters implement them; services consume them.
package driven

import (
	"context"
	"errors"

	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
)

// ErrDuplicateSubscription is returned when a (user, repository) pairing
// already exists.
var ErrDuplicateSubscription = errors.New("subscription already exists for this repository")

// ErrNotFound is wrapped by single-row updates and deletes that matched no
// row, letting callers tell a missing row apart from a store failure.
var ErrNotFound = errors.New("not found")

// SubscriptionStore defines the driven port for subscription persistence.
// All queries are scoped by user; the store never returns another user's rows.
type SubscriptionStore interface {
	// Create inserts a subscription and returns its assigned ID.
	// Returns ErrDuplicateSubscription on a (user_id, repo_full_name) clash.
	Create(ctx context.Context, sub model.Subscription) (int64, error)

	// GetByID returns nil, nil when the subscription does not exist.
	GetByID(ctx context.Context, id int64) (*model.Subscription, error)

	ListByUser(ctx context.Context, userID string) ([]model.Subscription, error)

	// ListAutoTest returns every subscription with auto_test enabled,
	// across all users. Used by poll-all and the scheduler tick.
	ListAutoTest(ctx context.Context) ([]model.Subscription, error)

	// UpdateCredentialID atomically swaps the linked credential.
	UpdateCredentialID(ctx context.Context, id int64, credentialID int64) error

	// UpdateLastPolledAt records a successful poll attempt. Failed polls
	// must not call this.
	UpdateLastPolledAt(ctx context.Context, id int64) error

	// Delete removes the subscription row only; test run history for it is
	// retained. Returns an error when the row does not exist or belongs to
	// a different user.
	Delete(ctx context.Context, id int64, userID string) error
}
