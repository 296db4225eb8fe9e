package driven

import (
	"context"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
)

// TestRunStore defines the driven port for test run persistence. Runs are
// append-mostly: history for a PR is never deleted or merged, and updates are
// single-row, keyed by ID.
type TestRunStore interface {
	// Create inserts a run and returns its assigned ID.
	Create(ctx context.Context, run model.TestRun) (int64, error)

	// GetByID returns nil, nil when the run does not exist.
	GetByID(ctx context.Context, id int64) (*model.TestRun, error)

	// ListBySubscription returns runs for one subscription, newest first,
	// capped at limit.
	ListBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]model.TestRun, error)

	// ListByUser returns runs across all of a user's subscriptions, newest
	// first, capped at limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]model.TestRun, error)

	// LatestForPR returns the most recent run for the (subscription, PR)
	// pair, or nil, nil when the PR has never been run.
	LatestForPR(ctx context.Context, subscriptionID int64, prNumber int) (*model.TestRun, error)

	// HasActiveRun reports whether a pending or running run exists for the
	// (subscription, PR) pair.
	HasActiveRun(ctx context.Context, subscriptionID int64, prNumber int) (bool, error)

	// UpdateStatus advances a run's status. completedAt is nil for
	// non-terminal transitions and clears any previous completion stamp,
	// so a reopened run never reports stale completion.
	UpdateStatus(ctx context.Context, id int64, status model.TestStatus, completedAt *time.Time) error

	// UpdateResults overwrites a run's scenario set, report path, status,
	// and completion time in one write.
	UpdateResults(ctx context.Context, id int64, scenarios []model.Scenario, reportPath string, status model.TestStatus, completedAt time.Time) error

	// UpdateScenarios overwrites only the scenario set, leaving status and
	// completion time untouched. Used by single-scenario reruns.
	UpdateScenarios(ctx context.Context, id int64, scenarios []model.Scenario) error
}
