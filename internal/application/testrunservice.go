package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rs/xid"

	"github.com/nightwatch-dev/nightwatch/internal/apperror"
	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

// defaultListLimit caps test history queries when the caller does not say.
const defaultListLimit = 50

// TestRunService owns the test run state machine: creation, the handoff to
// the scenario executor, status transitions, and the two targeted
// re-execution operations.
//
// Status is monotone: pending -> running -> {completed|failed}. A
// single-scenario rerun never moves status; RegenerateScenarios is the only
// operation allowed to re-terminate a terminal run.
type TestRunService struct {
	runs        driven.TestRunStore
	subs        driven.SubscriptionStore
	exec        driven.ScenarioExecutor
	execTimeout time.Duration
}

// NewTestRunService creates a TestRunService. exec may be nil when no
// executor is configured; runs then stay pending until one is.
func NewTestRunService(runs driven.TestRunStore, subs driven.SubscriptionStore, exec driven.ScenarioExecutor, execTimeout time.Duration) *TestRunService {
	return &TestRunService{
		runs:        runs,
		subs:        subs,
		exec:        exec,
		execTimeout: execTimeout,
	}
}

// CreateForPR materializes a pending run for a detected PR.
func (s *TestRunService) CreateForPR(ctx context.Context, sub model.Subscription, pr model.PullRequest) (*model.TestRun, error) {
	run := model.TestRun{
		SubscriptionID: sub.ID,
		RepoFullName:   sub.RepoFullName,
		PRNumber:       pr.Number,
		PRTitle:        pr.Title,
		PRURL:          pr.URL,
		BranchName:     pr.Branch,
		Status:         model.TestStatusPending,
		CreatedAt:      time.Now().UTC(),
	}

	id, err := s.runs.Create(ctx, run)
	if err != nil {
		return nil, err
	}
	run.ID = id

	return &run, nil
}

// StartAutoTest hands a pending run to the executor in the background. The
// triggering request (HTTP poll or scheduler tick) does not wait; the
// dashboard observes status by polling. A background context detaches the
// execution from the trigger's cancellation.
func (s *TestRunService) StartAutoTest(run model.TestRun) {
	if s.exec == nil {
		slog.Warn("no scenario executor configured, run stays pending", "test_id", run.ID)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.execTimeout)
		defer cancel()

		if err := s.execute(ctx, run); err != nil {
			slog.Error("auto-test execution failed", "test_id", run.ID, "pr", run.PRNumber, "error", err)
		}
	}()
}

// execute drives one full run: running -> executor -> terminal.
func (s *TestRunService) execute(ctx context.Context, run model.TestRun) error {
	if err := s.runs.UpdateStatus(ctx, run.ID, model.TestStatusRunning, nil); err != nil {
		return err
	}

	scenarios, err := s.exec.GenerateAndRun(ctx, prContext(run))
	now := time.Now().UTC()
	if err != nil {
		if updErr := s.runs.UpdateStatus(ctx, run.ID, model.TestStatusFailed, &now); updErr != nil {
			slog.Error("failed to mark run failed", "test_id", run.ID, "error", updErr)
		}
		return err
	}

	status := model.TestStatusFailed
	if model.ScenariosAllPassed(scenarios) {
		status = model.TestStatusCompleted
	}

	reportPath := fmt.Sprintf("reports/%s.html", xid.New())

	if err := s.runs.UpdateResults(ctx, run.ID, scenarios, reportPath, status, now); err != nil {
		return err
	}

	slog.Info("test run finished",
		"test_id", run.ID,
		"repo", run.RepoFullName,
		"pr", run.PRNumber,
		"status", string(status),
		"scenarios", len(scenarios),
	)

	return nil
}

// Get returns a single run.
func (s *TestRunService) Get(ctx context.Context, id int64) (*model.TestRun, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, apperror.NotFound("test run", id)
	}
	return run, nil
}

// List returns run history, newest first: for one subscription when
// subscriptionID is non-nil, otherwise across all of the user's
// subscriptions. Both paths are scoped to the user; listing another user's
// subscription reads as not found, the same answer Get gives.
func (s *TestRunService) List(ctx context.Context, userID string, subscriptionID *int64, limit int) ([]model.TestRun, error) {
	if userID == "" {
		return nil, apperror.Validation("user_id", "must not be empty")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	if subscriptionID != nil {
		sub, err := s.subs.GetByID(ctx, *subscriptionID)
		if err != nil {
			return nil, err
		}
		if sub == nil || sub.UserID != userID {
			return nil, apperror.NotFound("subscription", *subscriptionID)
		}
		return s.runs.ListBySubscription(ctx, *subscriptionID, limit)
	}

	return s.runs.ListByUser(ctx, userID, limit)
}

// RerunScenario re-executes exactly one scenario, replacing it in place.
// Index and description are preserved; every other field comes from the
// fresh execution. The run's aggregate status is deliberately untouched --
// it is a snapshot of the last full execution, not a live recomputation, so
// a terminal run can never flip back to running through this path.
func (s *TestRunService) RerunScenario(ctx context.Context, testID int64, index int) (*model.Scenario, error) {
	if s.exec == nil {
		return nil, apperror.Network(fmt.Errorf("no scenario executor configured"))
	}

	run, err := s.Get(ctx, testID)
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(run.Scenarios) {
		return nil, apperror.NotFound("scenario", fmt.Sprintf("%d/%d", testID, index))
	}

	ctx, cancel := context.WithTimeout(ctx, s.execTimeout)
	defer cancel()

	result, err := s.exec.Rerun(ctx, prContext(*run), run.Scenarios[index])
	if err != nil {
		return nil, err
	}

	run.Scenarios[index] = result
	if err := s.runs.UpdateScenarios(ctx, testID, run.Scenarios); err != nil {
		return nil, err
	}

	slog.Info("scenario rerun",
		"test_id", testID,
		"index", index,
		"passed", result.Passed(),
	)

	return &result, nil
}

// RegenerateScenarios discards the run's scenario set, requests and executes
// a fresh one, and re-terminates the run as if it were a new execution. The
// call blocks until every new scenario finishes. This is the only operation
// that reopens a terminal run.
func (s *TestRunService) RegenerateScenarios(ctx context.Context, testID int64) (int, error) {
	if s.exec == nil {
		return 0, apperror.Network(fmt.Errorf("no scenario executor configured"))
	}

	run, err := s.Get(ctx, testID)
	if err != nil {
		return 0, err
	}

	if err := s.runs.UpdateStatus(ctx, testID, model.TestStatusRunning, nil); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.execTimeout)
	defer cancel()

	scenarios, err := s.exec.GenerateAndRun(ctx, prContext(*run))
	now := time.Now().UTC()
	if err != nil {
		if updErr := s.runs.UpdateStatus(ctx, testID, model.TestStatusFailed, &now); updErr != nil {
			slog.Error("failed to mark run failed", "test_id", testID, "error", updErr)
		}
		return 0, err
	}

	status := model.TestStatusFailed
	if model.ScenariosAllPassed(scenarios) {
		status = model.TestStatusCompleted
	}

	reportPath := fmt.Sprintf("reports/%s.html", xid.New())

	if err := s.runs.UpdateResults(ctx, testID, scenarios, reportPath, status, now); err != nil {
		return 0, err
	}

	slog.Info("scenarios regenerated",
		"test_id", testID,
		"status", string(status),
		"scenarios", len(scenarios),
	)

	return len(scenarios), nil
}

func prContext(run model.TestRun) driven.PRContext {
	return driven.PRContext{
		RepoFullName: run.RepoFullName,
		PRNumber:     run.PRNumber,
		PRTitle:      run.PRTitle,
		PRURL:        run.PRURL,
		BranchName:   run.BranchName,
	}
}
