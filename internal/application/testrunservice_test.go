package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nightwatch-dev/nightwatch/internal/apperror"
	"github.com/nightwatch-dev/nightwatch/internal/application"
	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

var testSub = model.Subscription{
	ID:           1,
	UserID:       "alice",
	RepoFullName: "octocat/hello-world",
	AutoTest:     true,
}

var testPR = model.PullRequest{
	Number:    42,
	Title:     "Add login form",
	URL:       "https://github.com/octocat/hello-world/pull/42",
	Branch:    "feature/login",
	UpdatedAt: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
}

func TestTestRunService_CreateForPR(t *testing.T) {
	store := newFakeTestRunStore()
	svc := application.NewTestRunService(store, newFakeSubStore(), nil, time.Minute)

	run, err := svc.CreateForPR(context.Background(), testSub, testPR)
	require.NoError(t, err)

	assert.Positive(t, run.ID)
	assert.Equal(t, testSub.ID, run.SubscriptionID)
	assert.Equal(t, "octocat/hello-world", run.RepoFullName)
	assert.Equal(t, 42, run.PRNumber)
	assert.Equal(t, "feature/login", run.BranchName)
	assert.Equal(t, model.TestStatusPending, run.Status)
	assert.Nil(t, run.Scenarios)
}

func TestTestRunService_StartAutoTest_Completes(t *testing.T) {
	store := newFakeTestRunStore()
	exec := &fakeExecutor{
		generate: func(_ driven.PRContext) ([]model.Scenario, error) {
			return passingScenarios(2), nil
		},
	}
	svc := application.NewTestRunService(store, newFakeSubStore(), exec, time.Minute)

	run, err := svc.CreateForPR(context.Background(), testSub, testPR)
	require.NoError(t, err)

	svc.StartAutoTest(*run)

	require.Eventually(t, func() bool {
		got, err := store.GetByID(context.Background(), run.ID)
		return err == nil && got != nil && got.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	got, err := store.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TestStatusCompleted, got.Status)
	assert.Len(t, got.Scenarios, 2)
	assert.NotEmpty(t, got.ReportPath)
	require.NotNil(t, got.CompletedAt)
}

func TestTestRunService_StartAutoTest_ScenarioFailure(t *testing.T) {
	store := newFakeTestRunStore()
	exec := &fakeExecutor{
		generate: func(_ driven.PRContext) ([]model.Scenario, error) {
			scenarios := passingScenarios(2)
			failed := false
			msg := "element not found"
			scenarios[1].Success = &failed
			scenarios[1].Error = &msg
			return scenarios, nil
		},
	}
	svc := application.NewTestRunService(store, newFakeSubStore(), exec, time.Minute)

	run, err := svc.CreateForPR(context.Background(), testSub, testPR)
	require.NoError(t, err)

	svc.StartAutoTest(*run)

	require.Eventually(t, func() bool {
		got, _ := store.GetByID(context.Background(), run.ID)
		return got != nil && got.Status.IsTerminal()
	}, 2*time.Second, 10*time.Millisecond)

	got, _ := store.GetByID(context.Background(), run.ID)
	assert.Equal(t, model.TestStatusFailed, got.Status, "one failing scenario fails the run")
}

func TestTestRunService_StartAutoTest_ExecutorError(t *testing.T) {
	store := newFakeTestRunStore()
	exec := &fakeExecutor{
		generate: func(_ driven.PRContext) ([]model.Scenario, error) {
			return nil, errors.New("pipeline unreachable")
		},
	}
	svc := application.NewTestRunService(store, newFakeSubStore(), exec, time.Minute)

	run, err := svc.CreateForPR(context.Background(), testSub, testPR)
	require.NoError(t, err)

	svc.StartAutoTest(*run)

	require.Eventually(t, func() bool {
		got, _ := store.GetByID(context.Background(), run.ID)
		return got != nil && got.Status == model.TestStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	got, _ := store.GetByID(context.Background(), run.ID)
	assert.Nil(t, got.Scenarios, "no scenarios were ever reported")
	require.NotNil(t, got.CompletedAt)
}

func TestTestRunService_StartAutoTest_NoExecutor(t *testing.T) {
	store := newFakeTestRunStore()
	svc := application.NewTestRunService(store, newFakeSubStore(), nil, time.Minute)

	run, err := svc.CreateForPR(context.Background(), testSub, testPR)
	require.NoError(t, err)

	svc.StartAutoTest(*run)

	// No executor configured: the run stays pending rather than failing.
	time.Sleep(50 * time.Millisecond)
	got, _ := store.GetByID(context.Background(), run.ID)
	assert.Equal(t, model.TestStatusPending, got.Status)
}

func TestTestRunService_Get_NotFound(t *testing.T) {
	svc := application.NewTestRunService(newFakeTestRunStore(), newFakeSubStore(), nil, time.Minute)

	_, err := svc.Get(context.Background(), 999)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestTestRunService_RerunScenario(t *testing.T) {
	store := newFakeTestRunStore()
	exec := &fakeExecutor{
		rerun: func(_ driven.PRContext, scenario model.Scenario) (model.Scenario, error) {
			ok := true
			scenario.Success = &ok
			scenario.Error = nil
			return scenario, nil
		},
	}
	svc := application.NewTestRunService(store, newFakeSubStore(), exec, time.Minute)

	scenarios := passingScenarios(3)
	failed := false
	scenarios[1].Success = &failed

	completedAt := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	id, err := store.Create(context.Background(), model.TestRun{
		SubscriptionID: 1,
		RepoFullName:   "octocat/hello-world",
		PRNumber:       42,
		Status:         model.TestStatusFailed,
		Scenarios:      scenarios,
		CreatedAt:      time.Now().UTC(),
		CompletedAt:    &completedAt,
	})
	require.NoError(t, err)

	result, err := svc.RerunScenario(context.Background(), id, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Index)
	assert.True(t, result.Passed())

	got, _ := store.GetByID(context.Background(), id)
	assert.True(t, got.Scenarios[1].Passed(), "scenario replaced in place")
	assert.Equal(t, model.TestStatusFailed, got.Status, "run status is a snapshot, rerun never moves it")
	assert.Equal(t, &completedAt, got.CompletedAt)
}

func TestTestRunService_RerunScenario_IndexOutOfRange(t *testing.T) {
	store := newFakeTestRunStore()
	exec := &fakeExecutor{
		rerun: func(_ driven.PRContext, s model.Scenario) (model.Scenario, error) { return s, nil },
	}
	svc := application.NewTestRunService(store, newFakeSubStore(), exec, time.Minute)

	id, err := store.Create(context.Background(), model.TestRun{
		SubscriptionID: 1,
		Status:         model.TestStatusCompleted,
		Scenarios:      passingScenarios(2),
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	for _, index := range []int{-1, 2, 99} {
		_, err := svc.RerunScenario(context.Background(), id, index)
		require.Error(t, err)
		assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
	}
}

func TestTestRunService_RerunScenario_RunNotFound(t *testing.T) {
	exec := &fakeExecutor{
		rerun: func(_ driven.PRContext, s model.Scenario) (model.Scenario, error) { return s, nil },
	}
	svc := application.NewTestRunService(newFakeTestRunStore(), newFakeSubStore(), exec, time.Minute)

	_, err := svc.RerunScenario(context.Background(), 999, 0)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestTestRunService_RegenerateScenarios(t *testing.T) {
	store := newFakeTestRunStore()
	exec := &fakeExecutor{
		generate: func(_ driven.PRContext) ([]model.Scenario, error) {
			return passingScenarios(4), nil
		},
	}
	svc := application.NewTestRunService(store, newFakeSubStore(), exec, time.Minute)

	oldCompletedAt := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	id, err := store.Create(context.Background(), model.TestRun{
		SubscriptionID: 1,
		RepoFullName:   "octocat/hello-world",
		PRNumber:       42,
		Status:         model.TestStatusFailed,
		Scenarios:      passingScenarios(2),
		ReportPath:     "reports/old.html",
		CreatedAt:      time.Now().UTC(),
		CompletedAt:    &oldCompletedAt,
	})
	require.NoError(t, err)

	count, err := svc.RegenerateScenarios(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	got, _ := store.GetByID(context.Background(), id)
	assert.Equal(t, model.TestStatusCompleted, got.Status, "regeneration re-terminates from the fresh set")
	assert.Len(t, got.Scenarios, 4)
	assert.NotEqual(t, "reports/old.html", got.ReportPath)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.After(oldCompletedAt))
}

func TestTestRunService_RegenerateScenarios_ExecutorError(t *testing.T) {
	store := newFakeTestRunStore()
	exec := &fakeExecutor{
		generate: func(_ driven.PRContext) ([]model.Scenario, error) {
			return nil, errors.New("pipeline unreachable")
		},
	}
	svc := application.NewTestRunService(store, newFakeSubStore(), exec, time.Minute)

	id, err := store.Create(context.Background(), model.TestRun{
		SubscriptionID: 1,
		Status:         model.TestStatusCompleted,
		Scenarios:      passingScenarios(2),
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = svc.RegenerateScenarios(context.Background(), id)
	require.Error(t, err)

	got, _ := store.GetByID(context.Background(), id)
	assert.Equal(t, model.TestStatusFailed, got.Status)
}

func TestTestRunService_List_SubscriptionScopedToUser(t *testing.T) {
	runs := newFakeTestRunStore()
	subs := newFakeSubStore()
	svc := application.NewTestRunService(runs, subs, nil, time.Minute)

	subID, err := subs.Create(context.Background(), model.Subscription{
		UserID:       "alice",
		RepoFullName: "octocat/hello-world",
		CreatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = runs.Create(context.Background(), model.TestRun{
		SubscriptionID: subID,
		PRNumber:       42,
		Status:         model.TestStatusPending,
		CreatedAt:      time.Now().UTC(),
	})
	require.NoError(t, err)

	got, err := svc.List(context.Background(), "alice", &subID, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// Another user naming the same subscription ID must not see alice's
	// history; the subscription reads as nonexistent for them.
	_, err = svc.List(context.Background(), "bob", &subID, 10)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNotFound, apperror.KindOf(err))
}

func TestTestRunService_RegenerateScenarios_ClearsStaleCompletion(t *testing.T) {
	store := newFakeTestRunStore()

	var (
		observedStatus      model.TestStatus
		observedCompletedAt *time.Time
	)
	exec := &fakeExecutor{
		generate: func(_ driven.PRContext) ([]model.Scenario, error) {
			// Snapshot the run as a status-polling client would see it
			// while the fresh set is executing.
			run, err := store.GetByID(context.Background(), 1)
			if err != nil || run == nil {
				return nil, errors.New("run vanished mid-regeneration")
			}
			observedStatus = run.Status
			observedCompletedAt = run.CompletedAt
			return passingScenarios(2), nil
		},
	}
	svc := application.NewTestRunService(store, newFakeSubStore(), exec, time.Minute)

	oldCompletedAt := time.Date(2026, 3, 10, 13, 0, 0, 0, time.UTC)
	id, err := store.Create(context.Background(), model.TestRun{
		SubscriptionID: 1,
		Status:         model.TestStatusCompleted,
		Scenarios:      passingScenarios(2),
		CreatedAt:      time.Now().UTC(),
		CompletedAt:    &oldCompletedAt,
	})
	require.NoError(t, err)

	_, err = svc.RegenerateScenarios(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, model.TestStatusRunning, observedStatus)
	assert.Nil(t, observedCompletedAt, "a running run must not carry the previous completion stamp")

	got, _ := store.GetByID(context.Background(), id)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, got.CompletedAt.After(oldCompletedAt))
}

func TestTestRunService_List_DefaultLimit(t *testing.T) {
	store := newFakeTestRunStore()
	svc := application.NewTestRunService(store, newFakeSubStore(), nil, time.Minute)

	for range 60 {
		_, err := store.Create(context.Background(), model.TestRun{
			SubscriptionID: 1,
			Status:         model.TestStatusPending,
			CreatedAt:      time.Now().UTC(),
		})
		require.NoError(t, err)
	}

	runs, err := svc.List(context.Background(), "alice", nil, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 50)
}
