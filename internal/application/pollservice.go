package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/apperror"
	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

// PollService detects new pull requests across subscriptions and turns each
// into at most one pending test run. Polls for the same subscription are
// mutually exclusive; polls for different subscriptions run concurrently up
// to the worker bound.
type PollService struct {
	subs      driven.SubscriptionStore
	creds     driven.CredentialStore
	factory   GitHubClientFactory
	testRuns  *TestRunService
	ghTimeout time.Duration
	workers   int

	// mu guards locks, a per-subscription mutex map. Entries are never
	// removed; the set of subscriptions is small and long-lived.
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewPollService creates a PollService. workers bounds PollAll concurrency.
func NewPollService(subs driven.SubscriptionStore, creds driven.CredentialStore, factory GitHubClientFactory, testRuns *TestRunService, ghTimeout time.Duration, workers int) *PollService {
	if workers < 1 {
		workers = 1
	}
	return &PollService{
		subs:      subs,
		creds:     creds,
		factory:   factory,
		testRuns:  testRuns,
		ghTimeout: ghTimeout,
		workers:   workers,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// PollResult reports one subscription's poll outcome.
type PollResult struct {
	SubscriptionID int64           `json:"subscription_id"`
	RepoFullName   string          `json:"repo_full_name"`
	NewRuns        []model.TestRun `json:"new_runs"`
	OpenPRs        int             `json:"open_prs"`
}

// SubscriptionFailure records one subscription's poll failure inside a batch.
type SubscriptionFailure struct {
	SubscriptionID int64         `json:"subscription_id"`
	RepoFullName   string        `json:"repo_full_name"`
	Kind           apperror.Kind `json:"kind"`
	Message        string        `json:"message"`
}

// PollReport aggregates a PollAll batch. A failed subscription never aborts
// the batch; it lands in Failures and the rest proceed.
type PollReport struct {
	Polled    int                   `json:"polled"`
	Succeeded int                   `json:"succeeded"`
	NewRuns   int                   `json:"new_runs"`
	Failures  []SubscriptionFailure `json:"failures"`
}

// PollOne polls a single subscription, scoped to the user.
func (s *PollService) PollOne(ctx context.Context, id int64, userID string) (*PollResult, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.UserID != userID {
		return nil, apperror.NotFound("subscription", id)
	}
	return s.pollSubscription(ctx, *sub)
}

// PollAll polls every auto-test subscription through a bounded worker pool
// and aggregates per-subscription outcomes.
func (s *PollService) PollAll(ctx context.Context) (*PollReport, error) {
	subs, err := s.subs.ListAutoTest(ctx)
	if err != nil {
		return nil, err
	}

	report := PollReport{Polled: len(subs)}

	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	sem := make(chan struct{}, s.workers)

	for _, sub := range subs {
		wg.Add(1)
		sem <- struct{}{}
		go func(sub model.Subscription) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.pollSubscription(ctx, sub)

			rmu.Lock()
			defer rmu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, SubscriptionFailure{
					SubscriptionID: sub.ID,
					RepoFullName:   sub.RepoFullName,
					Kind:           apperror.KindOf(err),
					Message:        err.Error(),
				})
				return
			}
			report.Succeeded++
			report.NewRuns += len(result.NewRuns)
		}(sub)
	}
	wg.Wait()

	slog.Info("poll batch finished",
		"polled", report.Polled,
		"succeeded", report.Succeeded,
		"failed", len(report.Failures),
		"new_runs", report.NewRuns,
	)

	return &report, nil
}

// pollSubscription holds the subscription's lock for the duration: list open
// PRs, filter excluded branches, dedup against run history, create pending
// runs, and finally record the successful poll time. lastPolledAt moves only
// when the provider call succeeded.
func (s *PollService) pollSubscription(ctx context.Context, sub model.Subscription) (*PollResult, error) {
	lock := s.lockFor(sub.ID)
	lock.Lock()
	defer lock.Unlock()

	client, err := s.clientFor(ctx, sub)
	if err != nil {
		return nil, err
	}

	ghCtx, cancel := context.WithTimeout(ctx, s.ghTimeout)
	prs, err := client.ListOpenPullRequests(ghCtx, sub.RepoFullName)
	cancel()
	if err != nil {
		return nil, err
	}

	result := PollResult{
		SubscriptionID: sub.ID,
		RepoFullName:   sub.RepoFullName,
		OpenPRs:        len(prs),
	}

	excluded := sub.EffectiveExcludeBranches()
	for _, pr := range prs {
		if IsExcluded(pr.Branch, excluded) {
			continue
		}

		isNew, err := s.isNewPR(ctx, sub.ID, pr)
		if err != nil {
			return nil, err
		}
		if !isNew {
			continue
		}

		run, err := s.testRuns.CreateForPR(ctx, sub, pr)
		if err != nil {
			return nil, err
		}
		result.NewRuns = append(result.NewRuns, *run)

		slog.Info("new pull request detected",
			"subscription_id", sub.ID,
			"repo", sub.RepoFullName,
			"pr", pr.Number,
			"branch", pr.Branch,
			"test_id", run.ID,
		)

		if sub.AutoTest {
			s.testRuns.StartAutoTest(*run)
		}
	}

	if err := s.subs.UpdateLastPolledAt(ctx, sub.ID); err != nil {
		return nil, err
	}

	return &result, nil
}

// isNewPR applies the dedup rule: a PR warrants a run only when no prior run
// for it was created at or after the PR's last update, and no run for it is
// still pending or running. The second clause stops a slow execution from
// being stacked on by the next poll tick.
func (s *PollService) isNewPR(ctx context.Context, subscriptionID int64, pr model.PullRequest) (bool, error) {
	latest, err := s.testRuns.runs.LatestForPR(ctx, subscriptionID, pr.Number)
	if err != nil {
		return false, err
	}
	if latest != nil && !latest.CreatedAt.Before(pr.UpdatedAt) {
		return false, nil
	}

	active, err := s.testRuns.runs.HasActiveRun(ctx, subscriptionID, pr.Number)
	if err != nil {
		return false, err
	}
	return !active, nil
}

// clientFor resolves the subscription's capability tier: its credential's
// token when one is attached, the shared anonymous client otherwise.
func (s *PollService) clientFor(ctx context.Context, sub model.Subscription) (driven.GitHubClient, error) {
	if sub.CredentialID == nil {
		return s.factory.Anonymous(), nil
	}

	cred, err := s.creds.GetByID(ctx, *sub.CredentialID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		// Credential row vanished out from under the subscription; poll
		// anonymously rather than fail.
		slog.Warn("subscription credential missing, polling anonymously",
			"subscription_id", sub.ID,
			"credential_id", *sub.CredentialID,
		)
		return s.factory.Anonymous(), nil
	}

	return s.factory.ForToken(cred.Token), nil
}

func (s *PollService) lockFor(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// Start runs the background scheduler: PollAll every interval until ctx is
// cancelled. Call it in its own goroutine.
func (s *PollService) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	slog.Info("poll scheduler started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("poll scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.PollAll(ctx); err != nil {
				slog.Error("scheduled poll batch failed", "error", err)
			}
		}
	}
}
