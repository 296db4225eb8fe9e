package application_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

// --- In-memory store fakes ---

type fakeSubStore struct {
	mu        sync.Mutex
	nextID    int64
	subs      map[int64]model.Subscription
	deleteErr error // injected store failure for Delete
}

func newFakeSubStore() *fakeSubStore {
	return &fakeSubStore{subs: make(map[int64]model.Subscription)}
}

func (s *fakeSubStore) Create(_ context.Context, sub model.Subscription) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subs {
		if existing.UserID == sub.UserID && existing.RepoFullName == sub.RepoFullName {
			return 0, driven.ErrDuplicateSubscription
		}
	}
	s.nextID++
	sub.ID = s.nextID
	s.subs[sub.ID] = sub
	return sub.ID, nil
}

func (s *fakeSubStore) GetByID(_ context.Context, id int64) (*model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, nil
	}
	return &sub, nil
}

func (s *fakeSubStore) ListByUser(_ context.Context, userID string) ([]model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Subscription
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeSubStore) ListAutoTest(_ context.Context) ([]model.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Subscription
	for id := int64(1); id <= s.nextID; id++ {
		if sub, ok := s.subs[id]; ok && sub.AutoTest {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *fakeSubStore) UpdateCredentialID(_ context.Context, id int64, credentialID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return fmt.Errorf("subscription %d %w", id, driven.ErrNotFound)
	}
	sub.CredentialID = &credentialID
	s.subs[id] = sub
	return nil
}

func (s *fakeSubStore) UpdateLastPolledAt(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return fmt.Errorf("subscription %d %w", id, driven.ErrNotFound)
	}
	now := time.Now().UTC()
	sub.LastPolledAt = &now
	s.subs[id] = sub
	return nil
}

func (s *fakeSubStore) Delete(_ context.Context, id int64, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	sub, ok := s.subs[id]
	if !ok || sub.UserID != userID {
		return fmt.Errorf("subscription %d %w", id, driven.ErrNotFound)
	}
	delete(s.subs, id)
	return nil
}

type fakeCredStore struct {
	mu     sync.Mutex
	nextID int64
	creds  map[int64]model.Credential
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{creds: make(map[int64]model.Credential)}
}

func (s *fakeCredStore) Create(_ context.Context, cred model.Credential) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	cred.ID = s.nextID
	s.creds[cred.ID] = cred
	return cred.ID, nil
}

func (s *fakeCredStore) GetByID(_ context.Context, id int64) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[id]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (s *fakeCredStore) ListByUser(_ context.Context, userID string) ([]model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Credential
	for _, cred := range s.creds {
		if cred.UserID == userID {
			out = append(out, cred)
		}
	}
	return out, nil
}

func (s *fakeCredStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[id]; !ok {
		return fmt.Errorf("credential %d not found", id)
	}
	delete(s.creds, id)
	return nil
}

type fakeTestRunStore struct {
	mu     sync.Mutex
	nextID int64
	runs   map[int64]model.TestRun
}

func newFakeTestRunStore() *fakeTestRunStore {
	return &fakeTestRunStore{runs: make(map[int64]model.TestRun)}
}

func (s *fakeTestRunStore) Create(_ context.Context, run model.TestRun) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	run.ID = s.nextID
	s.runs[run.ID] = run
	return run.ID, nil
}

func (s *fakeTestRunStore) GetByID(_ context.Context, id int64) (*model.TestRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (s *fakeTestRunStore) ListBySubscription(_ context.Context, subscriptionID int64, limit int) ([]model.TestRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TestRun
	for id := s.nextID; id >= 1 && len(out) < limit; id-- {
		if run, ok := s.runs[id]; ok && run.SubscriptionID == subscriptionID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (s *fakeTestRunStore) ListByUser(_ context.Context, _ string, limit int) ([]model.TestRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TestRun
	for id := s.nextID; id >= 1 && len(out) < limit; id-- {
		if run, ok := s.runs[id]; ok {
			out = append(out, run)
		}
	}
	return out, nil
}

func (s *fakeTestRunStore) LatestForPR(_ context.Context, subscriptionID int64, prNumber int) (*model.TestRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *model.TestRun
	for _, run := range s.runs {
		if run.SubscriptionID != subscriptionID || run.PRNumber != prNumber {
			continue
		}
		if latest == nil || run.CreatedAt.After(latest.CreatedAt) {
			r := run
			latest = &r
		}
	}
	return latest, nil
}

func (s *fakeTestRunStore) HasActiveRun(_ context.Context, subscriptionID int64, prNumber int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.runs {
		if run.SubscriptionID == subscriptionID && run.PRNumber == prNumber && !run.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeTestRunStore) UpdateStatus(_ context.Context, id int64, status model.TestStatus, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("test run %d not found", id)
	}
	run.Status = status
	run.CompletedAt = completedAt
	s.runs[id] = run
	return nil
}

func (s *fakeTestRunStore) UpdateResults(_ context.Context, id int64, scenarios []model.Scenario, reportPath string, status model.TestStatus, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("test run %d not found", id)
	}
	run.Scenarios = scenarios
	run.ReportPath = reportPath
	run.Status = status
	run.CompletedAt = &completedAt
	s.runs[id] = run
	return nil
}

func (s *fakeTestRunStore) UpdateScenarios(_ context.Context, id int64, scenarios []model.Scenario) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("test run %d not found", id)
	}
	run.Scenarios = scenarios
	s.runs[id] = run
	return nil
}

// --- Provider and executor fakes ---

type fakeGitHubClient struct {
	mu        sync.Mutex
	tier      model.RateTier
	prs       []model.PullRequest
	listErr   error
	identity  *driven.TokenIdentity
	verifyErr error
	accessErr error
	listCalls int
}

func (c *fakeGitHubClient) ListOpenPullRequests(_ context.Context, _ string) ([]model.PullRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listCalls++
	if c.listErr != nil {
		return nil, c.listErr
	}
	return c.prs, nil
}

func (c *fakeGitHubClient) VerifyToken(_ context.Context) (*driven.TokenIdentity, error) {
	if c.verifyErr != nil {
		return nil, c.verifyErr
	}
	if c.identity != nil {
		return c.identity, nil
	}
	return &driven.TokenIdentity{Username: "octocat", Scopes: []string{"repo"}}, nil
}

func (c *fakeGitHubClient) CheckRepoAccess(_ context.Context, _ string) error {
	return c.accessErr
}

func (c *fakeGitHubClient) Tier() model.RateTier {
	if c.tier == "" {
		return model.TierAuthenticated
	}
	return c.tier
}

// fakeFactory returns a fixed client per token plus a fixed anonymous client.
type fakeFactory struct {
	byToken map[string]*fakeGitHubClient
	anon    *fakeGitHubClient
}

func (f *fakeFactory) ForToken(token string) driven.GitHubClient {
	if c, ok := f.byToken[token]; ok {
		return c
	}
	return f.anon
}

func (f *fakeFactory) Anonymous() driven.GitHubClient {
	return f.anon
}

type fakeExecutor struct {
	mu       sync.Mutex
	runCalls int
	generate func(pr driven.PRContext) ([]model.Scenario, error)
	rerun    func(pr driven.PRContext, scenario model.Scenario) (model.Scenario, error)
}

func (e *fakeExecutor) GenerateAndRun(_ context.Context, pr driven.PRContext) ([]model.Scenario, error) {
	e.mu.Lock()
	e.runCalls++
	e.mu.Unlock()
	return e.generate(pr)
}

func (e *fakeExecutor) Rerun(_ context.Context, pr driven.PRContext, scenario model.Scenario) (model.Scenario, error) {
	return e.rerun(pr, scenario)
}

func passingScenarios(n int) []model.Scenario {
	out := make([]model.Scenario, n)
	for i := range out {
		ok := true
		out[i] = model.Scenario{
			Index:          i,
			Description:    fmt.Sprintf("scenario %d", i),
			ExpectedResult: "works",
			Success:        &ok,
		}
	}
	return out
}
