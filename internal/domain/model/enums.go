package model

import "fmt"

// TestStatus represents the lifecycle state of a test run. The set is closed:
// values outside it are rejected at every boundary rather than defaulted.
type TestStatus string

const (
	TestStatusPending   TestStatus = "pending"
	TestStatusRunning   TestStatus = "running"
	TestStatusCompleted TestStatus = "completed"
	TestStatusFailed    TestStatus = "failed"
)

// ParseTestStatus validates a raw status string against the closed set.
func ParseTestStatus(raw string) (TestStatus, error) {
	switch s := TestStatus(raw); s {
	case TestStatusPending, TestStatusRunning, TestStatusCompleted, TestStatusFailed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown test status %q", raw)
	}
}

// IsTerminal reports whether the status is completed or failed. Terminal runs
// never transition again except through scenario regeneration.
func (s TestStatus) IsTerminal() bool {
	return s == TestStatusCompleted || s == TestStatusFailed
}

// RateTier identifies which GitHub rate-limit budget a client operates under.
type RateTier string

const (
	TierAnonymous     RateTier = "anonymous"
	TierAuthenticated RateTier = "authenticated"
)

// RequestBudget returns the tier's hourly request allowance as documented by
// the GitHub REST API.
func (t RateTier) RequestBudget() int {
	if t == TierAuthenticated {
		return 5000
	}
	return 60
}
