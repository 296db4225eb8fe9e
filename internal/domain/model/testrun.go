package model

import "time"

// TestRun is one attempt to validate a specific pull request. Multiple runs
// may exist for the same (subscription, PR) pair; the latest by CreatedAt is
// the authoritative one, older runs are audit history.
type TestRun struct {
	ID             int64
	SubscriptionID int64
	RepoFullName   string // Denormalized so history survives subscription deletion.
	PRNumber       int
	PRTitle        string
	PRURL          string
	BranchName     string
	Status         TestStatus
	Scenarios      []Scenario // nil until the executor reports.
	ReportPath     string
	CreatedAt      time.Time
	CompletedAt    *time.Time // Set exactly once per execution, on the terminal transition.
}

// Scenario is one behavioral check within a run. Index is its stable identity
// for targeted reruns: contiguous 0..N-1, never reassigned after creation.
type Scenario struct {
	Index          int      `json:"index"`
	Description    string   `json:"description"`
	Actions        []Action `json:"actions"`
	ExpectedResult string   `json:"expected_result,omitempty"`
	Success        *bool    `json:"success,omitempty"` // nil until executed.
	Error          *string  `json:"error,omitempty"`
}

// Action is a single browser step within a scenario. Type decides which of
// the remaining fields is meaningful: navigate uses URL, click uses Selector,
// fill uses Selector and Value, wait uses Value (milliseconds).
type Action struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
	URL      string `json:"url,omitempty"`
	Value    string `json:"value,omitempty"`
}

// Passed reports whether the scenario executed and succeeded.
func (s Scenario) Passed() bool {
	return s.Success != nil && *s.Success
}

// ScenariosAllPassed reports whether every scenario in the set executed and
// succeeded. An empty set counts as passed.
func ScenariosAllPassed(scenarios []Scenario) bool {
	for _, s := range scenarios {
		if !s.Passed() {
			return false
		}
	}
	return true
}
