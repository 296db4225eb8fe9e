package model

import "time"

// DefaultExcludeBranches is applied when a subscription omits its exclusion
// patterns. PRs targeting long-lived mainline branches are rarely worth an
// automated browser run.
var DefaultExcludeBranches = []string{"main"}

// Subscription registers a user's interest in one repository's pull requests.
// repo_full_name is always stored normalized as "owner/repo".
type Subscription struct {
	ID              int64
	UserID          string
	RepoFullName    string
	CredentialID    *int64 // nil means the subscription polls anonymously.
	AutoTest        bool
	SlackNotify     bool
	ExcludeBranches []string // Empty means DefaultExcludeBranches.
	CreatedAt       time.Time
	LastPolledAt    *time.Time // nil until the first successful poll.
}

// EffectiveExcludeBranches returns the configured exclusion patterns, falling
// back to the default set when none are configured.
func (s Subscription) EffectiveExcludeBranches() []string {
	if len(s.ExcludeBranches) == 0 {
		return DefaultExcludeBranches
	}
	return s.ExcludeBranches
}
