package model

import "time"

// PullRequest is the slice of provider PR state the poller needs: enough to
// decide eligibility and dedup, and to materialize a TestRun.
type PullRequest struct {
	Number    int
	Title     string
	URL       string
	Branch    string
	UpdatedAt time.Time
}
