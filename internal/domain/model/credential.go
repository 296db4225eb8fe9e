package model

import "time"

// Credential is a verified GitHub personal access token and its derived
// capability tier. Credentials are immutable once verified; replacing the
// token on a subscription inserts a new row and swaps the reference.
type Credential struct {
	ID             int64
	UserID         string
	GitHubUsername string
	Token          string
	Scopes         []string
	Tier           RateTier
	VerifiedAt     time.Time
	CreatedAt      time.Time
}
