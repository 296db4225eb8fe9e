package driven

import (
	"context"

	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
)

// TokenIdentity is the provider's answer to "who does this token belong to".
type TokenIdentity struct {
	Username string
	Scopes   []string
}

// GitHubClient defines the driven port for the version-control provider.
// Implementations classify provider failures into the apperror taxonomy:
// rejected tokens become invalid_credential, unreadable repositories become
// access_denied or repo_not_found, rate exhaustion becomes rate_limit with
// the reset time attached, and transport failures become network_error or
// timeout. No method retries.
type GitHubClient interface {
	// ListOpenPullRequests returns every open PR for the repository,
	// paginated through to the end.
	ListOpenPullRequests(ctx context.Context, repoFullName string) ([]model.PullRequest, error)

	// VerifyToken resolves the identity behind the client's token.
	VerifyToken(ctx context.Context) (*TokenIdentity, error)

	// CheckRepoAccess confirms the client's token can read the repository.
	CheckRepoAccess(ctx context.Context, repoFullName string) error

	// Tier reports which rate-limit budget this client operates under.
	Tier() model.RateTier
}
