// Package application contains use-case orchestration services.
package application

import (
	"context"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

// VerifierService validates access tokens and repository read access against
// the provider before anything trusts them. Single external call per
// operation, no retry: failures go back to a human-triggered form.
type VerifierService struct {
	factory GitHubClientFactory
	timeout time.Duration
}

// NewVerifierService creates a VerifierService. timeout bounds each provider
// call.
func NewVerifierService(factory GitHubClientFactory, timeout time.Duration) *VerifierService {
	return &VerifierService{
		factory: factory,
		timeout: timeout,
	}
}

// Verify checks the token against the provider and returns the resolved
// identity and the capability tier it grants. Fails with invalid_credential
// when the provider rejects the token, network_error/timeout on transport
// failure.
func (s *VerifierService) Verify(ctx context.Context, token string) (*driven.TokenIdentity, model.RateTier, error) {
	client := s.factory.ForToken(token)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	identity, err := client.VerifyToken(ctx)
	if err != nil {
		return nil, "", err
	}

	return identity, client.Tier(), nil
}

// CheckAccess confirms the token can read the named repository. An empty
// token checks anonymous readability instead. Fails with access_denied when
// the repository is private, out of scope, or nonexistent -- the provider
// does not let us tell these apart, so neither do we.
func (s *VerifierService) CheckAccess(ctx context.Context, token, repoFullName string) error {
	var client driven.GitHubClient
	if token == "" {
		client = s.factory.Anonymous()
	} else {
		client = s.factory.ForToken(token)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return client.CheckRepoAccess(ctx, repoFullName)
}
