package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/apperror"
	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

// SubscriptionService owns the subscription workflows: create (behind a
// successful credential verification), list, delete, and the atomic
// credential swap.
type SubscriptionService struct {
	subs     driven.SubscriptionStore
	creds    driven.CredentialStore
	verifier *VerifierService
}

// NewSubscriptionService creates a SubscriptionService.
func NewSubscriptionService(subs driven.SubscriptionStore, creds driven.CredentialStore, verifier *VerifierService) *SubscriptionService {
	return &SubscriptionService{
		subs:     subs,
		creds:    creds,
		verifier: verifier,
	}
}

// CreateParams carries the caller's subscription request. Token is optional;
// without one the subscription polls on the anonymous budget.
type CreateParams struct {
	UserID          string
	RepoFullName    string
	Token           string
	AutoTest        bool
	SlackNotify     bool
	ExcludeBranches []string
}

// Create normalizes and validates the repository name, verifies the supplied
// token (when present) and its read access to the repository, stores the
// verified credential, and inserts the subscription.
func (s *SubscriptionService) Create(ctx context.Context, p CreateParams) (*model.Subscription, error) {
	if p.UserID == "" {
		return nil, apperror.Validation("user_id", "must not be empty")
	}

	repoFullName := model.NormalizeRepoName(p.RepoFullName)
	if err := model.ValidateRepoName(repoFullName); err != nil {
		return nil, apperror.Validation("repo_full_name", err.Error())
	}

	var credentialID *int64
	if p.Token != "" {
		identity, tier, err := s.verifier.Verify(ctx, p.Token)
		if err != nil {
			return nil, err
		}
		if err := s.verifier.CheckAccess(ctx, p.Token, repoFullName); err != nil {
			return nil, err
		}

		id, err := s.creds.Create(ctx, model.Credential{
			UserID:         p.UserID,
			GitHubUsername: identity.Username,
			Token:          p.Token,
			Scopes:         identity.Scopes,
			Tier:           tier,
			VerifiedAt:     time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		credentialID = &id
	} else {
		// Anonymous subscriptions still need the repo to be readable.
		if err := s.verifier.CheckAccess(ctx, "", repoFullName); err != nil {
			return nil, err
		}
	}

	sub := model.Subscription{
		UserID:          p.UserID,
		RepoFullName:    repoFullName,
		CredentialID:    credentialID,
		AutoTest:        p.AutoTest,
		SlackNotify:     p.SlackNotify,
		ExcludeBranches: p.ExcludeBranches,
		CreatedAt:       time.Now().UTC(),
	}

	id, err := s.subs.Create(ctx, sub)
	if err != nil {
		if errors.Is(err, driven.ErrDuplicateSubscription) {
			return nil, apperror.Validation("repo_full_name", "subscription already exists for this repository")
		}
		return nil, err
	}
	sub.ID = id

	slog.Info("subscription created",
		"subscription_id", id,
		"user", p.UserID,
		"repo", repoFullName,
		"authenticated", credentialID != nil,
	)

	return &sub, nil
}

// List returns the user's subscriptions.
func (s *SubscriptionService) List(ctx context.Context, userID string) ([]model.Subscription, error) {
	if userID == "" {
		return nil, apperror.Validation("user_id", "must not be empty")
	}
	return s.subs.ListByUser(ctx, userID)
}

// Get returns one subscription, scoped to the user.
func (s *SubscriptionService) Get(ctx context.Context, id int64, userID string) (*model.Subscription, error) {
	sub, err := s.subs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil || sub.UserID != userID {
		return nil, apperror.NotFound("subscription", id)
	}
	return sub, nil
}

// Delete removes the subscription row. Test run history for it is retained
// for audit.
func (s *SubscriptionService) Delete(ctx context.Context, id int64, userID string) error {
	if err := s.subs.Delete(ctx, id, userID); err != nil {
		if errors.Is(err, driven.ErrNotFound) {
			return apperror.NotFound("subscription", id)
		}
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}

	slog.Info("subscription deleted", "subscription_id", id, "user", userID)
	return nil
}

// UpdateCredential re-runs verification on the new token and atomically swaps
// the subscription's credential reference. The old credential row is kept;
// other subscriptions may still point at it.
func (s *SubscriptionService) UpdateCredential(ctx context.Context, id int64, userID, token string) (*model.Subscription, error) {
	if token == "" {
		return nil, apperror.Validation("token", "must not be empty")
	}

	sub, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	identity, tier, err := s.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := s.verifier.CheckAccess(ctx, token, sub.RepoFullName); err != nil {
		return nil, err
	}

	credID, err := s.creds.Create(ctx, model.Credential{
		UserID:         userID,
		GitHubUsername: identity.Username,
		Token:          token,
		Scopes:         identity.Scopes,
		Tier:           tier,
		VerifiedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	if err := s.subs.UpdateCredentialID(ctx, id, credID); err != nil {
		return nil, err
	}
	sub.CredentialID = &credID

	slog.Info("subscription credential updated",
		"subscription_id", id,
		"user", userID,
		"github_username", identity.Username,
	)

	return sub, nil
}
