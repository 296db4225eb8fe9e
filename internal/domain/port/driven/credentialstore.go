package driven

import (
	"context"

	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
)

// CredentialStore defines the driven port for verified PAT persistence.
// Tokens are stored as supplied; at-rest encryption is a deployment concern
// outside this core.
type CredentialStore interface {
	// Create inserts a verified credential and returns its assigned ID.
	Create(ctx context.Context, cred model.Credential) (int64, error)

	// GetByID returns nil, nil when the credential does not exist.
	GetByID(ctx context.Context, id int64) (*model.Credential, error)

	ListByUser(ctx context.Context, userID string) ([]model.Credential, error)

	// Delete removes a credential. Subscriptions referencing it fall back
	// to anonymous polling.
	Delete(ctx context.Context, id int64) error
}
