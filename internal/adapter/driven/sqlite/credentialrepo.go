package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Tokens are stored as supplied; encrypting them at rest is handled outside
// this core (filesystem or volume level).
type CredentialRepo struct {
	db *DB
}

// NewCredentialRepo creates a new CredentialRepo backed by the given DB.
func NewCredentialRepo(db *DB) *CredentialRepo {
	return &CredentialRepo{db: db}
}

// Create inserts a verified credential and returns its assigned ID.
func (r *CredentialRepo) Create(ctx context.Context, cred model.Credential) (int64, error) {
	const query = `
		INSERT INTO credentials (user_id, github_username, token, scopes, tier, verified_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	scopes := cred.Scopes
	if scopes == nil {
		scopes = []string{}
	}
	scopesJSON, err := json.Marshal(scopes)
	if err != nil {
		return 0, fmt.Errorf("marshal scopes: %w", err)
	}

	createdAt := cred.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		cred.UserID, cred.GitHubUsername, cred.Token,
		string(scopesJSON), string(cred.Tier), cred.VerifiedAt.UTC(), createdAt,
	)
	if err != nil {
		return 0, fmt.Errorf("create credential for user %s: %w", cred.UserID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("credential insert id: %w", err)
	}

	return id, nil
}

const credentialColumns = `id, user_id, github_username, token, scopes, tier, verified_at, created_at`

// GetByID retrieves a single credential. Returns nil, nil when absent.
func (r *CredentialRepo) GetByID(ctx context.Context, id int64) (*model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE id = ?`

	cred, err := scanCredential(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential %d: %w", id, err)
	}

	return cred, nil
}

// ListByUser returns the user's credentials, newest first.
func (r *CredentialRepo) ListByUser(ctx context.Context, userID string) ([]model.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM credentials WHERE user_id = ? ORDER BY created_at DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list credentials for user %s: %w", userID, err)
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds = append(creds, *cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}

	return creds, nil
}

// Delete removes a credential. Subscriptions referencing it have their
// credential_id set NULL by the schema and fall back to anonymous polling.
func (r *CredentialRepo) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM credentials WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete credential %d: %w", id, err)
	}

	return requireRowAffected(result, fmt.Sprintf("credential %d", id))
}

func scanCredential(s scanner) (*model.Credential, error) {
	var cred model.Credential
	var scopesJSON, tier string
	var verifiedAt, createdAt string

	err := s.Scan(
		&cred.ID, &cred.UserID, &cred.GitHubUsername, &cred.Token,
		&scopesJSON, &tier, &verifiedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(scopesJSON), &cred.Scopes); err != nil {
		return nil, fmt.Errorf("unmarshal scopes: %w", err)
	}
	cred.Tier = model.RateTier(tier)

	cred.VerifiedAt, err = parseTime(verifiedAt)
	if err != nil {
		return nil, fmt.Errorf("parse verified_at: %w", err)
	}

	cred.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &cred, nil
}
