package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SubscriptionStore = (*SubscriptionRepo)(nil)

// SubscriptionRepo is the SQLite implementation of the SubscriptionStore port.
type SubscriptionRepo struct {
	db *DB
}

// NewSubscriptionRepo creates a new SubscriptionRepo backed by the given DB.
func NewSubscriptionRepo(db *DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

// Create inserts a subscription. Exclusion patterns are serialized as a JSON
// array in the TEXT column.
func (r *SubscriptionRepo) Create(ctx context.Context, sub model.Subscription) (int64, error) {
	const query = `
		INSERT INTO subscriptions (user_id, repo_full_name, credential_id, auto_test, slack_notify, exclude_branches, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	patterns := sub.ExcludeBranches
	if patterns == nil {
		patterns = []string{}
	}
	patternsJSON, err := json.Marshal(patterns)
	if err != nil {
		return 0, fmt.Errorf("marshal exclude_branches: %w", err)
	}

	createdAt := sub.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		sub.UserID, sub.RepoFullName, sub.CredentialID,
		boolToInt(sub.AutoTest), boolToInt(sub.SlackNotify),
		string(patternsJSON), createdAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return 0, fmt.Errorf("create subscription %s: %w", sub.RepoFullName, driven.ErrDuplicateSubscription)
		}
		return 0, fmt.Errorf("create subscription %s: %w", sub.RepoFullName, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("subscription insert id: %w", err)
	}

	return id, nil
}

const subscriptionColumns = `id, user_id, repo_full_name, credential_id, auto_test, slack_notify, exclude_branches, created_at, last_polled_at`

// GetByID retrieves a single subscription. Returns nil, nil when absent.
func (r *SubscriptionRepo) GetByID(ctx context.Context, id int64) (*model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = ?`

	sub, err := scanSubscription(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription %d: %w", id, err)
	}

	return sub, nil
}

// ListByUser returns the user's subscriptions, newest first.
func (r *SubscriptionRepo) ListByUser(ctx context.Context, userID string) ([]model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = ? ORDER BY created_at DESC`
	return r.querySubscriptions(ctx, query, userID)
}

// ListAutoTest returns every subscription with auto_test enabled, across all
// users, in creation order.
func (r *SubscriptionRepo) ListAutoTest(ctx context.Context) ([]model.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE auto_test = 1 ORDER BY id`
	return r.querySubscriptions(ctx, query)
}

// UpdateCredentialID swaps the linked credential in a single-row write.
func (r *SubscriptionRepo) UpdateCredentialID(ctx context.Context, id int64, credentialID int64) error {
	const query = `UPDATE subscriptions SET credential_id = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, credentialID, id)
	if err != nil {
		return fmt.Errorf("update credential for subscription %d: %w", id, err)
	}

	return requireRowAffected(result, fmt.Sprintf("subscription %d", id))
}

// UpdateLastPolledAt stamps the subscription with the current time.
func (r *SubscriptionRepo) UpdateLastPolledAt(ctx context.Context, id int64) error {
	const query = `UPDATE subscriptions SET last_polled_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update last_polled_at for subscription %d: %w", id, err)
	}

	return requireRowAffected(result, fmt.Sprintf("subscription %d", id))
}

// Delete removes the subscription row only. The user scope prevents deleting
// another user's subscription by guessing IDs.
func (r *SubscriptionRepo) Delete(ctx context.Context, id int64, userID string) error {
	const query = `DELETE FROM subscriptions WHERE id = ? AND user_id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete subscription %d: %w", id, err)
	}

	return requireRowAffected(result, fmt.Sprintf("subscription %d", id))
}

func (r *SubscriptionRepo) querySubscriptions(ctx context.Context, query string, args ...any) ([]model.Subscription, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}

	return subs, nil
}

func scanSubscription(s scanner) (*model.Subscription, error) {
	var sub model.Subscription
	var credentialID sql.NullInt64
	var autoTest, slackNotify int
	var patternsJSON string
	var createdAt string
	var lastPolledAt sql.NullString

	err := s.Scan(
		&sub.ID, &sub.UserID, &sub.RepoFullName, &credentialID,
		&autoTest, &slackNotify, &patternsJSON, &createdAt, &lastPolledAt,
	)
	if err != nil {
		return nil, err
	}

	if credentialID.Valid {
		sub.CredentialID = &credentialID.Int64
	}
	sub.AutoTest = autoTest != 0
	sub.SlackNotify = slackNotify != 0

	if err := json.Unmarshal([]byte(patternsJSON), &sub.ExcludeBranches); err != nil {
		return nil, fmt.Errorf("unmarshal exclude_branches: %w", err)
	}

	sub.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	sub.LastPolledAt, err = parseNullableTime(lastPolledAt)
	if err != nil {
		return nil, fmt.Errorf("parse last_polled_at: %w", err)
	}

	return &sub, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// requireRowAffected converts a zero-row UPDATE/DELETE into ErrNotFound.
func requireRowAffected(result sql.Result, what string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %w", what, driven.ErrNotFound)
	}
	return nil
}
