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
var _ driven.TestRunStore = (*TestRunRepo)(nil)

// TestRunRepo is the SQLite implementation of the TestRunStore port.
// Scenario sequences are embedded as a JSON document in the TEXT column;
// runs are never shared across rows and never deleted.
type TestRunRepo struct {
	db *DB
}

// NewTestRunRepo creates a new TestRunRepo backed by the given DB.
func NewTestRunRepo(db *DB) *TestRunRepo {
	return &TestRunRepo{db: db}
}

// Create inserts a run and returns its assigned ID.
func (r *TestRunRepo) Create(ctx context.Context, run model.TestRun) (int64, error) {
	const query = `
		INSERT INTO test_runs (subscription_id, repo_full_name, pr_number, pr_title, pr_url, branch_name, status, scenarios, report_path, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	scenariosJSON, err := marshalScenarios(run.Scenarios)
	if err != nil {
		return 0, err
	}

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var completedAt any
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC()
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		run.SubscriptionID, run.RepoFullName, run.PRNumber, run.PRTitle, run.PRURL, run.BranchName,
		string(run.Status), scenariosJSON, run.ReportPath, createdAt, completedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("create test run for PR #%d: %w", run.PRNumber, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("test run insert id: %w", err)
	}

	return id, nil
}

const testRunColumns = `id, subscription_id, repo_full_name, pr_number, pr_title, pr_url, branch_name, status, scenarios, report_path, created_at, completed_at`

// GetByID retrieves a single run. Returns nil, nil when absent.
func (r *TestRunRepo) GetByID(ctx context.Context, id int64) (*model.TestRun, error) {
	query := `SELECT ` + testRunColumns + ` FROM test_runs WHERE id = ?`

	run, err := scanTestRun(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get test run %d: %w", id, err)
	}

	return run, nil
}

// ListBySubscription returns runs for one subscription, newest first.
func (r *TestRunRepo) ListBySubscription(ctx context.Context, subscriptionID int64, limit int) ([]model.TestRun, error) {
	query := `SELECT ` + testRunColumns + ` FROM test_runs WHERE subscription_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	return r.queryTestRuns(ctx, query, subscriptionID, limit)
}

// ListByUser returns runs across all of the user's subscriptions, newest
// first. Runs whose subscription was deleted are not reachable this way but
// remain queryable by ID.
func (r *TestRunRepo) ListByUser(ctx context.Context, userID string, limit int) ([]model.TestRun, error) {
	query := `
		SELECT ` + testRunColumns + `
		FROM test_runs
		WHERE subscription_id IN (SELECT id FROM subscriptions WHERE user_id = ?)
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return r.queryTestRuns(ctx, query, userID, limit)
}

// LatestForPR returns the authoritative (most recent) run for the pair, or
// nil, nil when none exists.
func (r *TestRunRepo) LatestForPR(ctx context.Context, subscriptionID int64, prNumber int) (*model.TestRun, error) {
	query := `
		SELECT ` + testRunColumns + `
		FROM test_runs
		WHERE subscription_id = ? AND pr_number = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	run, err := scanTestRun(r.db.Reader.QueryRowContext(ctx, query, subscriptionID, prNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run for PR #%d: %w", prNumber, err)
	}

	return run, nil
}

// HasActiveRun reports whether a pending or running run exists for the pair.
func (r *TestRunRepo) HasActiveRun(ctx context.Context, subscriptionID int64, prNumber int) (bool, error) {
	const query = `
		SELECT COUNT(*) FROM test_runs
		WHERE subscription_id = ? AND pr_number = ? AND status IN ('pending', 'running')
	`

	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query, subscriptionID, prNumber).Scan(&count); err != nil {
		return false, fmt.Errorf("count active runs for PR #%d: %w", prNumber, err)
	}

	return count > 0, nil
}

// UpdateStatus advances a run's status. A nil completedAt marks a
// non-terminal transition and clears the column, so a regenerating run does
// not report its previous completion time.
func (r *TestRunRepo) UpdateStatus(ctx context.Context, id int64, status model.TestStatus, completedAt *time.Time) error {
	const query = `UPDATE test_runs SET status = ?, completed_at = ? WHERE id = ?`

	var stamp any
	if completedAt != nil {
		stamp = completedAt.UTC()
	}

	result, err := r.db.Writer.ExecContext(ctx, query, string(status), stamp, id)
	if err != nil {
		return fmt.Errorf("update status for test run %d: %w", id, err)
	}

	return requireRowAffected(result, fmt.Sprintf("test run %d", id))
}

// UpdateResults overwrites scenarios, report path, status, and completion in
// one write, as a full execution finishing does.
func (r *TestRunRepo) UpdateResults(ctx context.Context, id int64, scenarios []model.Scenario, reportPath string, status model.TestStatus, completedAt time.Time) error {
	const query = `UPDATE test_runs SET scenarios = ?, report_path = ?, status = ?, completed_at = ? WHERE id = ?`

	scenariosJSON, err := marshalScenarios(scenarios)
	if err != nil {
		return err
	}

	result, err := r.db.Writer.ExecContext(ctx, query, scenariosJSON, reportPath, string(status), completedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("update results for test run %d: %w", id, err)
	}

	return requireRowAffected(result, fmt.Sprintf("test run %d", id))
}

// UpdateScenarios overwrites only the scenario set. Status and completion
// time stay as they were; a single-scenario rerun is invisible to both.
func (r *TestRunRepo) UpdateScenarios(ctx context.Context, id int64, scenarios []model.Scenario) error {
	const query = `UPDATE test_runs SET scenarios = ? WHERE id = ?`

	scenariosJSON, err := marshalScenarios(scenarios)
	if err != nil {
		return err
	}

	result, err := r.db.Writer.ExecContext(ctx, query, scenariosJSON, id)
	if err != nil {
		return fmt.Errorf("update scenarios for test run %d: %w", id, err)
	}

	return requireRowAffected(result, fmt.Sprintf("test run %d", id))
}

func (r *TestRunRepo) queryTestRuns(ctx context.Context, query string, args ...any) ([]model.TestRun, error) {
	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query test runs: %w", err)
	}
	defer rows.Close()

	var runs []model.TestRun
	for rows.Next() {
		run, err := scanTestRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan test run: %w", err)
		}
		runs = append(runs, *run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test runs: %w", err)
	}

	return runs, nil
}

func scanTestRun(s scanner) (*model.TestRun, error) {
	var run model.TestRun
	var status string
	var scenariosJSON sql.NullString
	var createdAt string
	var completedAt sql.NullString

	err := s.Scan(
		&run.ID, &run.SubscriptionID, &run.RepoFullName, &run.PRNumber, &run.PRTitle, &run.PRURL,
		&run.BranchName, &status, &scenariosJSON, &run.ReportPath, &createdAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	// Reject unknown status values instead of passing them through.
	run.Status, err = model.ParseTestStatus(status)
	if err != nil {
		return nil, err
	}

	if scenariosJSON.Valid && scenariosJSON.String != "" {
		if err := json.Unmarshal([]byte(scenariosJSON.String), &run.Scenarios); err != nil {
			return nil, fmt.Errorf("unmarshal scenarios: %w", err)
		}
	}

	run.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	run.CompletedAt, err = parseNullableTime(completedAt)
	if err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}

	return &run, nil
}

// marshalScenarios returns NULL for a nil set so "executor never reported"
// stays distinguishable from "reported an empty set".
func marshalScenarios(scenarios []model.Scenario) (any, error) {
	if scenarios == nil {
		return nil, nil
	}
	data, err := json.Marshal(scenarios)
	if err != nil {
		return nil, fmt.Errorf("marshal scenarios: %w", err)
	}
	return string(data), nil
}
