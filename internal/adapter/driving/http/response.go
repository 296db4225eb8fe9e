package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/apperror"
	"github.com/nightwatch-dev/nightwatch/internal/application"
	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"kind":"internal","message":"internal server error"}}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeAppError maps an error to its HTTP status via the error kind and
// writes the structured error envelope. Rate-limit errors additionally carry
// the budget reset time and the tier that was exhausted.
func writeAppError(w http.ResponseWriter, err error) {
	kind := apperror.KindOf(err)

	body := errorBody{
		Kind:    string(kind),
		Message: err.Error(),
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Kind == apperror.KindRateLimit {
		if !appErr.ResetAt.IsZero() {
			resetAt := appErr.ResetAt.UTC().Format(time.RFC3339)
			body.ResetAt = &resetAt
		}
		body.Tier = appErr.Tier
	}

	writeJSON(w, statusForKind(kind), errorResponse{Error: body})
}

// writeError writes a plain error envelope for transport-level failures
// (malformed body, bad path segment) that never reach the application layer.
func writeError(w http.ResponseWriter, status int, kind apperror.Kind, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{
		Kind:    string(kind),
		Message: message,
	}})
}

// statusForKind maps an error kind to the HTTP status it travels as.
func statusForKind(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindInvalidCredential:
		return http.StatusUnauthorized
	case apperror.KindAccessDenied:
		return http.StatusForbidden
	case apperror.KindNotFound, apperror.KindRepoNotFound:
		return http.StatusNotFound
	case apperror.KindRateLimit:
		return http.StatusTooManyRequests
	case apperror.KindNetwork:
		return http.StatusBadGateway
	case apperror.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string  `json:"kind"`
	Message string  `json:"message"`
	ResetAt *string `json:"reset_at,omitempty"`
	Tier    string  `json:"tier,omitempty"`
}

// SubscriptionResponse is the JSON representation of a subscription.
type SubscriptionResponse struct {
	ID              int64    `json:"id"`
	UserID          string   `json:"user_id"`
	RepoFullName    string   `json:"repo_full_name"`
	HasCredential   bool     `json:"has_credential"`
	AutoTest        bool     `json:"auto_test"`
	SlackNotify     bool     `json:"slack_notify"`
	ExcludeBranches []string `json:"exclude_branches"`
	CreatedAt       string   `json:"created_at"`
	LastPolledAt    *string  `json:"last_polled_at"`
}

// ActionResponse is the JSON representation of one browser action.
type ActionResponse struct {
	Type     string `json:"type"`
	Selector string `json:"selector,omitempty"`
	URL      string `json:"url,omitempty"`
	Value    string `json:"value,omitempty"`
}

// ScenarioResponse is the JSON representation of a test scenario.
type ScenarioResponse struct {
	Index          int              `json:"index"`
	Description    string           `json:"description"`
	Actions        []ActionResponse `json:"actions"`
	ExpectedResult string           `json:"expected_result"`
	Success        *bool            `json:"success"`
	Error          *string          `json:"error,omitempty"`
}

// TestRunResponse is the JSON representation of a test run.
type TestRunResponse struct {
	ID             int64              `json:"id"`
	SubscriptionID int64              `json:"subscription_id"`
	RepoFullName   string             `json:"repo_full_name"`
	PRNumber       int                `json:"pr_number"`
	PRTitle        string             `json:"pr_title"`
	PRURL          string             `json:"pr_url"`
	BranchName     string             `json:"branch_name"`
	Status         string             `json:"status"`
	Scenarios      []ScenarioResponse `json:"scenarios"`
	ReportPath     string             `json:"report_path,omitempty"`
	CreatedAt      string             `json:"created_at"`
	CompletedAt    *string            `json:"completed_at"`
}

// PollResponse reports one subscription's poll outcome.
type PollResponse struct {
	SubscriptionID int64             `json:"subscription_id"`
	RepoFullName   string            `json:"repo_full_name"`
	OpenPRs        int               `json:"open_prs"`
	NewRuns        []TestRunResponse `json:"new_runs"`
}

// VerifyResponse is the JSON representation of a token verification result.
type VerifyResponse struct {
	Valid    bool     `json:"valid"`
	Username string   `json:"username"`
	Scopes   []string `json:"scopes"`
	Tier     string   `json:"tier"`
}

// CheckRepoResponse is the JSON representation of a repo access check.
type CheckRepoResponse struct {
	Accessible   bool   `json:"accessible"`
	RepoFullName string `json:"repo_full_name"`
}

// RegenerateResponse reports a completed scenario regeneration.
type RegenerateResponse struct {
	TestID        int64 `json:"test_id"`
	ScenarioCount int   `json:"scenario_count"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// CreateSubscriptionRequest is the JSON body for the create endpoint.
type CreateSubscriptionRequest struct {
	UserID          string   `json:"user_id"`
	RepoFullName    string   `json:"repo_full_name"`
	Token           string   `json:"token"`
	AutoTest        *bool    `json:"auto_test"`
	SlackNotify     bool     `json:"slack_notify"`
	ExcludeBranches []string `json:"exclude_branches"`
}

// UpdateCredentialRequest is the JSON body for the credential swap endpoint.
type UpdateCredentialRequest struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// VerifyRequest is the JSON body for token verification.
type VerifyRequest struct {
	Token string `json:"token"`
}

// CheckRepoRequest is the JSON body for the repo access check.
type CheckRepoRequest struct {
	Token        string `json:"token"`
	RepoFullName string `json:"repo_full_name"`
}

// toSubscriptionResponse converts a domain Subscription to its JSON
// representation. The credential itself never leaves the server; only its
// presence does.
func toSubscriptionResponse(sub model.Subscription) SubscriptionResponse {
	var lastPolledAt *string
	if sub.LastPolledAt != nil {
		s := sub.LastPolledAt.UTC().Format(time.RFC3339)
		lastPolledAt = &s
	}

	return SubscriptionResponse{
		ID:              sub.ID,
		UserID:          sub.UserID,
		RepoFullName:    sub.RepoFullName,
		HasCredential:   sub.CredentialID != nil,
		AutoTest:        sub.AutoTest,
		SlackNotify:     sub.SlackNotify,
		ExcludeBranches: sub.EffectiveExcludeBranches(),
		CreatedAt:       sub.CreatedAt.UTC().Format(time.RFC3339),
		LastPolledAt:    lastPolledAt,
	}
}

// toPollResponse converts a poll result to its JSON representation.
func toPollResponse(result application.PollResult) PollResponse {
	newRuns := make([]TestRunResponse, 0, len(result.NewRuns))
	for _, run := range result.NewRuns {
		newRuns = append(newRuns, toTestRunResponse(run))
	}

	return PollResponse{
		SubscriptionID: result.SubscriptionID,
		RepoFullName:   result.RepoFullName,
		OpenPRs:        result.OpenPRs,
		NewRuns:        newRuns,
	}
}

// toTestRunResponse converts a domain TestRun to its JSON representation.
func toTestRunResponse(run model.TestRun) TestRunResponse {
	scenarios := make([]ScenarioResponse, 0, len(run.Scenarios))
	for _, sc := range run.Scenarios {
		scenarios = append(scenarios, toScenarioResponse(sc))
	}

	var completedAt *string
	if run.CompletedAt != nil {
		s := run.CompletedAt.UTC().Format(time.RFC3339)
		completedAt = &s
	}

	return TestRunResponse{
		ID:             run.ID,
		SubscriptionID: run.SubscriptionID,
		RepoFullName:   run.RepoFullName,
		PRNumber:       run.PRNumber,
		PRTitle:        run.PRTitle,
		PRURL:          run.PRURL,
		BranchName:     run.BranchName,
		Status:         string(run.Status),
		Scenarios:      scenarios,
		ReportPath:     run.ReportPath,
		CreatedAt:      run.CreatedAt.UTC().Format(time.RFC3339),
		CompletedAt:    completedAt,
	}
}

// toScenarioResponse converts a domain Scenario to its JSON representation.
func toScenarioResponse(sc model.Scenario) ScenarioResponse {
	actions := make([]ActionResponse, 0, len(sc.Actions))
	for _, a := range sc.Actions {
		actions = append(actions, ActionResponse{
			Type:     a.Type,
			Selector: a.Selector,
			URL:      a.URL,
			Value:    a.Value,
		})
	}

	return ScenarioResponse{
		Index:          sc.Index,
		Description:    sc.Description,
		Actions:        actions,
		ExpectedResult: sc.ExpectedResult,
		Success:        sc.Success,
		Error:          sc.Error,
	}
}
