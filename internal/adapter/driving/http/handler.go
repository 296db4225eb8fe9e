// Package httphandler is the HTTP driving adapter serving the REST API.
package httphandler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nightwatch-dev/nightwatch/internal/apperror"
	"github.com/nightwatch-dev/nightwatch/internal/application"
)

// defaultUserID stands in when a request carries no user identity. The API
// is single-tenant today; the user_id plumbing exists so it does not have to
// be retrofitted later.
const defaultUserID = "default"

// Handler is the HTTP driving adapter.
type Handler struct {
	subSvc   *application.SubscriptionService
	testSvc  *application.TestRunService
	pollSvc  *application.PollService
	verifier *application.VerifierService
	logger   *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	subSvc *application.SubscriptionService,
	testSvc *application.TestRunService,
	pollSvc *application.PollService,
	verifier *application.VerifierService,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		subSvc:   subSvc,
		testSvc:  testSvc,
		pollSvc:  pollSvc,
		verifier: verifier,
		logger:   logger,
	}
}

// NewRouter creates the chi router with all routes registered and wrapped
// with request-id, logging, and recovery middleware.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(func(next http.Handler) http.Handler {
		return loggingMiddleware(logger, next)
	})
	r.Use(func(next http.Handler) http.Handler {
		return recoveryMiddleware(logger, next)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", h.ListSubscriptions)
			r.Post("/", h.CreateSubscription)
			r.Post("/poll-all", h.PollAll)
			r.Get("/{id}", h.GetSubscription)
			r.Delete("/{id}", h.DeleteSubscription)
			r.Put("/{id}/credential", h.UpdateCredential)
			r.Post("/{id}/poll", h.PollSubscription)
		})

		r.Route("/credentials", func(r chi.Router) {
			r.Post("/verify", h.VerifyCredential)
			r.Post("/check-repo", h.CheckRepoAccess)
		})

		r.Route("/tests", func(r chi.Router) {
			r.Get("/", h.ListTestRuns)
			r.Get("/{id}", h.GetTestRun)
			r.Post("/{id}/scenarios/regenerate", h.RegenerateScenarios)
			r.Post("/{id}/scenarios/{index}/rerun", h.RerunScenario)
		})
	})

	return r
}

// CreateSubscription registers a new repository subscription, verifying the
// supplied token first when one is present.
func (h *Handler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req CreateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperror.KindValidation, "invalid request body")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = defaultUserID
	}

	autoTest := true
	if req.AutoTest != nil {
		autoTest = *req.AutoTest
	}

	sub, err := h.subSvc.Create(r.Context(), application.CreateParams{
		UserID:          userID,
		RepoFullName:    req.RepoFullName,
		Token:           req.Token,
		AutoTest:        autoTest,
		SlackNotify:     req.SlackNotify,
		ExcludeBranches: req.ExcludeBranches,
	})
	if err != nil {
		h.logError(r, "create subscription failed", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSubscriptionResponse(*sub))
}

// ListSubscriptions returns the user's subscriptions.
func (h *Handler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.subSvc.List(r.Context(), userIDParam(r))
	if err != nil {
		h.logError(r, "list subscriptions failed", err)
		writeAppError(w, err)
		return
	}

	resp := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		resp = append(resp, toSubscriptionResponse(sub))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetSubscription returns a single subscription.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.subSvc.Get(r.Context(), id, userIDParam(r))
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(*sub))
}

// DeleteSubscription removes a subscription. Test history is retained.
func (h *Handler) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.subSvc.Delete(r.Context(), id, userIDParam(r)); err != nil {
		writeAppError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateCredential verifies a new token and swaps it onto the subscription.
func (h *Handler) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req UpdateCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperror.KindValidation, "invalid request body")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = defaultUserID
	}

	sub, err := h.subSvc.UpdateCredential(r.Context(), id, userID, req.Token)
	if err != nil {
		h.logError(r, "credential update failed", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubscriptionResponse(*sub))
}

// PollSubscription triggers an immediate poll of one subscription.
func (h *Handler) PollSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	result, err := h.pollSvc.PollOne(r.Context(), id, userIDParam(r))
	if err != nil {
		h.logError(r, "poll failed", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toPollResponse(*result))
}

// PollAll triggers a poll across every auto-test subscription.
func (h *Handler) PollAll(w http.ResponseWriter, r *http.Request) {
	report, err := h.pollSvc.PollAll(r.Context())
	if err != nil {
		h.logError(r, "poll-all failed", err)
		writeAppError(w, err)
		return
	}

	if report.Failures == nil {
		report.Failures = []application.SubscriptionFailure{}
	}
	writeJSON(w, http.StatusOK, report)
}

// VerifyCredential checks a token against the provider and reports the
// identity and tier it grants.
func (h *Handler) VerifyCredential(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperror.KindValidation, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, apperror.KindValidation, "token: must not be empty")
		return
	}

	identity, tier, err := h.verifier.Verify(r.Context(), req.Token)
	if err != nil {
		writeAppError(w, err)
		return
	}

	scopes := identity.Scopes
	if scopes == nil {
		scopes = []string{}
	}

	writeJSON(w, http.StatusOK, VerifyResponse{
		Valid:    true,
		Username: identity.Username,
		Scopes:   scopes,
		Tier:     string(tier),
	})
}

// CheckRepoAccess reports whether the token (or anonymous access, when the
// token is empty) can read the named repository.
func (h *Handler) CheckRepoAccess(w http.ResponseWriter, r *http.Request) {
	var req CheckRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apperror.KindValidation, "invalid request body")
		return
	}

	if err := h.verifier.CheckAccess(r.Context(), req.Token, req.RepoFullName); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, CheckRepoResponse{
		Accessible:   true,
		RepoFullName: req.RepoFullName,
	})
}

// ListTestRuns returns test run history, optionally scoped to one
// subscription via ?subscription_id=.
func (h *Handler) ListTestRuns(w http.ResponseWriter, r *http.Request) {
	var subscriptionID *int64
	if raw := r.URL.Query().Get("subscription_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, apperror.KindValidation, "invalid subscription_id")
			return
		}
		subscriptionID = &id
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, apperror.KindValidation, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := h.testSvc.List(r.Context(), userIDParam(r), subscriptionID, limit)
	if err != nil {
		h.logError(r, "list test runs failed", err)
		writeAppError(w, err)
		return
	}

	resp := make([]TestRunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toTestRunResponse(run))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetTestRun returns a single test run with its scenarios.
func (h *Handler) GetTestRun(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	run, err := h.testSvc.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTestRunResponse(*run))
}

// RerunScenario re-executes one scenario of a run and returns the updated
// scenario. The run's status is unchanged.
func (h *Handler) RerunScenario(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, apperror.KindValidation, "invalid scenario index")
		return
	}

	scenario, err := h.testSvc.RerunScenario(r.Context(), id, index)
	if err != nil {
		h.logError(r, "scenario rerun failed", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScenarioResponse(*scenario))
}

// RegenerateScenarios replaces a run's scenario set wholesale and blocks
// until the fresh set has executed.
func (h *Handler) RegenerateScenarios(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	count, err := h.testSvc.RegenerateScenarios(r.Context(), id)
	if err != nil {
		h.logError(r, "scenario regeneration failed", err)
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RegenerateResponse{
		TestID:        id,
		ScenarioCount: count,
	})
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// userIDParam resolves the requesting user from the query string, falling
// back to the single-tenant default.
func userIDParam(r *http.Request) string {
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		return userID
	}
	return defaultUserID
}

// idParam parses a numeric path segment, writing a 400 on failure.
func idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, apperror.KindValidation, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) logError(r *http.Request, msg string, err error) {
	h.logger.Error(msg,
		"method", r.Method,
		"path", r.URL.Path,
		"kind", string(apperror.KindOf(err)),
		"error", err,
	)
}
