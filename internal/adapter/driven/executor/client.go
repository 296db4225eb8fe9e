// Package executor implements the ScenarioExecutor port against the external
// scenario pipeline service (AI generation plus browser automation) over
// HTTP/JSON. The pipeline itself is an opaque collaborator; this adapter only
// moves PR context out and scenario results back.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nightwatch-dev/nightwatch/internal/apperror"
	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
	"github.com/nightwatch-dev/nightwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ScenarioExecutor = (*Client)(nil)

// Client talks to the scenario executor service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an executor client. timeout bounds a full generate-and-run
// round trip; browser runs are long, so this is minutes, not seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type runRequest struct {
	RepoFullName string `json:"repo_full_name"`
	PRNumber     int    `json:"pr_number"`
	PRTitle      string `json:"pr_title"`
	PRURL        string `json:"pr_url"`
	BranchName   string `json:"branch_name"`
}

type runResponse struct {
	Scenarios []model.Scenario `json:"scenarios"`
}

type rerunRequest struct {
	PR       runRequest     `json:"pr"`
	Scenario model.Scenario `json:"scenario"`
}

type rerunResponse struct {
	Scenario model.Scenario `json:"scenario"`
}

// GenerateAndRun asks the executor to produce and execute a full scenario set
// for the PR. The call blocks until every scenario has run.
func (c *Client) GenerateAndRun(ctx context.Context, pr driven.PRContext) ([]model.Scenario, error) {
	var out runResponse
	if err := c.post(ctx, "/api/v1/runs", toRunRequest(pr), &out); err != nil {
		return nil, err
	}

	// Indexes are assigned here, not trusted from the wire: the stable
	// contiguous 0..N-1 sequence is this core's invariant.
	for i := range out.Scenarios {
		out.Scenarios[i].Index = i
	}

	return out.Scenarios, nil
}

// Rerun re-executes one scenario against the PR. The returned scenario keeps
// the input's index and description regardless of what the service echoes.
func (c *Client) Rerun(ctx context.Context, pr driven.PRContext, scenario model.Scenario) (model.Scenario, error) {
	var out rerunResponse
	if err := c.post(ctx, "/api/v1/rerun", rerunRequest{PR: toRunRequest(pr), Scenario: scenario}, &out); err != nil {
		return model.Scenario{}, err
	}

	result := out.Scenario
	result.Index = scenario.Index
	result.Description = scenario.Description

	return result, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal executor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build executor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperror.Timeout("executor "+path, err)
		}
		return apperror.Network(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperror.Network(fmt.Errorf("executor %s returned %d: %s", path, resp.StatusCode, data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Network(fmt.Errorf("decode executor response: %w", err))
	}

	return nil
}

func toRunRequest(pr driven.PRContext) runRequest {
	return runRequest{
		RepoFullName: pr.RepoFullName,
		PRNumber:     pr.PRNumber,
		PRTitle:      pr.PRTitle,
		PRURL:        pr.PRURL,
		BranchName:   pr.BranchName,
	}
}
