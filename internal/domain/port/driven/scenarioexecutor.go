package driven

import (
	"context"

	"github.com/nightwatch-dev/nightwatch/internal/domain/model"
)

// PRContext carries the PR coordinates the executor needs to deploy, analyze,
// and drive a browser against the change.
type PRContext struct {
	RepoFullName string
	PRNumber     int
	PRTitle      string
	PRURL        string
	BranchName   string
}

// ScenarioExecutor defines the driven port for the external scenario pipeline
// (AI generation plus browser automation). The core treats it as an opaque
// collaborator: GenerateAndRun produces and executes a full scenario set,
// Rerun re-executes exactly one scenario.
type ScenarioExecutor interface {
	GenerateAndRun(ctx context.Context, pr PRContext) ([]model.Scenario, error)

	// Rerun re-executes the given scenario against the PR and returns the
	// refreshed result. The returned scenario keeps the input's index and
	// description.
	Rerun(ctx context.Context, pr PRContext, scenario model.Scenario) (model.Scenario, error)
}
