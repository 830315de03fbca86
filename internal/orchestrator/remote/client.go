// Package remote implements the Remote Orchestrator backend: it submits
// each task as a pipeline run to an external workflow engine and
// reconciles state from that engine's API plus inbound HTTP progress
// callbacks.
package remote

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

// Config describes how to reach the external workflow engine and how it
// should call back into this service.
type Config struct {
	EndpointURL string
	BearerToken string
	CACertPath  string

	CallbackURL   string
	CallbackToken string
	CallbackCA    string

	BatchSize int
}

// RunSubmission is the body posted to start a pipeline run.
type RunSubmission struct {
	RunName   string         `json:"run_name"`
	BatchSize int            `json:"batch_size"`
	Sources   []any          `json:"sources"`
	Options   any            `json:"options"`
	Callbacks CallbackConfig `json:"callbacks"`
}

// CallbackConfig tells the engine how to reach this service's progress
// intake endpoint.
type CallbackConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	CACert string `json:"ca_cert,omitempty"`
}

type runSubmissionResponse struct {
	RunID string `json:"run_id"`
}

// RunState is the engine's reported state for one run.
type RunState string

const (
	RunSucceeded RunState = "SUCCEEDED"
	RunPending   RunState = "PENDING"
	RunRunning   RunState = "RUNNING"
)

type runStatusResponse struct {
	State RunState `json:"state"`
}

// RunSummary is one entry of the engine's pending-runs listing.
type RunSummary struct {
	RunID   string `json:"run_id"`
	RunName string `json:"run_name"`
}

type listRunsResponse struct {
	Runs []RunSummary `json:"runs"`
}

// Client wraps a resty.Client scoped to one workflow engine.
type Client struct {
	http *resty.Client
	cfg  Config
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	c := resty.New().
		SetBaseURL(cfg.EndpointURL).
		SetAuthToken(cfg.BearerToken)
	if cfg.CACertPath != "" {
		c.SetRootCertificate(cfg.CACertPath)
	}
	return &Client{http: c, cfg: cfg}
}

// SubmitRun posts a pipeline run named runName and returns the engine's
// run-id, which becomes this service's task-id.
func (c *Client) SubmitRun(ctx context.Context, runName string, sources []any, options any) (string, error) {
	body := RunSubmission{
		RunName:   runName,
		BatchSize: c.cfg.BatchSize,
		Sources:   sources,
		Options:   options,
		Callbacks: CallbackConfig{URL: c.cfg.CallbackURL, Token: c.cfg.CallbackToken, CACert: c.cfg.CallbackCA},
	}
	var out runSubmissionResponse
	resp, err := c.http.R().SetContext(ctx).SetBody(body).SetResult(&out).ForceContentType("application/json").Post("/runs")
	if err != nil {
		return "", fmt.Errorf("remote: submit run: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("remote: submit run: engine returned %s", resp.Status())
	}
	return out.RunID, nil
}

// RunStatus queries the engine for runID's current state.
func (c *Client) RunStatus(ctx context.Context, runID string) (RunState, error) {
	var out runStatusResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).ForceContentType("application/json").Get("/runs/" + runID)
	if err != nil {
		return "", fmt.Errorf("remote: run status: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("remote: run status: engine returned %s", resp.Status())
	}
	return out.State, nil
}

// ListPendingRuns pages the engine's pending-runs filter.
func (c *Client) ListPendingRuns(ctx context.Context) ([]RunSummary, error) {
	var out listRunsResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).ForceContentType("application/json").SetQueryParam("state", string(RunPending)).Get("/runs")
	if err != nil {
		return nil, fmt.Errorf("remote: list pending runs: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("remote: list pending runs: engine returned %s", resp.Status())
	}
	return out.Runs, nil
}

// ResolveRunByName looks up a run-id by run-name, used because the engine
// callback posts back a run-name it cannot template into a run-id.
// Returns an error if zero or more than one run matches rather than
// picking one of an ambiguous set.
func (c *Client) ResolveRunByName(ctx context.Context, runName string) (string, error) {
	var out listRunsResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).ForceContentType("application/json").SetQueryParam("run_name", runName).Get("/runs")
	if err != nil {
		return "", fmt.Errorf("remote: resolve run name: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("remote: resolve run name: engine returned %s", resp.Status())
	}
	switch len(out.Runs) {
	case 0:
		return "", fmt.Errorf("remote: no run found for run_name %q", runName)
	case 1:
		return out.Runs[0].RunID, nil
	default:
		return "", fmt.Errorf("remote: ambiguous run_name %q matches %d runs", runName, len(out.Runs))
	}
}
