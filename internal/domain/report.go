// Package domain holds the run report shared by the runner and report sinks.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionSummary records the forwarding configuration applied in one run.
// Params: media type, user and action rule identifiers.
// Returns: report section for create-action outcome.
type ActionSummary struct {
	MediaTypeID      string `json:"media_type_id"`
	MediaTypeCreated bool   `json:"media_type_created"`
	UserID           string `json:"user_id"`
	ActionID         string `json:"action_id,omitempty"`
	ActionSkipped    bool   `json:"action_skipped,omitempty"`
}

// ProbeSummary records one integration probe.
// Params: transient item/trigger ids, push count, and evaluation outcome.
// Returns: report section for probe outcome.
type ProbeSummary struct {
	Host          string        `json:"host"`
	ItemID        string        `json:"item_id"`
	TriggerID     string        `json:"trigger_id"`
	Pushed        int           `json:"pushed"`
	Fired         bool          `json:"fired"`
	Waited        time.Duration `json:"waited"`
	CleanupErrors []string      `json:"cleanup_errors,omitempty"`
}

// RunReport is the outcome of one provisioning run.
type RunReport struct {
	RunID         uuid.UUID      `json:"run_id"`
	Command       string         `json:"command"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	APIVersion    string         `json:"api_version,omitempty"`
	Action        *ActionSummary `json:"action,omitempty"`
	SeededHostIDs []string       `json:"seeded_host_ids,omitempty"`
	SeedError     string         `json:"seed_error,omitempty"`
	Probe         *ProbeSummary  `json:"probe,omitempty"`
	Error         string         `json:"error,omitempty"`
	ExitCode      int            `json:"exit_code"`
}

// NewRunReport starts a report with a fresh random run id.
func NewRunReport(command string, startedAt time.Time) RunReport {
	return RunReport{
		RunID:     uuid.New(),
		Command:   command,
		StartedAt: startedAt,
	}
}

// Finish stamps the end of the run with its error and exit code.
// Params: finish time, terminal error (nil on success), and process exit code.
// Returns: report mutated in place.
func (r *RunReport) Finish(finishedAt time.Time, err error, exitCode int) {
	r.FinishedAt = finishedAt
	r.ExitCode = exitCode
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns wall time between start and finish.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the run exited cleanly.
func (r RunReport) Succeeded() bool {
	return r.ExitCode == 0 && r.Error == ""
}

// DecodeRunReport decodes and validates one published report.
// Params: JSON document bytes.
// Returns: validated report or decode/validation error.
func DecodeRunReport(raw []byte) (RunReport, error) {
	var report RunReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return RunReport{}, fmt.Errorf("decode run report: %w", err)
	}
	if report.RunID == uuid.Nil {
		return RunReport{}, errors.New("run report: run_id is required")
	}
	if report.Command == "" {
		return RunReport{}, errors.New("run report: command is required")
	}
	return report, nil
}
