package main

import (
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/yuya-takeyama/mirrorsync/pkg/executor"
	"github.com/yuya-takeyama/mirrorsync/pkg/logger"
	"github.com/yuya-takeyama/mirrorsync/pkg/planner"
)

// PlanResult represents the planned operations before execution
type PlanResult struct {
	Files   []PlanFile  `json:"files"`
	Summary PlanSummary `json:"summary"`
}

type PlanFile struct {
	Action string `json:"action"` // "skip", "create", "update", "delete"
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Size   int64  `json:"size"`
}

type PlanSummary struct {
	Skip   int   `json:"skip"`
	Create int   `json:"create"`
	Update int   `json:"update"`
	Delete int   `json:"delete"`
	Bytes  int64 `json:"bytes"`
}

// SyncResult represents the actual execution results
type SyncResult struct {
	Status  string        `json:"status"`
	Files   []ResultFile  `json:"files"`
	Errors  []ErrorFile   `json:"errors"`
	Summary ResultSummary `json:"summary"`
}

type ResultFile struct {
	Action string `json:"action"` // "skipped", "created", "updated", "deleted", "interrupted"
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
}

type ErrorFile struct {
	Action string `json:"action"` // "create", "update", "delete"
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Error  string `json:"error"`
}

type ResultSummary struct {
	Skipped     int   `json:"skipped"`
	Created     int   `json:"created"`
	Updated     int   `json:"updated"`
	Deleted     int   `json:"deleted"`
	Failed      int   `json:"failed"`
	Interrupted int   `json:"interrupted"`
	NotStarted  int   `json:"not_started"`
	Bytes       int64 `json:"bytes"`
}

func planActionName(op planner.Operation) string {
	switch op {
	case planner.OpAdd:
		return "create"
	case planner.OpOverwrite:
		return "update"
	case planner.OpDelete:
		return "delete"
	case planner.OpKeep:
		return "skip"
	}
	return "unknown"
}

func resultActionName(op planner.Operation) string {
	switch op {
	case planner.OpAdd:
		return "created"
	case planner.OpOverwrite:
		return "updated"
	case planner.OpDelete:
		return "deleted"
	case planner.OpKeep:
		return "skipped"
	}
	return "unknown"
}

// endpoints returns the source and target paths printed for an action.
// Deletes have no source.
func endpoints(a planner.Action, source, dest *location) (string, string) {
	target := logger.JoinLocation(dest.display, a.Record.Key)
	if a.Operation == planner.OpDelete {
		return "", target
	}
	return logger.JoinLocation(source.display, a.Record.Key), target
}

func buildPlanResult(actions []planner.Action, source, dest *location) PlanResult {
	plan := PlanResult{Files: []PlanFile{}}

	for _, a := range actions {
		src, target := endpoints(a, source, dest)
		plan.Files = append(plan.Files, PlanFile{
			Action: planActionName(a.Operation),
			Source: src,
			Target: target,
			Size:   a.Record.Size,
		})
	}

	s := planner.Summarize(actions)
	plan.Summary = PlanSummary{
		Skip:   s.Keep,
		Create: s.Add,
		Update: s.Overwrite,
		Delete: s.Delete,
		Bytes:  s.Bytes,
	}
	return plan
}

func buildSyncResult(actions []planner.Action, outcome *executor.Outcome, source, dest *location) SyncResult {
	result := SyncResult{
		Status: outcome.Status.String(),
		Files:  []ResultFile{},
		Errors: []ErrorFile{},
	}

	for _, r := range outcome.Results {
		src, target := endpoints(r.Action, source, dest)
		if r.Cancelled {
			result.Files = append(result.Files, ResultFile{
				Action: "interrupted",
				Source: src,
				Target: target,
			})
			continue
		}
		if r.Err != nil {
			result.Errors = append(result.Errors, ErrorFile{
				Action: planActionName(r.Action.Operation),
				Source: src,
				Target: target,
				Error:  r.Err.Error(),
			})
			continue
		}
		result.Files = append(result.Files, ResultFile{
			Action: resultActionName(r.Action.Operation),
			Source: src,
			Target: target,
		})
	}

	result.Summary = ResultSummary{
		Skipped:     outcome.Kept,
		Created:     outcome.Added,
		Updated:     outcome.Overwritten,
		Deleted:     outcome.Deleted,
		Failed:      outcome.Failed,
		Interrupted: outcome.Interrupted,
		NotStarted:  outcome.Skipped(len(actions)),
		Bytes:       outcome.Bytes,
	}
	return result
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
