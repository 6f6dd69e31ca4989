package executor

import (
	"fmt"
	"time"

	"github.com/yuya-takeyama/mirrorsync/pkg/planner"
)

type Status int

const (
	StatusSucceeded Status = iota
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Backend calls an action can fail in.
const (
	CallStage  = "stage"
	CallRead   = "read"
	CallWrite  = "write"
	CallDelete = "delete"
)

// ActionError identifies the action and backend call that failed.
type ActionError struct {
	Action planner.Action
	Call   string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s: %s failed: %v", e.Action.Operation, e.Action.Record.Key, e.Call, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

type EventPhase string

const (
	EventStarted  EventPhase = "started"
	EventFinished EventPhase = "finished"
)

// Event is passed to the progress hook when an action starts and when it
// finishes. Elapsed, Bytes, Throughput and Err are set on finished events.
type Event struct {
	Action  planner.Action
	Phase   EventPhase
	Elapsed time.Duration
	Bytes   int64
	// Throughput is bytes per second for Add and Overwrite.
	Throughput float64
	Err        error
	// Cancelled is set when Err is the run's cancellation.
	Cancelled bool
}

// Result records one started action.
type Result struct {
	Action planner.Action
	Err    error
	// Cancelled reports that the action was stopped by cancellation before
	// it wrote anything. Err holds the context error.
	Cancelled bool
	Elapsed   time.Duration
	Bytes     int64
}

// Outcome is the terminal state of a run.
type Outcome struct {
	Status Status
	// Results holds every action that was started, in plan order.
	Results []Result
	Elapsed time.Duration

	Added       int
	Overwritten int
	Deleted     int
	Kept        int
	Failed      int
	// Interrupted counts started actions stopped by cancellation.
	Interrupted int
	Bytes       int64

	err error
}

// Err returns the failure behind StatusFailed and nil otherwise.
func (o *Outcome) Err() error {
	if o.Status != StatusFailed {
		return nil
	}
	return o.err
}

// Skipped is the number of planned actions that never started.
func (o *Outcome) Skipped(planned int) int {
	return planned - len(o.Results)
}
