// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RunStatus is the state of the run controller's state machine.
type RunStatus string

const (
	RunIdle       RunStatus = "idle"
	RunLoading    RunStatus = "loading"
	RunRunning    RunStatus = "running"
	RunPaused     RunStatus = "paused"
	RunCompleted  RunStatus = "completed"
	RunCancelled  RunStatus = "cancelled"
	RunFatalError RunStatus = "fatal_error"
)

// IsTerminal reports whether no further transitions are possible.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunCancelled || s == RunFatalError
}

// RunState is the controller's process-local view of a run. It is rebuilt
// at run start from the checkpoint and mutated only by the controller.
type RunState struct {
	Total     int
	Completed int
	Failed    int
	InFlight  map[string]struct{}
}

// NewRunState returns a RunState with an empty in-flight set.
func NewRunState(total int) RunState {
	return RunState{Total: total, InFlight: make(map[string]struct{})}
}

// Progress is the snapshot pushed to the presentation layer.
type Progress struct {
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Failed    int           `json:"failed"`
	InFlight  int           `json:"in_flight"`
	State     RunStatus     `json:"state"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Done returns the number of records with a terminal result.
func (p Progress) Done() int {
	return p.Completed + p.Failed
}
