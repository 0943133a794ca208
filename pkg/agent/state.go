// pkg/agent/state.go
package agent

// Phase names the stage of the step pipeline the loop is currently in.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseObserving  Phase = "observing"
	PhaseReasoning  Phase = "reasoning"
	PhaseActing     Phase = "acting"
	PhaseRecording  Phase = "recording"
	PhaseTerminated Phase = "terminated"
)

// Status classifies how a run ended.
type Status string

const (
	// StatusCompleted means the model reported the task done.
	StatusCompleted Status = "completed"
	// StatusFailed means the run hit an unrecoverable error.
	StatusFailed Status = "failed"
	// StatusAborted means the operator or a context cancellation stopped the run.
	StatusAborted Status = "aborted"
	// StatusStepBudget means the step budget ran out before completion.
	StatusStepBudget Status = "step_budget_exhausted"
)

// FinalResult is the terminal outcome of one instruction run.
type FinalResult struct {
	Status Status
	// Result carries the model's reported outcome for completed runs.
	Result string
	// Reason explains failures and aborts.
	Reason string
	Steps  int
}
