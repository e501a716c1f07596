package queue

// Ops a RunEvent can carry.
const (
	OpRun    = "run"
	OpCancel = "cancel"
)

// RunEvent is a message that goes out on the runs subject. For OpRun
// it asks an agent to execute a run that's already been recorded as
// queued; the workflow source rides along so the agent doesn't have to
// look it up. For OpCancel only Group is meaningful.
type RunEvent struct {
	Op         string `json:"op"`
	WorkflowID int    `json:"workflow_id"`
	RunCount   int    `json:"run_count"`
	Group      string `json:"group"`
	Remote     string `json:"remote"`
	Ref        string `json:"ref"`
	Trigger    string `json:"trigger"`
	Source     string `json:"source"`
}
