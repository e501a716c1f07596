package store

import (
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

var logger *log.Entry

var (
	// ErrWorkflowNotFound is what's returned when a workflow couldn't
	// be found in the store.
	ErrWorkflowNotFound = errors.New("workflow not found")
	// ErrNoWorkflows is an error returned when a method of a
	// ConveyorStore doesn't find any workflows.
	ErrNoWorkflows = errors.New("no workflows found")
	// ErrRunNotFound is an error returned when a run isn't found for a
	// given workflow.
	ErrRunNotFound = errors.New("run not found")
	// ErrStepNotFound is an error returned when a Step isn't found.
	ErrStepNotFound = errors.New("step not found")
	// ErrNotAuthenticated is returned when a user's credentials don't
	// check out.
	ErrNotAuthenticated = errors.New("not authenticated")
)

func init() {
	logger = log.WithFields(log.Fields{
		"package": "store",
	})
}

// Status is where a run or step is in its lifecycle. Runs and steps
// start out queued, move to running, and end up in exactly one of the
// terminal statuses.
type Status string

// The statuses a run or step can be in.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusSkipped, StatusCancelled:
		return true
	default:
		return false
	}
}

// ConveyorStore is an all-encompassing interface for all the behaviors
// a store can exhibit. Consumers should define their own interfaces
// that use a subset of this interface's functions related to what
// they're interested in.
type ConveyorStore interface {
	// CreateWorkflow saves a workflow in the store, setting whatever
	// values on the input that need to be set at create-time.
	CreateWorkflow(*Workflow) error
	// GetWorkflow returns a Workflow with its runs. If no workflow
	// with that ID is found, ErrWorkflowNotFound is returned.
	GetWorkflow(id int) (Workflow, error)
	// GetWorkflows returns a preview list of Workflows, without their
	// run history.
	GetWorkflows() ([]Workflow, error)
	// GetWorkflowID takes these fields because it's the only way to
	// identify a workflow before the ID is known. If there are no
	// workflows matching these filters, implementations should return
	// ErrNoWorkflows.
	GetWorkflowID(remote, name string) (int, error)

	// CreateRun saves a run in the store and sets its count to the
	// next count for its workflow.
	CreateRun(*Run) error
	// UpdateRun updates a run's status and end time.
	UpdateRun(*Run) error
	// GetRun returns the nth run for the workflow with the passed in
	// ID from the store. If a run with that count isn't found for
	// whatever reason, ErrRunNotFound is returned.
	GetRun(wid, n int) (Run, error)

	// CreateStep saves a step in the store, setting its ID.
	CreateStep(*Step) error
	// UpdateStep updates a step's status, end time and output.
	UpdateStep(*Step) error
	// GetStep returns the step with the given ID from the store.
	// If no step with that ID is found, ErrStepNotFound should
	// be returned.
	GetStep(id int) (Step, error)

	// CreateUser saves a user, encrypting its password.
	CreateUser(*User) error
	// Authenticate checks the password for the user with the given
	// email, returning ErrNotAuthenticated when it doesn't match.
	Authenticate(email, pass string) error
}

// Workflow is a registered workflow definition: the raw YAML source
// bound to the git remote it watches. The definition itself is parsed
// fresh for every run; only the source and the run history persist.
type Workflow struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Remote string `json:"remote"`
	Branch string `json:"branch"`
	Group  string `json:"group"`
	Source string `json:"source,omitempty"`

	Runs []Run `json:"runs,omitempty"`
}

// Run is a representation of the actual state of execution of a
// workflow.
type Run struct {
	Count   int        `json:"count"`
	Status  Status     `json:"status"`
	Start   *time.Time `json:"start"`
	End     *time.Time `json:"end"`
	Trigger string     `json:"trigger"`
	Ref     string     `json:"ref"`

	// This attribute is necessary to have here because a run can only be
	// identified by the combination of its workflow and its place.
	WorkflowID int `json:"workflow_id"`

	Steps []Step `json:"steps,omitempty"`
}

// Step is the representation of the actual state of execution of a
// single workflow step.
type Step struct {
	ID     int        `json:"id"`
	Name   string     `json:"name"`
	Status Status     `json:"status"`
	Start  *time.Time `json:"start"`
	End    *time.Time `json:"end"`
	Output string     `json:"output,omitempty"`

	WorkflowID int `json:"-"`
	RunCount   int `json:"-"`
}

// User is an entity that's authorized to interact with the CI system.
type User struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SetStart is a convenience method for setting the start time pointer.
func (r *Run) SetStart() {
	t := time.Now()
	r.Start = &t
}

// SetEnd is a convenience method for setting the end time pointer.
func (r *Run) SetEnd() {
	t := time.Now()
	r.End = &t
}

// SetStart is a convenience method for setting the start time pointer.
func (st *Step) SetStart() {
	t := time.Now()
	st.Start = &t
}

// SetEnd is a convenience method for setting the end time pointer.
func (st *Step) SetEnd() {
	t := time.Now()
	st.End = &t
}
