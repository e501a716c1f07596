package workflow

import (
	"fmt"
	"path"
)

// EventType is the class of event that can schedule a workflow run.
type EventType string

// The event classes Conveyor knows how to dispatch.
const (
	EventPush        EventType = "push"
	EventPullRequest EventType = "pull_request"
	EventSchedule    EventType = "schedule"
)

// Step conditions. An empty condition means the step is required: it
// runs only while no prior required step has failed, and a failure
// aborts the rest of the sequence.
const (
	CondSuccess = "success()"
	CondAlways  = "always()"
)

// Workflow is a parsed workflow definition. It's built fresh from the
// stored YAML source for every run and thrown away afterwards.
type Workflow struct {
	Name        string            `yaml:"name"`
	Concurrency string            `yaml:"concurrency"`
	On          Triggers          `yaml:"on"`
	RunsOn      string            `yaml:"runs-on"`
	Env         map[string]string `yaml:"env"`
	Steps       []Step            `yaml:"steps"`
}

// Triggers is the "on" section of a workflow. A nil filter means the
// workflow doesn't react to that event class at all.
type Triggers struct {
	Push        *BranchFilter  `yaml:"push"`
	PullRequest *BranchFilter  `yaml:"pull_request"`
	Schedule    []CronSchedule `yaml:"schedule"`
}

// BranchFilter restricts an event trigger to branches matching any of
// the glob patterns. An empty list matches every branch.
type BranchFilter struct {
	Branches []string `yaml:"branches"`
}

// CronSchedule holds a single 5-field cron expression.
type CronSchedule struct {
	Cron string `yaml:"cron"`
}

// Step is a single instruction inside a workflow. Exactly one of Run
// and Uses is set: Run is a shell command, Uses is a reusable action
// reference that the runner resolves to a command.
type Step struct {
	Name string `yaml:"name"`
	Run  string `yaml:"run"`
	Uses string `yaml:"uses"`
	If   string `yaml:"if"`
}

// Event is the trigger context a workflow gets matched against. For
// schedule events Workflow carries the name of the workflow whose cron
// fired, so that other scheduled workflows on the same remote don't
// get picked up too.
type Event struct {
	Type     EventType `json:"type"`
	Remote   string    `json:"remote"`
	Branch   string    `json:"branch"`
	Workflow string    `json:"workflow,omitempty"`
}

// Group returns the concurrency group key for a run on the given ref.
// Overlapping runs in the same group are serialized: a newer run
// cancels an in-progress older one.
func (w *Workflow) Group(ref string) string {
	if w.Concurrency != "" {
		return w.Concurrency
	}

	return fmt.Sprintf("%v.%v", w.Name, ref)
}

// Matches reports whether the event should schedule a run of this
// workflow.
func (w *Workflow) Matches(ev Event) bool {
	switch ev.Type {
	case EventPush:
		return w.On.Push != nil && w.On.Push.matches(ev.Branch)
	case EventPullRequest:
		return w.On.PullRequest != nil && w.On.PullRequest.matches(ev.Branch)
	case EventSchedule:
		if len(w.On.Schedule) == 0 {
			return false
		}

		return ev.Workflow == "" || ev.Workflow == w.Name
	default:
		return false
	}
}

// Schedules returns the workflow's cron expressions.
func (w *Workflow) Schedules() []string {
	exprs := []string{}
	for _, s := range w.On.Schedule {
		exprs = append(exprs, s.Cron)
	}

	return exprs
}

func (f *BranchFilter) matches(branch string) bool {
	if len(f.Branches) == 0 {
		return true
	}

	for _, pattern := range f.Branches {
		if ok, err := path.Match(pattern, branch); err == nil && ok {
			return true
		}
	}

	return false
}
