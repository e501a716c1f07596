package workflow

import (
	"fmt"

	"github.com/robfig/cron/v3"
	yaml "gopkg.in/yaml.v3"
)

// Parse unmarshals YAML workflow source and validates it. Definitions
// that would never schedule a run, or that the runner couldn't
// execute, are rejected here rather than at run time.
func Parse(data []byte) (*Workflow, error) {
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("unable to parse workflow: %v", err)
	}

	if err := wf.validate(); err != nil {
		return nil, err
	}

	return &wf, nil
}

func (w *Workflow) validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow has no name")
	}

	if w.On.Push == nil && w.On.PullRequest == nil && len(w.On.Schedule) == 0 {
		return fmt.Errorf("workflow %q has no triggers", w.Name)
	}

	for _, s := range w.On.Schedule {
		if _, err := cron.ParseStandard(s.Cron); err != nil {
			return fmt.Errorf("workflow %q has bad cron expression %q: %v",
				w.Name, s.Cron, err)
		}
	}

	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %q has no steps", w.Name)
	}

	for i, step := range w.Steps {
		if step.Run == "" && step.Uses == "" {
			return fmt.Errorf("step %v of workflow %q has no run command or action reference",
				i+1, w.Name)
		}

		if step.Run != "" && step.Uses != "" {
			return fmt.Errorf("step %v of workflow %q has both a run command and an action reference",
				i+1, w.Name)
		}

		switch step.If {
		case "", CondSuccess, CondAlways:
		default:
			return fmt.Errorf("step %v of workflow %q has unknown condition %q",
				i+1, w.Name, step.If)
		}
	}

	return nil
}
