package runner

import (
	"context"
	"fmt"

	"github.com/conveyor-ci/conveyor/store"
	"github.com/conveyor-ci/conveyor/workflow"

	log "github.com/sirupsen/logrus"
)

// ErrRunFailed is returned by ExecuteRun when a required step exited
// non-zero and the rest of the sequence was aborted.
var ErrRunFailed = fmt.Errorf("run failed")

// DefaultActions maps the action references Conveyor resolves out of
// the box to the shell commands they stand for. The runner injects
// CONVEYOR_REMOTE and CONVEYOR_REF into every step's environment.
var DefaultActions = map[string]string{
	"actions/checkout@v2":                `git clone --depth 1 --branch "$CONVEYOR_REF" "$CONVEYOR_REMOTE" .`,
	"codecov/codecov-action@v1":          `bash <(curl -s https://codecov.io/bash)`,
	"conda-incubator/setup-miniconda@v2": `conda env create -f "$ENVIRONMENT_FILE" -n "$ENVIRONMENT_NAME"`,
}

// runStore is the slice of the store the runner needs to record state
// transitions.
type runStore interface {
	UpdateRun(*store.Run) error
	CreateStep(*store.Step) error
	UpdateStep(*store.Step) error
}

// Runner executes the steps of a single workflow run, strictly in
// declared order, persisting every state transition.
type Runner struct {
	st      runStore
	exec    Executor
	actions map[string]string
}

// New returns a Runner executing steps with exec and recording state
// in st.
func New(st runStore, exec Executor) *Runner {
	return &Runner{
		st:      st,
		exec:    exec,
		actions: DefaultActions,
	}
}

// ExecuteRun runs every step of the workflow for the given run record.
// A required step failing marks the run failed, skips the remaining
// required and success() steps, and still runs always() steps. Context
// cancellation marks the run and its in-flight step cancelled.
func (r *Runner) ExecuteRun(ctx context.Context, run *store.Run, def *workflow.Workflow, remote string) error {
	logger := logger.WithFields(log.Fields{
		"workflow": def.Name,
		"count":    run.Count,
	})

	logger.Info("starting run")

	run.Status = store.StatusRunning
	run.SetStart()
	if err := r.st.UpdateRun(run); err != nil {
		logger.WithError(err).Error("unable to mark run running")
		return err
	}

	env := map[string]string{}
	for k, v := range def.Env {
		env[k] = v
	}
	env["CONVEYOR_REMOTE"] = remote
	env["CONVEYOR_REF"] = run.Ref

	failed := false
	for _, step := range def.Steps {
		rec := &store.Step{
			Name:       step.Name,
			WorkflowID: run.WorkflowID,
			RunCount:   run.Count,
		}

		if !r.shouldRun(step, failed) {
			rec.Status = store.StatusSkipped
			if err := r.st.CreateStep(rec); err != nil {
				logger.WithError(err).Error("unable to record skipped step")
				return err
			}

			logger.WithField("step", step.Name).Info("step skipped")
			continue
		}

		rec.Status = store.StatusRunning
		rec.SetStart()
		if err := r.st.CreateStep(rec); err != nil {
			logger.WithError(err).Error("unable to record step")
			return err
		}

		logger.WithField("step", step.Name).Info("running step")

		command, cmderr := r.resolve(step)

		var output string
		var execerr error
		if cmderr != nil {
			execerr = cmderr
			output = cmderr.Error()
		} else {
			output, execerr = r.exec.Exec(ctx, ExecSpec{
				Command: command,
				Env:     env,
				Label:   def.RunsOn,
			})
		}

		rec.Output = output
		rec.SetEnd()

		if ctx.Err() != nil {
			rec.Status = store.StatusCancelled
			if err := r.st.UpdateStep(rec); err != nil {
				logger.WithError(err).Error("unable to record cancelled step")
			}

			run.Status = store.StatusCancelled
			run.SetEnd()
			if err := r.st.UpdateRun(run); err != nil {
				logger.WithError(err).Error("unable to record cancelled run")
			}

			logger.Info("run cancelled")
			return ctx.Err()
		}

		if execerr != nil {
			rec.Status = store.StatusFailed
			failed = true

			logger.WithError(execerr).
				WithField("step", step.Name).
				Info("step failed")
		} else {
			rec.Status = store.StatusSucceeded
		}

		if err := r.st.UpdateStep(rec); err != nil {
			logger.WithError(err).Error("unable to record step result")
			return err
		}
	}

	run.SetEnd()
	if failed {
		run.Status = store.StatusFailed
	} else {
		run.Status = store.StatusSucceeded
	}

	if err := r.st.UpdateRun(run); err != nil {
		logger.WithError(err).Error("unable to record run result")
		return err
	}

	logger.WithField("status", run.Status).Info("run finished")

	if failed {
		return ErrRunFailed
	}

	return nil
}

// shouldRun applies the step's condition against whether a required
// step has already failed.
func (r *Runner) shouldRun(step workflow.Step, failed bool) bool {
	switch step.If {
	case workflow.CondAlways:
		return true
	case workflow.CondSuccess:
		return !failed
	default:
		// Required steps don't run once the sequence is aborted.
		return !failed
	}
}

// resolve turns a step into the shell command to execute.
func (r *Runner) resolve(step workflow.Step) (string, error) {
	if step.Run != "" {
		return step.Run, nil
	}

	command, ok := r.actions[step.Uses]
	if !ok {
		return "", fmt.Errorf("unknown action reference %q", step.Uses)
	}

	return command, nil
}
