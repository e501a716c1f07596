package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"

	log "github.com/sirupsen/logrus"
)

var logger *log.Entry

func init() {
	logger = log.WithFields(log.Fields{
		"package": "runner",
	})
}

// ExecSpec is everything an executor needs to run one resolved step
// command: the command itself, the environment descriptor to expose to
// it, and the runner environment label it should run on.
type ExecSpec struct {
	Command string
	Env     map[string]string
	Label   string
}

// Executor runs a single step command in a materialized environment
// and returns its combined output. A non-nil error means the command
// exited non-zero or couldn't be started at all.
type Executor interface {
	Exec(ctx context.Context, spec ExecSpec) (string, error)
}

// Shell is an Executor that runs commands with `sh -c` directly on the
// agent host, ignoring the runner label.
type Shell struct {
	// Dir is the working directory commands run in. Empty means the
	// agent's own working directory.
	Dir string
}

// Exec runs the command in a shell, with the spec's environment merged
// over the process environment.
func (e *Shell) Exec(ctx context.Context, spec ExecSpec) (string, error) {
	logger := logger.WithField("command", spec.Command)
	logger.Debug("running step in shell")

	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	cmd.Dir = e.Dir
	cmd.Env = append(os.Environ(), flattenEnv(spec.Env)...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if err != nil {
		logger.WithError(err).Debug("step command failed")
	}

	return out.String(), err
}

func flattenEnv(env map[string]string) []string {
	vars := []string{}
	for k, v := range env {
		vars = append(vars, fmt.Sprintf("%v=%v", k, v))
	}

	return vars
}
