package runner

import (
	"context"
	"sync"

	"github.com/conveyor-ci/conveyor/store"
	"github.com/conveyor-ci/conveyor/workflow"

	log "github.com/sirupsen/logrus"
)

type active struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Dispatcher starts runs and serializes them by concurrency group.
// Dispatching a run for a group that already has one in progress
// cancels the older run and waits for it to wind down before the new
// one starts.
type Dispatcher struct {
	mu     sync.Mutex
	active map[string]*active

	runner *Runner
}

// NewDispatcher returns a Dispatcher executing runs with r.
func NewDispatcher(r *Runner) *Dispatcher {
	return &Dispatcher{
		active: make(map[string]*active),
		runner: r,
	}
}

// Dispatch starts the run in its own goroutine, superseding any
// in-progress run in the same group.
func (d *Dispatcher) Dispatch(group string, run *store.Run, def *workflow.Workflow, remote string) {
	logger := logger.WithFields(log.Fields{
		"group":    group,
		"workflow": def.Name,
		"count":    run.Count,
	})

	d.mu.Lock()
	for {
		old, ok := d.active[group]
		if !ok {
			break
		}

		logger.Info("cancelling superseded run")
		old.cancel()

		// The wait has to happen outside the lock or a long run would
		// block every other group.
		d.mu.Unlock()
		<-old.done
		d.mu.Lock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &active{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	d.active[group] = a
	d.mu.Unlock()

	go func() {
		defer close(a.done)
		defer cancel()
		defer func() {
			d.mu.Lock()
			if d.active[group] == a {
				delete(d.active, group)
			}
			d.mu.Unlock()
		}()

		if err := d.runner.ExecuteRun(ctx, run, def, remote); err != nil {
			logger.WithError(err).Info("run did not succeed")
		}
	}()
}

// Cancel cancels the in-progress run for the group, if there is one.
// It reports whether anything was cancelled.
func (d *Dispatcher) Cancel(group string) bool {
	d.mu.Lock()
	a, ok := d.active[group]
	d.mu.Unlock()

	if !ok {
		return false
	}

	logger.WithField("group", group).Info("cancelling run")
	a.cancel()
	<-a.done

	return true
}

// Wait blocks until every in-progress run has wound down.
func (d *Dispatcher) Wait() {
	for {
		d.mu.Lock()
		var a *active
		for _, v := range d.active {
			a = v
			break
		}
		d.mu.Unlock()

		if a == nil {
			return
		}

		<-a.done
	}
}
