package scheduler

import (
	"sync"
	"time"

	"github.com/conveyor-ci/conveyor/store"
	"github.com/conveyor-ci/conveyor/workflow"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

var logger *log.Entry

func init() {
	logger = log.WithFields(log.Fields{
		"package": "scheduler",
	})
}

// workflowStore is the slice of the store the scheduler reads.
type workflowStore interface {
	GetWorkflows() ([]store.Workflow, error)
}

// Scheduler fires schedule events for registered workflows at their
// cron times. Cron expressions are 5-field standard format, evaluated
// in UTC. The workflow list is reloaded on an interval so newly
// registered workflows get picked up without a restart.
type Scheduler struct {
	st   workflowStore
	fire func(workflow.Event)

	refreshEvery time.Duration

	mu   sync.Mutex
	cron *cron.Cron
	stop chan struct{}
}

// New returns a Scheduler that calls fire for every cron tick of every
// registered workflow.
func New(st workflowStore, fire func(workflow.Event)) *Scheduler {
	return &Scheduler{
		st:           st,
		fire:         fire,
		refreshEvery: time.Minute,
		stop:         make(chan struct{}),
	}
}

// Start loads the registered workflows and begins firing their
// schedules. It returns after the first load; reloading continues in
// the background until Stop.
func (s *Scheduler) Start() error {
	if err := s.reload(); err != nil {
		return err
	}

	go func() {
		tick := time.NewTicker(s.refreshEvery)
		defer tick.Stop()

		for {
			select {
			case <-tick.C:
				if err := s.reload(); err != nil {
					logger.WithError(err).Error("unable to reload workflow schedules")
				}
			case <-s.stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the cron entries and the background reload.
func (s *Scheduler) Stop() {
	close(s.stop)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
		s.cron = nil
	}
}

// reload rebuilds the cron table from the store. Swapping a fresh cron
// in wholesale is simpler than diffing entries and the table is small.
func (s *Scheduler) reload() error {
	ws, err := s.st.GetWorkflows()
	if err != nil {
		return err
	}

	next := cron.New(cron.WithLocation(time.UTC))

	entries := 0
	for _, w := range ws {
		def, err := workflow.Parse([]byte(w.Source))
		if err != nil {
			logger.WithError(err).
				WithField("workflow", w.Name).
				Warn("skipping workflow with bad source")
			continue
		}

		for _, expr := range def.Schedules() {
			ev := workflow.Event{
				Type:     workflow.EventSchedule,
				Remote:   w.Remote,
				Branch:   w.Branch,
				Workflow: w.Name,
			}

			_, err := next.AddFunc(expr, func() {
				logger.WithFields(log.Fields{
					"workflow": ev.Workflow,
					"cron":     expr,
				}).Info("schedule fired")

				s.fire(ev)
			})
			if err != nil {
				logger.WithError(err).
					WithField("workflow", w.Name).
					Warn("skipping bad cron expression")
				continue
			}

			entries++
		}
	}

	next.Start()

	s.mu.Lock()
	old := s.cron
	s.cron = next
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}

	logger.WithField("entries", entries).Debug("reloaded workflow schedules")

	return nil
}
