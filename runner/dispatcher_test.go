package runner

import (
	"context"
	"testing"
	"time"

	"github.com/conveyor-ci/conveyor/store"
	"github.com/conveyor-ci/conveyor/workflow"
)

// gateExec blocks on the "block" command until cancelled and reports
// every command it starts.
type gateExec struct {
	started chan string
}

func (e *gateExec) Exec(ctx context.Context, spec ExecSpec) (string, error) {
	e.started <- spec.Command

	if spec.Command == "block" {
		<-ctx.Done()
		return "", ctx.Err()
	}

	return "ok", nil
}

func singleStepWorkflow(name, command string) *workflow.Workflow {
	return &workflow.Workflow{
		Name:  name,
		Steps: []workflow.Step{{Name: "only", Run: command}},
	}
}

func awaitStart(t *testing.T, exec *gateExec, want string) {
	t.Helper()

	select {
	case got := <-exec.started:
		if got != want {
			t.Fatalf("expected command %v to start, got %v", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for command %v to start", want)
	}
}

func TestDispatchCancelsSupersededRun(t *testing.T) {
	st := store.NewMemory()
	exec := &gateExec{started: make(chan string, 8)}
	d := NewDispatcher(New(st, exec))

	older := queuedRun(t, st)
	newer := store.Run{
		Status:     store.StatusQueued,
		Trigger:    "push",
		Ref:        "master",
		WorkflowID: older.WorkflowID,
	}
	if err := st.CreateRun(&newer); err != nil {
		t.Fatalf("got error creating run: %v", err)
	}

	d.Dispatch("test.master", older, singleStepWorkflow("test", "block"), "r")
	awaitStart(t, exec, "block")

	// The newer run supersedes the older one in the same group.
	d.Dispatch("test.master", &newer, singleStepWorkflow("test", "fast"), "r")

	d.Wait()

	stored, err := st.GetRun(older.WorkflowID, older.Count)
	if err != nil {
		t.Fatalf("got error fetching older run: %v", err)
	}
	if stored.Status != store.StatusCancelled {
		t.Fatalf("expected older run status %v, got %v", store.StatusCancelled, stored.Status)
	}

	stored, err = st.GetRun(newer.WorkflowID, newer.Count)
	if err != nil {
		t.Fatalf("got error fetching newer run: %v", err)
	}
	if stored.Status != store.StatusSucceeded {
		t.Fatalf("expected newer run status %v, got %v", store.StatusSucceeded, stored.Status)
	}
}

func TestDispatchSeparateGroups(t *testing.T) {
	st := store.NewMemory()
	exec := &gateExec{started: make(chan string, 8)}
	d := NewDispatcher(New(st, exec))

	blocked := queuedRun(t, st)
	other := store.Run{
		Status:     store.StatusQueued,
		WorkflowID: blocked.WorkflowID,
	}
	if err := st.CreateRun(&other); err != nil {
		t.Fatalf("got error creating run: %v", err)
	}

	d.Dispatch("group-a", blocked, singleStepWorkflow("a", "block"), "r")
	awaitStart(t, exec, "block")

	// A run in another group shouldn't touch the blocked one.
	d.Dispatch("group-b", &other, singleStepWorkflow("b", "fast"), "r")
	awaitStart(t, exec, "fast")

	if !d.Cancel("group-a") {
		t.Fatalf("expected an in-progress run to cancel in group-a")
	}

	d.Wait()

	stored, err := st.GetRun(blocked.WorkflowID, blocked.Count)
	if err != nil {
		t.Fatalf("got error fetching blocked run: %v", err)
	}
	if stored.Status != store.StatusCancelled {
		t.Fatalf("expected blocked run status %v, got %v", store.StatusCancelled, stored.Status)
	}
}

func TestCancelWithNothingRunning(t *testing.T) {
	st := store.NewMemory()
	d := NewDispatcher(New(st, &gateExec{started: make(chan string, 1)}))

	if d.Cancel("nope") {
		t.Fatalf("expected nothing to cancel")
	}
}
