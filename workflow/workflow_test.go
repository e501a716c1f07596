package workflow

import "testing"

func triggeredWorkflow() *Workflow {
	return &Workflow{
		Name: "test",
		On: Triggers{
			Push:        &BranchFilter{Branches: []string{"master", "release-*"}},
			PullRequest: &BranchFilter{},
			Schedule:    []CronSchedule{{Cron: "0 4 * * 0"}},
		},
		Steps: []Step{{Run: "true"}},
	}
}

func TestMatchesPush(t *testing.T) {
	wf := triggeredWorkflow()

	cases := []struct {
		branch string
		want   bool
	}{
		{"master", true},
		{"release-1.0", true},
		{"feature/thing", false},
	}

	for _, c := range cases {
		ev := Event{Type: EventPush, Remote: "r", Branch: c.branch}
		if got := wf.Matches(ev); got != c.want {
			t.Fatalf("push on %v: expected match=%v, got %v", c.branch, c.want, got)
		}
	}
}

func TestMatchesPullRequestAnyBranch(t *testing.T) {
	wf := triggeredWorkflow()

	// An empty branch filter matches every branch.
	ev := Event{Type: EventPullRequest, Remote: "r", Branch: "anything-at-all"}
	if !wf.Matches(ev) {
		t.Fatalf("expected pull_request on any branch to match")
	}
}

func TestMatchesMissingTrigger(t *testing.T) {
	wf := triggeredWorkflow()
	wf.On.Push = nil

	ev := Event{Type: EventPush, Remote: "r", Branch: "master"}
	if wf.Matches(ev) {
		t.Fatalf("expected push not to match with no push trigger")
	}
}

func TestMatchesSchedule(t *testing.T) {
	wf := triggeredWorkflow()

	ev := Event{Type: EventSchedule, Remote: "r", Branch: "master", Workflow: "test"}
	if !wf.Matches(ev) {
		t.Fatalf("expected schedule event to match")
	}

	// A schedule event for some other workflow shouldn't get picked up.
	ev.Workflow = "other"
	if wf.Matches(ev) {
		t.Fatalf("expected schedule event for another workflow not to match")
	}

	wf.On.Schedule = nil
	ev.Workflow = "test"
	if wf.Matches(ev) {
		t.Fatalf("expected schedule event not to match with no schedule trigger")
	}
}

func TestGroup(t *testing.T) {
	wf := triggeredWorkflow()

	if got := wf.Group("master"); got != "test.master" {
		t.Fatalf("expected default group test.master, got %v", got)
	}

	wf.Concurrency = "ci-group"
	if got := wf.Group("master"); got != "ci-group" {
		t.Fatalf("expected explicit group ci-group, got %v", got)
	}
}
