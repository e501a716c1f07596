package workflow

import (
	"io/ioutil"
	"strings"
	"testing"
)

func TestParseWorkflow(t *testing.T) {
	buf, err := ioutil.ReadFile("testdata/macos-ci.yml")
	if err != nil {
		t.Fatalf("got error reading testdata: %v", err)
	}

	wf, err := Parse(buf)
	if err != nil {
		t.Fatalf("got error parsing workflow: %v", err)
	}

	if wf.Name != "macos-ci" {
		t.Fatalf("expected workflow named macos-ci, got %v", wf.Name)
	}

	if wf.RunsOn != "macos-latest" {
		t.Fatalf("expected runner label macos-latest, got %v", wf.RunsOn)
	}

	if len(wf.Steps) != 7 {
		t.Fatalf("expected 7 steps, got %v", len(wf.Steps))
	}

	if wf.On.Push == nil || wf.On.PullRequest == nil {
		t.Fatalf("expected push and pull_request triggers")
	}

	if len(wf.On.Schedule) != 1 || wf.On.Schedule[0].Cron != "0 4 * * 0" {
		t.Fatalf("expected weekly cron schedule, got %+v", wf.On.Schedule)
	}

	if wf.Env["PYTHON_VERSION"] != "3.7" {
		t.Fatalf("expected python version 3.7, got %v", wf.Env["PYTHON_VERSION"])
	}

	last := wf.Steps[len(wf.Steps)-1]
	if last.If != CondSuccess {
		t.Fatalf("expected last step conditioned on success, got %q", last.If)
	}

	if last.Uses != "codecov/codecov-action@v1" {
		t.Fatalf("expected coverage upload action, got %q", last.Uses)
	}
}

func TestParseRejectsBadWorkflows(t *testing.T) {
	cases := []struct {
		name   string
		source string
		errmsg string
	}{
		{
			name:   "no name",
			source: "on:\n  push:\n    branches: [master]\nsteps:\n  - run: true\n",
			errmsg: "no name",
		},
		{
			name:   "no triggers",
			source: "name: test\nsteps:\n  - run: true\n",
			errmsg: "no triggers",
		},
		{
			name:   "no steps",
			source: "name: test\non:\n  push:\n    branches: [master]\n",
			errmsg: "no steps",
		},
		{
			name:   "bad cron",
			source: "name: test\non:\n  schedule:\n    - cron: \"not a cron\"\nsteps:\n  - run: true\n",
			errmsg: "cron",
		},
		{
			name:   "step with nothing to run",
			source: "name: test\non:\n  push:\n    branches: [master]\nsteps:\n  - name: empty\n",
			errmsg: "no run command",
		},
		{
			name:   "step with run and uses",
			source: "name: test\non:\n  push:\n    branches: [master]\nsteps:\n  - run: true\n    uses: actions/checkout@v2\n",
			errmsg: "both",
		},
		{
			name:   "unknown condition",
			source: "name: test\non:\n  push:\n    branches: [master]\nsteps:\n  - run: true\n    if: failure()\n",
			errmsg: "unknown condition",
		},
	}

	for _, c := range cases {
		_, err := Parse([]byte(c.source))
		if err == nil {
			t.Fatalf("%v: expected parse error, got none", c.name)
		}

		if !strings.Contains(err.Error(), c.errmsg) {
			t.Fatalf("%v: expected error containing %q, got %q", c.name, c.errmsg, err)
		}
	}
}
