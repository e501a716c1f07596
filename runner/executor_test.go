package runner

import (
	"context"
	"strings"
	"testing"

	"github.com/go-test/deep"
)

func TestShellExec(t *testing.T) {
	e := &Shell{}

	out, err := e.Exec(context.Background(), ExecSpec{
		Command: "echo hello",
	})
	if err != nil {
		t.Fatalf("got error running command: %v", err)
	}

	if strings.TrimSpace(out) != "hello" {
		t.Fatalf("expected output hello, got %q", out)
	}
}

func TestShellExecEnv(t *testing.T) {
	e := &Shell{}

	out, err := e.Exec(context.Background(), ExecSpec{
		Command: `echo "$PYTHON_VERSION"`,
		Env:     map[string]string{"PYTHON_VERSION": "3.7"},
	})
	if err != nil {
		t.Fatalf("got error running command: %v", err)
	}

	if strings.TrimSpace(out) != "3.7" {
		t.Fatalf("expected output 3.7, got %q", out)
	}
}

func TestShellExecFailure(t *testing.T) {
	e := &Shell{}

	out, err := e.Exec(context.Background(), ExecSpec{
		Command: "echo oops; exit 3",
	})
	if err == nil {
		t.Fatalf("expected error from non-zero exit")
	}

	if strings.TrimSpace(out) != "oops" {
		t.Fatalf("expected output captured on failure, got %q", out)
	}
}

func TestShellExecCancelled(t *testing.T) {
	e := &Shell{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Exec(ctx, ExecSpec{Command: "sleep 30"})
	if err == nil {
		t.Fatalf("expected error from cancelled command")
	}
}

func TestParseImageMap(t *testing.T) {
	got := ParseImageMap("ubuntu-latest=ubuntu:24.04, macos-latest=sickcodes/docker-osx,,bad-pair")

	want := map[string]string{
		"ubuntu-latest": "ubuntu:24.04",
		"macos-latest":  "sickcodes/docker-osx",
	}

	if diff := deep.Equal(got, want); diff != nil {
		t.Fatalf("image map mismatch: %v", diff)
	}
}
