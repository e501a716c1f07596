package http

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/conveyor-ci/conveyor/store"

	"github.com/gorilla/mux"
)

func TestPostWorkflow(t *testing.T) {
	st := store.NewMemory()
	srv, _ := testServer(st)

	payload, _ := json.Marshal(workflowRequest{
		Remote: "https://git.test/repo.git",
		Branch: "master",
		Source: testSource,
	})

	req := httptest.NewRequest(http.MethodPost, "http://test/workflows", bytes.NewBuffer(payload))
	req = withSub(withReqID(req), "dev@localhost")
	rw := httptest.NewRecorder()

	srv.handleCreateWorkflow(rw, req)

	resp := rw.Result()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected status %v, got %v", http.StatusCreated, resp.StatusCode)
	}

	buf, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("got error reading response body: %v", err)
	}
	defer resp.Body.Close()

	var wf store.Workflow
	if err := json.Unmarshal(buf, &wf); err != nil {
		t.Fatalf("got error unmarshaling response body: %v", err)
	}

	if wf.ID == 0 {
		t.Fatalf("expected workflow to get an ID")
	}

	if wf.Name != "ci" {
		t.Fatalf("expected workflow name ci from source, got %v", wf.Name)
	}

	if wf.Group != "ci.master" {
		t.Fatalf("expected group ci.master, got %v", wf.Group)
	}

	if _, err := st.GetWorkflow(wf.ID); err != nil {
		t.Fatalf("expected workflow in store: %v", err)
	}
}

func TestPostWorkflowRejectsBadSource(t *testing.T) {
	srv, _ := testServer(store.NewMemory())

	payload, _ := json.Marshal(workflowRequest{
		Remote: "https://git.test/repo.git",
		Source: "name: broken\n",
	})

	req := httptest.NewRequest(http.MethodPost, "http://test/workflows", bytes.NewBuffer(payload))
	req = withSub(withReqID(req), "dev@localhost")
	rw := httptest.NewRecorder()

	srv.handleCreateWorkflow(rw, req)

	if rw.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("expected status %v, got %v", http.StatusBadRequest, rw.Result().StatusCode)
	}
}

func TestGetWorkflows(t *testing.T) {
	st := store.NewMemory()
	seedWorkflow(t, st)

	srv, _ := testServer(st)

	req := httptest.NewRequest(http.MethodGet, "http://test/workflows", nil)
	req = withReqID(req)
	rw := httptest.NewRecorder()

	srv.handleGetWorkflows(rw, req)

	resp := rw.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %v, got %v", http.StatusOK, resp.StatusCode)
	}

	buf, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("got error reading response body: %v", err)
	}
	defer resp.Body.Close()

	workflows := []store.Workflow{}
	if err := json.Unmarshal(buf, &workflows); err != nil {
		t.Fatalf("got error unmarshaling response body: %v", err)
	}

	if len(workflows) != 1 {
		t.Fatalf("expected 1 workflow, got %v", len(workflows))
	}
}

func TestGetWorkflowNotFound(t *testing.T) {
	srv, _ := testServer(store.NewMemory())

	req := httptest.NewRequest(http.MethodGet, "http://test/workflows/42", nil)
	req = withReqID(req)
	req = mux.SetURLVars(req, map[string]string{"id": "42"})
	rw := httptest.NewRecorder()

	srv.handleGetWorkflow(rw, req)

	if rw.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %v, got %v", http.StatusNotFound, rw.Result().StatusCode)
	}
}
