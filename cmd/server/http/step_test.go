package http

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/conveyor-ci/conveyor/store"

	"github.com/gorilla/mux"
)

func TestGetStep(t *testing.T) {
	st := store.NewMemory()

	step := store.Step{
		Name:       "tests",
		Status:     store.StatusFailed,
		Output:     "1 failed, 12 passed",
		WorkflowID: 1,
		RunCount:   1,
	}
	if err := st.CreateStep(&step); err != nil {
		t.Fatalf("got error seeding step: %v", err)
	}

	srv, _ := testServer(st)

	req := httptest.NewRequest(http.MethodGet, "http://test/steps/1", nil)
	req = withReqID(req)
	req = mux.SetURLVars(req, map[string]string{"id": strconv.Itoa(step.ID)})
	rw := httptest.NewRecorder()

	srv.handleGetStep(rw, req)

	resp := rw.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status %v, got %v", http.StatusOK, resp.StatusCode)
	}

	buf, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("got error reading response body: %v", err)
	}
	defer resp.Body.Close()

	var got store.Step
	if err := json.Unmarshal(buf, &got); err != nil {
		t.Fatalf("got error unmarshaling response body: %v", err)
	}

	if got.Name != "tests" || got.Status != store.StatusFailed {
		t.Fatalf("expected failed tests step, got %+v", got)
	}

	if got.Output != "1 failed, 12 passed" {
		t.Fatalf("expected step output in response, got %q", got.Output)
	}
}

func TestGetStepNotFound(t *testing.T) {
	srv, _ := testServer(store.NewMemory())

	req := httptest.NewRequest(http.MethodGet, "http://test/steps/42", nil)
	req = withReqID(req)
	req = mux.SetURLVars(req, map[string]string{"id": "42"})
	rw := httptest.NewRecorder()

	srv.handleGetStep(rw, req)

	if rw.Result().StatusCode != http.StatusNotFound {
		t.Fatalf("expected status %v, got %v", http.StatusNotFound, rw.Result().StatusCode)
	}
}
