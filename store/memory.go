package store

import (
	"sort"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

type runkey struct {
	wid   int
	count int
}

// Memory is an in-process ConveyorStore. It backs tests and the dev
// tooling; nothing in it survives the process.
type Memory struct {
	mu sync.Mutex

	workflowdb map[int]Workflow
	rundb      map[runkey]Run
	stepdb     map[int]Step
	userdb     map[string][]byte

	nextWorkflowID int
	nextStepID     int
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		workflowdb: make(map[int]Workflow),
		rundb:      make(map[runkey]Run),
		stepdb:     make(map[int]Step),
		userdb:     make(map[string][]byte),

		nextWorkflowID: 1,
		nextStepID:     1,
	}
}

// CreateWorkflow saves the workflow and assigns it an ID.
func (st *Memory) CreateWorkflow(w *Workflow) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	w.ID = st.nextWorkflowID
	st.nextWorkflowID++

	st.workflowdb[w.ID] = *w
	return nil
}

// GetWorkflow returns the workflow with the given ID along with its
// runs.
func (st *Memory) GetWorkflow(id int) (Workflow, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	w, ok := st.workflowdb[id]
	if !ok {
		return Workflow{}, ErrWorkflowNotFound
	}

	w.Runs = nil
	for key, r := range st.rundb {
		if key.wid == id {
			w.Runs = append(w.Runs, r)
		}
	}

	sort.Slice(w.Runs, func(i, j int) bool {
		return w.Runs[i].Count < w.Runs[j].Count
	})

	return w, nil
}

// GetWorkflows returns every registered workflow, without run history.
func (st *Memory) GetWorkflows() ([]Workflow, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	ws := []Workflow{}
	for _, w := range st.workflowdb {
		w.Runs = nil
		ws = append(ws, w)
	}

	return ws, nil
}

// GetWorkflowID looks up a workflow by remote and name. It returns
// ErrNoWorkflows when nothing matches.
func (st *Memory) GetWorkflowID(remote, name string) (int, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	for id, w := range st.workflowdb {
		if w.Remote == remote && w.Name == name {
			return id, nil
		}
	}

	return 0, ErrNoWorkflows
}

// CreateRun saves the run, setting its count to the next count for its
// workflow.
func (st *Memory) CreateRun(r *Run) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	count := 0
	for key := range st.rundb {
		if key.wid == r.WorkflowID {
			count++
		}
	}

	r.Count = count + 1
	st.rundb[runkey{r.WorkflowID, r.Count}] = *r
	return nil
}

// UpdateRun overwrites the stored run with what's passed in.
func (st *Memory) UpdateRun(r *Run) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	key := runkey{r.WorkflowID, r.Count}
	if _, ok := st.rundb[key]; !ok {
		return ErrRunNotFound
	}

	st.rundb[key] = *r
	return nil
}

// GetRun returns the nth run of the given workflow with its steps.
func (st *Memory) GetRun(wid, n int) (Run, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	r, ok := st.rundb[runkey{wid, n}]
	if !ok {
		return Run{}, ErrRunNotFound
	}

	r.Steps = nil
	// Step IDs are assigned in creation order, so sorting by ID keeps
	// the declared step order.
	for id := 1; id < st.nextStepID; id++ {
		s, ok := st.stepdb[id]
		if ok && s.WorkflowID == wid && s.RunCount == n {
			r.Steps = append(r.Steps, s)
		}
	}

	return r, nil
}

// CreateStep saves the step and assigns it an ID.
func (st *Memory) CreateStep(s *Step) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s.ID = st.nextStepID
	st.nextStepID++

	st.stepdb[s.ID] = *s
	return nil
}

// UpdateStep overwrites the stored step with what's passed in.
func (st *Memory) UpdateStep(s *Step) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.stepdb[s.ID]; !ok {
		return ErrStepNotFound
	}

	st.stepdb[s.ID] = *s
	return nil
}

// GetStep returns the step with the given ID.
func (st *Memory) GetStep(id int) (Step, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.stepdb[id]
	if !ok {
		return Step{}, ErrStepNotFound
	}

	return s, nil
}

// CreateUser saves the user with an encrypted password.
func (st *Memory) CreateUser(u *User) error {
	password, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	st.userdb[u.Email] = password
	return nil
}

// Authenticate checks the password for the user with the given email.
func (st *Memory) Authenticate(email, pass string) error {
	st.mu.Lock()
	cryptpass, ok := st.userdb[email]
	st.mu.Unlock()

	if !ok {
		return ErrNotAuthenticated
	}

	if err := bcrypt.CompareHashAndPassword(cryptpass, []byte(pass)); err != nil {
		return ErrNotAuthenticated
	}

	return nil
}
