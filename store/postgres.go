package store

import (
	"database/sql"

	_ "github.com/lib/pq" // load the postgres driver
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Postgres is a PostgreSQL database that's also a ConveyorStore.
type Postgres struct {
	db *sql.DB
}

// NewPostgres returns a ConveyorStore backed by PostgreSQL. It connects
// to the database using connstr.
func NewPostgres(connstr string) (ConveyorStore, error) {
	logger = logger.WithField("store", "postgres")

	logger.Debug("connecting to database")

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		logger.WithField("error", err).Debug("unable to connect to database")
		return nil, err
	}

	return &Postgres{
		db: db,
	}, nil
}

// CreateWorkflow saves the workflow in the database and sets its ID to
// what Postgres assigned it.
func (st *Postgres) CreateWorkflow(w *Workflow) error {
	logger := logger.WithFields(log.Fields{
		"name":   w.Name,
		"remote": w.Remote,

		"query": "create_workflow",
	})

	sqlinsert := `
	INSERT INTO workflows (name, remote, branch, concurrency_group, source)
	VALUES
		($1, $2, $3, $4, $5)
	RETURNING id;
	`

	logger.Debug("saving workflow")

	// Using QueryRow because the insert is returning "id".
	err := st.db.QueryRow(sqlinsert,
		w.Name, w.Remote, w.Branch, w.Group, w.Source).
		Scan(&w.ID)
	if err != nil {
		logger.WithField("error", err).Debug("unable to insert workflow")
		return err
	}

	logger.Debug("workflow saved")

	return nil
}

// GetWorkflow retrieves the Workflow with the given id from postgres,
// along with its runs.
func (st *Postgres) GetWorkflow(id int) (Workflow, error) {
	logger := logger.WithField("id", id)
	logger.Debug("getting workflow from postgres")

	sqlq := `
	SELECT w.name, w.remote, w.branch, w.concurrency_group, w.source,
		r.count, r.status, r.start_time, r.end_time, r.trigger, r.ref
	FROM workflows AS w
	LEFT JOIN runs AS r
	ON w.id = r.workflow_id
	WHERE w.id = $1
	ORDER BY r.count;
	`

	var w Workflow
	rows, err := st.db.Query(sqlq, id)
	if err != nil {
		logger.WithError(err).Debug("unable to query database")
		return w, err
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		r := Run{WorkflowID: id}
		var count sql.NullInt64
		var status, trigger, ref sql.NullString

		// It's safe to always overwrite `w` here because these values
		// should always be the same.
		err := rows.Scan(&w.Name, &w.Remote, &w.Branch, &w.Group, &w.Source,
			&count, &status, &r.Start, &r.End, &trigger, &ref)
		if err != nil {
			logger.WithError(err).Debug("unable to scan row")
			return w, err
		}

		found = true

		// The join is LEFT so a workflow with no runs still comes back.
		if count.Valid {
			r.Count = int(count.Int64)
			r.Status = Status(status.String)
			r.Trigger = trigger.String
			r.Ref = ref.String

			w.Runs = append(w.Runs, r)
		}
	}

	if !found {
		return w, ErrWorkflowNotFound
	}

	w.ID = id

	return w, nil
}

// GetWorkflows retrieves all registered workflows from Postgres,
// without their run history.
func (st *Postgres) GetWorkflows() ([]Workflow, error) {
	logger.Debug("fetching all workflows from postgres")

	sqlq := `
	SELECT id, name, remote, branch, concurrency_group, source
	FROM workflows;
	`

	rows, err := st.db.Query(sqlq)
	if err != nil {
		logger.WithField("error", err).Debug("unable to query database")
		return nil, err
	}
	defer rows.Close()

	ws := []Workflow{}
	for rows.Next() {
		w := Workflow{}
		err := rows.Scan(&w.ID, &w.Name, &w.Remote, &w.Branch, &w.Group, &w.Source)
		if err != nil {
			logger.WithField("error", err).Debug("unable to scan row")
			return ws, err
		}

		ws = append(ws, w)
	}

	return ws, nil
}

// GetWorkflowID queries Postgres for the ID of the workflow matching
// the filters. If no workflows are found it returns ErrNoWorkflows.
func (st *Postgres) GetWorkflowID(remote, name string) (id int, err error) {
	logger := logger.WithFields(log.Fields{
		"remote": remote,
		"name":   name,
		"query":  "get_workflow_id",
	})

	sqlq := `
	SELECT id
	FROM workflows
	WHERE remote = $1
		AND name = $2;
	`

	logger.Debug("retrieving id from postgres")

	err = st.db.QueryRow(sqlq, remote, name).Scan(&id)
	if err == sql.ErrNoRows {
		err = ErrNoWorkflows
	}

	return
}

// CreateRun is part of the ConveyorStore interface. It creates a new
// workflow run in the database and sets the count.
func (st *Postgres) CreateRun(r *Run) error {
	logger := logger.WithFields(log.Fields{
		"workflow_id": r.WorkflowID,
	})

	sqlinsert := `
	WITH run_count AS (
		SELECT COUNT(*) from runs
		WHERE runs.workflow_id = $6
	)
	INSERT INTO runs (count, status, start_time, end_time, trigger, ref, workflow_id)
	SELECT run_count.count+1, $1, $2, $3, $4, $5, $6
	FROM run_count
	RETURNING count
	`

	logger.Debug("saving workflow run")

	// Using QueryRow because the insert is returning "count".
	err := st.db.QueryRow(sqlinsert,
		r.Status, r.Start, r.End, r.Trigger, r.Ref, r.WorkflowID).
		Scan(&r.Count)
	if err != nil {
		logger.WithField("error", err).Debug("unable to insert workflow run")
		return err
	}

	logger.Debug("workflow run saved")

	return nil
}

// UpdateRun implements part of ConveyorStore. It updates a run's
// status, start time and end time.
func (st *Postgres) UpdateRun(r *Run) error {
	logger := logger.WithFields(log.Fields{
		"workflow_id": r.WorkflowID,
		"count":       r.Count,
		"status":      r.Status,
	})

	sqlupdate := `
	UPDATE runs
	SET status = $1, start_time = $2, end_time = $3
	WHERE runs.workflow_id = $4 AND runs.count = $5
	`

	logger.Debug("saving workflow run")

	_, err := st.db.Exec(sqlupdate, r.Status, r.Start, r.End, r.WorkflowID, r.Count)
	if err != nil {
		logger.WithError(err).Debug("unable to update workflow run")
		return err
	}

	logger.Debug("workflow run saved")

	return nil
}

// GetRun returns the nth run of the workflow with the given ID. If the
// run isn't found it returns ErrRunNotFound.
func (st *Postgres) GetRun(wid, n int) (Run, error) {
	logger := logger.WithFields(log.Fields{
		"workflow_id": wid,
		"count":       n,
	})
	logger.Debug("getting run from postgres")

	sqlq := `
	SELECT r.status, r.start_time, r.end_time, r.trigger, r.ref,
		s.id, s.name, s.status, s.start_time, s.end_time, s.output
	FROM runs AS r
	LEFT JOIN steps AS s
	ON r.count = s.run_count
		AND r.workflow_id = s.workflow_id
	WHERE r.workflow_id = $1 AND r.count = $2
	ORDER BY s.id
	`

	r := Run{
		WorkflowID: wid,
		Count:      n,
	}
	rows, err := st.db.Query(sqlq, wid, n)
	if err != nil {
		logger.WithError(err).Debug("unable to query database")
		return r, err
	}
	defer rows.Close()

	found := false
	for rows.Next() {
		s := Step{
			WorkflowID: wid,
			RunCount:   n,
		}
		var sid sql.NullInt64
		var sname, sstatus, soutput sql.NullString

		// It's safe to always overwrite `r` here because these values
		// should always be the same.
		err := rows.Scan(&r.Status, &r.Start, &r.End, &r.Trigger, &r.Ref,
			&sid, &sname, &sstatus, &s.Start, &s.End, &soutput)
		if err != nil {
			logger.WithError(err).Debug("unable to scan row")
			return r, err
		}

		found = true

		if sid.Valid {
			s.ID = int(sid.Int64)
			s.Name = sname.String
			s.Status = Status(sstatus.String)
			s.Output = soutput.String

			r.Steps = append(r.Steps, s)
		}
	}

	if !found {
		return r, ErrRunNotFound
	}

	return r, nil
}

// CreateStep is part of the ConveyorStore interface. It creates a new
// run step in the database and sets the ID.
func (st *Postgres) CreateStep(s *Step) error {
	logger := logger.WithFields(log.Fields{
		"workflow_id": s.WorkflowID,
		"run_count":   s.RunCount,
		"name":        s.Name,
	})

	sqlinsert := `
	INSERT INTO steps (name, status, start_time, end_time, output, workflow_id, run_count)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	RETURNING id
	`

	logger.Debug("saving run step")

	// Using QueryRow because the insert is returning "id".
	err := st.db.QueryRow(sqlinsert,
		s.Name, s.Status, s.Start, s.End, s.Output, s.WorkflowID, s.RunCount).
		Scan(&s.ID)
	if err != nil {
		logger.WithField("error", err).Debug("unable to insert run step")
		return err
	}

	logger.Debug("run step saved")

	return nil
}

// UpdateStep is part of the ConveyorStore interface. It updates a
// step's status, end time and captured output with what's passed in.
func (st *Postgres) UpdateStep(s *Step) error {
	logger := logger.WithFields(log.Fields{
		"id":     s.ID,
		"name":   s.Name,
		"status": s.Status,
	})

	sqlupdate := `
	UPDATE steps
	SET status = $1, end_time = $2, output = $3
	WHERE steps.id = $4
	`

	logger.Debug("saving run step")

	_, err := st.db.Exec(sqlupdate, s.Status, s.End, s.Output, s.ID)
	if err != nil {
		logger.WithError(err).Debug("unable to update run step")
		return err
	}

	logger.Debug("run step saved")

	return nil
}

// GetStep returns the step with the given ID. If the step isn't found
// it returns ErrStepNotFound.
func (st *Postgres) GetStep(id int) (Step, error) {
	logger := logger.WithField("id", id)
	logger.Debug("getting step from postgres")

	sqlq := `
	SELECT name, status, start_time, end_time, output, workflow_id, run_count
	FROM steps
	WHERE steps.id = $1
	`

	s := Step{ID: id}
	err := st.db.QueryRow(sqlq, id).Scan(&s.Name, &s.Status, &s.Start, &s.End,
		&s.Output, &s.WorkflowID, &s.RunCount)
	if err != nil {
		logger.WithError(err).Debug("unable to query row")
		if err == sql.ErrNoRows {
			return s, ErrStepNotFound
		}
	}

	return s, err
}

// CreateUser creates the passed in user in the database.
func (st *Postgres) CreateUser(u *User) error {
	logger := logger.WithField("email", u.Email)
	logger.Debug("saving user")

	password, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.WithError(err).Debug("unable to encrypt password")
		return err
	}

	sqlq := `
	INSERT INTO users (email, name, password)
	VALUES
		($1, $2, $3)
	`

	_, err = st.db.Exec(sqlq, u.Email, u.Name, password)
	return err
}

// Authenticate checks the password for the user with the given email
// address.
func (st *Postgres) Authenticate(email, pass string) error {
	logger := logger.WithField("email", email)
	logger.Debug("authenticating user")

	sqlq := `
	SELECT password
	FROM users
	WHERE users.email = $1
	`

	cryptpass := []byte{}
	err := st.db.QueryRow(sqlq, email).Scan(&cryptpass)
	if err != nil {
		logger.WithError(err).Debug("unable to query row")
		if err == sql.ErrNoRows {
			return ErrNotAuthenticated
		}
		return err
	}

	err = bcrypt.CompareHashAndPassword(cryptpass, []byte(pass))
	if err != nil {
		logger.WithError(err).Debug("unable to authenticate")
		return ErrNotAuthenticated
	}

	return nil
}
