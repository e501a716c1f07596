package main

import (
	"database/sql"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/conveyor-ci/conveyor/store"
	"github.com/conveyor-ci/conveyor/workflow"

	_ "github.com/lib/pq" // load the postgres driver
)

var schema = `
CREATE TABLE IF NOT EXISTS workflows (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	remote TEXT NOT NULL,
	branch TEXT NOT NULL,
	concurrency_group TEXT NOT NULL,
	source TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	count INTEGER NOT NULL,
	status TEXT NOT NULL,
	start_time TIMESTAMPTZ,
	end_time TIMESTAMPTZ,
	trigger TEXT,
	ref TEXT,
	workflow_id INTEGER NOT NULL REFERENCES workflows (id),
	PRIMARY KEY (workflow_id, count)
);

CREATE TABLE IF NOT EXISTS steps (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	start_time TIMESTAMPTZ,
	end_time TIMESTAMPTZ,
	output TEXT,
	workflow_id INTEGER NOT NULL,
	run_count INTEGER NOT NULL,
	FOREIGN KEY (workflow_id, run_count) REFERENCES runs (workflow_id, count)
);

CREATE TABLE IF NOT EXISTS users (
	email TEXT PRIMARY KEY,
	name TEXT,
	password BYTEA NOT NULL
);
`

func usage() {
	fmt.Println("usage: go run dev/seed-db/main.go -- $POSTGRES_CONNECTION_STRING $WORKFLOW_YAML_PATH $REMOTE")
}

func main() {
	// This is 5 because passing arguments to `go run` requires the `--`
	// and that also counts as one of the arguments in `os.Args`.
	if len(os.Args) != 5 {
		usage()
		os.Exit(1)
	}

	args := os.Args[2:]

	connstr := args[0]
	path := args[1]
	remote := args[2]
	if connstr == "" || path == "" || remote == "" {
		usage()
		os.Exit(1)
	}

	fmt.Printf("seeding %v with workflow from %v\n", connstr, path)

	db, err := sql.Open("postgres", connstr)
	if err != nil {
		fmt.Printf("got error connecting to postgres: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.Exec(schema); err != nil {
		fmt.Printf("got error creating schema: %v\n", err)
		os.Exit(1)
	}

	buf, err := ioutil.ReadFile(path)
	if err != nil {
		fmt.Printf("got error reading file: %v\n", err)
		os.Exit(1)
	}

	def, err := workflow.Parse(buf)
	if err != nil {
		fmt.Printf("got error parsing workflow: %v\n", err)
		os.Exit(1)
	}

	st, err := store.NewPostgres(connstr)
	if err != nil {
		fmt.Printf("got error opening store: %v\n", err)
		os.Exit(1)
	}

	branch := "master"
	wf := store.Workflow{
		Name:   def.Name,
		Remote: remote,
		Branch: branch,
		Group:  def.Group(branch),
		Source: string(buf),
	}

	if err := st.CreateWorkflow(&wf); err != nil {
		fmt.Printf("got error saving workflow: %v\n", err)
		os.Exit(1)
	}

	user := store.User{
		Name:     "dev",
		Email:    "dev@localhost",
		Password: "dev",
	}

	if err := st.CreateUser(&user); err != nil {
		fmt.Printf("got error saving user: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeded workflow %v with id %v\n", wf.Name, wf.ID)
}
