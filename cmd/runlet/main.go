package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/conveyor-ci/conveyor/queue"
	"github.com/conveyor-ci/conveyor/runner"
	"github.com/conveyor-ci/conveyor/store"
	"github.com/conveyor-ci/conveyor/workflow"

	"github.com/joho/godotenv"
	nats "github.com/nats-io/go-nats"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

var pgconnstr, natsURL, executorKind, workspace string
var dockerHost, dockerImages, dockerDefaultImage string

func init() {
	godotenv.Load()

	lvl, err := logrus.ParseLevel(os.Getenv("CONVEYOR_LOG_LEVEL"))
	if err != nil {
		lvl = logrus.InfoLevel
	}

	logrus.SetLevel(lvl)

	logger = logrus.WithField("package", "main")

	pguser := os.Getenv("CONVEYOR_POSTGRES_USER")
	if pguser == "" {
		logger.Fatal("need CONVEYOR_POSTGRES_USER")
	}

	pgpass := os.Getenv("CONVEYOR_POSTGRES_PASS")
	if pgpass == "" {
		logger.Fatal("need CONVEYOR_POSTGRES_PASS")
	}

	pghref := os.Getenv("CONVEYOR_POSTGRES_HREF")
	if pghref == "" {
		logger.Fatal("need CONVEYOR_POSTGRES_HREF")
	}

	pgdb := os.Getenv("CONVEYOR_POSTGRES_DB")
	if pgdb == "" {
		logger.Fatal("need CONVEYOR_POSTGRES_DB")
	}

	pgssl := os.Getenv("CONVEYOR_POSTGRES_SSL")
	if pgssl == "" {
		logger.Info("CONVEYOR_POSTGRES_SSL not set - defaulting to verify-full")
		pgssl = "verify-full"
	}

	pgconnstr = fmt.Sprintf("postgres://%v:%v@%v/%v?sslmode=%v",
		pguser, pgpass, pghref, pgdb, pgssl)

	natsURL = os.Getenv("CONVEYOR_NATS_URL")
	if natsURL == "" {
		logger.Warnf("setting NATS url to %v", nats.DefaultURL)
		natsURL = nats.DefaultURL
	}

	executorKind = os.Getenv("CONVEYOR_EXECUTOR")
	if executorKind == "" {
		executorKind = "docker"
	}

	workspace = os.Getenv("CONVEYOR_WORKSPACE")

	dockerHost = os.Getenv("CONVEYOR_DOCKER_HOST")
	if dockerHost == "" {
		dockerHost = "unix:///var/run/docker.sock"
	}

	dockerImages = os.Getenv("CONVEYOR_RUNNER_IMAGES")

	dockerDefaultImage = os.Getenv("CONVEYOR_DEFAULT_IMAGE")
	if dockerDefaultImage == "" {
		dockerDefaultImage = "alpine:3.20"
	}
}

func main() {
	logger.Info("booting runlet...")

	logger.Info("connecting to database")
	st, err := store.NewPostgres(pgconnstr)
	if err != nil {
		logger.WithField("error", err).Fatal("unable to connect to postgres")
	}

	logger.Info("setting up NATS connection")
	bus, err := queue.NewNATS(natsURL)
	if err != nil {
		logger.WithField("error", err).Fatal("unable to connect to NATS")
	}

	recv, err := bus.ReceiverOn("runs")
	if err != nil {
		logger.WithField("error", err).Fatal("unable to subscribe to runs")
	}

	var exec runner.Executor
	switch executorKind {
	case "shell":
		logger.Info("using shell executor")
		exec = &runner.Shell{Dir: workspace}
	case "docker":
		logger.Info("using docker executor")
		exec, err = runner.NewDocker(dockerHost,
			runner.ParseImageMap(dockerImages), dockerDefaultImage)
		if err != nil {
			logger.WithField("error", err).Fatal("unable to connect to docker")
		}
	default:
		logger.Fatalf("unknown executor %q", executorKind)
	}

	disp := runner.NewDispatcher(runner.New(st, exec))

	logger.Info("waiting for run events")

	for raw := range recv {
		var ev queue.RunEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			logger.WithError(err).Error("unable to unmarshal run event")
			continue
		}

		handleEvent(st, disp, ev)
	}
}

func handleEvent(st store.ConveyorStore, disp *runner.Dispatcher, ev queue.RunEvent) {
	logger := logger.WithFields(logrus.Fields{
		"op":          ev.Op,
		"workflow_id": ev.WorkflowID,
		"run_count":   ev.RunCount,
		"group":       ev.Group,
	})

	switch ev.Op {
	case queue.OpCancel:
		if !disp.Cancel(ev.Group) {
			logger.Info("no in-progress run to cancel")
		}
	case queue.OpRun:
		def, err := workflow.Parse([]byte(ev.Source))
		if err != nil {
			logger.WithError(err).Error("unable to parse workflow source")
			return
		}

		run, err := st.GetRun(ev.WorkflowID, ev.RunCount)
		if err != nil {
			logger.WithError(err).Error("unable to load run record")
			return
		}

		logger.Info("dispatching run")
		disp.Dispatch(ev.Group, &run, def, ev.Remote)
	default:
		logger.Warn("ignoring unknown op")
	}
}
