package main

import (
	"fmt"
	"os"

	"github.com/conveyor-ci/conveyor/cmd/server/http"
	"github.com/conveyor-ci/conveyor/queue"
	"github.com/conveyor-ci/conveyor/scheduler"
	"github.com/conveyor-ci/conveyor/store"
	"github.com/conveyor-ci/conveyor/workflow"

	"github.com/joho/godotenv"
	nats "github.com/nats-io/go-nats"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

var addr, pgconnstr, natsURL, jwtsecret string

func init() {
	// A missing .env just means the config comes from the real
	// environment.
	godotenv.Load()

	lvl, err := logrus.ParseLevel(os.Getenv("CONVEYOR_LOG_LEVEL"))
	if err != nil {
		lvl = logrus.InfoLevel
	}

	logrus.SetLevel(lvl)

	logger = logrus.WithField("package", "main")

	addr = os.Getenv("CONVEYOR_HTTP_ADDR")
	if addr == "" {
		addr = ":9001"
	}

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

	jwtsecret = os.Getenv("CONVEYOR_JWT_SECRET")
	if jwtsecret == "" {
		logger.Warn("CONVEYOR_JWT_SECRET not set - defaulting to \"\" (HIGHLY INSECURE!)")
	}
}

func main() {
	logger.Info("booting server...")

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

	logger.Info("setting up runs send channel")
	send := bus.SenderOn("runs")

	srv := http.NewServer(addr, send, st, jwtsecret)

	logger.Info("starting cron scheduler")
	sched := scheduler.New(st, func(ev workflow.Event) {
		if _, err := srv.DispatchEvent(ev); err != nil {
			logger.WithError(err).Error("unable to dispatch scheduled event")
		}
	})
	if err := sched.Start(); err != nil {
		logger.WithField("error", err).Fatal("unable to start scheduler")
	}

	if err := srv.ListenAndServe(); err != nil {
		logger.WithField("error", err).Fatal("shutting down server")
	}
}
