package http

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"

	"github.com/conveyor-ci/conveyor/queue"
	"github.com/conveyor-ci/conveyor/store"
	"github.com/conveyor-ci/conveyor/workflow"

	"github.com/sirupsen/logrus"
)

func (srv *Server) handleCreateEvent(rw http.ResponseWriter, req *http.Request) {
	reqID := req.Context().Value(keyReqID).(string)
	logger := logger.WithField("request_id", reqID)

	logger.Debug("reading request body")
	buf, err := ioutil.ReadAll(req.Body)
	if err != nil {
		logger.WithError(err).Error("unable to read request body")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	logger.Debug("unmarshaling request body")
	var ev workflow.Event
	err = json.Unmarshal(buf, &ev)
	if err != nil {
		logger.WithError(err).Error("unable to unmarshal request body")

		writeErrResp(rw, err, http.StatusBadRequest)
		return
	}

	switch ev.Type {
	case workflow.EventPush, workflow.EventPullRequest:
	default:
		err := errors.New("event type must be push or pull_request")
		logger.WithError(err).Error("unable to complete request")

		writeErrResp(rw, err, http.StatusBadRequest)
		return
	}

	if ev.Remote == "" || ev.Branch == "" {
		err := errors.New("missing fields in event request body")
		logger.WithError(err).Error("unable to complete request")

		writeErrResp(rw, err, http.StatusBadRequest)
		return
	}

	logger = logger.WithFields(logrus.Fields{
		"type":   ev.Type,
		"remote": ev.Remote,
		"branch": ev.Branch,
	})

	scheduled, err := srv.DispatchEvent(ev)
	if err != nil {
		logger.WithError(err).Error("unable to dispatch event")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	logger.WithField("scheduled", scheduled).Info("event dispatched")

	buf, err = json.Marshal(map[string]int{
		"scheduled": scheduled,
	})
	if err != nil {
		logger.WithError(err).Error("unable to marshal response body")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(http.StatusAccepted)
	rw.Write(buf)
	return
}

// DispatchEvent matches the event against every registered workflow,
// records a queued run for each match, and hands the runs off to the
// agents through the queue. It returns how many runs were scheduled.
// The scheduler calls this directly for cron fires.
func (srv *Server) DispatchEvent(ev workflow.Event) (int, error) {
	logger := logger.WithFields(logrus.Fields{
		"type":   ev.Type,
		"remote": ev.Remote,
		"branch": ev.Branch,
	})

	workflows, err := srv.st.GetWorkflows()
	if err != nil {
		return 0, err
	}

	scheduled := 0
	for _, wf := range workflows {
		if wf.Remote != ev.Remote {
			continue
		}

		def, err := workflow.Parse([]byte(wf.Source))
		if err != nil {
			logger.WithError(err).
				WithField("workflow", wf.Name).
				Warn("skipping workflow with bad source")
			continue
		}

		if !def.Matches(ev) {
			continue
		}

		run := store.Run{
			Status:     store.StatusQueued,
			Trigger:    string(ev.Type),
			Ref:        ev.Branch,
			WorkflowID: wf.ID,
		}

		if err := srv.st.CreateRun(&run); err != nil {
			logger.WithError(err).
				WithField("workflow", wf.Name).
				Error("unable to record run")
			return scheduled, err
		}

		msg := queue.RunEvent{
			Op:         queue.OpRun,
			WorkflowID: wf.ID,
			RunCount:   run.Count,
			Group:      def.Group(ev.Branch),
			Remote:     wf.Remote,
			Ref:        ev.Branch,
			Trigger:    string(ev.Type),
			Source:     wf.Source,
		}

		rawmsg, err := json.Marshal(msg)
		if err != nil {
			logger.WithError(err).Warn("unable to marshal run message")
			continue
		}

		// Not being able to send to the agents is not enough to cause
		// the request to fail. For this reason, we should try as hard
		// as possible to send the message.
		go sendWithBackoff(logger, srv.runch, rawmsg)

		scheduled++
	}

	return scheduled, nil
}
