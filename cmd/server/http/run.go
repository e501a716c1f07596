package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/conveyor-ci/conveyor/queue"
	"github.com/conveyor-ci/conveyor/store"
	"github.com/conveyor-ci/conveyor/workflow"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// runVars pulls the workflow id and run count out of the mux vars,
// writing the error response itself when they're missing or malformed.
func runVars(rw http.ResponseWriter, req *http.Request, logger *logrus.Entry) (wid, count int, ok bool) {
	vars := mux.Vars(req)

	raw, present := vars["id"]
	if !present || raw == "" {
		err := errors.New("missing parameter 'id' from request")
		logger.WithError(err).Error("unable to complete request")

		writeErrResp(rw, err, http.StatusBadRequest)
		return 0, 0, false
	}

	wid, err := strconv.Atoi(raw)
	if err != nil {
		logger.WithError(err).Error("unable to parse id as integer")

		writeErrResp(rw, err, http.StatusBadRequest)
		return 0, 0, false
	}

	raw, present = vars["count"]
	if !present || raw == "" {
		err := errors.New("missing parameter 'count' from request")
		logger.WithError(err).Error("unable to complete request")

		writeErrResp(rw, err, http.StatusBadRequest)
		return 0, 0, false
	}

	count, err = strconv.Atoi(raw)
	if err != nil {
		logger.WithError(err).Error("unable to parse count as integer")

		writeErrResp(rw, err, http.StatusBadRequest)
		return 0, 0, false
	}

	return wid, count, true
}

func (srv *Server) handleGetRun(rw http.ResponseWriter, req *http.Request) {
	reqID := req.Context().Value(keyReqID).(string)
	logger := logger.WithField("request_id", reqID)

	logger.Debug("checking mux vars for workflow id and count")

	wid, count, ok := runVars(rw, req, logger)
	if !ok {
		return
	}

	logger = logger.WithFields(logrus.Fields{
		"workflow_id": wid,
		"count":       count,
	})

	logger.Debug("retrieving run from store")

	run, err := srv.st.GetRun(wid, count)
	if err != nil {
		logger.WithError(err).Error("unable to retrieve run")
		if err == store.ErrRunNotFound {
			writeErrResp(rw, err, http.StatusNotFound)
			return
		}

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	logger.Debug("marshaling response body")

	buf, err := json.Marshal(run)
	if err != nil {
		logger.WithError(err).Error("unable to marshal response body")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(http.StatusOK)
	rw.Write(buf)
	return
}

func (srv *Server) handleCancelRun(rw http.ResponseWriter, req *http.Request) {
	reqID := req.Context().Value(keyReqID).(string)
	reqSub := req.Context().Value(keyReqSub).(string)
	logger := logger.WithFields(logrus.Fields{
		"request_id":      reqID,
		"request_subject": reqSub,
	})

	logger.Debug("checking mux vars for workflow id and count")

	wid, count, ok := runVars(rw, req, logger)
	if !ok {
		return
	}

	logger = logger.WithFields(logrus.Fields{
		"workflow_id": wid,
		"count":       count,
	})

	wf, err := srv.st.GetWorkflow(wid)
	if err != nil {
		logger.WithError(err).Error("unable to retrieve workflow")
		if err == store.ErrWorkflowNotFound {
			writeErrResp(rw, err, http.StatusNotFound)
			return
		}

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	run, err := srv.st.GetRun(wid, count)
	if err != nil {
		logger.WithError(err).Error("unable to retrieve run")
		if err == store.ErrRunNotFound {
			writeErrResp(rw, err, http.StatusNotFound)
			return
		}

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	if run.Status.Terminal() {
		err := errors.New("run already finished")
		logger.WithError(err).Error("unable to cancel run")

		writeErrResp(rw, err, http.StatusConflict)
		return
	}

	def, err := workflow.Parse([]byte(wf.Source))
	if err != nil {
		logger.WithError(err).Error("unable to parse workflow source")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	// The run was dispatched under the group for its own ref, which is
	// only the registered branch's group when the run happened to be on
	// that branch.
	msg := queue.RunEvent{
		Op:         queue.OpCancel,
		WorkflowID: wid,
		RunCount:   count,
		Group:      def.Group(run.Ref),
	}

	rawmsg, err := json.Marshal(msg)
	if err != nil {
		logger.WithError(err).Error("unable to marshal cancel message")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	logger.Info("requesting run cancellation")
	go sendWithBackoff(logger, srv.runch, rawmsg)

	rw.WriteHeader(http.StatusAccepted)
	return
}
