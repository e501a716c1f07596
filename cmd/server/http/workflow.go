package http

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"strconv"

	"github.com/conveyor-ci/conveyor/store"
	"github.com/conveyor-ci/conveyor/workflow"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// workflowRequest is the body for registering a workflow: the raw YAML
// source plus the git remote it watches.
type workflowRequest struct {
	Remote string `json:"remote"`
	Branch string `json:"branch"`
	Source string `json:"source"`
}

func (srv *Server) handleCreateWorkflow(rw http.ResponseWriter, req *http.Request) {
	reqID := req.Context().Value(keyReqID).(string)
	reqSub := req.Context().Value(keyReqSub).(string)
	logger := logger.WithFields(logrus.Fields{
		"request_id":      reqID,
		"request_subject": reqSub,
	})

	logger.Debug("reading request body")
	buf, err := ioutil.ReadAll(req.Body)
	if err != nil {
		logger.WithError(err).Error("unable to read request body")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	logger.Debug("unmarshaling request body")
	var wreq workflowRequest
	err = json.Unmarshal(buf, &wreq)
	if err != nil {
		logger.WithError(err).Error("unable to unmarshal request body")

		writeErrResp(rw, err, http.StatusBadRequest)
		return
	}

	if wreq.Remote == "" || wreq.Source == "" {
		err := errors.New("missing fields in workflow request body")
		logger.WithError(err).Error("unable to complete request")

		writeErrResp(rw, err, http.StatusBadRequest)
		return
	}

	if wreq.Branch == "" {
		wreq.Branch = "master"
	}

	logger.Debug("validating workflow source")
	def, err := workflow.Parse([]byte(wreq.Source))
	if err != nil {
		logger.WithError(err).Error("unable to parse workflow source")

		writeErrResp(rw, err, http.StatusBadRequest)
		return
	}

	wf := store.Workflow{
		Name:   def.Name,
		Remote: wreq.Remote,
		Branch: wreq.Branch,
		Group:  def.Group(wreq.Branch),
		Source: wreq.Source,
	}

	logger = logger.WithFields(logrus.Fields{
		"name":   wf.Name,
		"remote": wf.Remote,
	})

	logger.Info("saving workflow")
	err = srv.st.CreateWorkflow(&wf)
	if err != nil {
		logger.WithError(err).Error("unable to save workflow in database")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	buf, err = json.Marshal(wf)
	if err != nil {
		logger.WithError(err).Error("unable to marshal response body")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(http.StatusCreated)
	rw.Write(buf)
	return
}

func (srv *Server) handleGetWorkflows(rw http.ResponseWriter, req *http.Request) {
	reqID := req.Context().Value(keyReqID).(string)
	logger := logger.WithField("request_id", reqID)

	logger.Debug("retrieving workflows from store")

	workflows, err := srv.st.GetWorkflows()
	if err != nil {
		logger.WithError(err).Error("unable to retrieve workflows")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	logger.Debug("marshaling response body")

	buf, err := json.Marshal(workflows)
	if err != nil {
		logger.WithError(err).Error("unable to marshal response body")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(http.StatusOK)
	rw.Write(buf)
	return
}

func (srv *Server) handleGetWorkflow(rw http.ResponseWriter, req *http.Request) {
	reqID := req.Context().Value(keyReqID).(string)
	logger := logger.WithField("request_id", reqID)

	logger.Debug("checking mux vars for id")
	vars := mux.Vars(req)

	var raw string
	var ok bool
	if raw, ok = vars["id"]; !ok || raw == "" {
		err := errors.New("missing parameter 'id' from request")
		logger.WithError(err).Error("unable to complete request")

		writeErrResp(rw, err, http.StatusBadRequest)
		return
	}

	logger.Debug("parsing id")

	id, err := strconv.Atoi(raw)
	if err != nil {
		logger.WithError(err).Error("unable to parse id as integer")

		writeErrResp(rw, err, http.StatusBadRequest)
		return
	}

	logger = logger.WithField("id", id)

	logger.Debug("retrieving workflow from store")

	wf, err := srv.st.GetWorkflow(id)
	if err != nil {
		logger.WithError(err).Error("unable to retrieve workflow")
		if err == store.ErrWorkflowNotFound {
			writeErrResp(rw, err, http.StatusNotFound)
			return
		}

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	logger.Debug("marshaling response body")

	buf, err := json.Marshal(wf)
	if err != nil {
		logger.WithError(err).Error("unable to marshal response body")

		writeErrResp(rw, err, http.StatusInternalServerError)
		return
	}

	rw.WriteHeader(http.StatusOK)
	rw.Write(buf)
	return
}
