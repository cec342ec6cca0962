package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/appforge/app-builder-api/jobs"
	"github.com/appforge/app-builder-api/models"
	"github.com/appforge/app-builder-api/validation"
)

// JobSubmitter starts jobs in the background
type JobSubmitter interface {
	Submit(req jobs.JobStartRequest) (string, error)
}

// GenerateHandler accepts task submissions and starts a pipeline run for each.
// The response is sent before any work is done.
type GenerateHandler struct {
	BaseHandler

	// JobRunner is used to start pipeline runs
	JobRunner JobSubmitter
}

// generateResp is the response to an accepted submission
type generateResp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	RunID   string `json:"run_id"`
}

// ServeHTTP implements http.Handler
func (h GenerateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// {{{1 Parse
	submission := models.TaskSubmission{}
	if err := h.ParseJSON(w, r, &submission); err != nil {
		h.RespondDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	// {{{1 Authenticate
	if !h.Cfg.DevMode() && subtle.ConstantTimeCompare([]byte(submission.Secret),
		[]byte(h.Cfg.Secret)) != 1 {
		h.Logger.Debugf("rejected submission for task=%s nonce=%s: invalid secret",
			submission.Task, submission.Nonce)
		h.RespondDetail(w, http.StatusUnauthorized, "Invalid secret")
		return
	}

	// {{{1 Validate
	if err := validation.ValidateSubmission(submission); err != nil {
		h.RespondDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	// {{{1 Start pipeline
	data, err := json.Marshal(submission)
	if err != nil {
		panic(fmt.Errorf("failed to encode submission: %s", err.Error()))
	}

	runID, err := h.JobRunner.Submit(jobs.JobStartRequest{
		Type: jobs.JobTypePipeline,
		Data: data,
	})
	if errors.Is(err, jobs.ErrQueueFull) || errors.Is(err, jobs.ErrStopped) {
		h.Logger.Warnf("rejected submission for task=%s nonce=%s: %s", submission.Task,
			submission.Nonce, err.Error())
		h.RespondDetail(w, http.StatusServiceUnavailable,
			"Not accepting submissions right now, try again later")
		return
	} else if err != nil {
		panic(fmt.Errorf("failed to start pipeline: %s", err.Error()))
	}

	h.Logger.Infof("accepted task=%s round=%d nonce=%s as run %s", submission.Task,
		submission.Round, submission.Nonce, runID)

	h.RespondJSON(w, http.StatusAccepted, generateResp{
		Status:  "accepted",
		Message: "Code generation started, repository will be created shortly",
		RunID:   runID,
	})
}
