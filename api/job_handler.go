package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alimaamoun/DM-Agent/gateway"
	"github.com/alimaamoun/DM-Agent/id"
	"github.com/alimaamoun/DM-Agent/job"
)

// CreateJobRequest is the body of POST /v1/jobs.
type CreateJobRequest struct {
	Date      string        `json:"date"`
	Platform  string        `json:"platform"`
	Theme     string        `json:"theme"`
	PublishAt *time.Time    `json:"publish_at,omitempty"`
	Params    gateway.Patch `json:"params"`
}

// ApproveRequest is the body of POST /v1/jobs/{jobId}/approve.
type ApproveRequest struct {
	PublishAt *time.Time `json:"publish_at,omitempty"`
}

// RejectRequest is the body of POST /v1/jobs/{jobId}/reject. A revision
// sends the job back to planning instead of cancelling it.
type RejectRequest struct {
	Reason string         `json:"reason"`
	Revise *gateway.Patch `json:"revise,omitempty"`
}

// ResubmitRequest is the body of POST /v1/jobs/{jobId}/resubmit.
type ResubmitRequest struct {
	Params *gateway.Patch `json:"params,omitempty"`
}

// ScheduleRequest is the body of POST /v1/jobs/{jobId}/schedule.
type ScheduleRequest struct {
	PublishAt *time.Time `json:"publish_at"`
	Platforms []string   `json:"platforms"`
}

// ListJobsResponse is the body of GET /v1/jobs.
type ListJobsResponse struct {
	Jobs  []gateway.JobView `json:"jobs"`
	Count int               `json:"count"`
}

// ScheduleResponse is the body returned by the schedule route.
type ScheduleResponse struct {
	Approved gateway.JobView   `json:"approved"`
	Created  []gateway.JobView `json:"created"`
	Existing []gateway.JobView `json:"existing"`
}

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := job.Filter{
		Date:     q.Get("date"),
		From:     q.Get("from"),
		To:       q.Get("to"),
		Platform: strings.ToLower(q.Get("platform")),
		Theme:    q.Get("theme"),
		Source:   job.Source(q.Get("source")),
	}
	for _, s := range q["stage"] {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Stages = append(filter.Stages, job.Stage(part))
			}
		}
	}

	limit := defaultPageSize
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxPageSize)
	}

	jobs, err := a.svc.List(r.Context(), filter, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: gateway.Views(jobs), Count: len(jobs)})
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	j, created, err := a.svc.CreateOrFetch(r.Context(), gateway.CreateRequest{
		Date:      req.Date,
		Platform:  req.Platform,
		Theme:     req.Theme,
		Params:    req.Params,
		PublishAt: req.PublishAt,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusConflict, errorBody{
			Error: "slot already has an active job",
			Kind:  "duplicate",
			Job:   ptr(gateway.View(j)),
		})
		return
	}
	writeJSON(w, http.StatusCreated, gateway.View(j))
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	j, err := a.svc.Status(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.View(j))
}

func (a *API) approveJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	respond(w, http.StatusOK)(a.svc.Approve(r.Context(), jobID, req.PublishAt))
}

func (a *API) rejectJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	var req RejectRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	respond(w, http.StatusOK)(a.svc.Reject(r.Context(), jobID, req.Reason, req.Revise))
}

func (a *API) reviseJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	var patch gateway.Patch
	if !decodeBody(w, r, &patch) {
		return
	}
	if patch.Empty() {
		writeBadRequest(w, "at least one parameter to change is required")
		return
	}
	respond(w, http.StatusOK)(a.svc.Revise(r.Context(), jobID, patch))
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	respond(w, http.StatusOK)(a.svc.Cancel(r.Context(), jobID))
}

func (a *API) resubmitJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	var req ResubmitRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	respond(w, http.StatusCreated)(a.svc.Resubmit(r.Context(), jobID, req.Params))
}

func (a *API) scheduleJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	var req ScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := a.svc.Schedule(r.Context(), jobID, req.PublishAt, req.Platforms)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleResponse{
		Approved: gateway.View(res.Approved),
		Created:  gateway.Views(res.Created),
		Existing: gateway.Views(res.Existing),
	})
}

func (a *API) calendar(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Calendar(r.Context(), r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Result())
}

// respond writes the job returned by a gateway call or its error.
func respond(w http.ResponseWriter, status int) func(*job.Job, error) {
	return func(j *job.Job, err error) {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, status, gateway.View(j))
	}
}

func pathJobID(w http.ResponseWriter, r *http.Request) (id.JobID, bool) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		writeBadRequest(w, "invalid job ID: "+err.Error())
		return id.Nil, false
	}
	return jobID, true
}
