package api

import (
	"net/http"

	audithook "github.com/alimaamoun/DM-Agent/audit_hook"
)

// AuditResponse is the body of GET /v1/jobs/{jobId}/audit.
type AuditResponse struct {
	Events []audithook.AuditEvent `json:"events"`
	Count  int                    `json:"count"`
}

func (a *API) jobAudit(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	if _, err := a.svc.Status(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	events := a.audit.Events(jobID.String())
	if events == nil {
		events = []audithook.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, AuditResponse{Events: events, Count: len(events)})
}
