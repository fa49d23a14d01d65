package api

import (
	"net/http"

	"github.com/alimaamoun/DM-Agent/job"
)

// StatsResponse counts jobs per stage.
type StatsResponse struct {
	Stages map[job.Stage]int `json:"stages"`
	Active int               `json:"active"`
	Total  int               `json:"total"`
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{Stages: make(map[job.Stage]int)}
	for _, stage := range job.Stages() {
		jobs, err := a.svc.List(r.Context(), job.Filter{Stages: []job.Stage{stage}}, 0)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Stages[stage] = len(jobs)
		resp.Total += len(jobs)
		if stage.Active() {
			resp.Active += len(jobs)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
