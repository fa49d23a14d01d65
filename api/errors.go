package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dmagent "github.com/alimaamoun/DM-Agent"
	"github.com/alimaamoun/DM-Agent/calendar"
	"github.com/alimaamoun/DM-Agent/gateway"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type errorBody struct {
	Error     string           `json:"error"`
	Kind      string           `json:"kind"`
	Retryable bool             `json:"retryable,omitempty"`
	Job       *gateway.JobView `json:"job,omitempty"`
}

// writeError maps dmagent sentinel errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status, body := http.StatusInternalServerError, errorBody{Error: err.Error(), Kind: "internal"}
	switch {
	case dmagent.IsContention(err):
		status, body.Kind, body.Retryable = http.StatusServiceUnavailable, "contention", true
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, dmagent.ErrJobNotFound):
		status, body.Kind = http.StatusNotFound, "not_found"
	case errors.Is(err, dmagent.ErrDuplicateActiveJob):
		status, body.Kind = http.StatusConflict, "duplicate"
	case errors.Is(err, dmagent.ErrSlotPublished):
		status, body.Kind = http.StatusConflict, "slot_published"
	case errors.Is(err, dmagent.ErrInvalidTransition):
		status, body.Kind = http.StatusUnprocessableEntity, "invalid_transition"
	case errors.Is(err, dmagent.ErrInvalidSlot),
		errors.Is(err, dmagent.ErrUnknownPlatform),
		errors.Is(err, calendar.ErrUnknownRange):
		status, body.Kind = http.StatusBadRequest, "invalid_request"
	}
	writeJSON(w, status, body)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg, Kind: "invalid_request"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeBody reads a required JSON body into v.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeBadRequest(w, "request body is required")
			return false
		}
		writeBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// decodeOptionalBody reads a JSON body into v if one was sent.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func ptr[T any](v T) *T { return &v }
