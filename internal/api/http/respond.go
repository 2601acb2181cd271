package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mind-engage/mindengage-exams/internal/exam"
)

const maxBody = 1 << 20

type errorBody struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields []exam.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and validates it.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &badRequest{err: err}
	}
	return check(dst)
}

type badRequest struct{ err error }

func (e *badRequest) Error() string { return "bad json: " + e.err.Error() }

// writeError maps a domain error kind onto a status code.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	var (
		bad    *badRequest
		verr   *exam.ValidationError
		denied *exam.DeniedError
	)
	switch {
	case errors.As(err, &bad):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: bad.Error(), Code: "bad_request"})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "validation failed", Code: "validation_failed", Fields: verr.Fields})
	case errors.As(err, &denied):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "access denied", Code: string(denied.Reason)})
	case errors.Is(err, exam.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found", Code: "not_found"})
	case errors.Is(err, exam.ErrUnauthorized):
		writeJSON(w, http.StatusForbidden, errorBody{Error: "forbidden", Code: "unauthorized"})
	case errors.Is(err, exam.ErrResultsUnavailable):
		writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error(), Code: "results_unavailable"})
	case errors.Is(err, exam.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, errorBody{Error: "invalid state for this operation", Code: "invalid_transition"})
	default:
		log.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)})
	}
}
