package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/solomon-wilson/hrmis-sub002/generic"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code generic.Code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: string(code)}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusOf maps an error code to its HTTP status.
func statusOf(code generic.Code) int {
	switch code {
	case generic.CodeValidation:
		return http.StatusBadRequest
	case generic.CodeNotFound:
		return http.StatusNotFound
	case generic.CodeForbidden:
		return http.StatusForbidden
	case generic.CodeStateConflict, generic.CodeConflict:
		return http.StatusConflict
	case generic.CodePolicyViolation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// handleError renders any service error. Internal errors are logged and
// their details withheld.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	code := generic.CodeOf(err)
	status := statusOf(code)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		writeError(w, status, code, "Internal server error", nil)
		return
	}

	resp := ErrorResponse{Error: err.Error(), Code: string(code)}

	var verrs generic.ValidationErrors
	if errors.As(err, &verrs) {
		resp.Error = "Validation failed"
		resp.Fields = verrs.ToMap()
	}
	var pv *generic.PolicyViolationError
	if errors.As(err, &pv) {
		resp.Violations = pv.Violations
		resp.Recommendations = pv.Recommendations
	}
	var sc *generic.StateConflictError
	if errors.As(err, &sc) {
		resp.Conflict = sc.Code
	}
	writeJSON(w, status, resp)
}

// decode reads a JSON body. Unknown fields are rejected so typos surface.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return generic.ValidationErrors{{Field: "body", Message: err.Error()}}
	}
	return nil
}
