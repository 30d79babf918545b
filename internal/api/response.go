package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"docgate/internal/apperr"
)

const maxBodyBytes = 16 << 20

// envelope is the JSON shape of every response.
type envelope struct {
	Success   bool                `json:"success"`
	Message   string              `json:"message,omitempty"`
	Errors    []apperr.FieldError `json:"errors,omitempty"`
	Error     string              `json:"error,omitempty"`
	Response  any                 `json:"response,omitempty"`
	Documents any                 `json:"documents,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	a.writeErrorWith(w, r, err, nil)
}

// writeErrorWith renders err with its mapped status. Diagnostic detail is
// only attached to server errors.
func (a *API) writeErrorWith(w http.ResponseWriter, r *http.Request, err error, response any) {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Internal("Internal server error", err)
	}
	status := apperr.HTTPStatus(e.Kind)

	body := envelope{Message: e.Message, Errors: e.Details, Response: response}
	if status >= http.StatusInternalServerError {
		if e.Cause != nil {
			body.Error = e.Cause.Error()
		}
		a.logger.Error("request failed",
			zap.String("request_id", r.Header.Get("X-Request-ID")),
			zap.String("path", r.URL.Path),
			zap.String("kind", e.Kind.String()),
			zap.Error(err),
		)
	}
	if e.Kind == apperr.KindRateLimited {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, body)
}

// decodeBody reads a JSON request body. Integral numbers decode as int64 and
// the rest as float64, so stored documents keep integer types.
func decodeBody(r *http.Request) (any, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return nil, apperr.Validation("Invalid payload", []apperr.FieldError{{Field: "(root)", Message: err.Error()}})
	}
	if len(raw) > maxBodyBytes {
		return nil, apperr.Validation("Invalid payload", []apperr.FieldError{{Field: "(root)", Message: "request body too large"}})
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperr.Validation("Invalid payload", []apperr.FieldError{{Field: "(root)", Message: "malformed JSON: " + err.Error()}})
	}
	if dec.More() {
		return nil, apperr.Validation("Invalid payload", []apperr.FieldError{{Field: "(root)", Message: "unexpected data after JSON body"}})
	}
	return normalizeNumbers(v), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, _ := t.Float64()
		return f
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeNumbers(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalizeNumbers(item)
		}
		return t
	}
	return v
}

var errNoTenant = errors.New("no tenant in request context")
