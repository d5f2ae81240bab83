// Package problem writes RFC 7807 error bodies.
package problem

import (
	"encoding/json"
	"net/http"
)

const contentType = "application/problem+json"
const baseTypeURL = "https://errors.kenyabank.co.ke/"

// Details represents RFC 7807 Problem Details.
type Details struct {
	Type     string       `json:"type"`
	Title    string       `json:"title"`
	Status   int          `json:"status"`
	Detail   string       `json:"detail"`
	Instance string       `json:"instance"`
	TraceID  string       `json:"trace_id,omitempty"`
	Errors   []FieldError `json:"errors,omitempty"`
}

// FieldError names one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func Type(slug string) string {
	return baseTypeURL + slug
}

// Write sends a problem response. The trace id is taken from the
// X-Trace-ID header already set on the response.
func Write(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string) {
	WriteFields(w, r, status, problemType, title, detail, nil)
}

// WriteFields is Write with per-field validation errors.
func WriteFields(w http.ResponseWriter, r *http.Request, status int, problemType, title, detail string, fields []FieldError) {
	d := Details{
		Type:    problemType,
		Title:   title,
		Status:  status,
		Detail:  detail,
		TraceID: w.Header().Get("X-Trace-ID"),
		Errors:  fields,
	}
	if d.Title == "" {
		d.Title = http.StatusText(status)
	}
	if d.Type == "" {
		d.Type = "about:blank"
	}
	if r != nil {
		d.Instance = r.URL.Path
		if d.TraceID == "" {
			d.TraceID = r.Header.Get("X-Trace-ID")
		}
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(d)
}
