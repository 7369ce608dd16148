// Package httpapi provides the problem-details error format shared by every
// HTTP handler, plus small helpers for JSON request/response plumbing.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

const problemTypeBase = "https://hourledger.app/problems/"

// Problem is the wire format for error responses. Type is a stable slug URI so
// clients can branch on the failure category without parsing Detail.
type Problem struct {
	Type   string              `json:"type"`
	Title  string              `json:"title"`
	Status int                 `json:"status"`
	Detail string              `json:"detail,omitempty"`
	Errors map[string][]string `json:"errors,omitempty"`
}

// NewProblem builds a Problem with the canonical type URI for the given slug.
func NewProblem(slug, title string, status int, detail string) Problem {
	return Problem{
		Type:   problemTypeBase + slug,
		Title:  title,
		Status: status,
		Detail: detail,
	}
}

// WriteProblem serializes the problem to the response with its status code.
func WriteProblem(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteJSON writes a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Canonical problems used across handlers.

func Unauthorized(detail string) Problem {
	return NewProblem("unauthorized", "Unauthorized", http.StatusUnauthorized, detail)
}

func NotProvisioned(detail string) Problem {
	return NewProblem("not-provisioned", "Not provisioned", http.StatusForbidden, detail)
}

func Forbidden(detail string) Problem {
	return NewProblem("forbidden", "Forbidden", http.StatusForbidden, detail)
}

func AccessDenied(detail string) Problem {
	return NewProblem("access-denied", "Access denied", http.StatusForbidden, detail)
}

func Validation(detail string, fields map[string][]string) Problem {
	p := NewProblem("validation-error", "Invalid request", http.StatusBadRequest, detail)
	p.Errors = fields
	return p
}

func NotFound(detail string) Problem {
	return NewProblem("not-found", "Not found", http.StatusNotFound, detail)
}

func PeriodLocked(detail string) Problem {
	return NewProblem("period-locked", "Period locked", http.StatusConflict, detail)
}

func ConflictingTimer(detail string) Problem {
	return NewProblem("conflicting-timer", "Conflicting timer", http.StatusConflict, detail)
}

func SubscriptionInactive(detail string) Problem {
	return NewProblem("subscription-inactive", "Subscription inactive", http.StatusPaymentRequired, detail)
}

func Internal() Problem {
	return NewProblem("internal-error", "Internal error", http.StatusInternalServerError, "internal error")
}

// DecodeJSON reads the request body into dst, rejecting unknown garbage early.
func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}
