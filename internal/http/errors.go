package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"karmacash/internal/auth"
	"karmacash/internal/core"
	"karmacash/internal/services"
	"karmacash/internal/storage"
)

// Error kinds exposed to API clients. Every failure maps onto one of these
// so callers can branch without parsing messages.
const (
	KindInvalidArgument = "invalid-argument"
	KindNotFound        = "not-found"
	KindUnauthenticated = "unauthenticated"
	KindConflict        = "conflict"
	KindInternal        = "internal"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, kind, message string) {
	writeJSON(w, statusForKind(kind), errorEnvelope{Error: errorBody{Kind: kind, Message: message}})
}

func statusForKind(kind string) int {
	switch kind {
	case KindInvalidArgument:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// kindForError classifies an error from the service or storage layer.
// Unknown errors fall through to internal; their details stay in the logs,
// not the response.
func kindForError(err error) string {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return KindNotFound
	case errors.Is(err, storage.ErrStaleRule):
		return KindConflict
	case errors.Is(err, auth.ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, core.ErrInvalidMonthKey),
		errors.Is(err, core.ErrInvalidFrequency),
		errors.Is(err, core.ErrInvalidInterval),
		errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrMissingCategory),
		errors.Is(err, core.ErrMissingStartDate),
		errors.Is(err, core.ErrMissingBudget),
		errors.Is(err, core.ErrEndBeforeStart),
		errors.Is(err, services.ErrRuleIncomplete),
		errors.Is(err, services.ErrUnknownMode):
		return KindInvalidArgument
	default:
		return KindInternal
	}
}
