package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"idurar.org/internal/audit"
	"idurar.org/internal/domain"
	"idurar.org/internal/obs"
	"idurar.org/internal/payments"
)

type envelope struct {
	Success    bool               `json:"success"`
	Result     any                `json:"result"`
	Message    string             `json:"message"`
	Pagination *domain.Pagination `json:"pagination,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// failureKinds maps sentinels to statuses, most specific first.
var failureKinds = []struct {
	err    error
	status int
}{
	{domain.ErrUnauthenticated, http.StatusUnauthorized},
	{domain.ErrForbidden, http.StatusForbidden},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrInvalidSignature, http.StatusBadRequest},
	{domain.ErrInvalidOperation, http.StatusBadRequest},
	{domain.ErrInvalidInput, http.StatusBadRequest},
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, result any, msg string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Result: result, Message: msg})
}

func writeList(w http.ResponseWriter, result any, p domain.Pagination, msg string) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Result: result, Message: msg, Pagination: &p})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, envelope{Success: false, Message: msg})
}

// writeFailure maps err onto the error taxonomy. Unclassified errors are logged and
// reported as a generic 500 without their text.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	case errors.Is(err, payments.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "Payment provider is not configured")
		return
	}
	for _, k := range failureKinds {
		if errors.Is(err, k.err) {
			writeError(w, k.status, publicMessage(err, k.err))
			return
		}
	}
	obs.Logger().Error("request failed",
		zap.String("request_id", audit.RequestIDFromContext(r.Context())),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, envelope{
		Success: false,
		Message: "Internal server error",
		Error:   "internal_error",
	})
}

// publicMessage returns the text wrapped after the sentinel, e.g.
// "unauthenticated: API key is required" becomes "API key is required".
func publicMessage(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if i := strings.LastIndex(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	s := sentinel.Error()
	return strings.ToUpper(s[:1]) + s[1:]
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: request body is required", domain.ErrInvalidInput)
		default:
			return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: unexpected data after JSON body", domain.ErrInvalidInput)
	}
	return nil
}

func parsePositiveInt(raw, name string, def int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return def, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", domain.ErrInvalidInput, name)
	}
	return val, nil
}

func pageFromQuery(r *http.Request) (domain.Page, error) {
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), "page", 1)
	if err != nil {
		return domain.Page{}, err
	}
	items, err := parsePositiveInt(q.Get("items"), "items", domain.DefaultPageItems)
	if err != nil {
		return domain.Page{}, err
	}
	return domain.Page{Page: page, Items: items}.Normalize(), nil
}
