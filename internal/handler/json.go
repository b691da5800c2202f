package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/ctxkeys"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/errs"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/validation"
)

// Pagination bounds for listing endpoints.
type Pagination struct {
	Default int
	Max     int
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}

// writeErr maps err through the errs taxonomy to a status code.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(errs.Type(err))
	if errors.Is(err, validation.ErrInvalidFile) {
		status = http.StatusBadRequest
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", ctxkeys.RequestID(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func statusFor(errorType string) int {
	switch errorType {
	case "":
		return http.StatusOK
	case errs.TypeNotFound:
		return http.StatusNotFound
	case errs.TypeNoData, errs.TypeInvalid, errs.TypeReferencedBlob:
		return http.StatusBadRequest
	case errs.TypeUnique, errs.TypeForeignKey:
		return http.StatusConflict
	case errs.TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON object, keeping numbers as json.Number.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	err := dec.Decode(dst)
	if err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errs.ErrInvalid, err)
	}
	return nil
}

func pathInt(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || v < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errs.ErrInvalid, name)
	}
	return v, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errs.ErrInvalid, name)
	}
	return v, nil
}

// page reads page and page_size, enforcing page >= 1 and
// 1 <= page_size <= p.Max.
func (p Pagination) page(r *http.Request) (int, int, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	size, err := queryInt(r, "page_size", p.Default)
	if err != nil {
		return 0, 0, err
	}
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be >= 1", errs.ErrInvalid)
	}
	if size < 1 || size > p.Max {
		return 0, 0, fmt.Errorf("%w: page_size must be between 1 and %d", errs.ErrInvalid, p.Max)
	}
	return page, size, nil
}

// afterDate parses the after_date watermark as RFC 3339 or a plain date.
func afterDate(r *http.Request) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("after_date"))
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: after_date must be an RFC 3339 timestamp or date", errs.ErrInvalid)
}
