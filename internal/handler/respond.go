package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gamemart/ledger/internal/domain"
	"github.com/gamemart/ledger/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes a JSON error response, detecting domain.AppError for status codes.
func RespondError(w http.ResponseWriter, err error) {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		RespondJSON(w, appErr.Status, map[string]string{
			"code":    appErr.Code,
			"message": appErr.Message,
		})
		return
	}
	RespondJSON(w, http.StatusInternalServerError, map[string]string{
		"code":    domain.CodeInternal,
		"message": "internal server error",
	})
}

// DecodeJSON reads and decodes a JSON request body into dst. Bodies over
// 1 MiB are rejected.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst)
}

// decodeBody decodes the request body or reports a validation error.
func decodeBody(r *http.Request, dst interface{}) error {
	if err := DecodeJSON(r, dst); err != nil {
		return domain.ErrValidation("invalid request body")
	}
	return nil
}

// URLUUID parses the named chi URL parameter as a UUID.
func URLUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.ErrValidation("invalid " + name)
	}
	return id, nil
}

// PageFromQuery reads ?limit= and ?offset=. Out-of-range values fall back
// to the repository defaults.
func PageFromQuery(r *http.Request) repository.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return repository.Page{Limit: limit, Offset: offset}
}

// ClientIP returns the first X-Forwarded-For hop, or the remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
