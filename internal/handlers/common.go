// Package handlers wires the HTTP surface: request decoding, role guards and
// the mapping from service errors to status codes.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"cardvault-backend/pkg/api"
	"cardvault-backend/pkg/auth"
	appErrors "cardvault-backend/pkg/errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

// respondError maps the error taxonomy onto status codes. Internal errors are
// sanitized; everything else carries its human-readable message through.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	switch {
	case appErrors.IsValidation(err):
		api.Error(w, http.StatusBadRequest, err.Error())
	case appErrors.IsUnauthorized(err):
		api.Error(w, http.StatusUnauthorized, err.Error())
	case appErrors.IsForbidden(err):
		api.Error(w, http.StatusForbidden, err.Error())
	case appErrors.IsNotFound(err):
		api.Error(w, http.StatusNotFound, err.Error())
	case appErrors.IsConflict(err):
		api.Error(w, http.StatusConflict, err.Error())
	case appErrors.IsRateLimited(err):
		api.Error(w, http.StatusTooManyRequests, err.Error())
	default:
		if logger != nil {
			logger.Error("request failed", zap.Error(err))
		}
		api.Error(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

// decodeJSON parses and validates a request body into dst.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return appErrors.NewValidation("Request body is required")
		}
		return appErrors.NewValidation("Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return appErrors.NewValidation(validationMessage(fieldErrs[0]))
		}
		return appErrors.NewValidation("Invalid request body")
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}

// requirePrincipal rejects anonymous requests.
func requirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.PrincipalFromContext(r.Context()); !ok {
			api.Error(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAdmin rejects everything but admin principals.
func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			api.Error(w, http.StatusUnauthorized, "Authentication required")
			return
		}
		if !p.IsAdmin() {
			api.Error(w, http.StatusForbidden, "Admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// queryInt parses an integer query parameter, falling back to def.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
