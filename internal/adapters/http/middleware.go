package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillforge/marketplace/internal/domain"
	"github.com/skillforge/marketplace/internal/ports"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyClaims    ctxKey = "claims"
)

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, reqID)))
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.InfoContext(r.Context(), "request handled",
				"module", "http",
				"layer", "adapter",
				"operation", r.Method+" "+r.URL.Path,
				"outcome", outcomeForStatus(rec.status),
				"status", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", requestIDFromContext(r.Context()),
			)
		})
	}
}

func outcomeForStatus(status int) string {
	if status >= 500 {
		return "failure"
	}
	return "success"
}

func bearerTokenFromHeader(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", domain.ErrUnauthorized
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", domain.ErrUnauthorized
	}
	return token, nil
}

func claimsFromContext(ctx context.Context) (ports.AuthClaims, bool) {
	v := ctx.Value(ctxKeyClaims)
	claims, ok := v.(ports.AuthClaims)
	return claims, ok
}

func requestIDFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return s
	}
	return ""
}

// mapDomainError translates a service error to status, code, message, and
// typed detail fields. Crypto failures deliberately surface as a generic
// internal error so the endpoint cannot be used as a decryption oracle.
func mapDomainError(err error) (int, string, string, map[string]any) {
	var editionErr domain.EditionLimitError
	if errors.As(err, &editionErr) {
		return http.StatusConflict, "EDITION_LIMIT_REACHED", editionErr.Error(), map[string]any{
			"rarity":      string(editionErr.Rarity),
			"maxEditions": editionErr.MaxEditions,
		}
	}
	var tierErr domain.TierError
	if errors.As(err, &tierErr) {
		return http.StatusForbidden, "TIER_INSUFFICIENT", tierErr.Error(), map[string]any{
			"requiredTier": tierErr.RequiredTier,
			"currentTier":  string(tierErr.CurrentTier),
		}
	}
	var dupErr domain.DuplicateInstallError
	if errors.As(err, &dupErr) {
		return http.StatusConflict, "ALREADY_INSTALLED", dupErr.Error(), map[string]any{
			"packageSlug": dupErr.PackageSlug,
		}
	}

	switch {
	case errors.Is(err, domain.ErrAttestationRequired):
		return http.StatusUnprocessableEntity, "ATTESTATION_REQUIRED", err.Error(), nil
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials", nil
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", err.Error(), nil
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found", nil
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT", err.Error(), nil
	case errors.Is(err, domain.ErrQuotaExceeded):
		return http.StatusTooManyRequests, "QUOTA_EXCEEDED", err.Error(), nil
	case errors.Is(err, domain.ErrReasonerUnavailable):
		return http.StatusServiceUnavailable, "REASONER_UNAVAILABLE", "reasoning service unavailable, retry later", nil
	case errors.Is(err, domain.ErrDependencyUnavailable), errors.Is(err, domain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service unavailable, retry later", nil
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error", nil
	}
}
