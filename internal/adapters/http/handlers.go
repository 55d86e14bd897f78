package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/skillforge/marketplace/internal/application"
	"github.com/skillforge/marketplace/internal/domain"
)

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
			return
		}
		claims, err := h.service.ValidateToken(r.Context(), raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
			return
		}
		ctx := r.Context()
		ctx = contextWithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) createPackage(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	var req application.CreatePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	pkg, err := h.service.CreatePackage(r.Context(), claims, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, pkg)
}

func (h *Handler) updatePackage(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	var req application.UpdatePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	pkg, err := h.service.UpdatePackage(r.Context(), claims, chi.URLParam(r, "ref"), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, pkg)
}

func (h *Handler) getPackage(w http.ResponseWriter, r *http.Request) {
	pkg, err := h.service.GetPackage(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, pkg)
}

func (h *Handler) searchPackages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := application.SearchPackagesRequest{
		Query:    q.Get("q"),
		Category: q.Get("category"),
		License:  q.Get("license"),
		Maturity: q.Get("maturity"),
		Sort:     q.Get("sort"),
	}
	if tags := q.Get("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Tags = append(req.Tags, t)
			}
		}
	}
	if raw := q.Get("min_rating"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "min_rating must be a number")
			return
		}
		req.MinRating = v
	}
	if raw := q.Get("max_price_usd"); raw != "" {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "max_price_usd must be a decimal")
			return
		}
		req.MaxPriceUsd = &v
	}
	var err error
	if req.Limit, err = intQuery(q.Get("limit"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer")
		return
	}
	if req.Offset, err = intQuery(q.Get("offset"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be an integer")
		return
	}

	resp, err := h.service.SearchPackages(r.Context(), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) ratePackage(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	var req application.RatePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	pkg, err := h.service.RatePackage(r.Context(), claims, chi.URLParam(r, "ref"), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, pkg)
}

func (h *Handler) createMint(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	var req application.CreateMintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	mint, err := h.service.CreateMint(r.Context(), claims, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, mint)
}

func (h *Handler) getMint(w http.ResponseWriter, r *http.Request) {
	mint, err := h.service.GetMint(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, mint)
}

func (h *Handler) install(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	var req application.InstallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	inst, err := h.service.Install(r.Context(), claims, req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, inst)
}

func (h *Handler) uninstall(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
		return
	}
	if err := h.service.Uninstall(r.Context(), claims, id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listInstallations(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	limit, offset, ok := paginationFromQuery(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListInstallations(r.Context(), claims, limit, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, items)
}

func (h *Handler) upsertKnowledge(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	var req application.UpsertKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	resp, err := h.service.UpsertKnowledge(r.Context(), claims, chi.URLParam(r, "slug"), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) readKnowledge(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	resp, err := h.service.ReadKnowledge(r.Context(), claims, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) invoke(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	var req application.InvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return
	}
	resp, err := h.service.Invoke(r.Context(), claims, chi.URLParam(r, "slug"), req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) listInvocations(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	limit, offset, ok := paginationFromQuery(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListInvocations(r.Context(), claims, chi.URLParam(r, "ref"), limit, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, items)
}

func (h *Handler) listUsage(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	limit, offset, ok := paginationFromQuery(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListUsage(r.Context(), claims, limit, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, items)
}

func (h *Handler) listRoyalties(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	limit, offset, ok := paginationFromQuery(w, r)
	if !ok {
		return
	}
	items, err := h.service.ListRoyalties(r.Context(), claims, limit, offset)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, items)
}

func (h *Handler) adminBanPackage(w http.ResponseWriter, r *http.Request) {
	h.adminSetStatus(w, r, domain.PackageStatusBanned)
}

func (h *Handler) adminArchivePackage(w http.ResponseWriter, r *http.Request) {
	h.adminSetStatus(w, r, domain.PackageStatusArchived)
}

func (h *Handler) adminSetStatus(w http.ResponseWriter, r *http.Request, status domain.PackageStatus) {
	claims, ok := claimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials")
		return
	}
	if err := h.service.AdminSetPackageStatus(r.Context(), claims, chi.URLParam(r, "ref"), status); err != nil {
		h.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status, code, msg, fields := mapDomainError(err)
	writeErrorWith(w, status, code, msg, fields)
}

func intQuery(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func paginationFromQuery(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	limit, err := intQuery(q.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer")
		return 0, 0, false
	}
	offset, err := intQuery(q.Get("offset"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "offset must be an integer")
		return 0, 0, false
	}
	return limit, offset, true
}
