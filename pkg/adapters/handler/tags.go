package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
	"go.uber.org/zap"
)

// TagHandler exposes the tenant-guarded configuration API.
type TagHandler struct {
	service ports.TagConfigService
	logger  *zap.Logger
}

func NewTagHandler(service ports.TagConfigService, logger *zap.Logger) *TagHandler {
	return &TagHandler{service: service, logger: logger}
}

// SetRedirectRequest payload. A null or empty target_url resets the tag to
// the default destination.
type SetRedirectRequest struct {
	TargetURL   *string `json:"target_url"`
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type tagResponse struct {
	UID          string  `json:"uid"`
	Bizcode      string  `json:"bizcode"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	TargetURL    *string `json:"target_url"`
	SourceURL    *string `json:"source_target_url,omitempty"`
	IsActive     bool    `json:"is_active"`
	ClickCount   int64   `json:"click_count"`
	LastClicked  *string `json:"last_clicked,omitempty"`
	RedirectType string  `json:"redirect_type"`
}

func newTagResponse(tag *domain.Tag) tagResponse {
	resp := tagResponse{
		UID:          tag.UID,
		Bizcode:      tag.Bizcode,
		Title:        tag.Title,
		Description:  tag.Description,
		SourceURL:    tag.SourceTarget,
		IsActive:     tag.IsActive,
		ClickCount:   tag.ClickCount,
		RedirectType: string(domain.RedirectDefault),
	}
	if tag.HasCustomTarget() {
		resp.TargetURL = tag.CustomTarget
		resp.RedirectType = string(domain.RedirectCustom)
	}
	if tag.LastClicked != nil {
		s := tag.LastClicked.UTC().Format("2006-01-02T15:04:05Z07:00")
		resp.LastClicked = &s
	}
	return resp
}

func (h *TagHandler) Get(w http.ResponseWriter, r *http.Request) {
	tag, err := h.service.GetTag(r.Context(), IdentityFromContext(r.Context()), chi.URLParam(r, "bizcode"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTagResponse(tag))
}

func (h *TagHandler) SetRedirect(w http.ResponseWriter, r *http.Request) {
	var req SetRedirectRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	identity := IdentityFromContext(r.Context())
	bizcode := chi.URLParam(r, "bizcode")

	var (
		tag *domain.Tag
		err error
	)
	if req.TargetURL == nil || *req.TargetURL == "" {
		tag, err = h.service.ResetRedirect(r.Context(), identity, bizcode)
	} else {
		tag, err = h.service.SetRedirect(r.Context(), identity, bizcode, *req.TargetURL,
			domain.TagDetails{Title: req.Title, Description: req.Description})
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTagResponse(tag))
}

func (h *TagHandler) ResetRedirect(w http.ResponseWriter, r *http.Request) {
	tag, err := h.service.ResetRedirect(r.Context(), IdentityFromContext(r.Context()), chi.URLParam(r, "bizcode"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTagResponse(tag))
}

// Preview resolves an identifier inside a tenant without recording a scan.
func (h *TagHandler) Preview(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "tenant not found")
		return
	}
	resolved, err := h.service.Preview(r.Context(), IdentityFromContext(r.Context()), tenantID, chi.URLParam(r, "identifier"), r.URL.RawQuery)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (h *TagHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "not permitted for this tenant")
	case errors.Is(err, domain.ErrTagNotFound):
		writeError(w, http.StatusNotFound, "tag not found")
	case errors.Is(err, domain.ErrInvalidTarget):
		writeError(w, http.StatusBadRequest, "invalid redirect target")
	default:
		h.logger.Error("tag configuration failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
