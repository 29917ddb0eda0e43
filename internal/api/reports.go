package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/erazemk/najdbe/internal/catalog"
	"github.com/erazemk/najdbe/internal/matching"
	"github.com/erazemk/najdbe/internal/model"
)

// maxPhotoBytes bounds photo uploads.
const maxPhotoBytes = 10 << 20

// ReportsHandler handles report, claim and photo endpoints.
type ReportsHandler struct {
	Catalog *catalog.Service
}

type updateReportRequest struct {
	Version int64 `json:"version"`
	catalog.ReportInput
}

func kindOf(w http.ResponseWriter, r *http.Request) (model.Kind, bool) {
	kind, err := model.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, r, err)
		return "", false
	}
	return kind, true
}

// List handles GET /api/reports/{kind}.
func (h *ReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	req := catalog.QueryRequest{
		Kind:     kind,
		Term:     strings.TrimSpace(q.Get("q")),
		Category: q.Get("category"),
		Sort:     q.Get("sort"),
		Cursor:   q.Get("cursor"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "invalid limit")
			return
		}
		req.Limit = n
	}
	if v := q.Get("include_archived"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "invalid include_archived")
			return
		}
		req.IncludeArchived = b
	}

	page, err := h.Catalog.Query(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, page)
}

// Create handles POST /api/reports/{kind}.
func (h *ReportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}

	var in catalog.ReportInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "invalid request body")
		return
	}

	report, err := h.Catalog.CreateReport(r.Context(), PrincipalFrom(r.Context()), kind, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusCreated, report)
}

// Get handles GET /api/reports/{kind}/{id}.
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}

	report, err := h.Catalog.GetReport(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

// Update handles PUT /api/reports/{kind}/{id}.
func (h *ReportsHandler) Update(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}

	var req updateReportRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "invalid request body")
		return
	}
	if req.Version <= 0 {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "version required")
		return
	}

	report, err := h.Catalog.UpdateReport(r.Context(), PrincipalFrom(r.Context()), kind, r.PathValue("id"), req.Version, req.ReportInput)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

// Archive handles POST /api/reports/{kind}/{id}/archive.
func (h *ReportsHandler) Archive(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}

	report, err := h.Catalog.Archive(r.Context(), PrincipalFrom(r.Context()), kind, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

// Reopen handles POST /api/reports/{kind}/{id}/reopen.
func (h *ReportsHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}

	report, err := h.Catalog.Reopen(r.Context(), PrincipalFrom(r.Context()), kind, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

// Resolve handles POST /api/reports/lost/{id}/resolve.
func (h *ReportsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	report, err := h.Catalog.ResolveLost(r.Context(), PrincipalFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

// History handles GET /api/reports/{kind}/{id}/history.
func (h *ReportsHandler) History(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}

	events, err := h.Catalog.History(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, events)
}

// Claim handles POST /api/claims. An empty claimant means the caller.
func (h *ReportsHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req matching.ClaimRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "invalid request body")
		return
	}

	p := PrincipalFrom(r.Context())
	if req.ClaimantID == "" {
		req.ClaimantID = p.ID
	}

	res, err := h.Catalog.Claim(r.Context(), p, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

// UploadImage handles PUT /api/reports/{kind}/{id}/image.
func (h *ReportsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindOf(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, catalog.CodeValidation, "image file required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, err)
		return
	}

	report, err := h.Catalog.SetImage(r.Context(), PrincipalFrom(r.Context()), kind, r.PathValue("id"), data)
	if err != nil {
		writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, report)
}

// GetImage handles GET /api/images/{ref...}.
func (h *ReportsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	data, mime, err := h.Catalog.Image(r.Context(), "images/"+r.PathValue("ref"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}
