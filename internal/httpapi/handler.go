// Package httpapi exposes the document builder over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/lumiforge/docbuilder-backend/internal/blockdefs"
	"github.com/lumiforge/docbuilder-backend/internal/documents"
	"github.com/lumiforge/docbuilder-backend/internal/storage"
)

// maxBodyBytes bounds compile and version request bodies.
const maxBodyBytes = 4 << 20

// Dependencies are the collaborators of Handler.
type Dependencies struct {
	Documents   *documents.Service
	Definitions blockdefs.Source
	Temp        *storage.TempStore
	Signer      *storage.Signer
	Hub         *Hub
	// BaseURL prefixes links returned to clients.
	BaseURL string
	Logger  zerolog.Logger
}

// Handler wires HTTP requests to the document service.
type Handler struct {
	docs    *documents.Service
	defs    blockdefs.Source
	temp    *storage.TempStore
	signer  *storage.Signer
	hub     *Hub
	baseURL string
	log     zerolog.Logger
}

// NewHandler creates HTTP handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		docs:    deps.Documents,
		defs:    deps.Definitions,
		temp:    deps.Temp,
		signer:  deps.Signer,
		hub:     deps.Hub,
		baseURL: strings.TrimRight(deps.BaseURL, "/"),
		log:     deps.Logger.With().Str("component", "http").Logger(),
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetDocument handles GET /documents/{documentID}.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := h.docs.GetDocument(r.Context(), mux.Vars(r)["documentID"], userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Compile handles POST /documents/{documentID}/compile.
func (h *Handler) Compile(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req documents.CompileRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.DocumentID = mux.Vars(r)["documentID"]
	req.UserID = userID

	result, err := h.docs.Compile(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// VersionPayload is the body of POST /documents/{documentID}/versions.
type VersionPayload struct {
	Note string `json:"note"`
}

// VersionResponse decorates a version with a signed download link.
type VersionResponse struct {
	documents.DocumentVersion
	PDFURL string `json:"pdfUrl"`
}

// CreateVersion handles POST /documents/{documentID}/versions.
func (h *Handler) CreateVersion(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var payload VersionPayload
	if err := decodeBody(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	documentID := mux.Vars(r)["documentID"]
	v, err := h.docs.CreateVersion(r.Context(), documents.CreateVersionRequest{
		DocumentID: documentID,
		UserID:     userID,
		Note:       strings.TrimSpace(payload.Note),
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, VersionResponse{DocumentVersion: *v, PDFURL: h.versionURL(documentID, userID, v.Version)})
}

// ListVersions handles GET /documents/{documentID}/versions.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	userID, err := userFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	documentID := mux.Vars(r)["documentID"]
	versions, err := h.docs.ListVersions(r.Context(), documentID, userID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]VersionResponse, 0, len(versions))
	for _, v := range versions {
		items = append(items, VersionResponse{DocumentVersion: v, PDFURL: h.versionURL(documentID, userID, v.Version)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"total": len(items),
	})
}

func (h *Handler) versionURL(documentID, userID string, version int) string {
	q := url.Values{}
	q.Set("user", userID)
	q.Set("token", h.signer.DocumentToken(documentID, userID))
	return fmt.Sprintf("%s/documents/%s/versions/%d/pdf?%s", h.baseURL, url.PathEscape(documentID), version, q.Encode())
}

// signedUser returns the user of a link signed with the document token.
func (h *Handler) signedUser(r *http.Request, documentID string) (string, error) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	token := r.URL.Query().Get("token")
	if userID == "" || token == "" {
		return "", fmt.Errorf("%w: user and token are required", documents.ErrForbidden)
	}
	if !h.signer.Verify(token, documentID, userID) {
		return "", storage.ErrBadSignature
	}
	return userID, nil
}

// VersionPDF handles GET /documents/{documentID}/versions/{version}/pdf.
func (h *Handler) VersionPDF(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	documentID := vars["documentID"]
	version, err := strconv.Atoi(vars["version"])
	if err != nil || version <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("version must be a positive integer"))
		return
	}
	userID, err := h.signedUser(r, documentID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	pdf, err := h.docs.VersionPDF(r.Context(), documentID, userID, version)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writePDF(w, fmt.Sprintf("%s-v%d.pdf", documentID, version), pdf)
}

// Events handles GET /documents/{documentID}/events as a websocket stream.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	documentID := mux.Vars(r)["documentID"]
	userID, err := h.signedUser(r, documentID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if _, err := h.docs.GetDocument(r.Context(), documentID, userID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.hub.serveWS(w, r, documentID)
}

// TempFile handles GET /files/tmp/{key}.
func (h *Handler) TempFile(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	expires, err := strconv.ParseInt(r.URL.Query().Get("expires"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("expires must be a unix timestamp"))
		return
	}
	data, err := h.temp.Open(key, expires, r.URL.Query().Get("sig"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writePDF(w, key, data)
}

// DefinitionSummary is the list view of a block definition.
type DefinitionSummary struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ListBlockDefinitions handles GET /block-definitions.
func (h *Handler) ListBlockDefinitions(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationFromRequest(r, 50)
	defs, err := h.defs.List(r.Context(), blockdefs.ListOptions{
		Search:   r.URL.Query().Get("search"),
		Category: r.URL.Query().Get("category"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	items := make([]DefinitionSummary, 0, len(defs))
	for _, d := range defs {
		items = append(items, DefinitionSummary{ID: d.ID, Name: d.Name, Category: d.Category, UpdatedAt: d.UpdatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  limit,
		"offset": offset,
	})
}

// GetBlockDefinition handles GET /block-definitions/{definitionID}.
func (h *Handler) GetBlockDefinition(w http.ResponseWriter, r *http.Request) {
	def, err := h.defs.Get(r.Context(), mux.Vars(r)["definitionID"])
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func userFromRequest(r *http.Request) (string, error) {
	userID := strings.TrimSpace(r.Header.Get("X-User-ID"))
	if userID == "" {
		return "", errors.New("X-User-ID header is required")
	}
	return userID, nil
}

func paginationFromRequest(r *http.Request, defaultLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
