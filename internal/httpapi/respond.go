package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/lumiforge/docbuilder-backend/internal/blockdefs"
	"github.com/lumiforge/docbuilder-backend/internal/documents"
	"github.com/lumiforge/docbuilder-backend/internal/storage"
)

type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody{Error: err.Error(), Code: "VALIDATION_ERROR"})
}

func writePDF(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", `inline; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// classify maps domain errors to a status and a stable error code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, documents.ErrForbidden), errors.Is(err, storage.ErrBadSignature):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, documents.ErrNotFound), errors.Is(err, blockdefs.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, storage.ErrExpired):
		return http.StatusGone, "EXPIRED"
	case errors.Is(err, documents.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, documents.ErrInvalidInput), errors.Is(err, blockdefs.ErrInvalidInput), errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, documents.ErrCompilation):
		return http.StatusUnprocessableEntity, "COMPILATION_ERROR"
	case errors.Is(err, documents.ErrStorage):
		return http.StatusBadGateway, "STORAGE_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	body := errorBody{Error: err.Error(), Code: code}
	var cerr *documents.CompilationError
	if errors.As(err, &cerr) {
		body.Diagnostic = cerr.Diagnostic
	}
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}
