package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Router builds the HTTP handler tree.
func Router(h *Handler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)

	docs := r.PathPrefix("/documents/{documentID}").Subrouter()
	docs.HandleFunc("", h.GetDocument).Methods(http.MethodGet)
	docs.HandleFunc("/compile", h.Compile).Methods(http.MethodPost)
	docs.HandleFunc("/versions", h.CreateVersion).Methods(http.MethodPost)
	docs.HandleFunc("/versions", h.ListVersions).Methods(http.MethodGet)
	docs.HandleFunc("/versions/{version:[0-9]+}/pdf", h.VersionPDF).Methods(http.MethodGet)
	docs.HandleFunc("/events", h.Events).Methods(http.MethodGet)

	r.HandleFunc("/files/tmp/{key}", h.TempFile).Methods(http.MethodGet)

	r.HandleFunc("/block-definitions", h.ListBlockDefinitions).Methods(http.MethodGet)
	r.HandleFunc("/block-definitions/{definitionID}", h.GetBlockDefinition).Methods(http.MethodGet)

	// Subrouters answer method mismatches themselves.
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	docs.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "route not found"})
	})
	return r
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
}
