// Package admin serves the operator endpoints: integrity audits and history
// purges. They live on a separate listener from the public API.
package admin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/domain"
	"github.com/andresuchdata/autopo-engine/internal/service"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	integrity *service.IntegrityService
	reports   *service.ReportService
}

func NewHandler(integrity *service.IntegrityService, reports *service.ReportService) *Handler {
	return &Handler{integrity: integrity, reports: reports}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/admin/health", h.Health).Methods("GET")
	router.HandleFunc("/admin/stores/{store}/audit", h.Audit).Methods("GET")
	router.HandleFunc("/admin/stores/{store}/purge", h.Purge).Methods("POST")
	if h.reports != nil {
		router.HandleFunc("/admin/stores/{store}/export", h.Export).Methods("POST")
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Audit answers 200 with a clean report, 409 with the findings otherwise.
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeParam(w, r)
	if !ok {
		return
	}

	report, err := h.integrity.Audit(r.Context(), storeID)
	if err != nil && !errors.Is(err, domain.ErrIntegrityViolation) {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if report != nil && !report.OK() {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
}

// Purge archives and deletes history generated before ?before=YYYY-MM-DD.
func (h *Handler) Purge(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeParam(w, r)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("before")
	if raw == "" {
		http.Error(w, "before parameter is required", http.StatusBadRequest)
		return
	}
	before, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		http.Error(w, "before must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	result, err := h.integrity.Purge(r.Context(), storeID, before)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	storeID, ok := storeParam(w, r)
	if !ok {
		return
	}

	result, err := h.reports.ExportWorkbook(r.Context(), storeID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func storeParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	storeID, err := strconv.ParseInt(mux.Vars(r)["store"], 10, 64)
	if err != nil || storeID <= 0 {
		http.Error(w, "store must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return storeID, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrRunInProgress):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("admin request failed")
		http.Error(w, "internal error", status)
		return
	}
	http.Error(w, fmt.Sprintf("request failed: %v", err), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to encode admin response")
	}
}
