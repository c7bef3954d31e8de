package handlers

import (
	"net/http"
)

// StatusHandler reports the deployment mode of the running instance.
type StatusHandler struct {
	aiProvider  string
	dbDriver    string
	cacheDriver string
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(aiProvider, dbDriver, cacheDriver string) *StatusHandler {
	return &StatusHandler{
		aiProvider:  aiProvider,
		dbDriver:    dbDriver,
		cacheDriver: cacheDriver,
	}
}

// Status handles GET /status.
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"ai_provider": h.aiProvider,
		"database":    h.dbDriver,
		"cache":       h.cacheDriver,
	})
}
