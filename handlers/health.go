package handlers

import (
	"net/http"
)

// HealthHandler is used to determine if the server is running
type HealthHandler struct {
	BaseHandler
}

// ServeHTTP implements http.Handler
func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.RespondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// InfoHandler describes the service
type InfoHandler struct {
	BaseHandler
}

// ServeHTTP implements http.Handler
func (h InfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "App builder is running, submit tasks to POST /api/generate",
		"dev_mode": h.Cfg.DevMode(),
	})
}
