package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/appforge/app-builder-api/config"
	"github.com/appforge/app-builder-api/metrics"

	"github.com/Noah-Huppert/golog"
)

// maxBodyBytes limits the size of request bodies, attachments are sent inline
const maxBodyBytes = 32 << 20

// BaseHandler provides helper methods and commonly used variables for API endpoints to base
// their http.Handlers off
type BaseHandler struct {
	// Ctx is the application context
	Ctx context.Context

	// Logger logs information
	Logger golog.Logger

	// Cfg is the application configuration
	Cfg *config.Config

	// Metrics holds internal Prometheus metrics recorders
	Metrics metrics.Metrics
}

// GetChild makes a child instance of the base handler with a prefix
func (h BaseHandler) GetChild(prefix string) BaseHandler {
	h.Logger = h.Logger.GetChild(prefix)

	return h
}

// RespondJSON sends an object as a JSON encoded response
func (h BaseHandler) RespondJSON(w http.ResponseWriter, status int, resp interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(resp); err != nil {
		panic(fmt.Errorf("failed to encode response as JSON: %s", err.Error()))
	}
}

// RespondDetail sends a {"detail": ...} JSON error response
func (h BaseHandler) RespondDetail(w http.ResponseWriter, status int, detail string) {
	h.RespondJSON(w, status, map[string]string{
		"detail": detail,
	})
}

// ParseJSON parses a request body as JSON
func (h BaseHandler) ParseJSON(w http.ResponseWriter, r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dest); err != nil {
		return fmt.Errorf("failed to decode request body as JSON: %s", err.Error())
	}

	return nil
}
