package handlers

import (
	"net/http"
)

// CORSHandler allows any origin to call the API. OPTIONS preflight requests are
// answered directly and never reach Handler.
type CORSHandler struct {
	BaseHandler

	// Handler to enable CORS for
	Handler http.Handler
}

// ServeHTTP implements http.Handler
func (h CORSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	if r.Method == http.MethodOptions && len(r.Header.Get("Access-Control-Request-Method")) > 0 {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "600")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Handler.ServeHTTP(w, r)
}
