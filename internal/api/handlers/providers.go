package handlers

import (
	"net/http"

	"github.com/nikhilbhutani/sayflow/internal/stt"
)

type ProviderLister interface {
	Info() []stt.ProviderInfo
	Default() string
}

type ProvidersHandler struct {
	providers ProviderLister
}

func NewProvidersHandler(p ProviderLister) *ProvidersHandler {
	return &ProvidersHandler{providers: p}
}

func (h *ProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": h.providers.Info(),
		"default":   h.providers.Default(),
	})
}
