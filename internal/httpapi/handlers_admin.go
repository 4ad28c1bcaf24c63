package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/domain"
	"github.com/carbonlabs/carbon/internal/store"
	"github.com/carbonlabs/carbon/internal/validation"
)

type createCacheResponse struct {
	Created bool   `json:"created"`
	Message string `json:"message,omitempty"`
}

type listCachesResponse struct {
	Caches []domain.CacheInfo `json:"caches"`
}

type describeCacheResponse struct {
	Info domain.CacheInfo `json:"info"`
}

type dropCacheResponse struct {
	Dropped bool `json:"dropped"`
}

// createCache handles POST /admin/caches.
func (s *Server) createCache(w http.ResponseWriter, r *http.Request) {
	var req validation.CreateCacheRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, apperr.NewValidationError("body", "request body must be valid JSON"))
		return
	}

	cfg, err := validation.FromRequest(req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	st, err := store.New(cfg)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.registry.Create(cfg, st)
	if err != nil {
		st.Close()
		writeError(w, r, err)
		return
	}
	if !resp.Created {
		st.Close()
	} else {
		s.audit(r, "cache.create", cfg.Name)
	}
	writeJSON(w, http.StatusOK, createCacheResponse{Created: resp.Created, Message: resp.Message})
}

// listCaches handles GET /admin/caches.
func (s *Server) listCaches(w http.ResponseWriter, r *http.Request) {
	infos := s.registry.List()
	if infos == nil {
		infos = []domain.CacheInfo{}
	}
	writeJSON(w, http.StatusOK, listCachesResponse{Caches: infos})
}

// describeCache handles GET /admin/caches/{name}.
func (s *Server) describeCache(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	info, err := s.registry.Describe(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describeCacheResponse{Info: info})
}

// dropCache handles DELETE /admin/caches/{name}.
func (s *Server) dropCache(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	resp, err := s.registry.Drop(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if resp.Dropped {
		s.audit(r, "cache.drop", name)
	}
	writeJSON(w, http.StatusOK, dropCacheResponse{Dropped: resp.Dropped})
}
