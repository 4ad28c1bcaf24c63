package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carbonlabs/carbon/internal/apperr"
)

// cachePutRequest is the body of PUT /cache/{cache}/{key}.
type cachePutRequest struct {
	Value string `json:"value"`
	TTLMs *int64 `json:"ttl_ms,omitempty"`
}

type cachePutResponse struct {
	OK bool `json:"ok"`
}

type cacheGetResponse struct {
	Found          bool   `json:"found"`
	Value          string `json:"value,omitempty"`
	TTLMsRemaining int64  `json:"ttl_ms_remaining"`
}

type cacheDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// putCache handles PUT /cache/{cache}/{key}.
func (s *Server) putCache(w http.ResponseWriter, r *http.Request) {
	cache := chi.URLParam(r, "cache")
	key := chi.URLParam(r, "key")

	var req cachePutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, apperr.NewValidationError("value", "request body must be valid JSON"))
		return
	}

	resp, err := s.dataPlane.Put(r.Context(), cache, []byte(key), []byte(req.Value), req.TTLMs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cachePutResponse{OK: resp.OK})
}

// getCache handles GET /cache/{cache}/{key}.
func (s *Server) getCache(w http.ResponseWriter, r *http.Request) {
	cache := chi.URLParam(r, "cache")
	key := chi.URLParam(r, "key")

	resp, err := s.dataPlane.Get(r.Context(), cache, []byte(key))
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusOK, cacheGetResponse{Found: false})
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !resp.Found {
		writeJSON(w, http.StatusOK, cacheGetResponse{Found: false})
		return
	}
	var ttlRemaining int64
	if resp.TTLMsRemaining != nil {
		ttlRemaining = *resp.TTLMsRemaining
	}
	writeJSON(w, http.StatusOK, cacheGetResponse{Found: true, Value: string(resp.Value), TTLMsRemaining: ttlRemaining})
}

// deleteCache handles DELETE /cache/{cache}/{key}.
func (s *Server) deleteCache(w http.ResponseWriter, r *http.Request) {
	cache := chi.URLParam(r, "cache")
	key := chi.URLParam(r, "key")

	resp, err := s.dataPlane.Delete(r.Context(), cache, []byte(key))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cacheDeleteResponse{Deleted: resp.Deleted})
}
