package httpapi

import (
	"net/http"

	"github.com/carbonlabs/carbon/internal/apperr"
	"github.com/carbonlabs/carbon/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	Username  string `json:"username"`
}

type logoutResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Message string `json:"message"`
}

// health handles GET /health (public).
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Message: "OK"})
}

// login handles POST /auth/login (public). It accepts either a JSON body
// of {username, password} or an Authorization: Basic header.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var username, password string

	var req loginRequest
	if err := decodeJSON(r, &req); err == nil && req.Username != "" {
		username, password = req.Username, req.Password
	} else if result, authErr := s.gate.Authenticate(r); authErr == nil {
		writeJSON(w, http.StatusOK, loginResponse{
			Token:     result.Token,
			ExpiresIn: auth.DefaultSessionTTLMs / 1000,
			Username:  result.User.Username,
		})
		return
	}

	if username == "" {
		writeError(w, r, apperr.ErrInvalidCredentials)
		return
	}

	sess, err := s.gate.Login(username, password, auth.ClientIP(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Token:     sess.Token,
		ExpiresIn: auth.DefaultSessionTTLMs / 1000,
		Username:  sess.Username,
	})
}

// logout handles POST /auth/logout (Bearer-authenticated).
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(authz) <= len(prefix) || authz[:len(prefix)] != prefix {
		writeError(w, r, apperr.ErrInvalidCredentials)
		return
	}
	token := authz[len(prefix):]
	s.gate.Logout(token)
	writeJSON(w, http.StatusOK, logoutResponse{Message: "logged out"})
}
