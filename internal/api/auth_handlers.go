package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/shutterscope/shutterscope/internal/auth"
)

// loginRequest represents the login payload.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is returned by POST /api/v1/auth/login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
}

// MeResponse is returned by GET /api/v1/auth/me.
type MeResponse struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := s.auth.Authenticate(req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Error("login failed", "username", req.Username, "error", err)
		}
		s.logger.Warn("login denied", "username", req.Username, "client_ip", clientIP(r))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expires, err := s.auth.GenerateJWT(user.Username, user.Role)
	if err != nil {
		s.logger.Error("generating token", "username", user.Username, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	s.logger.Info("login succeeded", "username", user.Username, "client_ip", clientIP(r))
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: expires,
		Username:  user.Username,
		Role:      user.Role,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := getUserClaims(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "user authentication required")
		return
	}

	resp := MeResponse{Username: claims.Username, Role: claims.Role}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Time
	}
	writeJSON(w, http.StatusOK, resp)
}
