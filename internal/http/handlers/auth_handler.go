package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/healthcure/clinic/internal/domain"
	"github.com/healthcure/clinic/internal/http/middleware"
	"github.com/healthcure/clinic/internal/http/response"
	"github.com/healthcure/clinic/internal/service"
)

type AuthHandler struct {
	auth       *service.AuthService
	cookieName string
	sessionTTL time.Duration
}

func NewAuthHandler(auth *service.AuthService, cookieName string, sessionTTL time.Duration) *AuthHandler {
	return &AuthHandler{auth: auth, cookieName: cookieName, sessionTTL: sessionTTL}
}

// Register is self-service signup. Admin accounts cannot be created here;
// that path exists only behind the admin surface.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Normalize()
	if domain.Role(req.Role) == domain.RoleAdmin {
		response.Error(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.auth.Register(r.Context(), &req)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusCreated, map[string]any{"user": user.ToUserInfo()})
}

// Login is step one of two. Success means a code was mailed; no session
// exists yet.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.auth.Login(r.Context(), &req); err != nil {
		response.DomainError(w, r, err)
		return
	}

	response.JSON(w, http.StatusOK, map[string]any{
		"mfa_required": true,
		"username":     req.Username,
	})
}

// VerifyCode is step two. On success the session token is set as an HttpOnly
// cookie; the body carries only the safe user projection, never the token.
func (h *AuthHandler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := h.auth.VerifyCode(r.Context(), &req)
	if err != nil {
		response.DomainError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	response.JSON(w, http.StatusOK, map[string]any{"user": user.ToUserInfo()})
}

// Logout clears the cookie. Tokens are not tracked server-side, so this is
// idempotent and always succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	if session == nil {
		response.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"user": domain.UserInfo{
			ID:       session.UserID,
			Username: session.Username,
			Role:     session.Role,
		},
	})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	session := middleware.SessionFrom(r)
	if session == nil {
		response.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req domain.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.auth.ChangePassword(r.Context(), session.UserID, &req); err != nil {
		response.DomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
