package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"pg-insight/internal/auth"
	"pg-insight/internal/authctx"
	"pg-insight/internal/db"
)

// Auth serves the account endpoints. The router's method patterns
// reject wrong verbs before these handlers run.
type Auth struct {
	svc          *auth.Service
	log          *slog.Logger
	maxBodyBytes int64
}

func NewAuth(svc *auth.Service, log *slog.Logger, maxBodyBytes int64) Auth {
	if log == nil {
		log = slog.Default()
	}
	return Auth{svc: svc, log: log, maxBodyBytes: maxBodyBytes}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"` // username or email
	Password   string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UserResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	CreatedBy   string    `json:"created_by"`
	CreatedTime time.Time `json:"created_time"`
	UpdatedTime time.Time `json:"updated_time"`
	Role        string    `json:"role"`
}

// TokenResponse is shared by login and refresh: both issue a full
// access/refresh pair.
type TokenResponse struct {
	Token            string       `json:"token"`
	ExpiresAt        time.Time    `json:"expires_at"`
	RefreshToken     string       `json:"refresh_token"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	User             UserResponse `json:"user"`
}

func userResponse(u *db.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		CreatedBy:   u.CreatedBy,
		CreatedTime: u.CreatedTime,
		UpdatedTime: u.UpdatedTime,
		Role:        u.Role,
	}
}

func tokenResponse(u *db.User, pair auth.TokenPair) TokenResponse {
	return TokenResponse{
		Token:            pair.Access,
		ExpiresAt:        pair.AccessExpiresAt,
		RefreshToken:     pair.Refresh,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		User:             userResponse(u),
	}
}

// decodeBody decodes a size-limited JSON request body, rejecting
// unknown fields.
func (h Auth) decodeBody(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, h.maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// Register godoc
// @Summary Register an analyst account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Register request"
// @Success 201 {object} UserResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 409 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/auth/register [post]
func (h Auth) Register() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := h.decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
			return
		}
		u, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password, "self")
		if errors.Is(err, auth.ErrUserExists) {
			writeError(w, http.StatusConflict, "user_exists", "username or email already exists")
			return
		}
		if err != nil {
			h.log.Error("register failed", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "could not register user")
			return
		}
		writeJSON(w, http.StatusCreated, userResponse(u))
	})
}

// Login godoc
// @Summary Login with username or email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 401 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/auth/login [post]
func (h Auth) Login() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := h.decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
			return
		}
		u, pair, err := h.svc.Login(r.Context(), req.Identifier, req.Password)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username/email or password")
			return
		}
		if err != nil {
			h.log.Error("login failed", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "could not login")
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse(u, pair))
	})
}

// Refresh godoc
// @Summary Rotate a refresh token
// @Description Exchange a live refresh token for a new access/refresh pair. The presented token is consumed.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh request"
// @Success 200 {object} TokenResponse
// @Failure 400 {object} ErrorEnvelope
// @Failure 401 {object} ErrorEnvelope
// @Failure 500 {object} ErrorEnvelope
// @Router /v1/auth/refresh [post]
func (h Auth) Refresh() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RefreshRequest
		if err := h.decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON payload")
			return
		}
		u, pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh", "invalid or expired refresh token")
			return
		}
		if err != nil {
			h.log.Error("refresh failed", "err", err)
			writeError(w, http.StatusInternalServerError, "server_error", "could not refresh token")
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse(u, pair))
	})
}

// Me godoc
// @Summary Current user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UserResponse
// @Failure 401 {object} ErrorEnvelope
// @Router /v1/auth/me [get]
func (h Auth) Me() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := authctx.UserFrom(r.Context())
		if !ok || u == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		writeJSON(w, http.StatusOK, userResponse(u))
	})
}
