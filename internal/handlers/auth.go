package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medassist/api/internal/domain"
	"github.com/medassist/api/internal/platform/config"
	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/platform/keyvalue"
	"github.com/medassist/api/internal/services"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// AuthHandlers exposes registration, verification and session endpoints.
type AuthHandlers struct {
	auth          services.AuthService
	limiter       *keyvalue.RateLimiter
	limits        config.RateLimitConfig
	secure        bool
	accessMaxAge  int
	refreshMaxAge int
}

// NewAuthHandlers constructs the auth endpoint handlers.
func NewAuthHandlers(auth services.AuthService, limiter *keyvalue.RateLimiter, cfg config.Config) *AuthHandlers {
	return &AuthHandlers{
		auth:          auth,
		limiter:       limiter,
		limits:        cfg.RateLimits,
		secure:        cfg.IsProduction(),
		accessMaxAge:  int(cfg.JWT.AccessTTL.Seconds()),
		refreshMaxAge: int(cfg.JWT.RefreshTTL.Seconds()),
	}
}

// Routes wires the /auth endpoints onto the provided router.
func (h *AuthHandlers) Routes(r chi.Router) {
	r.With(rateLimit(h.limiter, "register", h.limits.RegisterMax, h.limits.RegisterWindow)).
		Post("/register", h.register)
	r.With(rateLimit(h.limiter, "otp", h.limits.OTPMax, h.limits.OTPWindow)).
		Post("/request-otp", h.requestOTP)
	r.With(rateLimit(h.limiter, "otp", h.limits.OTPMax, h.limits.OTPWindow)).
		Post("/verify-otp", h.verifyOTP)
	r.With(rateLimit(h.limiter, "login", h.limits.LoginMax, h.limits.LoginWindow)).
		Post("/login", h.login)
	r.Post("/refresh", h.refresh)
	r.Post("/logout", h.logout)
}

type registerRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	user, err := h.auth.Register(ctx, services.RegisterInput{
		Name:     req.Name,
		Phone:    req.Phone,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusCreated, toUserView(user), "verification code sent")
}

type phoneRequest struct {
	Phone string `json:"phone"`
}

func (h *AuthHandlers) requestOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req phoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}
	if err := h.auth.RequestOTP(ctx, req.Phone); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteMessage(w, http.StatusOK, nil, "verification code sent")
}

type verifyOTPRequest struct {
	Phone string `json:"phone"`
	OTP   string `json:"otp"`
}

func (h *AuthHandlers) verifyOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req verifyOTPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}
	user, pair, err := h.auth.VerifyOTP(ctx, req.Phone, req.OTP)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	// Verification doubles as the first login.
	h.setSessionCookies(w, pair)
	httpx.WriteData(w, http.StatusOK, h.toTokenResponse(user, pair))
}

type loginRequest struct {
	EmailOrPhone string `json:"email_or_phone"`
	Password     string `json:"password"`
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int      `json:"expires_in"`
	User         userView `json:"user"`
}

func (h *AuthHandlers) toTokenResponse(user domain.User, pair services.TokenPair) tokenResponse {
	return tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    h.accessMaxAge,
		User:         toUserView(user),
	}
}

type unverifiedLoginResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeInvalidInput, "malformed request body"))
		return
	}

	result, err := h.auth.Login(ctx, req.EmailOrPhone, req.Password)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if !result.Verified {
		// Credentials checked out but the account still needs its phone
		// verified; a fresh code is already on its way.
		httpx.WriteData(w, http.StatusOK, unverifiedLoginResponse{
			Message: "account not verified, a new verification code has been sent",
		})
		return
	}

	h.setSessionCookies(w, result.Pair)
	httpx.WriteData(w, http.StatusOK, h.toTokenResponse(result.User, result.Pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := h.refreshTokenFromRequest(w, r)
	if raw == "" {
		httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeTokenInvalid, "refresh token required"))
		return
	}

	pair, err := h.auth.Refresh(ctx, raw)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	h.setSessionCookies(w, pair)
	httpx.WriteData(w, http.StatusOK, map[string]string{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := h.refreshTokenFromRequest(w, r)
	if raw != "" {
		if err := h.auth.Logout(ctx, raw); err != nil {
			writeServiceError(ctx, w, err)
			return
		}
	}
	h.clearSessionCookies(w)
	httpx.WriteMessage(w, http.StatusOK, nil, "logged out")
}

// refreshTokenFromRequest prefers the JSON body, falling back to the cookie
// for browser clients.
func (h *AuthHandlers) refreshTokenFromRequest(w http.ResponseWriter, r *http.Request) string {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	if cookie, err := r.Cookie(refreshCookie); err == nil {
		return cookie.Value
	}
	return ""
}

func (h *AuthHandlers) setSessionCookies(w http.ResponseWriter, pair services.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     accessCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   h.accessMaxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookie,
		Value:    pair.RefreshToken,
		Path:     "/api/v1/auth",
		MaxAge:   h.refreshMaxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandlers) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: accessCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: h.secure, SameSite: http.SameSiteStrictMode})
	http.SetCookie(w, &http.Cookie{Name: refreshCookie, Value: "", Path: "/api/v1/auth", MaxAge: -1, HttpOnly: true, Secure: h.secure, SameSite: http.SameSiteStrictMode})
}
