// Package handlers exposes the login flow over HTTP.
//
// Endpoints:
//
//	POST /auth/login  — credential submission (step 1)
//	POST /auth/mfa    — one-time code submission (step 2)
//	POST /auth/logout — session revocation
//
// The MFA challenge ID and the session token both travel in HTTP-only
// cookies; neither is ever exposed to page scripts.
package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tranvh/authgate"
)

const (
	sessionCookie   = "ag_session"
	challengeCookie = "ag_challenge"
)

// SessionResolver maps a presented session token back to its owner.
// identity.Provider satisfies it.
type SessionResolver interface {
	ResolveSession(ctx context.Context, session string) (string, error)
	DestroySession(ctx context.Context, session string) error
}

// Auth bundles the engine and identity provider behind the HTTP surface.
type Auth struct {
	engine   *authgate.Engine
	provider SessionResolver
	secure   bool
	log      *zap.Logger
}

// NewAuth returns the auth handler set. secure controls the cookie Secure
// flag; disable it only for local development over plain HTTP.
func NewAuth(engine *authgate.Engine, provider SessionResolver, secure bool, log *zap.Logger) *Auth {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auth{engine: engine, provider: provider, secure: secure, log: log}
}

// Routes mounts the auth endpoints on r.
func (a *Auth) Routes(r chi.Router) {
	r.Use(requestContext)
	r.Post("/auth/login", a.handleLogin)
	r.Post("/auth/mfa", a.handleMFA)
	r.Post("/auth/logout", a.handleLogout)
}

// requestContext copies request metadata into the context so audit entries
// carry the caller's IP, path, and origin.
func requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := authgate.WithClientIP(r.Context(), ip)
		ctx = authgate.WithRequestPath(ctx, r.URL.Path)
		ctx = authgate.WithOrigin(ctx, r.Header.Get("Origin"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	ReturnTo   string `json:"return_to"`
}

type mfaRequest struct {
	Code string `json:"code"`
}

type authResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
	Warning    string `json:"warning,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

func (a *Auth) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, authResponse{Status: "error", Message: "invalid request body"})
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, authResponse{Status: "error", Message: "email and password are required"})
		return
	}

	outcome, err := a.engine.AttemptLogin(r.Context(), authgate.LoginRequest{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		ReturnTo:   req.ReturnTo,
	})
	if err != nil {
		a.log.Error("login attempt failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, authResponse{Status: "error", Message: "something went wrong, try again"})
		return
	}

	a.writeOutcome(w, outcome)
}

func (a *Auth) handleMFA(w http.ResponseWriter, r *http.Request) {
	var req mfaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, authResponse{Status: "error", Message: "invalid request body"})
		return
	}

	challengeID := ""
	if c, err := r.Cookie(challengeCookie); err == nil {
		challengeID = c.Value
	}

	outcome, err := a.engine.CompleteMFA(r.Context(), challengeID, req.Code)
	if err != nil {
		a.log.Error("mfa completion failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, authResponse{Status: "error", Message: "something went wrong, try again"})
		return
	}

	a.writeOutcome(w, outcome)
}

func (a *Auth) handleLogout(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		a.clearCookie(w, sessionCookie)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Resolve before revoking so the audit entry names the user.
	if userID, err := a.provider.ResolveSession(r.Context(), c.Value); err == nil {
		if err := a.engine.Logout(r.Context(), userID, c.Value); err != nil {
			a.log.Warn("logout failed", zap.Error(err))
		}
	} else {
		// Dead token; nothing to revoke server side.
		_ = a.provider.DestroySession(r.Context(), c.Value)
	}

	a.clearCookie(w, sessionCookie)
	w.WriteHeader(http.StatusNoContent)
}

func (a *Auth) writeOutcome(w http.ResponseWriter, outcome *authgate.LoginOutcome) {
	resp := authResponse{
		Status:     outcome.Status.String(),
		Message:    outcome.Message,
		Warning:    outcome.Warning,
		RedirectTo: outcome.RedirectTo,
	}

	switch outcome.Status {
	case authgate.OutcomeAuthenticated:
		a.clearCookie(w, challengeCookie)
		// The server-side session record is the authority on expiry; the
		// cookie just has to outlive the longest allowed session.
		a.setCookie(w, sessionCookie, outcome.Session, 30*24*time.Hour)
		writeJSON(w, http.StatusOK, resp)
	case authgate.OutcomeMFARequired:
		a.setCookie(w, challengeCookie, outcome.ChallengeID, 10*time.Minute)
		writeJSON(w, http.StatusOK, resp)
	case authgate.OutcomeSessionExpired:
		a.clearCookie(w, challengeCookie)
		writeJSON(w, http.StatusUnauthorized, resp)
	default:
		writeJSON(w, http.StatusUnauthorized, resp)
	}
}

func (a *Auth) setCookie(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *Auth) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
