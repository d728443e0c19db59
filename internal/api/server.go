// Package api provides the HTTP API and middleware for PromptStudio.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/promptstudio/promptstudio/internal/auth"
	"github.com/promptstudio/promptstudio/internal/billing"
	"github.com/promptstudio/promptstudio/internal/config"
	"github.com/promptstudio/promptstudio/internal/metrics"
	"github.com/promptstudio/promptstudio/internal/prompt"
	"github.com/promptstudio/promptstudio/internal/store"
	"github.com/promptstudio/promptstudio/internal/usage"
)

const (
	sessionCookieName = "session_id"
	webhookBodyLimit  = 1024 * 1024 // 1 MiB
)

// Deps are the collaborators the server routes to.
type Deps struct {
	Store    store.Store
	Auth     *auth.Service
	Meter    *usage.Meter
	Resolver *billing.Resolver
	Bridge   *billing.Bridge
	Prompts  *prompt.Generator
	Metrics  metrics.Recorder
	Gatherer prometheus.Gatherer
}

// Server is the HTTP API server.
type Server struct {
	store         store.Store
	auth          *auth.Service
	meter         *usage.Meter
	resolver      *billing.Resolver
	bridge        *billing.Bridge
	prompts       *prompt.Generator
	metrics       metrics.Recorder
	logger        *slog.Logger
	mux           *chi.Mux
	startTime     time.Time
	maxBodyBytes  int64
	secureCookies bool
	sessionTTL    time.Duration
}

// NewServer creates a new API server.
func NewServer(d Deps, cfg *config.Config, logger *slog.Logger) *Server {
	srv := &Server{
		store:         d.Store,
		auth:          d.Auth,
		meter:         d.Meter,
		resolver:      d.Resolver,
		bridge:        d.Bridge,
		prompts:       d.Prompts,
		metrics:       d.Metrics,
		logger:        logger.With("component", "api"),
		startTime:     time.Now(),
		maxBodyBytes:  cfg.Server.MaxBodyBytes,
		secureCookies: cfg.Server.SecureCookies,
		sessionTTL:    cfg.Session.TTL.Duration,
	}
	if srv.metrics == nil {
		srv.metrics = metrics.Nop{}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)
	mux.Use(chimw.RequestID)
	mux.Use(srv.requestLogger)
	mux.Use(securityHeadersMiddleware)
	mux.Use(makeCORSMiddleware(cfg.Server.AllowedOrigins))

	// Health and metrics (unauthenticated)
	mux.Get("/healthz", srv.handleHealthz)
	mux.Get("/readyz", srv.handleReadyz)
	if d.Gatherer != nil {
		mux.Handle("/metrics", metrics.Handler(d.Gatherer))
	}

	// Checkout redirect targets
	mux.Get("/success", srv.handleCheckoutSuccess)
	mux.Get("/cancel", srv.handleCheckoutCancel)

	mux.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", srv.handleRegister)
		r.Post("/auth/login", srv.handleLogin)
		r.Post("/auth/logout", srv.handleLogout)

		// Signed by Stripe, not by a session.
		r.Post("/billing/webhook", srv.handleWebhook)
		r.With(srv.optionalSession).Get("/billing/config", srv.handleBillingConfig)

		r.Group(func(r chi.Router) {
			r.Use(srv.requireSession)

			r.Get("/me", srv.handleGetMe)
			r.Get("/tools", srv.handleListTools)
			r.Post("/tools/{tool}/generate", srv.handleGenerate)
			r.Post("/billing/checkout", srv.handleCheckout)
		})
	})

	srv.mux = mux
	return srv
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// --- Auth handlers ---

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !s.decodeBody(w, r, &req) {
		return
	}

	acct, err := s.auth.Register(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrAccountExists):
		s.metrics.RecordRegistration("exists")
		writeError(w, http.StatusConflict, "username already exists")
		return
	case errors.Is(err, auth.ErrInvalidInput), errors.Is(err, auth.ErrSecretTooLong):
		s.metrics.RecordRegistration("invalid")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("register failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register")
		return
	}

	s.metrics.RecordRegistration("created")
	s.logger.Info("account registered", "account", acct.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"username": acct.Name,
		"paid":     acct.Paid,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if !s.decodeBody(w, r, &req) {
		return
	}

	token, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Error("login failed", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to log in")
			return
		}
		s.metrics.RecordLogin("failure")
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	s.metrics.RecordLogin("success")
	s.setSessionCookie(w, token)

	name := strings.TrimSpace(req.Username)
	paid, err := s.resolver.IsEntitled(r.Context(), name)
	if err != nil {
		s.logger.Warn("entitlement lookup failed after login", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username": name,
		"paid":     paid,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), sessionToken(r)); err != nil {
		s.logger.Error("logout failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to log out")
		return
	}
	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())

	paid, err := s.resolver.IsEntitled(r.Context(), identity.Name)
	if err != nil {
		s.logger.Error("entitlement lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"username": identity.Name,
		"paid":     paid,
	})
}

// --- Tool handlers ---

type toolInfo struct {
	prompt.Tool
	Used      int  `json:"used"`
	Remaining *int `json:"remaining,omitempty"` // nil when unlimited
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())

	paid, err := s.resolver.IsEntitled(r.Context(), identity.Name)
	if err != nil {
		s.logger.Error("entitlement lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	tools := s.prompts.Tools()
	out := make([]toolInfo, 0, len(tools))
	for _, t := range tools {
		ti := toolInfo{Tool: t, Used: identity.Usage[t.ID]}
		if !paid {
			rem := usage.Remaining(ti.Used)
			ti.Remaining = &rem
		}
		out = append(out, ti)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"paid":       paid,
		"free_limit": usage.FreeLimit,
		"tools":      out,
	})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())
	tool := chi.URLParam(r, "tool")

	var req struct {
		VideoIdea string `json:"video_idea"`
	}
	if !s.decodeBody(w, r, &req) {
		return
	}

	// Reject bad input before it costs a free use.
	if _, err := s.prompts.Validate(tool, req.VideoIdea); err != nil {
		if errors.Is(err, prompt.ErrUnknownTool) {
			writeError(w, http.StatusNotFound, "unknown tool")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var paid bool
	entitled := func(ctx context.Context, name string) (bool, error) {
		p, err := s.resolver.IsEntitled(ctx, name)
		paid = p
		return p, err
	}

	decision, err := s.meter.CheckAndConsume(r.Context(), identity.Token, tool, entitled)
	if err != nil {
		if errors.Is(err, usage.ErrSessionNotFound) {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		s.logger.Error("metering failed", "tool", tool, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if decision == usage.LimitReached {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":         "free limit reached, upgrade to keep generating",
			"limit_reached": true,
			"tool":          tool,
			"limit":         usage.FreeLimit,
		})
		return
	}

	text, err := s.prompts.Generate(tool, req.VideoIdea)
	if err != nil {
		s.logger.Error("generate failed", "tool", tool, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to generate prompt")
		return
	}

	resp := map[string]any{
		"tool":   tool,
		"prompt": text,
		"paid":   paid,
	}
	if !paid {
		used, err := s.meter.CurrentCount(r.Context(), identity.Token, tool)
		if err == nil {
			resp["used"] = used
			resp["remaining"] = usage.Remaining(used)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Billing handlers ---

func (s *Server) handleBillingConfig(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"publishable_key":  s.bridge.PublishableKey(),
		"checkout_enabled": s.bridge.CheckoutConfigured(),
	}
	if identity := getIdentityFromContext(r.Context()); identity != nil {
		paid, err := s.resolver.IsEntitled(r.Context(), identity.Name)
		if err == nil {
			resp["paid"] = paid
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	identity := getIdentityFromContext(r.Context())

	url, err := s.bridge.InitiateCheckout(r.Context(), identity.Name)
	if err != nil {
		var ce *billing.CheckoutError
		switch {
		case errors.Is(err, billing.ErrPriceNotConfigured):
			writeError(w, http.StatusInternalServerError, err.Error())
		case errors.As(err, &ce):
			resp := map[string]string{
				"error":      ce.Message,
				"error_type": ce.Type,
			}
			if ce.Code != "" {
				resp["code"] = ce.Code
			}
			writeJSON(w, http.StatusInternalServerError, resp)
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"checkout_url": url})
}

// handleWebhook answers Stripe with 400 for anything it should treat as
// rejected and 200 otherwise.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	_, err = s.bridge.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	case errors.Is(err, billing.ErrMalformed):
		writeError(w, http.StatusBadRequest, "Invalid payload")
	case errors.Is(err, billing.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, "Invalid signature")
	default:
		// Any non-2xx makes Stripe redeliver.
		s.logger.Error("webhook processing failed", "error", err)
		writeError(w, http.StatusBadRequest, "Processing failed")
	}
}

func (s *Server) handleCheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Payment received. Your account is upgraded as soon as Stripe confirms it.",
	})
}

func (s *Server) handleCheckoutCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "cancelled",
		"message": "Checkout was cancelled. You can retry at any time.",
	})
}

// --- Health ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Helpers ---

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	c := &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	}
	if s.sessionTTL > 0 {
		c.MaxAge = int(s.sessionTTL / time.Second)
	}
	http.SetCookie(w, c)
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
