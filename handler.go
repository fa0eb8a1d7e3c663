package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/security"
	"github.com/giantswarm/player-oidc/server"
	"github.com/giantswarm/player-oidc/signing"
)

const (
	// maxFormBytes bounds form bodies on the POST endpoints
	maxFormBytes = 64 << 10

	// retryAfterSeconds is sent with 429 responses
	retryAfterSeconds = "60"

	// discoveryCacheControl lets clients cache discovery and key documents
	discoveryCacheControl = "public, max-age=3600"
)

// Endpoint labels used in metrics and spans
const (
	endpointAuthorize = "authorize"
	endpointToken     = "token"
	endpointRevoke    = "revoke"
	endpointUserInfo  = "userinfo"
	endpointDiscovery = "discovery"
	endpointJWKS      = "jwks"
	endpointHealth    = "health"
)

type contextKey int

const claimsContextKey contextKey = iota

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Handler is a thin HTTP adapter for the authorization Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server *server.Server
	logger *slog.Logger
	tracer trace.Tracer // OpenTelemetry tracer for HTTP layer

	loginTemplate *template.Template
	healthChecks  map[string]HealthCheck
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server:        srv,
		logger:        logger,
		loginTemplate: defaultLoginTemplate,
		healthChecks:  make(map[string]HealthCheck),
	}

	// Initialize tracer if instrumentation is enabled
	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

// SetLoginTemplate replaces the login page. The template is executed with
// the fields of the authorization request and must post them back unchanged
// together with username and password.
func (h *Handler) SetLoginTemplate(tmpl *template.Template) {
	if tmpl != nil {
		h.loginTemplate = tmpl
	}
}

// AddHealthCheck registers a dependency probed by the health endpoint
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.healthChecks[name] = check
}

// Routes returns a router with all OAuth/OIDC endpoints registered. Paths
// are relative to the issuer; mount the router at the issuer's path.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.With(h.instrument(endpointAuthorize)).Get(server.PathAuthorize, h.ServeAuthorize)
	r.With(h.instrument(endpointAuthorize)).Post(server.PathAuthorize, h.ServeAuthorizeLogin)
	r.With(h.instrument(endpointToken)).Post(server.PathToken, h.ServeToken)
	r.With(h.instrument(endpointRevoke)).Post(server.PathRevoke, h.ServeTokenRevocation)

	userInfo := h.ValidateToken(http.HandlerFunc(h.ServeUserInfo))
	r.With(h.instrument(endpointUserInfo)).Method(http.MethodGet, server.PathUserInfo, userInfo)
	r.With(h.instrument(endpointUserInfo)).Method(http.MethodPost, server.PathUserInfo, userInfo)

	r.With(h.instrument(endpointDiscovery)).Get(server.PathDiscovery, h.ServeDiscovery)
	r.With(h.instrument(endpointJWKS)).Get(server.PathJWKS, h.ServeJWKS)
	r.With(h.instrument(endpointHealth)).Get(server.PathHealth, h.ServeHealth)

	if h.server.Instrumentation != nil {
		r.Handle("/metrics", h.server.Instrumentation.MetricsHandler())
	}

	return r
}

// ServeAuthorize validates an authorization request and renders the login
// page. Invalid requests are answered with 400 and never redirected.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	req := authorizationRequestFromValues(r.URL.Query())

	client, err := h.server.ValidateAuthorizationRequest(r.Context(), req)
	if err != nil {
		h.logger.Debug("Rejected authorization request",
			"client_id", req.ClientID,
			"error", err)
		h.writeOAuthError(w, err)
		return
	}

	clientName := client.ClientName
	if clientName == "" {
		clientName = client.ClientID
	}
	data := loginPageData{
		ClientName:          clientName,
		Action:              h.server.Config.AuthorizationEndpoint(),
		ResponseType:        req.ResponseType,
		ClientID:            req.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		Scopes:              strings.Fields(req.Scope),
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
	}

	security.SetLoginPageHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.loginTemplate.Execute(w, data); err != nil {
		h.logger.Error("Failed to render login page", "client_id", req.ClientID, "error", err)
	}
}

// ServeAuthorizeLogin handles the login form post. The end user is always
// redirected back to the client unless the request itself is invalid.
func (h *Handler) ServeAuthorizeLogin(w http.ResponseWriter, r *http.Request) {
	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	if !h.parseForm(w, r) {
		return
	}

	req := authorizationRequestFromValues(r.PostForm)
	result, err := h.server.CompleteAuthorization(r.Context(), req,
		r.PostForm.Get("username"), r.PostForm.Get("password"), clientIP)
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// ServeToken handles the OAuth token endpoint
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	if !h.parseForm(w, r) {
		return
	}

	creds, err := clientCredentials(r)
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	form := r.PostForm
	resp, err := h.server.Token(r.Context(), &server.TokenRequest{
		GrantType:    form.Get("grant_type"),
		Code:         form.Get("code"),
		RedirectURI:  form.Get("redirect_uri"),
		CodeVerifier: form.Get("code_verifier"),
		RefreshToken: form.Get("refresh_token"),
		Client:       creds,
		ClientIP:     clientIP,
	})
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ServeTokenRevocation handles the RFC 7009 token revocation endpoint
func (h *Handler) ServeTokenRevocation(w http.ResponseWriter, r *http.Request) {
	clientIP := h.clientIP(r)
	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	if !h.parseForm(w, r) {
		return
	}

	creds, err := clientCredentials(r)
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	err = h.server.RevokeToken(r.Context(), &server.RevocationRequest{
		Token:         r.PostForm.Get("token"),
		TokenTypeHint: r.PostForm.Get("token_type_hint"),
		Client:        creds,
		ClientIP:      clientIP,
	})
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	// RFC 7009 2.2: success whether or not the token was known
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.WriteHeader(http.StatusOK)
}

// ServeUserInfo returns the claims of the token's subject. It must run
// behind ValidateToken.
func (h *Handler) ServeUserInfo(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		h.writeUnauthorizedError(w, ErrorCodeInvalidToken, "Missing access token")
		return
	}

	info, err := h.server.UserInfo(r.Context(), claims)
	if err != nil {
		h.writeOAuthError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, info)
}

// ServeDiscovery serves the OpenID Connect discovery document
func (h *Handler) ServeDiscovery(w http.ResponseWriter, _ *http.Request) {
	h.writeCacheableJSON(w, h.server.Discovery())
}

// ServeJWKS serves the public signing keys
func (h *Handler) ServeJWKS(w http.ResponseWriter, _ *http.Request) {
	h.writeCacheableJSON(w, h.server.JWKS())
}

// ServeHealth probes the registered dependencies
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if len(h.healthChecks) > 0 {
		resp.Checks = make(map[string]string, len(h.healthChecks))
	}
	for name, check := range h.healthChecks {
		ctx, cancel := context.WithTimeout(r.Context(), h.server.Config.StoreTimeout)
		err := check(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("Health check failed", "check", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	h.writeJSON(w, status, resp)
}

// ValidateToken is middleware that validates bearer access tokens and puts
// their claims in the request context
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := h.clientIP(r)

		if h.checkIPRateLimit(w, r, clientIP) {
			return
		}

		accessToken, ok := h.extractBearerToken(w, r)
		if !ok {
			return
		}

		claims, err := h.server.ValidateAccessToken(r.Context(), accessToken)
		if err != nil {
			oauthErr := AsError(err)
			if oauthErr.Code != ErrorCodeInvalidToken {
				h.writeOAuthError(w, oauthErr)
				return
			}
			h.logger.Debug("Token validation failed", "ip", clientIP)
			h.writeUnauthorizedError(w, ErrorCodeInvalidToken, oauthErr.Description)
			return
		}

		ctx := ContextWithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClaimsFromContext returns the access token claims stored by ValidateToken
func ClaimsFromContext(ctx context.Context) (*signing.Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*signing.Claims)
	return claims, ok && claims != nil
}

// ContextWithClaims returns a context carrying access token claims
func ContextWithClaims(ctx context.Context, claims *signing.Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if h.server.RateLimiter == nil || h.server.RateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "path", r.URL.Path)
	h.recordRateLimitExceeded(r.Context(), clientIP, r.URL.Path)
	w.Header().Set("Retry-After", retryAfterSeconds)
	h.writeError(w, ErrorCodeRateLimitExceeded, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
	return true
}

// recordRateLimitExceeded records rate limit metrics and audit events.
func (h *Handler) recordRateLimitExceeded(ctx context.Context, clientIP, endpoint string) {
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(ctx, endpoint)
	}
	h.server.Auditor.LogRateLimitExceeded(clientIP, endpoint)
}

// extractBearerToken extracts the Bearer token from the Authorization header.
// Returns the token and true if successful, or writes an error and returns false.
func (h *Handler) extractBearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		// RFC 6750 3.1: no error code when no credentials were sent
		h.writeUnauthorizedError(w, "", "Missing Authorization header")
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], server.TokenTypeBearer) || strings.TrimSpace(parts[1]) == "" {
		h.writeUnauthorizedError(w, ErrorCodeInvalidToken, "Invalid Authorization header format")
		return "", false
	}

	return strings.TrimSpace(parts[1]), true
}

// parseForm reads a bounded form body. Parameters are taken from the body
// only; query parameters on POST endpoints are ignored.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.writeError(w, ErrorCodeInvalidRequest, "Failed to parse request", http.StatusBadRequest)
		return false
	}
	return true
}

// clientCredentials resolves the client authentication of a token or
// revocation request
func clientCredentials(r *http.Request) (server.ClientCredentials, error) {
	basicID, basicSecret, hasBasic := basicAuth(r)
	return server.ResolveClientCredentials(basicID, basicSecret, hasBasic,
		r.PostForm.Get("client_id"), r.PostForm.Get("client_secret"))
}

// basicAuth returns HTTP Basic credentials, form-decoded per RFC 6749 2.3.1
func basicAuth(r *http.Request) (string, string, bool) {
	id, secret, ok := r.BasicAuth()
	if !ok {
		return "", "", false
	}
	if decoded, err := url.QueryUnescape(id); err == nil {
		id = decoded
	}
	if decoded, err := url.QueryUnescape(secret); err == nil {
		secret = decoded
	}
	return id, secret, true
}

func authorizationRequestFromValues(v url.Values) *server.AuthorizationRequest {
	return &server.AuthorizationRequest{
		ResponseType:        v.Get("response_type"),
		ClientID:            v.Get("client_id"),
		RedirectURI:         v.Get("redirect_uri"),
		Scope:               v.Get("scope"),
		State:               v.Get("state"),
		CodeChallenge:       v.Get("code_challenge"),
		CodeChallengeMethod: v.Get("code_challenge_method"),
		Nonce:               v.Get("nonce"),
	}
}

// writeOAuthError renders a flow error with its status and the challenge
// header its code requires
func (h *Handler) writeOAuthError(w http.ResponseWriter, err error) {
	oauthErr := AsError(err)
	switch {
	case oauthErr.Code == ErrorCodeInvalidToken:
		h.writeUnauthorizedError(w, oauthErr.Code, oauthErr.Description)
		return
	case oauthErr.Code == ErrorCodeInvalidClient:
		w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Basic realm="%s"`, quoteHeaderValue(h.server.Config.Issuer)))
	case oauthErr.Status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	h.writeError(w, oauthErr.Code, oauthErr.Description, oauthErr.Status)
}

func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	h.writeJSON(w, status, ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

// writeUnauthorizedError writes a 401 response with a Bearer challenge
func (h *Handler) writeUnauthorizedError(w http.ResponseWriter, code, description string) {
	w.Header().Set("WWW-Authenticate", h.formatWWWAuthenticate(code, description))
	if code == "" {
		code = ErrorCodeInvalidToken
	}
	h.writeError(w, code, description, http.StatusUnauthorized)
}

// formatWWWAuthenticate formats the WWW-Authenticate header value per RFC 6750.
//
// Example output:
//
//	Bearer realm="https://auth.example.com", error="invalid_token", error_description="Token validation failed"
func (h *Handler) formatWWWAuthenticate(errCode, errorDesc string) string {
	params := []string{fmt.Sprintf(`realm="%s"`, quoteHeaderValue(h.server.Config.Issuer))}

	if errCode != "" {
		params = append(params, fmt.Sprintf(`error="%s"`, errCode))
		if errorDesc != "" {
			params = append(params, fmt.Sprintf(`error_description="%s"`, quoteHeaderValue(errorDesc)))
		}
	}

	return server.TokenTypeBearer + " " + strings.Join(params, ", ")
}

// quoteHeaderValue escapes a quoted-string (RFC 7230 3.2.6)
func quoteHeaderValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}

func (h *Handler) writeCacheableJSON(w http.ResponseWriter, body any) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Cache-Control", discoveryCacheControl)
	w.Header().Del("Pragma")
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Debug("Failed to write response", "error", err)
	}
}

// instrument wraps an endpoint with a span and HTTP metrics
func (h *Handler) instrument(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			ctx := r.Context()

			var span trace.Span
			if h.tracer != nil {
				ctx, span = h.tracer.Start(ctx, "oauth.http."+endpoint)
				defer span.End()
				if inst := h.server.Instrumentation; inst != nil && inst.ShouldLogClientIPs() {
					instrumentation.AddSecurityAttributes(span, h.clientIP(r))
				}
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if span != nil {
				instrumentation.SetSpanAttributes(span,
					attribute.String("http.request.method", r.Method),
					attribute.Int("http.response.status_code", status))
				if status >= http.StatusInternalServerError {
					instrumentation.SetSpanError(span, http.StatusText(status))
				} else {
					instrumentation.SetSpanSuccess(span)
				}
			}
			h.recordHTTPMetrics(ctx, endpoint, r.Method, status, startTime)
		})
	}
}

// recordHTTPMetrics records HTTP request metrics (total count and duration)
func (h *Handler) recordHTTPMetrics(ctx context.Context, endpoint, method string, status int, startTime time.Time) {
	if h.server.Instrumentation == nil {
		return
	}

	duration := time.Since(startTime).Seconds() * 1000 // convert to milliseconds
	h.server.Instrumentation.Metrics().RecordHTTPRequest(ctx, method, endpoint, status, duration)
}
