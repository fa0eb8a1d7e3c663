package server

import (
	"context"
	"errors"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/giantswarm/player-oidc/instrumentation"
	"github.com/giantswarm/player-oidc/internal/util"
	"github.com/giantswarm/player-oidc/providers"
	"github.com/giantswarm/player-oidc/security"
	"github.com/giantswarm/player-oidc/storage"
)

// AuthorizeState is the position of an authorization request in its life cycle
type AuthorizeState string

const (
	// StateRequested is a request whose parameters are being validated
	StateRequested AuthorizeState = "requested"
	// StateRendered is a valid request shown to the end user
	StateRendered AuthorizeState = "rendered"
	// StateAuthenticated is a request whose end user logged in
	StateAuthenticated AuthorizeState = "authenticated"
	// StateGranted is a request for which a code was issued
	StateGranted AuthorizeState = "granted"
	// StateRejected is a request that ended without a code
	StateRejected AuthorizeState = "rejected"
)

// ResponseTypeCode is the only supported response_type
const ResponseTypeCode = "code"

// MaxStateLength bounds the opaque state parameter
const MaxStateLength = 512

// AuthorizationRequest holds the parameters of an authorization request
type AuthorizationRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
}

// AuthorizationResult is the outcome of the login step. RedirectURL always
// carries the request's state; it holds either a code or an error.
type AuthorizationResult struct {
	State       AuthorizeState
	RedirectURL string
	AccountID   string
	Failure     providers.FailureReason
}

// ValidateAuthorizationRequest checks a request before anything is shown to
// the end user. Errors are 400-class and must not be redirected because the
// redirect_uri may not be verified yet.
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*storage.ClientRecord, error) {
	ctx, span := s.tracer.Start(ctx, "server.ValidateAuthorizationRequest")
	defer span.End()

	client, err := s.validateAuthorizationRequest(ctx, req)
	if err != nil {
		recordError(span, err)
		instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrAuthorizeStep, string(StateRejected)))
		return nil, err
	}

	instrumentation.AddFlowAttributes(span, client.ClientID, "", req.Scope)
	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrAuthorizeStep, string(StateRendered)))
	instrumentation.SetSpanSuccess(span)
	return client, nil
}

func (s *Server) validateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) (*storage.ClientRecord, error) {
	if req == nil {
		return nil, ErrInvalidRequest("missing authorization request")
	}
	if req.ResponseType == "" {
		return nil, ErrInvalidRequest("response_type is required")
	}
	if req.ResponseType != ResponseTypeCode {
		return nil, ErrUnsupportedResponseType("only response_type=code is supported")
	}
	if req.ClientID == "" {
		return nil, ErrInvalidRequest("client_id is required")
	}
	if req.RedirectURI == "" {
		return nil, ErrInvalidRequest("redirect_uri is required")
	}
	if req.State == "" {
		return nil, ErrInvalidRequest("state is required")
	}
	if len(req.State) > MaxStateLength {
		return nil, ErrInvalidRequest("state is too long")
	}

	scope, err := s.validateScope(req.Scope)
	if err != nil {
		return nil, err
	}
	req.Scope = scope

	if req.CodeChallenge == "" {
		return nil, ErrInvalidRequest("code_challenge is required")
	}
	// an omitted method means plain (RFC 7636 4.3), which is not supported
	if req.CodeChallengeMethod == "" {
		return nil, ErrInvalidRequest("code_challenge_method is required and must be S256")
	}
	if !ValidateChallenge(req.CodeChallenge, req.CodeChallengeMethod) {
		return nil, ErrInvalidRequest("code_challenge must be a base64url SHA-256 digest and code_challenge_method must be S256")
	}

	client, err := s.FindClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return nil, ErrInvalidRequest("unknown client_id")
		}
		return nil, err
	}

	if !MatchRedirectURI(client.RedirectURIPattern, req.RedirectURI) {
		s.Auditor.LogEvent(security.Event{
			Type:     security.EventInvalidRedirect,
			ClientID: client.ClientID,
			Details: map[string]any{
				"redirect_uri": util.SafeTruncate(req.RedirectURI, 128),
			},
		})
		return nil, ErrInvalidRequest("redirect_uri does not match the registered pattern")
	}

	return client, nil
}

// CompleteAuthorization runs the login step of a rendered request. A request
// that no longer validates returns an error and must not be redirected. A
// refused login or a directory failure is redirected as an OAuth error with
// the original state; a successful login is redirected with a fresh code.
func (s *Server) CompleteAuthorization(ctx context.Context, req *AuthorizationRequest, username, password, clientIP string) (*AuthorizationResult, error) {
	if req == nil {
		return nil, ErrInvalidRequest("missing authorization request")
	}

	ctx, span := s.tracer.Start(ctx, "server.CompleteAuthorization")
	defer span.End()

	client, err := s.validateAuthorizationRequest(ctx, req)
	if err != nil {
		recordError(span, err)
		s.recordAuthorizationOutcome(ctx, req.ClientID, StateRejected, "invalid_request")
		return nil, err
	}
	instrumentation.AddFlowAttributes(span, client.ClientID, "", req.Scope)

	s.sweepCodes(ctx)

	if username == "" || password == "" {
		return s.rejectAuthorization(ctx, req, ErrorCodeAccessDenied, providers.FailureBadCredentials, username, clientIP), nil
	}

	authCtx, cancel := s.withStoreTimeout(ctx)
	result, err := s.identity.Authenticate(authCtx, username, password)
	cancel()
	if err != nil {
		failure := s.storeFailure(ctx, err, "authenticate", client.ClientID)
		recordError(span, err)
		s.recordAuthorizationOutcome(ctx, client.ClientID, StateRejected, failure.Code)
		return &AuthorizationResult{
			State:       StateRejected,
			RedirectURL: errorRedirect(req, failure.Code, failure.Description),
		}, nil
	}

	if !result.OK() {
		reason := result.Failure
		if reason == "" {
			reason = providers.FailureBadCredentials
		}
		return s.rejectAuthorization(ctx, req, ErrorCodeAccessDenied, reason, username, clientIP), nil
	}

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrAuthorizeStep, string(StateAuthenticated)))

	code := generateRandomToken()
	pending := &storage.PendingAuthorization{
		ClientID:            client.ClientID,
		RedirectURI:         req.RedirectURI,
		Scope:               req.Scope,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		SubjectAccountID:    result.AccountID,
		Nonce:               req.Nonce,
		AuthTime:            s.now(),
	}
	if err := s.codes.Put(code, pending); err != nil {
		s.Logger.ErrorContext(ctx, "Failed to store authorization code",
			"client_id", client.ClientID,
			"error", err)
		recordError(span, err)
		s.recordAuthorizationOutcome(ctx, client.ClientID, StateRejected, ErrorCodeServerError)
		return &AuthorizationResult{
			State:       StateRejected,
			RedirectURL: errorRedirect(req, ErrorCodeServerError, "internal server error"),
		}, nil
	}

	s.Auditor.LogEvent(security.Event{
		Type:      security.EventAuthorizationGranted,
		AccountID: result.AccountID,
		ClientID:  client.ClientID,
		IPAddress: clientIP,
		Details:   map[string]any{"scope": req.Scope},
	})
	s.Logger.DebugContext(ctx, "Issued authorization code",
		"client_id", client.ClientID,
		"code_prefix", util.SafeTruncate(code, 8))

	instrumentation.SetSpanAttributes(span, attribute.String(instrumentation.AttrAuthorizeStep, string(StateGranted)))
	instrumentation.SetSpanSuccess(span)
	s.recordAuthorizationOutcome(ctx, client.ClientID, StateGranted, "")

	q := url.Values{}
	q.Set("code", code)
	q.Set("state", req.State)
	return &AuthorizationResult{
		State:       StateGranted,
		RedirectURL: appendQuery(req.RedirectURI, q),
		AccountID:   result.AccountID,
	}, nil
}

func (s *Server) rejectAuthorization(ctx context.Context, req *AuthorizationRequest, code string, reason providers.FailureReason, username, clientIP string) *AuthorizationResult {
	s.Auditor.LogAuthorizationDenied(username, req.ClientID, clientIP, string(reason))
	s.Logger.InfoContext(ctx, "Authorization denied",
		"client_id", req.ClientID,
		"reason", string(reason))
	s.recordAuthorizationOutcome(ctx, req.ClientID, StateRejected, string(reason))
	instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx),
		attribute.String(instrumentation.AttrAuthorizeStep, string(StateRejected)),
		attribute.String(instrumentation.AttrFailureReason, string(reason)))

	return &AuthorizationResult{
		State:       StateRejected,
		RedirectURL: errorRedirect(req, code, reason.Description()),
		Failure:     reason,
	}
}

func (s *Server) recordAuthorizationOutcome(ctx context.Context, clientID string, state AuthorizeState, reason string) {
	if s.metrics != nil {
		s.metrics.RecordAuthorizationOutcome(ctx, clientID, string(state), reason)
	}
}

func errorRedirect(req *AuthorizationRequest, code, description string) string {
	q := url.Values{}
	q.Set("error", code)
	if description != "" {
		q.Set("error_description", description)
	}
	q.Set("state", req.State)
	return appendQuery(req.RedirectURI, q)
}

// appendQuery adds params to target, keeping any query it already has
func appendQuery(target string, params url.Values) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
