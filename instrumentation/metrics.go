package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments of the authorization server
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// Flows
	AuthorizationOutcome metric.Int64Counter
	CodeExchanged        metric.Int64Counter
	TokenRefreshed       metric.Int64Counter
	TokenRevoked         metric.Int64Counter
	CodeSweeps           metric.Int64Counter
	CodesSwept           metric.Int64Counter

	// Security
	RateLimitExceeded    metric.Int64Counter
	PKCEValidationFailed metric.Int64Counter
	CodeReuseDetected    metric.Int64Counter
	AuditEventsTotal     metric.Int64Counter

	// Storage
	StorageOperationTotal    metric.Int64Counter
	StorageOperationDuration metric.Float64Histogram
	StorageClientsCount      metric.Int64ObservableGauge
	StoragePendingCodesCount metric.Int64ObservableGauge
	StorageRevokedCount      metric.Int64ObservableGauge
}

type counterSpec struct {
	target *metric.Int64Counter
	meter  metric.Meter
	name   string
	desc   string
	unit   string
}

// newMetrics creates and registers all metric instruments
func newMetrics(inst *Instrumentation) (*Metrics, error) {
	m := &Metrics{}

	httpMeter := inst.Meter("http")
	serverMeter := inst.Meter("server")
	securityMeter := inst.Meter("security")
	storageMeter := inst.Meter("storage")

	counters := []counterSpec{
		{&m.HTTPRequestsTotal, httpMeter, "oidc.http.requests.total", "Total number of HTTP requests", "{request}"},
		{&m.AuthorizationOutcome, serverMeter, "oidc.authorization.outcome", "Authorization requests by terminal state", "{request}"},
		{&m.CodeExchanged, serverMeter, "oidc.code.exchanged", "Authorization codes exchanged for tokens", "{exchange}"},
		{&m.TokenRefreshed, serverMeter, "oidc.token.refreshed", "Access tokens issued from a refresh token", "{refresh}"},
		{&m.TokenRevoked, serverMeter, "oidc.token.revoked", "Revocation requests by result", "{revocation}"},
		{&m.CodeSweeps, serverMeter, "oidc.code.sweeps", "Authorization code store sweeps executed", "{sweep}"},
		{&m.CodesSwept, serverMeter, "oidc.code.swept", "Expired authorization codes removed by sweeps", "{code}"},
		{&m.RateLimitExceeded, securityMeter, "oidc.rate_limit.exceeded", "Rate limit violations", "{violation}"},
		{&m.PKCEValidationFailed, securityMeter, "oidc.pkce.validation_failed", "PKCE verifier mismatches", "{failure}"},
		{&m.CodeReuseDetected, securityMeter, "oidc.code.reuse_detected", "Exchanges of unknown or consumed codes", "{attempt}"},
		{&m.AuditEventsTotal, securityMeter, "oidc.audit.events.total", "Audit events by type", "{event}"},
		{&m.StorageOperationTotal, storageMeter, "storage.operation.total", "Storage operations by result", "{operation}"},
	}

	for _, c := range counters {
		counter, err := c.meter.Int64Counter(c.name,
			metric.WithDescription(c.desc),
			metric.WithUnit(c.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.target = counter
	}

	var err error
	m.HTTPRequestDuration, err = httpMeter.Float64Histogram(
		"oidc.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.StorageOperationDuration, err = storageMeter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.operation.duration histogram: %w", err)
	}

	m.StorageClientsCount, err = storageMeter.Int64ObservableGauge(
		"storage.clients.count",
		metric.WithDescription("Registered clients held in memory"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.clients.count gauge: %w", err)
	}

	m.StoragePendingCodesCount, err = storageMeter.Int64ObservableGauge(
		"storage.pending_codes.count",
		metric.WithDescription("Authorization codes awaiting exchange"),
		metric.WithUnit("{code}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.pending_codes.count gauge: %w", err)
	}

	m.StorageRevokedCount, err = storageMeter.Int64ObservableGauge(
		"storage.revoked.count",
		metric.WithDescription("Revocation ledger entries held in memory"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage.revoked.count gauge: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, endpoint string, statusCode int, durationMs float64) {
	m.HTTPRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", statusCode),
	))
	m.HTTPRequestDuration.Record(ctx, durationMs, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

// RecordAuthorizationOutcome records the terminal state of an authorization request
// ("granted", "rejected") and, for rejections, the reason.
func (m *Metrics) RecordAuthorizationOutcome(ctx context.Context, clientID, state, reason string) {
	m.AuthorizationOutcome.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.String("state", state),
		attribute.String("reason", reason),
	))
}

// RecordCodeExchange records an authorization code exchange
func (m *Metrics) RecordCodeExchange(ctx context.Context, clientID string, idToken bool) {
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("id_token", idToken),
	))
}

// RecordTokenRefresh records a refresh_token grant
func (m *Metrics) RecordTokenRefresh(ctx context.Context, clientID string) {
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordTokenRevocation records a revocation request; written is false when
// the request was acknowledged without a ledger write.
func (m *Metrics) RecordTokenRevocation(ctx context.Context, clientID string, written bool) {
	m.TokenRevoked.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
		attribute.Bool("written", written),
	))
}

// RecordCodeSweep records one sweep of the authorization code store
func (m *Metrics) RecordCodeSweep(ctx context.Context, removed int) {
	m.CodeSweeps.Add(ctx, 1)
	m.CodesSwept.Add(ctx, int64(removed))
}

// RecordRateLimitExceeded records a rate limit violation
func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, endpoint string) {
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
	))
}

// RecordPKCEValidationFailed records a PKCE validation failure
func (m *Metrics) RecordPKCEValidationFailed(ctx context.Context, clientID string) {
	m.PKCEValidationFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("client_id", clientID),
	))
}

// RecordCodeReuseDetected records an exchange of an unknown or consumed code
func (m *Metrics) RecordCodeReuseDetected(ctx context.Context) {
	m.CodeReuseDetected.Add(ctx, 1)
}

// RecordAuditEvent records an audit event
func (m *Metrics) RecordAuditEvent(ctx context.Context, eventType string) {
	m.AuditEventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
	))
}

// RecordStorageOperation records a storage operation
func (m *Metrics) RecordStorageOperation(ctx context.Context, backend, operation, result string, durationMs float64) {
	m.StorageOperationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
	m.StorageOperationDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
	))
}
