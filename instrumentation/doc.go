// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization server.
//
// Instrumentation is optional. With Enabled=false every provider is a no-op.
// With MetricsExporter="prometheus" metrics are exported through the OTel
// Prometheus exporter and served by MetricsHandler:
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		Enabled:         true,
//		MetricsExporter: instrumentation.MetricsExporterPrometheus,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//	mux.Handle("/metrics", inst.MetricsHandler())
//
// # Available Metrics
//
// HTTP:
//   - oidc.http.requests.total{method, endpoint, status}
//   - oidc.http.request.duration{endpoint}
//
// Flows:
//   - oidc.authorization.outcome{client_id, state, reason}
//   - oidc.code.exchanged{client_id, id_token}
//   - oidc.token.refreshed{client_id}
//   - oidc.token.revoked{client_id, written}
//   - oidc.code.sweeps, oidc.code.swept
//
// Security:
//   - oidc.rate_limit.exceeded{endpoint}
//   - oidc.pkce.validation_failed{client_id}
//   - oidc.code.reuse_detected
//   - oidc.audit.events.total{event_type}
//
// Storage:
//   - storage.operation.total{backend, operation, result}
//   - storage.operation.duration{backend, operation}
//   - storage.clients.count, storage.pending_codes.count, storage.revoked.count
//
// Span attributes never carry codes, tokens or secrets.
package instrumentation
