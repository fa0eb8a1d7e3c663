package server

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	providermock "github.com/giantswarm/player-oidc/providers/mock"
	"github.com/giantswarm/player-oidc/storage/memory"
)

// testServerSetup holds dependencies for constructor-level tests
type testServerSetup struct {
	store  *memory.Store
	codes  *memory.CodeStore
	logger *slog.Logger
	logBuf *bytes.Buffer
}

func newTestServerSetup() *testServerSetup {
	buf := &bytes.Buffer{}
	return &testServerSetup{
		store:  memory.New(),
		codes:  memory.NewCodeStore(DefaultCodeMaxAge, DefaultSweepInterval),
		logger: slog.New(slog.NewTextHandler(buf, nil)),
		logBuf: buf,
	}
}

func (s *testServerSetup) createServer(t *testing.T, config *Config) (*Server, error) {
	t.Helper()
	identity := providermock.NewIdentity(providermock.NewMockDirectory())
	return New(s.store, s.store, s.codes, testKeys(t), identity, config, s.logger)
}

func (s *testServerSetup) getLogs() string {
	return s.logBuf.String()
}

func TestValidateHTTPSEnforcement_HTTPS(t *testing.T) {
	issuers := []string{
		"https://auth.example.com",
		"https://localhost:8080",
		"https://auth.example.com:8443",
		"https://example.com/oidc",
	}

	for _, issuer := range issuers {
		t.Run(issuer, func(t *testing.T) {
			setup := newTestServerSetup()
			srv, err := setup.createServer(t, &Config{Issuer: issuer})
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if srv == nil {
				t.Fatal("New() returned nil")
			}
			if strings.Contains(setup.getLogs(), "WARNING: Running OAuth over HTTP") {
				t.Errorf("unexpected HTTP warning for %s", issuer)
			}
		})
	}
}

func TestValidateHTTPSEnforcement_HTTPLocalhost(t *testing.T) {
	hosts := []string{"localhost", "127.0.0.1", "127.8.9.10", "0.0.0.0", "[::1]"}

	for _, host := range hosts {
		t.Run(host, func(t *testing.T) {
			setup := newTestServerSetup()
			if _, err := setup.createServer(t, &Config{Issuer: "http://" + host + ":8080"}); err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if !strings.Contains(setup.getLogs(), "DEVELOPMENT WARNING") {
				t.Errorf("expected development warning, got: %s", setup.getLogs())
			}
		})
	}
}

func TestValidateHTTPSEnforcement_HTTPLocalhostWithFlag(t *testing.T) {
	setup := newTestServerSetup()
	if _, err := setup.createServer(t, &Config{Issuer: "http://localhost:8080", AllowInsecureHTTP: true}); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if strings.Contains(setup.getLogs(), "DEVELOPMENT WARNING") {
		t.Errorf("warning should be suppressed, got: %s", setup.getLogs())
	}
}

func TestValidateHTTPSEnforcement_HTTPNonLocalhostBlocked(t *testing.T) {
	issuers := []string{
		"http://auth.example.com",
		"http://192.168.1.10:8080",
		"http://localhost.evil.com",
	}

	for _, issuer := range issuers {
		t.Run(issuer, func(t *testing.T) {
			setup := newTestServerSetup()
			_, err := setup.createServer(t, &Config{Issuer: issuer})
			if err == nil {
				t.Fatal("New() error = nil, want HTTPS error")
			}
			if !strings.Contains(err.Error(), "must use HTTPS") {
				t.Errorf("error = %v, want HTTPS message", err)
			}
		})
	}
}

func TestValidateHTTPSEnforcement_HTTPNonLocalhostWithFlag(t *testing.T) {
	setup := newTestServerSetup()
	if _, err := setup.createServer(t, &Config{Issuer: "http://auth.internal", AllowInsecureHTTP: true}); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !strings.Contains(setup.getLogs(), "CRITICAL SECURITY WARNING") {
		t.Errorf("expected critical warning, got: %s", setup.getLogs())
	}
}

func TestValidateHTTPSEnforcement_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		issuer string
	}{
		{name: "empty", issuer: ""},
		{name: "ftp scheme", issuer: "ftp://auth.example.com"},
		{name: "relative", issuer: "/oidc"},
		{name: "query", issuer: "https://auth.example.com?x=1"},
		{name: "fragment", issuer: "https://auth.example.com#x"},
		{name: "unparseable", issuer: "https://auth example.com/%zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setup := newTestServerSetup()
			if _, err := setup.createServer(t, &Config{Issuer: tt.issuer}); err == nil {
				t.Errorf("New(%q) error = nil, want error", tt.issuer)
			}
		})
	}
}

func TestIsLocalhostHostname(t *testing.T) {
	tests := []struct {
		hostname string
		want     bool
	}{
		{"localhost", true},
		{"127.0.0.1", true},
		{"127.255.255.254", true},
		{"::1", true},
		{"[::1]", true},
		{"::ffff:127.0.0.1", true},
		{"0.0.0.0", true},
		{"example.com", false},
		{"10.0.0.1", false},
		{"localhost.example.com", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			if got := isLocalhostHostname(tt.hostname); got != tt.want {
				t.Errorf("isLocalhostHostname(%q) = %v, want %v", tt.hostname, got, tt.want)
			}
		})
	}
}

func TestValidateScope(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		scope    string
		want     string
		wantCode string
	}{
		{name: "openid", scope: "openid", want: "openid"},
		{name: "openid profile", scope: "openid profile", want: "openid profile"},
		{name: "profile only", scope: "profile", want: "profile"},
		{name: "normalized", scope: "  openid   profile openid ", want: "openid profile"},
		{name: "empty", scope: "", wantCode: ErrorCodeInvalidScope},
		{name: "whitespace", scope: "   ", wantCode: ErrorCodeInvalidScope},
		{name: "unsupported", scope: "openid email", wantCode: ErrorCodeInvalidScope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.srv.validateScope(tt.scope)
			if tt.wantCode != "" {
				assertErrorCode(t, err, tt.wantCode)
				return
			}
			if err != nil {
				t.Fatalf("validateScope() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("validateScope() = %q, want %q", got, tt.want)
			}
		})
	}
}
