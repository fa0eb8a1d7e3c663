package app

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oauth "github.com/giantswarm/player-oidc"
	"github.com/giantswarm/player-oidc/internal/testutil"
	"github.com/giantswarm/player-oidc/server"
	"github.com/giantswarm/player-oidc/storage"
)

const testAccounts = `
accounts:
  - id: acc-steve
    name: Steve
    registered: true
  - id: acc-alex
    name: Alex
`

// setupEnv points the configuration at a fresh temp directory
func setupEnv(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()

	accounts := filepath.Join(dir, "accounts.yaml")
	require.NoError(t, os.WriteFile(accounts, []byte(testAccounts), 0o600))

	t.Setenv(oauth.EnvPrefix+"ISSUER", "https://auth.example.com")
	t.Setenv(oauth.EnvPrefix+"ACCOUNTS_FILE", accounts)
	t.Setenv(oauth.EnvPrefix+"SIGNING_KEY_PATH", filepath.Join(dir, "signing-key.pem"))
	t.Setenv(oauth.EnvPrefix+"STORAGE_BACKEND", backend)
	t.Setenv(oauth.EnvPrefix+"STORAGE_SQLITE_PATH", filepath.Join(dir, "player-oidc.db"))
	t.Setenv(oauth.EnvPrefix+"LOG_LEVEL", "error")
	return dir
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func loadTestConfig(t *testing.T) *oauth.Config {
	t.Helper()
	cfg, err := oauth.LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	return cfg
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version+"\n", out)
}

func TestClientCmd_Lifecycle(t *testing.T) {
	setupEnv(t, oauth.StorageSQLite)

	out, err := runCmd(t, "client", "register",
		"--owner", "steve",
		"--name", "Stats Site",
		"--redirect-pattern", "https://stats.example.com/callback")
	require.NoError(t, err)

	idMatch := regexp.MustCompile(`client_id:\s+(\S+)`).FindStringSubmatch(out)
	require.Len(t, idMatch, 2, "output: %s", out)
	clientID := idMatch[1]
	assert.Regexp(t, `client_secret:\s+\S+`, out)

	out, err = runCmd(t, "client", "list", "--owner", "Steve")
	require.NoError(t, err)
	assert.Contains(t, out, clientID)
	assert.Contains(t, out, "Stats Site")
	assert.Contains(t, out, "confidential")

	// other players do not see the client
	out, err = runCmd(t, "client", "list", "--owner", "Alex")
	require.NoError(t, err)
	assert.NotContains(t, out, clientID)
	_, err = runCmd(t, "client", "delete", clientID, "--owner", "Alex")
	require.Error(t, err)

	_, err = runCmd(t, "client", "update", clientID, "--owner", "Steve", "--name", "Stats")
	require.NoError(t, err)

	out, err = runCmd(t, "client", "rotate-secret", clientID, "--owner", "Steve")
	require.NoError(t, err)
	assert.Regexp(t, `^client_secret: \S+\n$`, out)

	out, err = runCmd(t, "client", "list", "--owner", "Steve")
	require.NoError(t, err)
	assert.Contains(t, out, "Stats ")
	assert.Contains(t, out, "https://stats.example.com/callback")

	_, err = runCmd(t, "client", "delete", clientID, "--owner", "Steve")
	require.NoError(t, err)

	out, err = runCmd(t, "client", "list", "--owner", "Steve")
	require.NoError(t, err)
	assert.NotContains(t, out, clientID)
}

func TestClientCmd_PublicClientHasNoSecret(t *testing.T) {
	setupEnv(t, oauth.StorageSQLite)

	out, err := runCmd(t, "client", "register",
		"--owner", "Steve",
		"--name", "Launcher",
		"--type", "public",
		"--redirect-pattern", `regex:http://127\.0\.0\.1:\d+/callback`)
	require.NoError(t, err)
	assert.NotContains(t, out, "client_secret")
}

func TestClientCmd_Errors(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		args    []string
		wantErr string
	}{
		{
			name:    "memory backend",
			backend: oauth.StorageMemory,
			args:    []string{"client", "list", "--owner", "Steve"},
			wantErr: "storage backend",
		},
		{
			name:    "unknown owner",
			backend: oauth.StorageSQLite,
			args:    []string{"client", "list", "--owner", "Herobrine"},
			wantErr: "Herobrine",
		},
		{
			name:    "missing owner",
			backend: oauth.StorageSQLite,
			args:    []string{"client", "list"},
			wantErr: "owner",
		},
		{
			name:    "update without changes",
			backend: oauth.StorageSQLite,
			args:    []string{"client", "update", "some-id", "--owner", "Steve"},
			wantErr: "nothing to update",
		},
		{
			name:    "invalid redirect pattern",
			backend: oauth.StorageSQLite,
			args:    []string{"client", "register", "--owner", "Steve", "--name", "x", "--redirect-pattern", "regex:("},
			wantErr: "invalid_request",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupEnv(t, tt.backend)
			_, err := runCmd(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRuntime_MemoryWithMetrics(t *testing.T) {
	setupEnv(t, oauth.StorageMemory)
	t.Setenv(oauth.EnvPrefix+"METRICS_ENABLED", "true")
	cfg := loadTestConfig(t)

	rt, err := newRuntime(context.Background(), cfg, testutil.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	assert.NotNil(t, rt.memStore)
	assert.Empty(t, rt.checks)
	assert.NotNil(t, rt.limiter)

	routes := rt.handler().Routes()

	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.PathHealth, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, rt.codes.Put("code-1", &storage.PendingAuthorization{ClientID: "client-1"}))

	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// each gauge is registered once, by the store that owns it
	samples := metricSamples(rec.Body.String())
	for _, name := range []string{"storage_clients_count", "storage_pending_codes_count", "storage_revoked_count"} {
		assert.Len(t, samples[name], 1, "samples of %s", name)
	}
	assert.Equal(t, []string{"1"}, samples["storage_pending_codes_count"])
}

// metricSamples maps metric names of a Prometheus text exposition to their
// sample values
func metricSamples(body string) map[string][]string {
	samples := make(map[string][]string)
	for _, line := range strings.Split(body, "\n") {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name, _, _ := strings.Cut(fields[0], "{")
		samples[name] = append(samples[name], fields[len(fields)-1])
	}
	return samples
}

func TestRuntime_RedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	setupEnv(t, oauth.StorageRedis)
	t.Setenv(oauth.EnvPrefix+"STORAGE_REDIS_URL", "redis://"+mr.Addr())
	cfg := loadTestConfig(t)

	rt, err := newRuntime(context.Background(), cfg, testutil.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })

	assert.Contains(t, rt.checks, "sqlite")
	assert.Contains(t, rt.checks, "redis")

	routes := rt.handler().Routes()
	rec := httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.PathHealth, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	mr.Close()
	rec = httptest.NewRecorder()
	routes.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, server.PathHealth, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRuntime_ReusesSigningKey(t *testing.T) {
	setupEnv(t, oauth.StorageMemory)
	cfg := loadTestConfig(t)

	first, err := newRuntime(context.Background(), cfg, testutil.DiscardLogger())
	require.NoError(t, err)
	require.NoError(t, first.Close(context.Background()))

	second, err := newRuntime(context.Background(), cfg, testutil.DiscardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close(context.Background()) })

	assert.Equal(t, first.server.Keys().KeyID(), second.server.Keys().KeyID())
}

func TestRuntime_MissingAccountsFile(t *testing.T) {
	dir := setupEnv(t, oauth.StorageMemory)
	t.Setenv(oauth.EnvPrefix+"ACCOUNTS_FILE", filepath.Join(dir, "nope.yaml"))
	cfg := loadTestConfig(t)

	_, err := newRuntime(context.Background(), cfg, testutil.DiscardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accounts")
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		format string
		want   string
	}{
		{format: "json", want: `"msg":"hello"`},
		{format: "text", want: "msg=hello"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&oauth.Config{LogFormat: tt.format, LogLevel: "info"}, &buf)
			require.NoError(t, err)
			logger.Info("hello")
			logger.Debug("hidden")
			assert.Contains(t, buf.String(), tt.want)
			assert.False(t, strings.Contains(buf.String(), "hidden"))
		})
	}
}
