package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentimenta/dashclient"
	"github.com/sentimenta/dashclient/api"
	"github.com/sentimenta/dashclient/internal/devapi"
	"github.com/sentimenta/dashclient/jwt"
)

type env struct {
	dev     *devapi.Server
	credDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("cli-test-secret-000"),
	})
	require.NoError(t, err)

	dev, err := devapi.New(devapi.Config{Tokens: tokens, StreamInterval: 5 * time.Millisecond, StepInterval: 5 * time.Millisecond})
	require.NoError(t, err)
	name := "Ana"
	dev.AddUser(api.Identity{ID: "u1", Email: "ana@example.com", Name: &name, Plan: "pro"})
	srv := httptest.NewServer(dev)
	t.Cleanup(func() {
		srv.Close()
		_ = dev.Close()
	})

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("NO_COLOR", "1")
	t.Setenv("SENTIMENTA_API_URL", srv.URL+devapi.BasePath)
	t.Setenv("SENTIMENTA_SESSION_BACKEND", "file")
	t.Setenv("SENTIMENTA_SESSION_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("SENTIMENTA_POLL_INTERVAL", "5ms")
	return &env{dev: dev, credDir: dir}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCommand(WithOutput(&out, &errOut), WithEnvFiles())
	cmd.SetArgs(append(args, "--no-color"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (e *env) login(t *testing.T) {
	t.Helper()
	access, refresh, err := e.dev.IssueFor("u1")
	require.NoError(t, err)
	out, _, err := execute(t, "session", "set", "--access", access, "--refresh", refresh)
	require.NoError(t, err)
	assert.Contains(t, out, "[OK] Session stored")
}

func TestSessionLifecycle(t *testing.T) {
	e := newEnv(t)

	_, errOut, err := execute(t, "session", "show")
	require.NoError(t, err)
	assert.Contains(t, errOut, "No session stored")

	e.login(t)

	info, err := os.Stat(filepath.Join(e.credDir, "credentials"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	out, _, err := execute(t, "session", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "u1")
	assert.Contains(t, out, "ana@example.com")
	assert.NotContains(t, out, "expired")
	assert.Contains(t, out, filepath.Join(e.credDir, "credentials"))
	assert.Regexp(t, `encrypted\W+no`, out)

	out, _, err = execute(t, "session", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Session cleared")

	_, _, err = execute(t, "whoami")
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestSessionSetRequiresBothTokens(t *testing.T) {
	newEnv(t)
	_, _, err := execute(t, "session", "set", "--access", "only")
	require.Error(t, err)
}

func TestWhoami(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := execute(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Ana")
	assert.Contains(t, out, "pro")
}

func TestWhoamiClearsRejectedSession(t *testing.T) {
	newEnv(t)
	_, _, err := execute(t, "session", "set", "--access", "forged", "--refresh", "forged")
	require.NoError(t, err)

	_, _, err = execute(t, "whoami")
	assert.ErrorIs(t, err, ErrNotSignedIn)

	_, errOut, err := execute(t, "session", "show")
	require.NoError(t, err)
	assert.Contains(t, errOut, "No session stored", "a rejected credential is removed")
}

func TestRunsAndWatchPlain(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	run := e.dev.CreateRun("u1", "conn-1", devapi.RunPlan{Posts: 1, Comments: 3, AnalyzePerStep: 1})

	out, _, err := execute(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, run.ID)

	out, _, err = execute(t, "watch", run.ID, "--plain")
	require.NoError(t, err)
	assert.Contains(t, out, "%] ")
	assert.Contains(t, out, "[OK] Done!")
}

func TestWatchFailedRunReturnsError(t *testing.T) {
	e := newEnv(t)
	e.login(t)
	run := e.dev.CreateRun("u1", "", devapi.RunPlan{Posts: 1, Comments: 5, AnalyzePerStep: 1, FailAfter: 2, FailNote: "quota exceeded"})

	_, errOut, err := execute(t, "watch", run.ID, "--plain")
	require.Error(t, err)
	assert.Contains(t, errOut, "quota exceeded")
}

func TestWatchWithoutSession(t *testing.T) {
	e := newEnv(t)
	run := e.dev.CreateRun("u1", "", devapi.DefaultPlan)

	_, _, err := execute(t, "watch", run.ID, "--plain")
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestSyncWatch(t *testing.T) {
	e := newEnv(t)
	e.login(t)

	out, _, err := execute(t, "sync", "conn-7", "--watch")
	require.NoError(t, err)
	assert.Contains(t, out, "[OK]")
	assert.Contains(t, out, "Done!")
}

func TestLoadConfigFromEnvFileAndYAML(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SENTIMENTA_REDIS_PREFIX=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("SENTIMENTA_REDIS_PREFIX") })
	require.NoError(t, loadEnvFiles(envFile, filepath.Join(dir, "missing.env")))

	cfgFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("api_url: https://api.example.com/api/v1/\nsession_backend: memory\nlog_level: debug\n"), 0o600))

	cfg, err := loadConfig(viper.New(), cfgFile)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/api/v1", cfg.API.BaseURL)
	assert.Equal(t, dashclient.SessionMemory, cfg.Session.Backend)
	assert.Equal(t, "from-dotenv", cfg.Session.RedisPrefix)
	assert.Equal(t, "debug", cfg.LogLevel)

	t.Setenv("SENTIMENTA_SESSION_BACKEND", "floppy")
	_, err = loadConfig(viper.New(), cfgFile)
	require.Error(t, err)
}
