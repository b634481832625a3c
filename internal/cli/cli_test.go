package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-wisp/anti-phishing/internal/config"
	"github.com/p-wisp/anti-phishing/internal/engine"
	"github.com/p-wisp/anti-phishing/internal/features"
	"github.com/p-wisp/anti-phishing/internal/repository"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRoot("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestParseDOMFlags(t *testing.T) {
	rec, err := parseDOMFlags([]string{"hidden_count=6", "ratio = 0.5", "has_login=true"})
	require.NoError(t, err)
	assert.Equal(t, features.Int(6), rec[features.HiddenCount])
	assert.Equal(t, features.Float(0.5), rec["ratio"])
	assert.Equal(t, features.Bool(true), rec["has_login"])

	for _, bad := range []string{"novalue", "=3", "x=abc"} {
		_, err := parseDOMFlags([]string{bad})
		assert.Error(t, err, bad)
	}

	rec, err = parseDOMFlags(nil)
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestScoreCmd(t *testing.T) {
	out, err := execute(t, "score", "http://192.168.0.1/a/b/c/d")
	require.NoError(t, err)

	var v scoreOutput
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "phishing", string(v.Label))
	assert.InDelta(t, 0.75, v.Probability, 1e-9)
	assert.Equal(t, []string{"dot_count=3", "path_depth=4", "has_ip_host=True"}, v.Reasons)
}

func TestScoreCmd_HTMLAndOverrides(t *testing.T) {
	page := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(page, []byte(strings.Repeat(`<input type="hidden">`, 2)), 0644))

	out, err := execute(t, "score", "http://example.com", "--html", page, "--dom", "hidden_count=7", "--features")
	require.NoError(t, err)

	var v map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, []any{"hidden_count=7"}, v["reasons"])

	feats, ok := v["features"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 7, feats["dom_hidden_count"])
	assert.EqualValues(t, 2, feats["dom_input_count"])
}

func TestScoreCmd_Errors(t *testing.T) {
	_, err := execute(t, "score")
	assert.Error(t, err)

	_, err = execute(t, "score", "http://a.test", "--dom", "bad")
	assert.Error(t, err)

	_, err = execute(t, "score", "http://a.test", "--html", filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}

func writeConfig(t *testing.T, dir, feedURL string) string {
	t.Helper()
	yml := fmt.Sprintf(`app:
  log_level: error
store:
  path: %s
feeds:
  update_interval_hours: 0
  timeout_seconds: 5
  sources:
    - name: test_list
      url: %s
      format: text
lists:
  blacklist:
    - manual.test
  whitelist:
    - good.test
`, filepath.Join(dir, "lists.db"), feedURL)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))
	return path
}

func TestUpdateCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("evil.test\nhttp://good.test/login\n"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	out, err := execute(t, "update", "--config", writeConfig(t, dir, srv.URL))
	require.NoError(t, err)
	assert.Contains(t, out, "test_list")
	assert.Contains(t, out, "ok")

	db := &repository.ListDB{}
	require.NoError(t, db.InitDB(filepath.Join(dir, "lists.db")))
	defer db.Close()

	blocked, err := db.BlockedDomains()
	require.NoError(t, err)
	// good.test is on the configured whitelist and drops out.
	assert.Equal(t, []string{"evil.test", "manual.test"}, blocked)
}

func TestUpdateCmd_FailedSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	out, err := execute(t, "update", "--config", writeConfig(t, t.TempDir(), srv.URL))
	assert.EqualError(t, err, "1 of 1 sources failed")
	assert.Contains(t, out, "HTTP 500")
}

func TestNewApp(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(t.TempDir(), "lists.db")
	cfg.Lists.Blacklist = []string{"manual.test"}
	cfg.Lists.Whitelist = []string{"ok.manual.test"}

	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), "test")
	require.NoError(t, err)
	defer a.db.Close()

	assert.Equal(t, engine.Blocked, a.engine.Lookup("https://login.manual.test/"))
	assert.Equal(t, engine.Allowed, a.engine.Lookup("https://ok.manual.test/"))

	rr := httptest.NewRecorder()
	a.server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/lists/block", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"urlFilter":"||manual.test"`)

	rr = httptest.NewRecorder()
	a.server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `phishguard_list_domains{list="blocked"} 1`)
	assert.Contains(t, rr.Body.String(), `phishguard_feed_entries{source="user_manual"} 2`)
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()

	debug := newLogger(config.AppConfig{LogLevel: "debug", LogFormat: "json"}, io.Discard)
	assert.True(t, debug.Enabled(ctx, slog.LevelDebug))

	warn := newLogger(config.AppConfig{LogLevel: "WARNING"}, io.Discard)
	assert.False(t, warn.Enabled(ctx, slog.LevelInfo))
	assert.True(t, warn.Enabled(ctx, slog.LevelWarn))

	var buf bytes.Buffer
	newLogger(config.AppConfig{LogFormat: "json"}, &buf).Info("hello", "k", "v")
	assert.True(t, json.Valid(buf.Bytes()), buf.String())
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Equal(t, "phishguard test\n", out)
}
