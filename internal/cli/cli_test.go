package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stagecal/stagecal/internal/config"
	"github.com/stagecal/stagecal/internal/logging"
	"github.com/stagecal/stagecal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command against a fresh SQLite file and returns
// stdout. Global flags are package state, so each run starts from zero.
func runCLI(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	InitCLI()
	globalFlags = GlobalFlags{Config: filepath.Join(t.TempDir(), "missing.yaml")}
	exportFlags.Out = "-"

	var out, errOut bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&errOut)
	t.Cleanup(func() {
		RootCmd.SetOut(nil)
		RootCmd.SetErr(nil)
		RootCmd.SetArgs(nil)
	})

	full := append([]string{"--config", globalFlags.Config, "--db", dbPath}, args...)
	err := Execute(full)
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	assert.NotNil(t, RootCmd)
	assert.Equal(t, "stagecal", RootCmd.Use)
	assert.Contains(t, RootCmd.Long, "Zoho CRM")

	names := map[string]bool{}
	for _, c := range RootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "status", "export", "doctor"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestGetVersionInfo(t *testing.T) {
	info := GetVersionInfo()
	assert.Equal(t, Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.OS)
	assert.NotEmpty(t, info.Arch)
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, filepath.Join(t.TempDir(), "v.db"), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stagecal Version: "+Version)
}

func TestStatusCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "stagecal.db")

	out, err := runCLI(t, db, "status", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No statuses defined.")

	out, err = runCLI(t, db, "status", "add", "Confirmado", "#00ff00")
	require.NoError(t, err)
	assert.Contains(t, out, "Created status st-")

	out, err = runCLI(t, db, "--json", "status", "list")
	require.NoError(t, err)
	var statuses []models.Status
	require.NoError(t, json.Unmarshal([]byte(out), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "Confirmado", statuses[0].Name)
	assert.Equal(t, "#00ff00", statuses[0].Color)

	out, err = runCLI(t, db, "status", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, statuses[0].ID)

	out, err = runCLI(t, db, "status", "delete", statuses[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted status "+statuses[0].ID)

	_, err = runCLI(t, db, "status", "delete", statuses[0].ID)
	require.Error(t, err)
}

func TestStatusAddValidates(t *testing.T) {
	_, err := runCLI(t, filepath.Join(t.TempDir(), "s.db"), "status", "add", "Hold", " ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "color")
}

func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "stagecal.db")

	cfg := config.Default()
	cfg.Store.Path = db
	a, err := newApp(cfg, logging.Discard())
	require.NoError(t, err)

	ctx := context.Background()
	name, color := "Hold", "#ffcc00"
	st, err := a.service.CreateStatus(ctx, models.StatusInput{Name: &name, Color: &color})
	require.NoError(t, err)

	var in models.EventInput
	require.NoError(t, json.Unmarshal([]byte(`{
		"start_date": "2026-03-14", "start_time": "2026-03-14T20:00:00Z",
		"end_date": "2026-03-14", "end_time": "2026-03-14T23:00:00Z",
		"event_name": "Gala", "artist_name": "Los Rayos", "venue": "Teatro", "city": "Madrid",
		"status": "`+st.ID+`"
	}`), &in))
	ev, err := a.service.CreateEvent(ctx, nil, in)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	out, err := runCLI(t, db, "export")
	require.NoError(t, err)
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "UID:local-"+ev.ID+"@stagecal")
	assert.Contains(t, out, "SUMMARY:Gala")

	file := filepath.Join(dir, "out.ics")
	out, err = runCLI(t, db, "export", "--out", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported 1 event(s)")

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "BEGIN:VCALENDAR"))
}

func TestDoctorJSON(t *testing.T) {
	out, err := runCLI(t, filepath.Join(t.TempDir(), "d.db"), "--json", "doctor")
	require.NoError(t, err)

	var report DoctorReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))

	byName := map[string]DoctorCheck{}
	for _, c := range report.Checks {
		byName[c.Name] = c
	}
	assert.Equal(t, checkWarn, byName["Config File"].Status)
	assert.Equal(t, checkOK, byName["Store"].Status)
	assert.Equal(t, checkFail, byName["Zoho OAuth"].Status)
	assert.Equal(t, "disabled", byName["NATS"].Message)
	assert.Equal(t, checkWarn, byName["CORS"].Status, "no origins configured")
	assert.NotEmpty(t, report.Recommendations)
}

func TestDoctorTable(t *testing.T) {
	out, err := runCLI(t, filepath.Join(t.TempDir(), "d.db"), "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "=== stagecal Doctor Report ===")
	assert.Contains(t, out, "--- Change Feed ---")
	assert.Contains(t, out, "✗ Zoho OAuth:")
}

func TestGenerateRecommendations(t *testing.T) {
	healthy := generateRecommendations([]DoctorCheck{{Status: checkOK}})
	assert.Equal(t, []string{"System is healthy. No recommendations needed."}, healthy)

	recs := generateRecommendations([]DoctorCheck{
		{Category: "Dependencies", Name: "Store", Status: checkFail, Remediation: "fix it"},
		{Status: checkWarn},
	})
	require.Len(t, recs, 2)
	assert.Equal(t, "[Dependencies] Store: fix it", recs[0])
	assert.Contains(t, recs[1], "1 critical issue(s) and 1 warning(s)")
}

func TestBuildFeedSkipsUnreachableNATS(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewLogger(logging.WithOutput(&buf), logging.WithLevel(logging.LevelWarn))

	feed := buildFeed(config.ChangeFeedConfig{
		NATS: config.NATSConfig{URL: "nats://127.0.0.1:1", SubjectPrefix: "bookings"},
	}, logger)
	require.NotNil(t, feed)
	assert.Equal(t, "bookings.event.created", feed.Topic("event", "created"))
	assert.Contains(t, buf.String(), "nats change feed disabled")
	assert.NoError(t, feed.Close())
}

func TestApplyServeFlags(t *testing.T) {
	defer func() { serveFlags.Host, serveFlags.Port, serveFlags.Timeout, serveFlags.TLS = "", 0, 0, false }()
	serveFlags.Host = "0.0.0.0"
	serveFlags.Port = 9090
	serveFlags.Timeout = 5 * time.Second
	serveFlags.TLS = true

	cfg := config.Default()
	applyServeFlags(cfg)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, 5*time.Second, shutdownTimeout(cfg))
	assert.True(t, cfg.Server.TLS.Enabled)
}

func TestValidateTLSConfig(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(key, []byte("key"), 0o600))

	assert.Error(t, validateTLSConfig(config.TLSConfig{Enabled: true}))
	assert.Error(t, validateTLSConfig(config.TLSConfig{CertFile: cert, KeyFile: filepath.Join(dir, "nope")}))
	assert.Error(t, validateTLSConfig(config.TLSConfig{CertFile: cert, KeyFile: key, MinVersion: "1.1"}))
	assert.NoError(t, validateTLSConfig(config.TLSConfig{CertFile: cert, KeyFile: key, MinVersion: "1.2"}))
}

func TestEnvDuration(t *testing.T) {
	t.Setenv("STAGECAL_TEST_DURATION", "45s")
	assert.Equal(t, 45*time.Second, envDuration("STAGECAL_TEST_DURATION", time.Second))

	t.Setenv("STAGECAL_TEST_DURATION", "soon")
	assert.Equal(t, time.Second, envDuration("STAGECAL_TEST_DURATION", time.Second))
}

func TestCheckConfigurationCORS(t *testing.T) {
	cors := func(origins ...string) DoctorCheck {
		cfg := config.Default()
		cfg.API.CORS.Origins = origins
		for _, c := range checkConfiguration(cfg) {
			if c.Name == "CORS" {
				return c
			}
		}
		t.Fatal("no CORS check")
		return DoctorCheck{}
	}

	assert.Equal(t, checkWarn, cors().Status)
	wildcard := cors("*")
	assert.Equal(t, checkWarn, wildcard.Status)
	assert.Equal(t, "high", wildcard.Severity)
	assert.Equal(t, checkOK, cors("http://localhost:4200").Status)
}
