package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tomlreport "github.com/bnema/coplay/internal/adapters/report/toml"
	filestore "github.com/bnema/coplay/internal/adapters/secrets/file"
	"github.com/bnema/coplay/internal/adapters/session/gateway/gatewaytest"
	"github.com/bnema/coplay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixturePassword = "hunter2"

func TestVersionPrintsBuildVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "coplay dev\n", stdout)
}

func TestCountsJSONOutput(t *testing.T) {
	home := t.TempDir()
	history := newHistoryServer(t)
	require.NoError(t, writeConfigFixture(home, history.URL, "ws://127.0.0.1:1/gateway", true))

	stdout, _, err := executeCLI(t, home, "counts", "--json")
	require.NoError(t, err)

	var out countsOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, domain.AccountID(100), out.Tracked)
	assert.Equal(t, []domain.CoPlayEntry{
		{AccountID: 200, Count: 2},
		{AccountID: 300, Count: 1},
	}, out.Counts)
}

func TestCountsRendersTableAndWritesReport(t *testing.T) {
	home := t.TempDir()
	history := newHistoryServer(t)
	require.NoError(t, writeConfigFixture(home, history.URL, "ws://127.0.0.1:1/gateway", true))
	reportPath := filepath.Join(home, "reports", "last.toml")

	stdout, _, err := executeCLI(t, home, "counts", "--report", reportPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Co-play counts for 100")
	assert.Contains(t, stdout, "accounts: 2")

	report, ok, err := tomlreport.Read(reportPath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.AccountID(100), report.Tracked)
	assert.Equal(t, domain.CoPlayCounts{200: 2, 300: 1}, report.Counts)

	stdout, _, err = executeCLI(t, home, "counts", "--report", reportPath)
	require.NoError(t, err)
	assert.Contains(t, stdout, "=")
}

func TestCountsAccountFlagOverridesConfig(t *testing.T) {
	home := t.TempDir()
	history := newHistoryServer(t)
	require.NoError(t, writeConfigFixture(home, history.URL, "ws://127.0.0.1:1/gateway", false))

	stdout, _, err := executeCLI(t, home, "counts", "--account", "100", "--json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"tracked_account": 100`)
}

func TestCountsRequiresTrackedAccount(t *testing.T) {
	home := t.TempDir()
	history := newHistoryServer(t)
	require.NoError(t, writeConfigFixture(home, history.URL, "ws://127.0.0.1:1/gateway", false))

	_, _, err := executeCLI(t, home, "counts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracked account is not configured")
}

func TestCountsReportsHistoryFailure(t *testing.T) {
	home := t.TempDir()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"maintenance"}`))
	}))
	t.Cleanup(server.Close)
	require.NoError(t, writeConfigFixture(home, server.URL, "ws://127.0.0.1:1/gateway", true))

	_, _, err := executeCLI(t, home, "counts")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrHistoryFetch)
}

func TestSyncRenamesStaleNicknames(t *testing.T) {
	home := t.TempDir()
	history := newHistoryServer(t)
	gw := newGatewayFixture(t)
	require.NoError(t, writeConfigFixture(home, history.URL, gw.WebsocketURL(), true))
	t.Setenv("COPLAY_SESSION_PASSWORD", fixturePassword)

	stdout, _, err := executeCLI(t, home, "sync", "--json")
	require.NoError(t, err)

	var out syncOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.False(t, out.DryRun)
	assert.True(t, out.NicknamesReady)
	assert.True(t, out.Settled)
	require.Len(t, out.Renames, 2)
	assert.Equal(t, "02MCAlly", out.Renames[0].NewNickname)
	assert.Equal(t, "00MCStranger", out.Renames[1].NewNickname)

	assert.Equal(t, []string{"f-1=02MCAlly", "f-3=00MCStranger"}, gw.Renames())
	assert.Equal(t, []uint32{domain.DefaultLoginID}, gw.LoginIDs())
}

func TestSyncDryRunLeavesNicknamesUntouched(t *testing.T) {
	home := t.TempDir()
	history := newHistoryServer(t)
	gw := newGatewayFixture(t)
	require.NoError(t, writeConfigFixture(home, history.URL, gw.WebsocketURL(), true))
	t.Setenv("COPLAY_SESSION_PASSWORD", fixturePassword)

	stdout, _, err := executeCLI(t, home, "sync", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Planned renames (dry run): 2")
	assert.Contains(t, stdout, "07MCAlly")
	assert.Empty(t, gw.Renames())
}

func TestSyncRejectedLogonReturnsLogonFailure(t *testing.T) {
	home := t.TempDir()
	history := newHistoryServer(t)
	gw := newGatewayFixture(t)
	require.NoError(t, writeConfigFixture(home, history.URL, gw.WebsocketURL(), true))
	t.Setenv("COPLAY_SESSION_PASSWORD", "wrong")

	stdout, _, err := executeCLI(t, home, "sync")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLogonFailure)
	assert.Contains(t, stdout, "Nicknames were not received")
	assert.Empty(t, gw.Renames())
}

func TestSyncWithoutPasswordNamesTheFix(t *testing.T) {
	home := t.TempDir()
	history := newHistoryServer(t)
	require.NoError(t, writeConfigFixture(home, history.URL, "ws://127.0.0.1:1/gateway", true))

	_, _, err := executeCLI(t, home, "sync")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
	assert.Contains(t, err.Error(), "coplay secret set")
}

func TestSecretSetThenSyncUsesStoredPassword(t *testing.T) {
	home := t.TempDir()
	history := newHistoryServer(t)
	gw := newGatewayFixture(t)
	require.NoError(t, writeConfigFixture(home, history.URL, gw.WebsocketURL(), true))

	stdout, _, err := executeCLIWithInput(t, home, fixturePassword+"\n", "secret", "set")
	require.NoError(t, err)
	assert.Equal(t, "Stored coplay/session/bot/password\n", stdout)

	stored, err := filestore.NewStore(secretsDir(home)).Get(context.Background(), "coplay/session/bot/password")
	require.NoError(t, err)
	assert.Equal(t, fixturePassword, stored)

	_, _, err = executeCLI(t, home, "sync")
	require.NoError(t, err)
	assert.Len(t, gw.Renames(), 2)

	_, _, err = executeCLI(t, home, "secret", "delete")
	require.NoError(t, err)
	_, err = filestore.NewStore(secretsDir(home)).Get(context.Background(), "coplay/session/bot/password")
	assert.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestSecretSetRejectsEmptyValue(t *testing.T) {
	home := t.TempDir()
	require.NoError(t, writeConfigFixture(home, "http://127.0.0.1:1", "ws://127.0.0.1:1/gateway", true))

	_, _, err := executeCLIWithInput(t, home, "\n", "secret", "set", "--history-api-key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secret value is empty")
}

func TestUnknownCommandIsRejected(t *testing.T) {
	_, _, err := executeCLI(t, t.TempDir(), "limit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command \"limit\"")
}

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()
	return executeCLIWithInput(t, home, "", args...)
}

func executeCLIWithInput(t *testing.T, home, input string, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", home)
	for _, key := range []string{
		"COPLAY_TRACKED_ACCOUNT",
		"COPLAY_HISTORY_BASE_URL",
		"COPLAY_HISTORY_API_KEY",
		"COPLAY_SESSION_URL",
		"COPLAY_SESSION_USERNAME",
		"COPLAY_REDIS_ADDR",
		"COPLAY_KAFKA_BROKERS",
		"COPLAY_OTEL_ENDPOINT",
	} {
		t.Setenv(key, "")
	}
	if _, ok := os.LookupEnv("COPLAY_SESSION_PASSWORD"); !ok {
		t.Setenv("COPLAY_SESSION_PASSWORD", "")
	}

	root := newRootCmd()
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	root.SetIn(strings.NewReader(input))
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

// newHistoryServer serves two qualifying matches and one short one for
// account 100. Account 200 shares its team twice and account 300 once.
func newHistoryServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/players/100/matches", func(w http.ResponseWriter, _ *http.Request) {
		writeFixtureJSON(w, `[
			{"match_id":1,"duration":1800,"player_slot":0},
			{"match_id":2,"duration":1200,"player_slot":130},
			{"match_id":3,"duration":300,"player_slot":0}
		]`)
	})
	mux.HandleFunc("/api/matches/1", func(w http.ResponseWriter, _ *http.Request) {
		writeFixtureJSON(w, `{"match_id":1,"players":[
			{"player_slot":0,"account_id":100},
			{"player_slot":1,"account_id":200},
			{"player_slot":2,"account_id":300},
			{"player_slot":3,"account_id":null},
			{"player_slot":128,"account_id":400}
		]}`)
	})
	mux.HandleFunc("/api/matches/2", func(w http.ResponseWriter, _ *http.Request) {
		writeFixtureJSON(w, `{"match_id":2,"players":[
			{"player_slot":130,"account_id":100},
			{"player_slot":131,"account_id":200},
			{"player_slot":0,"account_id":300}
		]}`)
	})
	mux.HandleFunc("/api/matches/3", func(w http.ResponseWriter, _ *http.Request) {
		t.Error("short match detail must not be fetched")
		w.WriteHeader(http.StatusInternalServerError)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newGatewayFixture(t *testing.T) *gatewaytest.Server {
	t.Helper()

	server := gatewaytest.NewServer(fixturePassword, []gatewaytest.Nickname{
		{FriendID: "f-1", AccountID: 200, Nickname: "07MCAlly"},
		{FriendID: "f-2", AccountID: 300, Nickname: "01MCMate"},
		{FriendID: "f-3", AccountID: 999, Nickname: "xxMCStranger"},
		{FriendID: "f-4", AccountID: 400, Nickname: "Teammate"},
	})
	t.Cleanup(server.Close)
	return server
}

func writeFixtureJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func writeConfigFixture(home, historyURL, sessionURL string, withTrackedAccount bool) error {
	configDir := filepath.Join(home, ".config", "coplay")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return err
	}

	var config strings.Builder
	if withTrackedAccount {
		config.WriteString("tracked_account = 100\n\n")
	}
	fmt.Fprintf(&config, `[history]
base_url = %q

[gate]
period = "5ms"
timeout = "200ms"

[session]
url = %q
username = "bot"

[secrets]
backend = "file"
`, historyURL+"/api", sessionURL)

	return os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(config.String()), 0o644)
}

func secretsDir(home string) string {
	return filepath.Join(home, ".config", "coplay", "secrets")
}
