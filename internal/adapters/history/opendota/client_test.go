package opendota

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bnema/coplay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecentMatchesRequestsWindowAndParsesSummaries(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/players/92832630/matches", r.URL.Path)
		assert.Equal(t, "30", r.URL.Query().Get("date"))
		assert.Equal(t, "key-1", r.URL.Query().Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"match_id":7001,"duration":900,"player_slot":0,"hero_id":5},{"match_id":7002,"duration":500,"player_slot":131}]`))
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL + "/api", APIKey: "key-1", HTTPClient: server.Client()}

	matches, err := client.RecentMatches(context.Background(), 92832630, domain.HistoryWindowDays)
	require.NoError(t, err)
	assert.Equal(t, []domain.MatchSummary{
		{MatchID: 7001, DurationSeconds: 900, PlayerSlot: 0},
		{MatchID: 7002, DurationSeconds: 500, PlayerSlot: 131},
	}, matches)
}

func TestMatchDetailKeepsPrivateProfilesAsAbsentAccount(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/matches/7001", r.URL.Path)
		assert.Empty(t, r.URL.Query().Get("api_key"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"match_id":7001,"players":[{"player_slot":0,"account_id":92832630},{"player_slot":2,"account_id":111},{"player_slot":3,"account_id":null},{"player_slot":130}]}`))
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}

	detail, err := client.MatchDetail(context.Background(), 7001)
	require.NoError(t, err)
	assert.Equal(t, domain.MatchID(7001), detail.MatchID)
	require.Len(t, detail.Participants, 4)

	require.NotNil(t, detail.Participants[0].AccountID)
	assert.Equal(t, domain.AccountID(92832630), *detail.Participants[0].AccountID)
	require.NotNil(t, detail.Participants[1].AccountID)
	assert.Equal(t, domain.AccountID(111), *detail.Participants[1].AccountID)
	assert.Nil(t, detail.Participants[2].AccountID)
	assert.Nil(t, detail.Participants[3].AccountID)
	assert.Equal(t, 130, detail.Participants[3].PlayerSlot)
}

func TestRecentMatchesReportsServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}

	_, err := client.RecentMatches(context.Background(), 1, domain.HistoryWindowDays)
	require.Error(t, err)
	assert.ErrorContains(t, err, "status 429: rate limit exceeded")
}

func TestMatchDetailRejectsMalformedPayload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"match_id":`))
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client()}

	_, err := client.MatchDetail(context.Background(), 1)
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode response")
}

func TestRequestTimesOutWithoutCallerDeadline(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(server.Close)

	client := &Client{BaseURL: server.URL, HTTPClient: server.Client(), RequestTimeout: 20 * time.Millisecond}

	_, err := client.RecentMatches(context.Background(), 1, domain.HistoryWindowDays)
	require.Error(t, err)
	assert.ErrorContains(t, err, "send request")
}

func TestBuildAPIURLValidatesBase(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		base    string
		want    string
		wantErr string
	}{
		{name: "default base", base: DefaultBaseURL, want: "https://api.opendota.com/api/matches/1"},
		{name: "base without trailing slash", base: "http://localhost:8080/api", want: "http://localhost:8080/api/matches/1"},
		{name: "bare host", base: "http://localhost:8080", want: "http://localhost:8080/matches/1"},
		{name: "bad scheme", base: "ftp://example.com", wantErr: "must use http or https"},
		{name: "missing host", base: "http://", wantErr: "host is required"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := buildAPIURL(tc.base, "matches/1")
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCloseIsSafeOnDefaultClient(t *testing.T) {
	t.Parallel()

	assert.NoError(t, (&Client{}).Close())
}
