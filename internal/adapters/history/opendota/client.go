package opendota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bnema/coplay/internal/domain"
	"github.com/bnema/coplay/internal/ports"
)

const (
	DefaultBaseURL      = "https://api.opendota.com/api/"
	maxResponseBytes    = 8 << 20
	defaultRequestLimit = 30 * time.Second
)

type Client struct {
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	RequestTimeout time.Duration
}

var _ ports.HistoryClient = (*Client)(nil)

type recentMatchResponse struct {
	MatchID    int64 `json:"match_id"`
	Duration   int   `json:"duration"`
	PlayerSlot int   `json:"player_slot"`
}

type matchResponse struct {
	MatchID int64                 `json:"match_id"`
	Players []matchPlayerResponse `json:"players"`
}

type matchPlayerResponse struct {
	PlayerSlot int    `json:"player_slot"`
	AccountID  *int64 `json:"account_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) RecentMatches(ctx context.Context, id domain.AccountID, windowDays int) ([]domain.MatchSummary, error) {
	query := url.Values{}
	if windowDays > 0 {
		query.Set("date", strconv.Itoa(windowDays))
	}

	var payload []recentMatchResponse
	if err := c.getJSON(ctx, "players/"+id.String()+"/matches", query, &payload); err != nil {
		return nil, fmt.Errorf("get recent matches of %s: %w", id, err)
	}

	matches := make([]domain.MatchSummary, 0, len(payload))
	for _, m := range payload {
		matches = append(matches, domain.MatchSummary{
			MatchID:         domain.MatchID(m.MatchID),
			DurationSeconds: m.Duration,
			PlayerSlot:      m.PlayerSlot,
		})
	}

	return matches, nil
}

func (c *Client) MatchDetail(ctx context.Context, id domain.MatchID) (domain.MatchDetail, error) {
	var payload matchResponse
	path := "matches/" + strconv.FormatInt(int64(id), 10)
	if err := c.getJSON(ctx, path, url.Values{}, &payload); err != nil {
		return domain.MatchDetail{}, fmt.Errorf("get match %d: %w", id, err)
	}

	detail := domain.MatchDetail{
		MatchID:      domain.MatchID(payload.MatchID),
		Participants: make([]domain.Participant, 0, len(payload.Players)),
	}
	for _, p := range payload.Players {
		participant := domain.Participant{PlayerSlot: p.PlayerSlot}
		if p.AccountID != nil {
			accountID := domain.AccountID(*p.AccountID)
			participant.AccountID = &accountID
		}
		detail.Participants = append(detail.Participants, participant)
	}

	return detail, nil
}

// Close drops idle keep-alive connections; the client is used for one run.
func (c *Client) Close() error {
	c.httpClient().CloseIdleConnections()
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	endpoint, err := buildAPIURL(c.baseURL(), path)
	if err != nil {
		return err
	}
	if c.APIKey != "" {
		query.Set("api_key", c.APIKey)
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeError(resp)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}

	timeout := c.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestLimit
	}

	return context.WithTimeout(ctx, timeout)
}

func decodeError(resp *http.Response) error {
	var payload errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil || payload.Error == "" {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return fmt.Errorf("status %d: %s", resp.StatusCode, payload.Error)
}

func buildAPIURL(baseURL string, path string) (string, error) {
	if path == "" {
		return "", errors.New("api path is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("api base url host is required")
	}
	if parsed.Path == "" || parsed.Path[len(parsed.Path)-1] != '/' {
		parsed.Path += "/"
	}

	endpoint, err := parsed.Parse(path)
	if err != nil {
		return "", fmt.Errorf("parse api path: %w", err)
	}
	return endpoint.String(), nil
}
