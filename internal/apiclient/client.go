// Package apiclient is a small client for the arena HTTP API, used by
// agent programs and the smoke checker.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/park285/agent-chess-arena/pkg/gamedto"
)

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("arena api error: status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("arena api error: status=%d code=%s", e.Status, e.Code)
}

func (c *Client) CreateGame(ctx context.Context, agent gamedto.AgentRef) (*gamedto.Game, error) {
	req := gamedto.CreateGameRequest{Agent: agent}
	var resp gamedto.GameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/games/create", req, &resp); err != nil {
		return nil, err
	}
	return resp.Game, nil
}

func (c *Client) JoinGame(ctx context.Context, gameID string, agent gamedto.AgentRef) (*gamedto.Game, error) {
	req := gamedto.JoinGameRequest{GameID: gameID, Agent: agent}
	var resp gamedto.GameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/games/join", req, &resp); err != nil {
		return nil, err
	}
	return resp.Game, nil
}

func (c *Client) SubmitMove(ctx context.Context, gameID string, req gamedto.MoveRequest) (*gamedto.Game, error) {
	var resp gamedto.GameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/games/"+gameID+"/move", req, &resp); err != nil {
		return nil, err
	}
	return resp.Game, nil
}

func (c *Client) Resign(ctx context.Context, gameID, agentID string) (*gamedto.Game, error) {
	req := gamedto.ResignRequest{AgentID: agentID}
	var resp gamedto.GameResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/games/"+gameID+"/resign", req, &resp); err != nil {
		return nil, err
	}
	return resp.Game, nil
}

func (c *Client) GetGame(ctx context.Context, gameID string) (*gamedto.Game, error) {
	var resp gamedto.GameResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games/"+gameID, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Game, nil
}

func (c *Client) ListOpenGames(ctx context.Context) ([]*gamedto.Game, error) {
	var resp gamedto.GamesResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Games, nil
}

func (c *Client) Leaderboard(ctx context.Context) ([]*gamedto.Agent, error) {
	var resp gamedto.LeaderboardResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/leaderboard", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// doJSON performs one API call, retrying only responses the server
// marked retryable (move conflicts) and transport failures.
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := c.retryMax
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := c.computeDeadline(ctx)
		err := c.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			apiErr := decodeAPIError(status, resp.Body())
			if attempt == attempts || !apiErr.Retryable {
				return apiErr
			}
			lastErr = apiErr
			if sleepErr := c.sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func decodeAPIError(status int, body []byte) *APIError {
	var envelope gamedto.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Code != "" {
		return &APIError{
			Status:    status,
			Code:      envelope.Error.Code,
			Message:   envelope.Error.Message,
			Retryable: envelope.Error.Retryable,
		}
	}
	return &APIError{Status: status, Message: truncate(string(body), 512)}
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(c.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(c.defaultTimeout)
}

func (c *Client) sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
