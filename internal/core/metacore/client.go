// Package metacore talks to the HTTP control API of the external proxy core,
// which exposes every submitted node as a local forwarding listener.
package metacore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"liuproxy_prober/internal/shared/logger"
	"liuproxy_prober/internal/shared/retry"
	"liuproxy_prober/internal/shared/types"
)

// StartError means the core did not hand back a usable session. Fatal for the batch.
type StartError struct {
	Body string
	Err  error
}

func (e *StartError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("core start failed: %v", e.Err)
	}
	return fmt.Sprintf("core start failed: %s", e.Body)
}

func (e *StartError) Unwrap() error { return e.Err }

// StopError is returned by Stop. Callers log it and carry on.
type StopError struct {
	PID int
	Err error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("core stop failed for pid %d: %v", e.PID, e.Err)
}

func (e *StopError) Unwrap() error { return e.Err }

// Session 是一次核心启动的结果。
type Session struct {
	PID      int
	Ports    []int
	Deadline time.Time
}

type startRequest struct {
	Proxies []map[string]any `json:"proxies"`
	Timeout int64            `json:"timeout"`
}

type startResponse struct {
	PID   int   `json:"pid"`
	Ports []int `json:"ports"`
}

type stopRequest struct {
	PID []int `json:"pid"`
}

// Client is the control API client.
type Client struct {
	baseURL       string
	authorization string
	httpClient    *http.Client
	retries       int
	retryDelay    time.Duration
}

// NewClient builds a client for protocol://host:port.
func NewClient(cfg types.CoreConf, requestTimeout time.Duration, retries int, retryDelay time.Duration) *Client {
	return &Client{
		baseURL:       fmt.Sprintf("%s://%s:%d", cfg.Protocol, cfg.Host, cfg.Port),
		authorization: cfg.Authorization,
		httpClient:    &http.Client{Timeout: requestTimeout},
		retries:       retries,
		retryDelay:    retryDelay,
	}
}

// BaseURL returns protocol://host:port of the control API.
func (c *Client) BaseURL() string { return c.baseURL }

// Start submits the whole node batch. timeout is the budget after which the core
// terminates itself if Stop never arrives. Start is never retried.
func (c *Client) Start(ctx context.Context, proxies []map[string]any, timeout time.Duration) (*Session, error) {
	l := logger.WithComponent("Prober/Core")

	body, err := json.Marshal(startRequest{Proxies: proxies, Timeout: timeout.Milliseconds()})
	if err != nil {
		return nil, &StartError{Err: err}
	}

	raw, err := c.post(ctx, "/start", body)
	if err != nil {
		return nil, &StartError{Err: err}
	}

	var resp startResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &StartError{Body: string(raw), Err: fmt.Errorf("invalid start response: %w", err)}
	}
	if resp.PID == 0 || len(resp.Ports) == 0 {
		return nil, &StartError{Body: string(raw)}
	}
	if len(resp.Ports) != len(proxies) {
		return nil, &StartError{
			Body: string(raw),
			Err:  fmt.Errorf("core returned %d ports for %d proxies", len(resp.Ports), len(proxies)),
		}
	}

	s := &Session{PID: resp.PID, Ports: resp.Ports, Deadline: time.Now().Add(timeout)}
	l.Info().
		Int("pid", s.PID).
		Ints("ports", s.Ports).
		Dur("auto_stop_after", timeout).
		Msg("Core started.")
	return s, nil
}

// Stop asks the core to terminate the session. Transport failures are retried
// with linear backoff.
func (c *Client) Stop(ctx context.Context, pid int) error {
	l := logger.WithComponent("Prober/Core")

	body, _ := json.Marshal(stopRequest{PID: []int{pid}})
	raw, err := retry.Do(ctx, c.retries, c.retryDelay, func() ([]byte, error) {
		return c.post(ctx, "/stop", body)
	})
	if err != nil {
		return &StopError{PID: pid, Err: err}
	}
	l.Info().Int("pid", pid).RawJSON("ack", compactJSON(raw)).Msg("Core stopped.")
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authorization != "" {
		req.Header.Set("Authorization", c.authorization)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, bytes.TrimSpace(raw))
	}
	return raw, nil
}

// compactJSON keeps the ack loggable as a raw field even when the core replies with plain text.
func compactJSON(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		quoted, _ := json.Marshal(string(raw))
		return quoted
	}
	return buf.Bytes()
}
