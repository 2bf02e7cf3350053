// Package remote talks to the crew management REST API.
//
// Every failure is returned as an *offline.RemoteError whose Code classifies
// it, so the sync engine never has to inspect HTTP details.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/crewsync/crewsync/internal/offline"
)

// Config configures a Client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// ListRetries is how often an idempotent list call is retried on a
	// temporary failure. Writes are never retried here.
	ListRetries int
	RetryDelay  time.Duration
	Logger      *zap.Logger
}

// Client is a thin JSON client for the API.
type Client struct {
	httpClient  *http.Client
	baseURL     *url.URL
	token       string
	listRetries int
	retryDelay  time.Duration
	logger      *zap.Logger
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:     u,
		token:       cfg.Token,
		listRetries: cfg.ListRetries,
		retryDelay:  cfg.RetryDelay,
		logger:      cfg.Logger.Named("remote"),
	}, nil
}

// BaseURL returns the API root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// call describes one request. entity and op only label errors.
type call struct {
	op     string
	entity string
	method string
	path   string
	body   any
	out    any
}

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

func (c *Client) do(ctx context.Context, cl call) error {
	if cl.method != http.MethodGet || c.listRetries <= 0 {
		return c.once(ctx, cl)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.listRetries)), ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := c.once(ctx, cl)
		var re *offline.RemoteError
		if err != nil && (!errors.As(err, &re) || !re.Temporary()) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, delay time.Duration) {
		c.logger.Debug("retrying request",
			zap.String("path", cl.path),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	})

	var re *offline.RemoteError
	if err != nil && !errors.As(err, &re) {
		// Cancelled while waiting between attempts.
		return c.classify(cl, 0, err)
	}
	return err
}

func (c *Client) once(ctx context.Context, cl call) error {
	var body io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return &offline.RemoteError{Op: cl.op, Entity: cl.entity, Code: offline.CodeInvalid,
				Err: fmt.Errorf("marshaling request body: %w", err)}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, cl.method, c.baseURL.String()+cl.path, body)
	if err != nil {
		return c.classify(cl, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.classify(cl, 0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	c.logger.Debug("request",
		zap.String("method", cl.method),
		zap.String("path", cl.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))
	if err != nil {
		return c.classify(cl, 0, fmt.Errorf("reading response: %w", err))
	}
	truncated := len(data) > maxResponseBytes
	if truncated {
		data = data[:maxResponseBytes]
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.classify(cl, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorMessage(data)))
	}
	if truncated {
		return &offline.RemoteError{Op: cl.op, Entity: cl.entity, Code: offline.CodeInvalid,
			Err: fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)}
	}
	if cl.out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, cl.out); err != nil {
			return &offline.RemoteError{Op: cl.op, Entity: cl.entity, Code: offline.CodeInvalid,
				Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}

func (c *Client) classify(cl call, status int, err error) *offline.RemoteError {
	return &offline.RemoteError{Op: cl.op, Entity: cl.entity, Code: Classify(status, err), Err: err}
}

// Classify maps an HTTP status or transport error to a remote error code.
// A zero status means the request never produced a response.
func Classify(status int, err error) offline.Code {
	if status == 0 {
		var netErr net.Error
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return offline.CodeTimeout
		case errors.As(err, &netErr) && netErr.Timeout():
			return offline.CodeTimeout
		case errors.Is(err, context.Canceled):
			return offline.CodeNetwork
		case err != nil:
			return offline.CodeNetwork
		}
		return offline.CodeUnknown
	}

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return offline.CodeUnauthorized
	case status == http.StatusNotFound:
		return offline.CodeNotFound
	case status == http.StatusConflict:
		return offline.CodeConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return offline.CodeInvalid
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return offline.CodeTimeout
	case status >= 500:
		return offline.CodeServer
	default:
		return offline.CodeUnknown
	}
}

func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
