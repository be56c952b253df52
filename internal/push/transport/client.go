// Package transport delivers encrypted push messages to push service
// endpoints over HTTP, with a circuit breaker per push service host.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pushgate/pushgate/internal/provider/resilience"
	"github.com/pushgate/pushgate/internal/push"
	"github.com/pushgate/pushgate/internal/push/webpush"
)

// ErrInvalidEndpoint is returned for endpoints that are not absolute
// http(s) URLs.
var ErrInvalidEndpoint = errors.New("invalid push endpoint")

// maxDetailBytes bounds how much of an error response body is kept.
const maxDetailBytes = 256

// ClientConfig holds configuration for the push transport client.
type ClientConfig struct {
	// Signer signs VAPID authorization headers. Optional; without it
	// requests go out unauthenticated and some push services will reject
	// them.
	Signer *webpush.VAPIDSigner

	// Timeout is the per-request timeout. Default: 10 seconds.
	Timeout time.Duration

	// Upstreams tracks per-host circuit breakers. If nil a private
	// registry is created.
	Upstreams *resilience.Registry

	Logger zerolog.Logger
}

// Client implements push.Sender over HTTP. Each push service host gets its
// own circuit-breaking client so one misbehaving service cannot block
// deliveries to the others. Requests are never retried.
type Client struct {
	signer    *webpush.VAPIDSigner
	timeout   time.Duration
	upstreams *resilience.Registry
	logger    zerolog.Logger

	mu sync.Mutex
}

// NewClient creates a push transport client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	upstreams := cfg.Upstreams
	if upstreams == nil {
		upstreams = resilience.NewRegistry()
	}

	return &Client{
		signer:    cfg.Signer,
		timeout:   timeout,
		upstreams: upstreams,
		logger:    cfg.Logger,
	}
}

// Upstreams exposes the per-host registry for health reporting.
func (c *Client) Upstreams() *resilience.Registry {
	return c.upstreams
}

// Send delivers one message to one endpoint. A returned error means no
// status was received from the push service; HTTP error statuses are
// returned in the result for the caller to classify.
func (c *Client) Send(ctx context.Context, endpoint string, msg *webpush.Message, ttl time.Duration) (*push.SendResult, error) {
	u, err := url.Parse(endpoint)
	if err != nil || !u.IsAbs() || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEndpoint, endpoint)
	}

	req, err := c.buildRequest(ctx, u, msg, ttl)
	if err != nil {
		return nil, err
	}

	client := c.clientFor(u.Host)

	resp, err := client.DoWithContext(ctx, req)
	if err != nil {
		c.upstreams.RecordFailure(u.Host, err)
		return nil, fmt.Errorf("sending push to %s: %w", u.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.upstreams.RecordSuccess(u.Host)
	} else {
		c.upstreams.RecordFailure(u.Host, &resilience.UpstreamError{StatusCode: resp.StatusCode})
	}

	return &push.SendResult{
		StatusCode: resp.StatusCode,
		Detail:     responseDetail(resp),
	}, nil
}

func (c *Client) buildRequest(ctx context.Context, u *url.URL, msg *webpush.Message, ttl time.Duration) (*http.Request, error) {
	var body io.Reader = http.NoBody
	if len(msg.Body) > 0 {
		body = bytes.NewReader(msg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building push request: %w", err)
	}

	req.Header.Set("TTL", strconv.Itoa(int(ttl/time.Second)))
	if msg.Encrypted {
		req.Header.Set("Content-Encoding", webpush.ContentEncoding)
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	if c.signer != nil && u.Scheme == "https" {
		auth, err := c.signer.AuthorizationHeader(u.String())
		if err != nil {
			return nil, fmt.Errorf("signing push request: %w", err)
		}
		req.Header.Set("Authorization", auth)
	}

	return req, nil
}

// clientFor returns the circuit-breaking client for a push service host,
// creating one on first use. MaxRetries stays at zero: a retry here would
// break at-most-once delivery.
func (c *Client) clientFor(host string) *resilience.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client := c.upstreams.Get(host); client != nil {
		return client
	}

	cfg := resilience.DefaultClientConfig(host)
	cfg.Timeout = c.timeout
	client := resilience.NewClient(cfg)
	c.upstreams.Register(host, client)

	c.logger.Debug().Str("host", host).Msg("registered push service upstream")
	return client
}

// responseDetail extracts a short diagnostic from an error response: the
// Retry-After header when present, otherwise a truncated body snippet.
func responseDetail(resp *http.Response) string {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return ""
	}

	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		return "retry-after: " + retryAfter
	}

	snippet, err := io.ReadAll(io.LimitReader(resp.Body, maxDetailBytes))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(snippet))
}

var _ push.Sender = (*Client)(nil)
