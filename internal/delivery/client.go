// Package delivery posts serialized reports to the configured endpoint.
// Connection-establishment failures are retried with exponential backoff;
// every HTTP response, whatever its status, is final.
package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/sureshkrishnan-v/botreport/internal/constants"
	"github.com/sureshkrishnan-v/botreport/internal/signer"
)

// Config holds delivery transport settings.
type Config struct {
	Timeout        time.Duration `yaml:"timeout"`
	ConnectRetries uint          `yaml:"connect_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	RateLimit      float64       `yaml:"rate_limit"` // posts/sec, 0 = unlimited
	Burst          int           `yaml:"burst"`
	MaxInflight    int64         `yaml:"max_inflight"`
	HTTP2          bool          `yaml:"http2"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:        constants.DefaultDeliveryTimeout,
		ConnectRetries: constants.DefaultConnectRetries,
		RetryBackoff:   constants.DefaultRetryBackoff,
		Burst:          1,
		MaxInflight:    constants.DefaultMaxInflight,
		HTTP2:          true,
	}
}

// Request is one report POST.
type Request struct {
	URL    string
	BotID  int64
	Body   []byte
	Signer *signer.Signer // nil = unsigned
}

// Response is a complete HTTP response as seen by the reporter.
type Response struct {
	StatusCode int
	Body       string
}

// OK reports whether the endpoint accepted the report.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// TransportError is a delivery that never produced an HTTP response.
type TransportError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("deliver %s: %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client is the shared report transport. Stateless per call; safe for
// concurrent use by every dispatch task.
type Client struct {
	cfg       Config
	http      *http.Client
	transport *http.Transport
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// New builds a Client with a pooled transport.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   constants.DialTimeout,
			KeepAlive: constants.DialKeepAlive,
		}).DialContext,
		MaxIdleConns:          constants.MaxIdleConns,
		MaxIdleConnsPerHost:   constants.MaxIdleConnsPerHost,
		IdleConnTimeout:       constants.IdleConnTimeout,
		TLSHandshakeTimeout:   constants.TLSHandshakeTimeout,
		ExpectContinueTimeout: time.Second,
	}

	if cfg.HTTP2 {
		h2, err := http2.ConfigureTransports(transport)
		if err != nil {
			return nil, fmt.Errorf("configure http2: %w", err)
		}
		h2.ReadIdleTimeout = constants.HTTP2ReadIdleTimeout
		h2.PingTimeout = constants.HTTP2PingTimeout
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		cfg:       cfg,
		http:      &http.Client{Transport: transport, Timeout: cfg.Timeout},
		transport: transport,
		limiter:   limiter,
		logger:    logger,
	}, nil
}

// Deliver issues one POST of req.Body and returns the response body text.
func (c *Client) Deliver(ctx context.Context, req Request) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, &TransportError{URL: req.URL, Err: err}
		}
	}

	signature := ""
	if req.Signer != nil {
		signature = req.Signer.Sign(req.Body)
	}

	attempts := 0
	op := func() (Response, error) {
		attempts++
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
		if err != nil {
			return Response{}, backoff.Permanent(err)
		}
		httpReq.Header.Set(constants.HeaderUserAgent, constants.UserAgent)
		httpReq.Header.Set(constants.HeaderContentType, constants.ContentTypeJSON)
		httpReq.Header.Set(constants.HeaderSelfID, strconv.FormatInt(req.BotID, 10))
		if signature != "" {
			httpReq.Header.Set(constants.HeaderSignature, signature)
		}

		resp, err := c.http.Do(httpReq)
		if err != nil {
			if isConnectFailure(err) {
				c.logger.Debug("Report connection failed, retrying",
					zap.String("url", req.URL),
					zap.Int("attempt", attempts),
					zap.Error(err))
				return Response{}, err
			}
			return Response{}, backoff.Permanent(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseBytes))
		if err != nil {
			return Response{}, backoff.Permanent(fmt.Errorf("read response: %w", err))
		}
		return Response{StatusCode: resp.StatusCode, Body: string(body)}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryBackoff
	b.MaxInterval = constants.MaxRetryBackoff

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.cfg.ConnectRetries+1),
	)
	if err != nil {
		return Response{}, &TransportError{URL: req.URL, Attempts: attempts, Err: err}
	}
	return resp, nil
}

// Close releases pooled connections. In-flight requests are not interrupted.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// isConnectFailure reports whether err happened before a connection existed,
// i.e. the request was never written and is safe to repeat.
func isConnectFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
