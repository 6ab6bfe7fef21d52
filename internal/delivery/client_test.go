package delivery

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sureshkrishnan-v/botreport/internal/signer"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBackoff = time.Millisecond
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestDeliver_HeadersAndBody(t *testing.T) {
	var (
		gotHeader http.Header
		gotBody   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotHeader = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"reply":"ok"}`))
	}))
	defer srv.Close()

	c, err := New(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer c.Close()

	body := []byte(`{"post_type":"message","raw_message":"hi"}`)
	resp, err := c.Deliver(context.Background(), Request{URL: srv.URL, BotID: 10001, Body: body})
	require.NoError(t, err)

	assert.True(t, resp.OK())
	assert.Equal(t, `{"reply":"ok"}`, resp.Body)
	assert.Equal(t, body, gotBody)
	assert.Equal(t, "CQHttp/4.15.0", gotHeader.Get("User-Agent"))
	assert.Equal(t, "10001", gotHeader.Get("X-Self-ID"))
	assert.Equal(t, "application/json; charset=utf-8", gotHeader.Get("Content-Type"))
	_, signed := gotHeader["X-Signature"]
	assert.False(t, signed, "unsigned request must not carry X-Signature")
}

func TestDeliver_Signature(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("X-Signature")
	}))
	defer srv.Close()

	s, err := signer.New("k")
	require.NoError(t, err)
	c, err := New(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	body := []byte(`{"type":"message","text":"hi"}`)
	_, err = c.Deliver(context.Background(), Request{URL: srv.URL, BotID: 1, Body: body, Signer: s})
	require.NoError(t, err)

	want, _ := signer.Sign("k", body)
	assert.Equal(t, want, got)
}

func TestDeliver_ErrorStatusIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c, err := New(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	resp, err := c.Deliver(context.Background(), Request{URL: srv.URL, Body: []byte("{}")})
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "boom", resp.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestDeliver_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := New(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	resp, err := c.Deliver(context.Background(), Request{URL: srv.URL, Body: []byte("{}")})
	require.NoError(t, err)
	assert.Equal(t, "", resp.Body)
}

func TestDeliver_ConnectFailureRetried(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	cfg := testConfig()
	cfg.ConnectRetries = 2
	c, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = c.Deliver(context.Background(), Request{URL: "http://" + addr + "/report", Body: []byte("{}")})
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te), "error %v is not a TransportError", err)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, "http://"+addr+"/report", te.URL)
}

func TestDeliver_InvalidURLIsPermanent(t *testing.T) {
	c, err := New(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = c.Deliver(context.Background(), Request{URL: "://bad", Body: []byte("{}")})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 1, te.Attempts)
}

func TestDeliver_RateLimitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.Burst = 1
	c, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = c.Deliver(context.Background(), Request{URL: srv.URL, Body: []byte("{}")})
	require.NoError(t, err, "first request fits in the burst")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Deliver(ctx, Request{URL: srv.URL, Body: []byte("{}")})
	var te *TransportError
	assert.True(t, errors.As(err, &te), "second request should be refused by the limiter")
}

func TestIsConnectFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, true},
		{"read", &net.OpError{Op: "read", Err: errors.New("reset")}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConnectFailure(tt.err); got != tt.want {
				t.Errorf("isConnectFailure(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
