package quickop

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingHost struct {
	mu   sync.Mutex
	envs []Envelope
	err  error
}

func (h *recordingHost) HandleQuickOperation(_ context.Context, env Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.envs = append(h.envs, env)
	return h.err
}

func TestRelay_Success(t *testing.T) {
	host := &recordingHost{}
	fb := NewFeedback(host, zaptest.NewLogger(t))

	sent := []byte(`{"post_type":"message","message_id":9007199254740993}`)
	err := fb.Relay(context.Background(), sent, `{"reply":"pong","at_sender":false}`)
	require.NoError(t, err)

	require.Len(t, host.envs, 1)
	env := host.envs[0]
	assert.Equal(t, "message", env.Context["post_type"])
	assert.Equal(t, json.Number("9007199254740993"), env.Context["message_id"])
	assert.Equal(t, "pong", env.Operation["reply"])
	assert.Equal(t, false, env.Operation["at_sender"])
}

func TestRelay_NotJSON(t *testing.T) {
	tests := []struct {
		name     string
		sent     string
		response string
		part     string
	}{
		{"plain text", `{"a":1}`, "ok", "operation"},
		{"array", `{"a":1}`, `[1,2]`, "operation"},
		{"truncated", `{"a":1}`, `{"reply":`, "operation"},
		{"trailing", `{"a":1}`, `{"reply":"x"} {}`, "operation"},
		{"bad context", `nope`, `{"reply":"x"}`, "context"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host := &recordingHost{}
			err := NewFeedback(host, nil).Relay(context.Background(), []byte(tt.sent), tt.response)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %v", err)
			assert.Equal(t, tt.part, pe.Part)
			assert.Empty(t, host.envs)
		})
	}
}

func TestRelay_HostErrorReturned(t *testing.T) {
	boom := errors.New("boom")
	host := &recordingHost{err: boom}
	err := NewFeedback(host, zaptest.NewLogger(t)).Relay(context.Background(), []byte(`{}`), `{}`)

	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	var pe *ParseError
	assert.False(t, errors.As(err, &pe))
	assert.Len(t, host.envs, 1)
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.subject, p.data = subject, data
	return p.err
}

func TestNATSHost(t *testing.T) {
	pub := &fakePublisher{}
	h := NewNATSHost(pub, "bot.quickop", zaptest.NewLogger(t))

	env := Envelope{
		Context:   map[string]any{"user_id": json.Number("10")},
		Operation: map[string]any{"reply": "hi"},
	}
	require.NoError(t, h.HandleQuickOperation(context.Background(), env))
	assert.Equal(t, "bot.quickop", pub.subject)
	assert.JSONEq(t, `{"context":{"user_id":10},"operation":{"reply":"hi"}}`, string(pub.data))

	pub.err = errors.New("nats: connection closed")
	assert.Error(t, h.HandleQuickOperation(context.Background(), env))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, h.HandleQuickOperation(ctx, env), context.Canceled)
}

func TestHostFunc(t *testing.T) {
	called := false
	var h Host = HostFunc(func(context.Context, Envelope) error { called = true; return nil })
	require.NoError(t, h.HandleQuickOperation(context.Background(), Envelope{}))
	assert.True(t, called)
}
