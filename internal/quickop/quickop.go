// Package quickop relays quick operations returned by the report endpoint
// back to the host for execution.
package quickop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Envelope pairs the event that was reported with the operation the
// endpoint asked for in response.
type Envelope struct {
	Context   map[string]any `json:"context"`
	Operation map[string]any `json:"operation"`
}

// Host executes quick operations.
type Host interface {
	HandleQuickOperation(ctx context.Context, env Envelope) error
}

// HostFunc adapts a function to Host.
type HostFunc func(ctx context.Context, env Envelope) error

// HandleQuickOperation implements Host.
func (f HostFunc) HandleQuickOperation(ctx context.Context, env Envelope) error {
	return f(ctx, env)
}

// Discard is a Host that drops every operation.
var Discard Host = HostFunc(func(context.Context, Envelope) error { return nil })

// ParseError reports that the sent event or the response was not a JSON object.
type ParseError struct {
	Part string // "context" or "operation"
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("quick operation %s is not a JSON object: %v", e.Part, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Feedback builds envelopes and hands them to the host.
type Feedback struct {
	host   Host
	logger *zap.Logger
}

// NewFeedback creates a Feedback relaying to host.
func NewFeedback(host Host, logger *zap.Logger) *Feedback {
	if host == nil {
		host = Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Feedback{host: host, logger: logger}
}

// Relay parses sent and response and forwards the envelope to the host.
// A *ParseError is returned when either side is not a JSON object; the host
// is not called in that case. A host failure is returned wrapped, so callers
// can tell it apart from a response that was not a quick operation.
func (f *Feedback) Relay(ctx context.Context, sent []byte, response string) error {
	sentObj, err := decodeObject(sent)
	if err != nil {
		return &ParseError{Part: "context", Err: err}
	}
	operation, err := decodeObject([]byte(response))
	if err != nil {
		return &ParseError{Part: "operation", Err: err}
	}

	if err := f.host.HandleQuickOperation(ctx, Envelope{Context: sentObj, Operation: operation}); err != nil {
		return fmt.Errorf("quick operation handler: %w", err)
	}
	f.logger.Debug("quick operation relayed", zap.Int("operation_keys", len(operation)))
	return nil
}

var errNotObject = errors.New("not an object")

// decodeObject decodes a single JSON object, keeping numbers as json.Number
// so 64-bit ids survive the round trip.
func decodeObject(b []byte) (map[string]any, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return nil, errNotObject
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after object")
	}
	return m, nil
}
