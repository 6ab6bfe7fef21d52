package quickop

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Publisher is the subset of *nats.Conn used by NATSHost.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSHost forwards quick operations to a bot runtime listening on a NATS subject.
type NATSHost struct {
	pub     Publisher
	subject string
	logger  *zap.Logger
}

var _ Host = (*NATSHost)(nil)

// NewNATSHost creates a host publishing envelopes on subject.
func NewNATSHost(pub Publisher, subject string, logger *zap.Logger) *NATSHost {
	return &NATSHost{pub: pub, subject: subject, logger: logger}
}

// HandleQuickOperation publishes the envelope as JSON.
func (h *NATSHost) HandleQuickOperation(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := h.pub.Publish(h.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", h.subject, err)
	}
	h.logger.Debug("quick operation relayed",
		zap.String("subject", h.subject),
		zap.Int("bytes", len(data)))
	return nil
}
