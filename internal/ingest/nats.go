package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/sureshkrishnan-v/botreport/internal/constants"
)

// NATSConfig holds NATS ingest settings.
type NATSConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url" env:"NATS_URL"`
	EventSubject   string `yaml:"event_subject"`
	QuickOpSubject string `yaml:"quick_op_subject"`
	Queue          string `yaml:"queue"` // optional queue group
}

// DefaultNATSConfig returns a lean default for small instances.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            constants.NATSDefaultURL,
		EventSubject:   constants.NATSEventSubject,
		QuickOpSubject: constants.NATSQuickOpSubject,
	}
}

// NATS consumes wire events from a NATS subject.
type NATS struct {
	cfg    NATSConfig
	pub    Publisher
	botID  int64
	logger *zap.Logger

	opts []nats.Option
	nc   *nats.Conn
	sub  *nats.Subscription

	received atomic.Uint64
	rejected atomic.Uint64
}

var _ Source = (*NATS)(nil)

// NewNATS creates a NATS source (Factory constructor). botID is used for
// events that do not carry self_id. opts are applied after the defaults
// (credentials, TLS, an in-process server).
func NewNATS(cfg NATSConfig, pub Publisher, botID int64, logger *zap.Logger, opts ...nats.Option) *NATS {
	return &NATS{
		cfg:    cfg,
		pub:    pub,
		botID:  botID,
		logger: logger,
		opts:   opts,
	}
}

func (n *NATS) Name() string { return constants.IngestNATS }

// Connect dials the server without subscribing, so the connection can
// serve quick operations and online status before events flow.
// Start calls it when needed.
func (n *NATS) Connect(_ context.Context) error {
	if n.nc != nil {
		return nil
	}
	opts := append([]nats.Option{
		nats.Name("botreport"),
		nats.Timeout(constants.NATSConnectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(constants.NATSReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			n.logger.Info("NATS reconnected")
		}),
	}, n.opts...)
	nc, err := nats.Connect(n.cfg.URL, opts...)
	if err != nil {
		return fmt.Errorf("connect %s: %w", n.cfg.URL, err)
	}
	n.nc = nc
	return nil
}

func (n *NATS) Start(ctx context.Context) error {
	if err := n.Connect(ctx); err != nil {
		return err
	}

	var err error
	if n.cfg.Queue != "" {
		n.sub, err = n.nc.QueueSubscribe(n.cfg.EventSubject, n.cfg.Queue, n.handle)
	} else {
		n.sub, err = n.nc.Subscribe(n.cfg.EventSubject, n.handle)
	}
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", n.cfg.EventSubject, err)
	}
	if err := n.sub.SetPendingLimits(constants.NATSMaxPendingEvents, -1); err != nil {
		n.logger.Warn("NATS pending limits not applied", zap.Error(err))
	}

	n.logger.Info("NATS ingest started",
		zap.String("url", n.cfg.URL),
		zap.String("subject", n.cfg.EventSubject),
		zap.String("queue", n.cfg.Queue))
	return nil
}

func (n *NATS) Stop(_ context.Context) error {
	if n.nc == nil {
		return nil
	}
	n.logger.Info("NATS ingest stopping",
		zap.Uint64("received", n.received.Load()),
		zap.Uint64("rejected", n.rejected.Load()))
	return n.nc.Drain()
}

// Close drops the connection without draining. Used when startup fails
// before the subscription exists.
func (n *NATS) Close() {
	if n.nc != nil {
		n.nc.Close()
	}
}

// Conn returns the underlying connection, nil before Start.
func (n *NATS) Conn() *nats.Conn { return n.nc }

// Online reports whether the NATS connection is currently established.
func (n *NATS) Online() bool {
	return n.nc != nil && n.nc.IsConnected()
}

func (n *NATS) handle(msg *nats.Msg) {
	n.received.Add(1)
	e, err := Decode(msg.Data, n.botID, time.Now())
	if err != nil {
		n.rejected.Add(1)
		n.logger.Debug("Rejected wire event", zap.String("subject", msg.Subject), zap.Error(err))
		return
	}
	n.pub.Publish(e)
}
