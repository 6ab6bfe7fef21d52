// Package reporter forwards bot events to the configured HTTP endpoint.
//
// Lifecycle:
//
//	New:   enable report (awaited) → subscribe → start heartbeat
//	Run:   event → serialize → filter → dispatch task (never blocks intake)
//	Close: unsubscribe → disable report (awaited) → stop heartbeat → release client
//
// Nothing here escalates to the caller after construction: dispatch and
// event failures are logged and counted, then dropped.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sureshkrishnan-v/botreport/internal/constants"
	"github.com/sureshkrishnan-v/botreport/internal/delivery"
	"github.com/sureshkrishnan-v/botreport/internal/event"
	"github.com/sureshkrishnan-v/botreport/internal/filter"
	"github.com/sureshkrishnan-v/botreport/internal/heartbeat"
	"github.com/sureshkrishnan-v/botreport/internal/metrics"
	"github.com/sureshkrishnan-v/botreport/internal/onebot"
	"github.com/sureshkrishnan-v/botreport/internal/quickop"
	"github.com/sureshkrishnan-v/botreport/internal/signer"
	"github.com/sureshkrishnan-v/botreport/internal/supervisor"
)

// Deps are the collaborators of a Reporter. Bot and Source are required
// when reporting is enabled; everything else has a default.
type Deps struct {
	Bot        Bot
	Source     event.Source
	Serializer onebot.Serializer // default onebot.Canonical
	Filter     filter.Filter     // default filter.AllowAll
	Host       quickop.Host      // default quickop.Discard
	Client     Deliverer         // default delivery.New(delivery.DefaultConfig())
	Metrics    *metrics.Metrics  // default unregistered metrics
	Tap        Tap               // optional
	Group      *supervisor.Group // default bounded by constants.DefaultMaxInflight
	Logger     *zap.Logger
}

// Reporter is the event-reporting dispatcher.
type Reporter struct {
	cfg    Config
	format onebot.Format
	signer *signer.Signer
	logger *zap.Logger

	bot        Bot
	serializer onebot.Serializer
	filter     filter.Filter
	client     Deliverer
	feedback   *quickop.Feedback
	metrics    *metrics.Metrics
	tap        Tap
	group      *supervisor.Group

	// taskCtx outlives the New call so event tasks are never cancelled
	// by the caller; in-flight dispatches finish even after Close.
	taskCtx  context.Context
	sub      event.Subscription
	hbCancel context.CancelFunc

	state     atomic.Int32
	closeOnce sync.Once

	received   atomic.Uint64
	ignored    atomic.Uint64
	filtered   atomic.Uint64
	dispatched atomic.Uint64
	failed     atomic.Uint64
	quickOps   atomic.Uint64
}

// dispatch is the immutable unit handed to a dispatch task.
type dispatch struct {
	kind    string
	body    []byte
	quickOp bool
}

// New starts a Reporter. With an empty PostURL it returns an idle no-op
// Reporter without touching the network or the event source. Otherwise
// it sends the enable report and returns once the event subscription is
// in place. Only configuration problems are returned as errors.
func New(ctx context.Context, cfg Config, deps Deps) (*Reporter, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Reporter{cfg: cfg, logger: logger.Named("reporter")}
	r.state.Store(int32(StateIdle))

	if !cfg.Enabled() {
		r.logger.Info("No post URL configured, reporting disabled")
		return r, nil
	}

	if err := r.init(deps); err != nil {
		return nil, err
	}
	r.state.Store(int32(StateStarting))
	r.taskCtx = context.WithoutCancel(ctx)

	r.sendLifecycle(ctx, constants.LifecycleEnable)

	r.sub = deps.Source.Subscribe(constants.SubscriberReporter, r.onEvent)

	if cfg.Heartbeat {
		hbCtx, cancel := context.WithCancel(r.taskCtx)
		r.hbCancel = cancel
		r.group.Go(hbCtx, "heartbeat", func(ctx context.Context) error {
			return heartbeat.Run(ctx, cfg.Interval, r.beat)
		})
	}

	r.state.Store(int32(StateRunning))
	r.logger.Info("Reporter running",
		zap.String("endpoint", metrics.EndpointHost(cfg.PostURL)),
		zap.Bool("signed", r.signer != nil),
		zap.String("format", string(r.format)),
		zap.Bool("heartbeat", cfg.Heartbeat),
		zap.Duration("interval", cfg.Interval))
	return r, nil
}

func (r *Reporter) init(deps Deps) error {
	if deps.Bot == nil {
		return &ConfigurationError{Field: "bot", Err: errors.New("bot accessor is required")}
	}
	if deps.Source == nil {
		return &ConfigurationError{Field: "source", Err: errors.New("event source is required")}
	}
	if r.cfg.Heartbeat && r.cfg.Interval <= 0 {
		return &ConfigurationError{Field: "heartbeat.interval", Err: heartbeat.ErrInterval}
	}

	r.format = onebot.FormatString
	if r.cfg.MessageFormat != "" {
		f, err := onebot.ParseFormat(r.cfg.MessageFormat)
		if err != nil {
			return &ConfigurationError{Field: "message_format", Err: err}
		}
		r.format = f
	}

	// The signer goes first so a bad key aborts before any network call.
	if r.cfg.Secret != "" {
		s, err := signer.New(r.cfg.Secret)
		if err != nil {
			return &ConfigurationError{Field: "secret", Err: err}
		}
		r.signer = s
	}

	r.bot = deps.Bot
	r.serializer = deps.Serializer
	if r.serializer == nil {
		r.serializer = onebot.Canonical{}
	}
	r.filter = deps.Filter
	if r.filter == nil {
		r.filter = filter.AllowAll{}
	}
	r.feedback = quickop.NewFeedback(deps.Host, r.logger.Named("quickop"))
	r.metrics = deps.Metrics
	if r.metrics == nil {
		r.metrics = metrics.New(nil)
	}
	r.tap = deps.Tap
	r.group = deps.Group
	if r.group == nil {
		r.group = supervisor.New(constants.DefaultMaxInflight, r.logger)
	}

	r.client = deps.Client
	if r.client == nil {
		c, err := delivery.New(delivery.DefaultConfig(), r.logger.Named("delivery"))
		if err != nil {
			return &ConfigurationError{Field: "delivery", Err: err}
		}
		r.client = c
	}
	return nil
}

// onEvent runs on the subscription pump. It never waits on the network.
func (r *Reporter) onEvent(e *event.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.metrics.EventErrors.Inc()
			r.logger.Error("Event handling panicked", zap.Any("panic", rec))
		}
	}()
	r.received.Add(1)

	body, err := r.serializer.Serialize(e, r.format)
	if errors.Is(err, onebot.ErrIgnore) {
		r.ignored.Add(1)
		r.metrics.EventsIgnored.Inc()
		return
	}
	if err != nil {
		r.metrics.EventErrors.Inc()
		r.logger.Warn("Event serialization failed", zap.Error(err))
		return
	}

	if !r.filter.Eval(string(body)) {
		r.filtered.Add(1)
		r.metrics.EventsFiltered.Inc()
		return
	}

	d := dispatch{kind: constants.KindEvent, body: body, quickOp: true}
	r.group.GoBounded(r.taskCtx, "event", func(ctx context.Context) error {
		r.send(ctx, d)
		return nil
	})
}

// beat sends one heartbeat. The delivery is detached from ctx so a
// cancellation during the POST lets it finish; the loop stops afterwards.
func (r *Reporter) beat(ctx context.Context, now time.Time) {
	hb := onebot.NewHeartbeat(r.bot.ID(), r.bot.Online(), r.cfg.Interval, now)
	body, err := onebot.Marshal(hb)
	if err != nil {
		r.logger.Error("Heartbeat encoding failed", zap.Error(err))
		return
	}
	r.send(context.WithoutCancel(ctx), dispatch{kind: constants.KindHeartbeat, body: body})
}

func (r *Reporter) sendLifecycle(ctx context.Context, phase string) {
	body, err := onebot.Marshal(onebot.NewLifecycle(r.bot.ID(), phase, time.Now()))
	if err != nil {
		r.logger.Error("Lifecycle encoding failed", zap.String("phase", phase), zap.Error(err))
		return
	}
	r.send(ctx, dispatch{kind: constants.KindLifecycle, body: body})
}

// send performs one dispatch and, for events, the quick operation feedback.
func (r *Reporter) send(ctx context.Context, d dispatch) {
	id := uuid.New()
	start := time.Now()
	resp, err := r.client.Deliver(ctx, delivery.Request{
		URL:    r.cfg.PostURL,
		BotID:  r.bot.ID(),
		Body:   d.body,
		Signer: r.signer,
	})
	elapsed := time.Since(start)

	outcome := Outcome{ID: id, Kind: d.kind, StatusCode: resp.StatusCode, Duration: elapsed, Time: start}
	result := constants.ResultOK
	switch {
	case err != nil:
		result = constants.ResultTransport
		outcome.Error = err.Error()
	case !resp.OK():
		result = constants.ResultHTTPError
		outcome.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	r.metrics.ObserveDispatch(d.kind, result, elapsed)
	if r.tap != nil {
		r.tap.Record(ctx, outcome)
	}

	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("Report dispatch failed",
			zap.String("kind", d.kind),
			zap.Stringer("id", id),
			zap.Error(err))
		return
	}
	r.dispatched.Add(1)
	if !resp.OK() {
		r.logger.Warn("Report endpoint rejected dispatch",
			zap.String("kind", d.kind),
			zap.Stringer("id", id),
			zap.Int("status", resp.StatusCode))
		return
	}

	if d.quickOp && resp.Body != "" {
		r.relay(ctx, d.body, resp.Body)
	}
}

func (r *Reporter) relay(ctx context.Context, sent []byte, response string) {
	err := r.feedback.Relay(ctx, sent, response)
	var pe *quickop.ParseError
	switch {
	case errors.As(err, &pe):
		r.metrics.ObserveQuickOp(constants.QuickOpParseError)
		r.logger.Debug("Response is not a quick operation", zap.Error(err))
	case err != nil:
		r.metrics.ObserveQuickOp(constants.QuickOpHostError)
		r.logger.Warn("Quick operation relay failed", zap.Error(err))
	default:
		r.quickOps.Add(1)
		r.metrics.ObserveQuickOp(constants.QuickOpRelayed)
	}
}

// Close stops reporting: it unsubscribes, sends the disable report, stops
// the heartbeat and releases pooled connections. Event dispatches already
// in flight are left to finish. Close is idempotent and a no-op on a
// disabled Reporter.
func (r *Reporter) Close(ctx context.Context) error {
	r.closeOnce.Do(func() {
		if r.State() != StateRunning {
			return
		}
		r.sub.Complete()
		r.sendLifecycle(ctx, constants.LifecycleDisable)
		if r.hbCancel != nil {
			r.hbCancel()
		}
		r.client.Close()
		r.state.Store(int32(StateStopped))
		r.logger.Info("Reporter stopped", zap.Uint64("dispatched", r.dispatched.Load()))
	})
	return nil
}

// Wait blocks until all dispatch tasks and the heartbeat have returned.
// Call it after Close.
func (r *Reporter) Wait() {
	if r.group != nil {
		r.group.Wait()
	}
}

// State returns the current lifecycle state.
func (r *Reporter) State() State {
	return State(r.state.Load())
}

// Stats returns a snapshot of the Reporter counters.
func (r *Reporter) Stats() Stats {
	return Stats{
		State:      r.State().String(),
		Received:   r.received.Load(),
		Ignored:    r.ignored.Load(),
		Filtered:   r.filtered.Load(),
		Dispatched: r.dispatched.Load(),
		Failed:     r.failed.Load(),
		QuickOps:   r.quickOps.Load(),
	}
}
