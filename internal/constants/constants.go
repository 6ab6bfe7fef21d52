// Package constants provides all named constants for botreport.
// Eliminates magic numbers and hardcoded values throughout the codebase.
// All tuning parameters, header names, timeouts, and keys are defined here.
package constants

import "time"

// ─── Agent Defaults ────────────────────────────────────────────────
const (
	// DefaultMetricsAddr is the default HTTP listen address for metrics/health.
	DefaultMetricsAddr = ":9090"

	// DefaultLogLevel is the default structured logging level.
	DefaultLogLevel = "info"

	// DefaultConfigPath is the default YAML config file path.
	DefaultConfigPath = "botreport.yaml"

	// Version is the current agent version.
	Version = "1.0.0"
)

// ─── Environment Variables ─────────────────────────────────────────
const (
	// EnvPrefix is prepended to every override key (BOTREPORT_POST_URL, ...).
	EnvPrefix = "BOTREPORT_"
)

// ─── Report Protocol ───────────────────────────────────────────────
const (
	// UserAgent is the product string sent on every report.
	UserAgent = "CQHttp/4.15.0"

	HeaderUserAgent   = "User-Agent"
	HeaderContentType = "Content-Type"
	HeaderSelfID      = "X-Self-ID"
	HeaderSignature   = "X-Signature"

	// ContentTypeJSON is the body type of every report.
	ContentTypeJSON = "application/json; charset=utf-8"

	// SignaturePrefix tags the digest algorithm in X-Signature.
	SignaturePrefix = "sha1="

	MessageFormatString = "string"
	MessageFormatArray  = "array"
)

// ─── OneBot Post Types ─────────────────────────────────────────────
const (
	PostTypeMessage   = "message"
	PostTypeNotice    = "notice"
	PostTypeRequest   = "request"
	PostTypeMetaEvent = "meta_event"

	MetaEventLifecycle = "lifecycle"
	MetaEventHeartbeat = "heartbeat"

	LifecycleEnable  = "enable"
	LifecycleDisable = "disable"
)

// ─── Heartbeat ─────────────────────────────────────────────────────
const (
	// DefaultHeartbeatInterval matches the usual OneBot implementation default.
	DefaultHeartbeatInterval = 15 * time.Second
)

// ─── Delivery ──────────────────────────────────────────────────────
const (
	// DefaultDeliveryTimeout bounds one POST including reading the response.
	DefaultDeliveryTimeout = 10 * time.Second

	// DefaultConnectRetries is the number of extra attempts after a dial failure.
	DefaultConnectRetries = 3

	// DefaultRetryBackoff is the first wait between connection attempts.
	DefaultRetryBackoff = 200 * time.Millisecond

	// MaxRetryBackoff caps the exponential connection retry wait.
	MaxRetryBackoff = 2 * time.Second

	// DefaultMaxInflight bounds concurrent per-event dispatches.
	DefaultMaxInflight = 64

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes = 1 << 20 // 1 MB

	// HTTP2ReadIdleTimeout triggers a health-check ping on idle h2 connections.
	HTTP2ReadIdleTimeout = 30 * time.Second

	// HTTP2PingTimeout closes an h2 connection that does not answer a ping.
	HTTP2PingTimeout = 15 * time.Second

	// MaxIdleConnsPerHost keeps enough warm connections for the dispatch fan-out.
	MaxIdleConnsPerHost = 16

	MaxIdleConns        = 100
	IdleConnTimeout     = 90 * time.Second
	TLSHandshakeTimeout = 10 * time.Second
	DialTimeout         = 5 * time.Second
	DialKeepAlive       = 30 * time.Second
)

// ─── Dispatch Kinds / Results ──────────────────────────────────────
const (
	KindLifecycle = "lifecycle"
	KindHeartbeat = "heartbeat"
	KindEvent     = "event"

	ResultOK        = "ok"
	ResultHTTPError = "http_error"
	ResultTransport = "transport_error"

	QuickOpRelayed    = "relayed"
	QuickOpParseError = "parse_error"
	QuickOpHostError  = "host_error"
)

// ─── HTTP Server Timeouts ──────────────────────────────────────────
const (
	HTTPReadTimeout  = 5 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 120 * time.Second
)

// ─── Shutdown ──────────────────────────────────────────────────────
const (
	// ShutdownTimeout is the max time allowed for graceful shutdown,
	// including the disable-lifecycle report.
	ShutdownTimeout = 10 * time.Second

	// ExporterShutdownTimeout for HTTP server drain.
	ExporterShutdownTimeout = 5 * time.Second
)

// ─── EventBus ──────────────────────────────────────────────────────
const (
	// DefaultEventBusBuffer is the default per-subscriber channel size.
	DefaultEventBusBuffer = 4096

	// MinEventBusBuffer is the minimum allowed event bus buffer size.
	MinEventBusBuffer = 64

	// SubscriberReporter is the bus subscription name used by the reporter.
	SubscriberReporter = "reporter"
)

// ─── Self-Observability ────────────────────────────────────────────
const (
	// StatsCollectInterval is how often bus stats are copied into metrics.
	StatsCollectInterval = 5 * time.Second
)

// ─── HTTP Paths ────────────────────────────────────────────────────
const (
	PathMetrics = "/metrics"
	PathHealthz = "/healthz"
	PathReadyz  = "/readyz"
)

// ─── Prometheus Metric Names ───────────────────────────────────────
const (
	MetricPrefix = "botreport_"

	MetricDispatches       = MetricPrefix + "dispatches_total"
	MetricDispatchDuration = MetricPrefix + "dispatch_duration_seconds"
	MetricEventsFiltered   = MetricPrefix + "events_filtered_total"
	MetricEventsIgnored    = MetricPrefix + "events_ignored_total"
	MetricEventErrors      = MetricPrefix + "event_errors_total"
	MetricQuickOps         = MetricPrefix + "quick_operations_total"
	MetricBusQueueDepth    = MetricPrefix + "eventbus_queue_depth"
	MetricBusDropped       = MetricPrefix + "eventbus_dropped_total"
)

// ─── Prometheus Label Names ────────────────────────────────────────
const (
	LabelKind       = "kind"
	LabelResult     = "result"
	LabelSubscriber = "subscriber"
)

// ─── CEL Filter ────────────────────────────────────────────────────
const (
	// FilterVariable is the name the serialized event is bound to.
	FilterVariable = "event"

	// FilterCostLimit caps evaluation cost of a filter expression.
	FilterCostLimit = 10000
)

// ─── NATS ──────────────────────────────────────────────────────────
const (
	NATSDefaultURL       = "nats://localhost:4222"
	NATSEventSubject     = "botreport.events"
	NATSQuickOpSubject   = "botreport.quickop"
	NATSReconnectWait    = time.Second
	IngestNATS           = "nats"
	NATSConnectTimeout   = 5 * time.Second
	NATSMaxPendingEvents = 65536
)

// ─── Redis ─────────────────────────────────────────────────────────
const (
	RedisDefaultAddr     = "localhost:6379"
	RedisPoolSize        = 10
	RedisOutcomeChannel  = "botreport:dispatches"
	RedisLastOutcomeKey  = "botreport:last:"
	RedisLastOutcomeTTL  = 10 * time.Minute
	RedisPingTimeout     = 3 * time.Second
	RedisPublishDeadline = time.Second
)

// ─── API Server ────────────────────────────────────────────────────
const (
	APIDefaultAddr = ":5700"
	APIRateLimit   = 1000 // req/sec per client
)
