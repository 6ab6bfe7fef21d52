package reporter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sureshkrishnan-v/botreport/internal/delivery"
)

// Config is the immutable report target and heartbeat setting.
type Config struct {
	PostURL       string        // empty disables reporting entirely
	Secret        string        // empty = unsigned
	MessageFormat string        // "string" (default) or "array"
	Heartbeat     bool          // periodic heartbeat reports
	Interval      time.Duration // heartbeat interval
}

// Enabled reports whether a report endpoint is configured.
func (c Config) Enabled() bool { return c.PostURL != "" }

// Bot exposes the identity and connection state of the bot being reported.
type Bot interface {
	ID() int64
	Online() bool
}

// Deliverer sends one report. *delivery.Client implements it.
type Deliverer interface {
	Deliver(ctx context.Context, req delivery.Request) (delivery.Response, error)
	Close()
}

// Outcome describes one finished dispatch.
type Outcome struct {
	ID         uuid.UUID     `json:"id"`
	Kind       string        `json:"kind"`
	StatusCode int           `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Error      string        `json:"error,omitempty"`
	Time       time.Time     `json:"time"`
}

// Tap observes dispatch outcomes. Record is called from dispatch tasks
// and should return quickly; errors are the tap's to log.
type Tap interface {
	Record(ctx context.Context, o Outcome)
}

// ConfigurationError aborts Reporter construction.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("reporter config %s: %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// State is the Reporter lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of Reporter counters.
type Stats struct {
	State      string `json:"state"`
	Received   uint64 `json:"received"`
	Ignored    uint64 `json:"ignored"`
	Filtered   uint64 `json:"filtered"`
	Dispatched uint64 `json:"dispatched"`
	Failed     uint64 `json:"failed"`
	QuickOps   uint64 `json:"quick_operations"`
}
