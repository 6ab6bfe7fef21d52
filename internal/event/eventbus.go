package event

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Handler consumes one event. It runs on the subscription's pump goroutine
// and must return quickly; slow work belongs on another goroutine.
type Handler func(*Event)

// Subscription is a live handler registration.
type Subscription interface {
	// Complete unsubscribes. When it returns the handler is not running
	// and will never be called again.
	Complete()
}

// Source is anything that delivers events to subscribed handlers.
type Source interface {
	Subscribe(name string, h Handler) Subscription
}

// Bus is the in-process event distribution system.
//
// The bot runtime publishes events; subscribers consume them.
// Design constraints:
//   - Non-blocking publish (drops on overflow)
//   - Bounded per-subscriber buffers
//   - Drop counters tracked per subscriber
//   - Thread-safe for concurrent publishers
type Bus struct {
	logger      *zap.Logger
	bufferSize  int
	subscribers map[string]*subscription
	mu          sync.RWMutex
	closed      atomic.Bool

	published atomic.Uint64
}

type subscription struct {
	bus     *Bus
	name    string
	ch      chan *Event
	done    chan struct{}
	dropped atomic.Uint64
	once    sync.Once

	chClosed bool // guarded by bus.mu
}

var _ Source = (*Bus)(nil)

// NewBus creates a new event bus with the specified per-subscriber buffer size.
func NewBus(bufferSize int, logger *zap.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger:      logger,
		bufferSize:  bufferSize,
		subscribers: make(map[string]*subscription),
	}
}

// Subscribe registers h under name and starts its pump goroutine.
// Subscribing twice under one name replaces (and completes) the older one.
func (b *Bus) Subscribe(name string, h Handler) Subscription {
	s := &subscription{
		bus:  b,
		name: name,
		ch:   make(chan *Event, b.bufferSize),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	old := b.subscribers[name]
	if old != nil {
		delete(b.subscribers, name)
		old.closeLocked()
	}
	if b.closed.Load() {
		s.closeLocked()
	} else {
		b.subscribers[name] = s
	}
	b.mu.Unlock()

	if old != nil {
		old.Complete()
	}

	go s.pump(h)

	b.logger.Info("EventBus: subscriber registered",
		zap.String("name", name),
		zap.Int("buffer_size", b.bufferSize))

	return s
}

func (s *subscription) pump(h Handler) {
	defer close(s.done)
	for e := range s.ch {
		h(e)
	}
}

// closeLocked closes the channel once. Caller holds bus.mu for writing.
func (s *subscription) closeLocked() {
	if !s.chClosed {
		s.chClosed = true
		close(s.ch)
	}
}

// Complete removes the subscriber and waits for its pump to stop.
// Events still buffered may be discarded. Must not be called from
// within the subscription's own handler.
func (s *subscription) Complete() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		if b.subscribers[s.name] == s {
			delete(b.subscribers, s.name)
		}
		s.closeLocked()
		b.mu.Unlock()

		// Drain so the pump exits without calling the handler again.
		for range s.ch {
		}
		<-s.done

		b.logger.Debug("EventBus: subscriber completed", zap.String("name", s.name))
	})
}

// Publish sends an event to all subscribers.
// Non-blocking: if a subscriber's buffer is full, the event is dropped
// for that subscriber and its drop counter is incremented.
func (b *Bus) Publish(e *Event) {
	if b.closed.Load() {
		return
	}

	b.published.Add(1)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subscribers {
		select {
		case s.ch <- e:
			// delivered
		default:
			// subscriber buffer full, drop
			s.dropped.Add(1)
		}
	}
}

// Close stops the bus and closes all subscriber channels.
// Events already buffered are still handed to their subscribers.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return // already closed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for name, s := range b.subscribers {
		s.closeLocked()
		delete(b.subscribers, name)
		b.logger.Debug("EventBus: subscriber closed", zap.String("name", name))
	}
}

// Stats returns current bus statistics.
type Stats struct {
	Published           uint64
	DroppedBySubscriber map[string]uint64
	QueueDepth          map[string]int
}

// Stats returns a snapshot of bus metrics.
func (b *Bus) Stats() Stats {
	s := Stats{
		Published:           b.published.Load(),
		DroppedBySubscriber: make(map[string]uint64),
		QueueDepth:          make(map[string]int),
	}

	b.mu.RLock()
	for name, sub := range b.subscribers {
		s.QueueDepth[name] = len(sub.ch)
		s.DroppedBySubscriber[name] = sub.dropped.Load()
	}
	b.mu.RUnlock()

	return s
}

// Published returns the total number of published events.
func (b *Bus) Published() uint64 {
	return b.published.Load()
}

// Dropped returns the total number of dropped events across current subscribers.
func (b *Bus) Dropped() uint64 {
	var total uint64
	b.mu.RLock()
	for _, sub := range b.subscribers {
		total += sub.dropped.Load()
	}
	b.mu.RUnlock()
	return total
}
