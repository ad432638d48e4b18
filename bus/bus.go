// Package bus implements the in-process publish/subscribe broker that
// fans card and operation lifecycle events out to the sync service, the
// background-intelligence agent and the stream processor, following the
// teacher's listener-registration shape (graph/listeners.go) but over a
// fixed topic enum instead of per-node events.
package bus

import (
	"context"
	"sync"

	"github.com/via-canvas/intelligence-core/log"
)

// Topic is one of the fixed event names in spec.md §2/§6.
type Topic string

const (
	TopicCardCreated         Topic = "card_created"
	TopicCardUpdated         Topic = "card_updated"
	TopicCardDeleted         Topic = "card_deleted"
	TopicConnectionCreated   Topic = "connection_created"
	TopicProgressUpdate      Topic = "progress_update"
	TopicOperationComplete   Topic = "operation_complete"
	TopicOperationFailed     Topic = "operation_failed"
	TopicOperationCancelled  Topic = "operation_cancelled"
)

// Event is the payload handed to every subscriber of a topic. Fields are a
// superset covering every topic's shape (§6); a handler reads only the
// fields relevant to the topic it subscribed to.
type Event struct {
	Topic Topic

	// card_created / card_updated / card_deleted
	CardID   string
	CanvasID string
	Content  string
	Title    string
	Metadata map[string]any

	// connection_created
	SourceID        string
	TargetID        string
	ConnectionType  string
	SimilarityScore *float64

	// progress_update / operation_*
	OperationID    string
	OperationType  string
	Step           string
	Progress       float64
	Message        string
	CardsCreated   int
	EstimatedSecs  *float64
	CanCancel      bool
	SessionID      string
}

// Handler reacts to an Event. A Handler must not block indefinitely: it
// runs on a goroutine scheduled by Emit and a slow handler only delays
// itself, never other subscribers or the emitting caller (spec §4.1).
type Handler func(ctx context.Context, evt Event)

// subscription pairs a Handler with its own ordered delivery queue, so
// that Emit never has to wait for a handler to drain and two handlers on
// the same topic make independent progress, while each individually sees
// events in emission order (spec §5).
type subscription struct {
	handler Handler
	mu      sync.Mutex
	queue   []Event
	wake    chan struct{}
}

func newSubscription(h Handler) *subscription {
	return &subscription{handler: h, wake: make(chan struct{}, 1)}
}

func (s *subscription) push(evt Event) {
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscription) run(ctx context.Context, logger log.Logger, topic Topic) {
	for {
		s.mu.Lock()
		var evt Event
		has := false
		if len(s.queue) > 0 {
			evt, s.queue = s.queue[0], s.queue[1:]
			has = true
		}
		s.mu.Unlock()

		if !has {
			select {
			case <-s.wake:
				continue
			case <-ctx.Done():
				return
			}
		}

		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("bus: handler panic on topic %s: %v", topic, r)
				}
			}()
			s.handler(ctx, evt)
		}()
	}
}

// Bus is the process-wide event broker. Construct with New; the zero
// value is not usable.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]*subscription
	ctx         context.Context
	cancel      context.CancelFunc
	logger      log.Logger
}

// New returns an empty Bus ready to accept subscriptions. The returned
// Bus owns a background context cancelled by Shutdown; callers should
// treat New/Shutdown as the explicit init/shutdown pair spec §9 calls for
// rather than relying on ambient module state.
func New(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.NewDefaultLogger(log.LogLevelInfo)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subscribers: make(map[Topic][]*subscription),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Subscribe registers h to run whenever Emit publishes to topic. Each
// subscriber gets its own delivery goroutine so a slow handler never
// delays other subscribers (spec §4.1); h sees events in emission order,
// but no order is kept between different handlers on the same topic.
func (b *Bus) Subscribe(topic Topic, h Handler) {
	sub := newSubscription(h)

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	go sub.run(b.ctx, b.logger, topic)
}

// Emit is fire-and-forget: it queues evt for every current subscriber of
// evt.Topic and returns immediately without waiting on any handler.
// Failures inside a handler are logged and swallowed; they never
// propagate back to the caller (spec §4.1).
func (b *Bus) Emit(_ context.Context, evt Event) {
	b.mu.RLock()
	subs := append([]*subscription(nil), b.subscribers[evt.Topic]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.push(evt)
	}
}

// Shutdown stops all subscriber delivery goroutines. Queued-but-undelivered
// events are dropped.
func (b *Bus) Shutdown() {
	b.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = make(map[Topic][]*subscription)
}
