package eventbus

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"

	"github.com/petwalk/petwalk"
)

// MemoryEventBus implements EventBus using in-memory channels
type MemoryEventBus struct {
	config        *Config
	logger        petwalk.Logger
	subscriptions map[string]map[string]*memorySubscription
	matchers      map[string]glob.Glob // by pattern, same keys as subscriptions
	topicMutex    sync.RWMutex
	workerPool    chan func()
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	started       atomic.Bool

	deliveredCount uint64
	droppedCount   uint64
}

// memorySubscription represents a subscription in the memory event bus
type memorySubscription struct {
	id        string
	topic     string
	handler   EventHandler
	isAsync   bool
	eventCh   chan Event
	done      chan struct{}
	finished  chan struct{} // closed when the listener goroutine exits
	cancelled bool
	mutex     sync.RWMutex
}

func (s *memorySubscription) Topic() string {
	return s.topic
}

func (s *memorySubscription) ID() string {
	return s.id
}

func (s *memorySubscription) IsAsync() bool {
	return s.isAsync
}

func (s *memorySubscription) isCancelled() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.cancelled
}

// Cancel cancels the subscription
func (s *memorySubscription) Cancel() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.cancelled {
		return nil
	}
	close(s.done)
	s.cancelled = true
	return nil
}

// NewMemoryEventBus creates a new in-memory event bus
func NewMemoryEventBus(config *Config, logger petwalk.Logger) *MemoryEventBus {
	if logger == nil {
		logger = petwalk.NopLogger{}
	}
	return &MemoryEventBus{
		config:        config,
		logger:        logger,
		subscriptions: make(map[string]map[string]*memorySubscription),
		matchers:      make(map[string]glob.Glob),
	}
}

// Start launches the worker pool.
func (m *MemoryEventBus) Start(ctx context.Context) error {
	if m.started.Load() {
		return nil
	}

	m.ctx, m.cancel = context.WithCancel(ctx)
	m.workerPool = make(chan func(), m.config.WorkerCount*m.config.BufferSize)
	for i := 0; i < m.config.WorkerCount; i++ {
		m.wg.Add(1)
		go m.worker()
	}

	m.started.Store(true)
	return nil
}

// Stop shuts down the event bus
func (m *MemoryEventBus) Stop(ctx context.Context) error {
	if !m.started.Load() {
		return nil
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ErrEventBusShutdownTimeout
	}

	m.started.Store(false)
	return nil
}

// Publish sends an event to the specified topic
func (m *MemoryEventBus) Publish(ctx context.Context, event Event) error {
	if !m.started.Load() {
		return ErrEventBusNotStarted
	}

	event.CreatedAt = time.Now()
	if event.Metadata == nil {
		event.Metadata = make(map[string]any)
	}

	m.topicMutex.RLock()
	var matching []*memorySubscription
	for pattern, subs := range m.subscriptions {
		if !m.matchers[pattern].Match(event.Topic) {
			continue
		}
		for _, sub := range subs {
			matching = append(matching, sub)
		}
	}
	m.topicMutex.RUnlock()

	for _, sub := range matching {
		if sub.isCancelled() {
			continue
		}
		if !m.send(ctx, sub, event) {
			atomic.AddUint64(&m.droppedCount, 1)
			m.logger.Warn("Event dropped", "topic", event.Topic, "subscription", sub.id)
		}
	}
	return nil
}

func (m *MemoryEventBus) send(ctx context.Context, sub *memorySubscription, event Event) bool {
	switch m.config.DeliveryMode {
	case DeliveryBlock:
		select {
		case sub.eventCh <- event:
			return true
		case <-sub.done:
		case <-ctx.Done():
		}
		return false
	case DeliveryTimeout:
		timer := time.NewTimer(m.config.PublishBlockTimeout)
		defer timer.Stop()
		select {
		case sub.eventCh <- event:
			return true
		case <-timer.C:
		case <-sub.done:
		case <-ctx.Done():
		}
		return false
	default:
		select {
		case sub.eventCh <- event:
			return true
		default:
			return false
		}
	}
}

// Subscribe registers a handler for a topic
func (m *MemoryEventBus) Subscribe(ctx context.Context, topic string, handler EventHandler) (Subscription, error) {
	return m.subscribe(topic, handler, false)
}

// SubscribeAsync registers a handler for a topic with asynchronous processing
func (m *MemoryEventBus) SubscribeAsync(ctx context.Context, topic string, handler EventHandler) (Subscription, error) {
	return m.subscribe(topic, handler, true)
}

func (m *MemoryEventBus) subscribe(topic string, handler EventHandler, isAsync bool) (Subscription, error) {
	if !m.started.Load() {
		return nil, ErrEventBusNotStarted
	}
	if handler == nil {
		return nil, ErrEventHandlerNil
	}
	matcher, err := compileTopic(topic)
	if err != nil {
		return nil, err
	}

	sub := &memorySubscription{
		id:       uuid.NewString(),
		topic:    topic,
		handler:  handler,
		isAsync:  isAsync,
		eventCh:  make(chan Event, m.config.BufferSize),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	m.topicMutex.Lock()
	if _, ok := m.subscriptions[topic]; !ok {
		m.subscriptions[topic] = make(map[string]*memorySubscription)
		m.matchers[topic] = matcher
	}
	m.subscriptions[topic][sub.id] = sub
	m.topicMutex.Unlock()

	m.wg.Add(1)
	go m.handleEvents(sub)

	m.logger.Debug("Subscribed", "topic", topic, "subscription", sub.id, "async", isAsync)
	return sub, nil
}

// Unsubscribe removes a subscription
func (m *MemoryEventBus) Unsubscribe(ctx context.Context, subscription Subscription) error {
	sub, ok := subscription.(*memorySubscription)
	if !ok {
		return ErrInvalidSubscriptionType
	}
	if err := sub.Cancel(); err != nil {
		return err
	}

	m.topicMutex.Lock()
	if subs, ok := m.subscriptions[sub.topic]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(m.subscriptions, sub.topic)
			delete(m.matchers, sub.topic)
		}
	}
	m.topicMutex.Unlock()

	// Wait briefly for the listener. A handler unsubscribing itself would
	// otherwise wait on its own goroutine.
	select {
	case <-sub.finished:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
	}
	return nil
}

// Topics returns the active topic patterns, sorted.
func (m *MemoryEventBus) Topics() []string {
	m.topicMutex.RLock()
	defer m.topicMutex.RUnlock()

	topics := make([]string, 0, len(m.subscriptions))
	for topic := range m.subscriptions {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// SubscriberCount returns the number of subscribers for a topic pattern.
func (m *MemoryEventBus) SubscriberCount(topic string) int {
	m.topicMutex.RLock()
	defer m.topicMutex.RUnlock()
	return len(m.subscriptions[topic])
}

// Stats returns delivery counters.
func (m *MemoryEventBus) Stats() (delivered, dropped uint64) {
	return atomic.LoadUint64(&m.deliveredCount), atomic.LoadUint64(&m.droppedCount)
}

func (m *MemoryEventBus) handleEvents(sub *memorySubscription) {
	defer m.wg.Done()
	defer close(sub.finished)

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-sub.done:
			return
		case event := <-sub.eventCh:
			if sub.isCancelled() {
				return
			}
			if sub.isAsync {
				m.queueEventHandler(sub, event)
				continue
			}
			m.run(sub, event)
		}
	}
}

func (m *MemoryEventBus) run(sub *memorySubscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Event handler panicked", "topic", event.Topic, "subscription", sub.id, "panic", r)
		}
		atomic.AddUint64(&m.deliveredCount, 1)
	}()
	if err := sub.handler(m.ctx, event); err != nil {
		m.logger.Error("Event handler failed", "topic", event.Topic, "subscription", sub.id, "error", err)
	}
}

func (m *MemoryEventBus) queueEventHandler(sub *memorySubscription, event Event) {
	select {
	case m.workerPool <- func() { m.run(sub, event) }:
	default:
		atomic.AddUint64(&m.droppedCount, 1)
		m.logger.Warn("Worker pool full, event dropped", "topic", event.Topic, "subscription", sub.id)
	}
}

func (m *MemoryEventBus) worker() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case task := <-m.workerPool:
			task()
		}
	}
}
