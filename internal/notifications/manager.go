package notifications

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultQueueSize is the maximum number of events that can be queued.
	DefaultQueueSize = 100

	// drainTimeout bounds delivery of each remaining event during shutdown.
	drainTimeout = 5 * time.Second
)

// Manager coordinates notification delivery across multiple providers.
// It uses an async bounded queue so a slow notifier can never block a
// phase transition.
type Manager struct {
	providers []NotificationProvider
	queue     chan RolloutEvent
	wg        sync.WaitGroup
	mu        sync.RWMutex
	running   bool
	done      chan struct{}

	droppedCount int64
	droppedMu    sync.Mutex
}

// NewManager creates a new notification manager with the specified queue size.
// If queueSize is 0, DefaultQueueSize is used.
func NewManager(queueSize int) *Manager {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Manager{
		providers: make([]NotificationProvider, 0),
		queue:     make(chan RolloutEvent, queueSize),
		done:      make(chan struct{}),
	}
}

// RegisterProvider adds a notification provider to the manager.
func (m *Manager) RegisterProvider(provider NotificationProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers = append(m.providers, provider)
}

// Providers returns a copy of the registered providers.
func (m *Manager) Providers() []NotificationProvider {
	m.mu.RLock()
	defer m.mu.RUnlock()
	providers := make([]NotificationProvider, len(m.providers))
	copy(providers, m.providers)
	return providers
}

// Start begins the background notification worker goroutine.
// This must be called before sending events.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.worker(ctx)
}

// Stop gracefully shuts down the notification manager.
// It waits for pending notifications to be processed.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
}

// Send queues a rollout event for notification delivery.
// If the queue is full the event is dropped and counted.
// This method never blocks - notifications are best-effort.
func (m *Manager) Send(event RolloutEvent) {
	m.mu.RLock()
	if !m.running {
		m.mu.RUnlock()
		return
	}
	m.mu.RUnlock()

	select {
	case m.queue <- event:
		// Event queued successfully
	default:
		m.droppedMu.Lock()
		m.droppedCount++
		m.droppedMu.Unlock()

		incrementDroppedCounter()
	}
}

// DroppedCount returns the number of events dropped due to queue overflow.
func (m *Manager) DroppedCount() int64 {
	m.droppedMu.Lock()
	defer m.droppedMu.Unlock()
	return m.droppedCount
}

// worker processes events from the queue and dispatches to providers.
func (m *Manager) worker(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			m.drainQueue()
			return
		case <-m.done:
			m.drainQueue()
			return
		case event, ok := <-m.queue:
			if !ok {
				return
			}
			m.dispatchEvent(ctx, event)
		}
	}
}

// drainQueue processes any remaining events in the queue.
func (m *Manager) drainQueue() {
	for {
		select {
		case event, ok := <-m.queue:
			if !ok {
				return
			}
			drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			m.dispatchEvent(drainCtx, event)
			cancel()
		default:
			return
		}
	}
}

// dispatchEvent sends an event to all providers that support it.
func (m *Manager) dispatchEvent(ctx context.Context, event RolloutEvent) {
	m.mu.RLock()
	providers := m.providers
	m.mu.RUnlock()

	for _, provider := range providers {
		if !provider.SupportsEvent(event.Type) {
			continue
		}

		// Delivery failures must not surface into the rollout.
		if err := provider.Send(ctx, event); err != nil {
			incrementFailedCounter(provider.Name())
		}
	}
}
