// Package events fans timeline activity out to in-process subscribers and
// optionally records it in the activity log.
package events

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tOgg1/cheerfeed/internal/logging"
	"github.com/tOgg1/cheerfeed/internal/models"
)

// EventHandler is invoked when an event matches a subscription. Handlers
// run on the publishing goroutine and must not block.
type EventHandler func(event *models.Event)

// Repository persists published events.
type Repository interface {
	Create(ctx context.Context, event *models.Event) error
}

// Pruner trims the persisted log to a maximum size.
type Pruner interface {
	DeleteExcess(ctx context.Context, maxCount int) (int64, error)
}

// Filter defines criteria for matching events.
type Filter struct {
	// EventTypes filters by event type (nil = all types).
	EventTypes []models.EventType

	// EntityTypes filters by entity type (nil = all entities).
	EntityTypes []models.EntityType

	// EntityID filters to a specific entity ID (empty = all).
	EntityID string
}

// Matches returns true if the event matches the filter criteria.
func (f *Filter) Matches(event *models.Event) bool {
	if event == nil {
		return false
	}
	if len(f.EventTypes) > 0 && !slices.Contains(f.EventTypes, event.Type) {
		return false
	}
	if len(f.EntityTypes) > 0 && !slices.Contains(f.EntityTypes, event.EntityType) {
		return false
	}
	return f.EntityID == "" || event.EntityID == f.EntityID
}

type subscription struct {
	filter  Filter
	handler EventHandler
}

// Publisher defines the interface for event publishing and subscription.
type Publisher interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event *models.Event)

	// Subscribe registers a handler to receive events matching the filter.
	Subscribe(id string, filter Filter, handler EventHandler) error

	// Unsubscribe removes a subscription by ID.
	Unsubscribe(id string) error

	// SubscriberCount returns the number of active subscribers.
	SubscriberCount() int
}

// InMemoryPublisher implements Publisher using in-process pub/sub.
type InMemoryPublisher struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription

	repo       Repository
	retention  int
	pruneEvery int
	published  int
	logger     zerolog.Logger
}

// PublisherOption configures an InMemoryPublisher.
type PublisherOption func(*InMemoryPublisher)

// WithRepository configures the publisher to also persist events.
func WithRepository(repo Repository) PublisherOption {
	return func(p *InMemoryPublisher) {
		p.repo = repo
	}
}

// WithRetention keeps at most maxEvents in the repository. The log is
// trimmed every pruneEvery publishes when the repository supports it.
func WithRetention(maxEvents, pruneEvery int) PublisherOption {
	return func(p *InMemoryPublisher) {
		p.retention = maxEvents
		p.pruneEvery = pruneEvery
	}
}

// NewInMemoryPublisher creates a new in-memory event publisher.
func NewInMemoryPublisher(opts ...PublisherOption) *InMemoryPublisher {
	p := &InMemoryPublisher{
		subscriptions: make(map[string]*subscription),
		pruneEvery:    100,
		logger:        logging.Component("events"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish sends an event to all matching subscribers. If a repository is
// configured the event is persisted first; persistence failures are logged
// and never block delivery.
func (p *InMemoryPublisher) Publish(ctx context.Context, event *models.Event) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if p.repo != nil {
		if err := p.repo.Create(ctx, event); err != nil {
			p.logger.Warn().Err(err).Str("event_type", string(event.Type)).Msg("failed to persist event")
		}
		p.maybePrune(ctx)
	}

	p.mu.RLock()
	var handlers []EventHandler
	for _, sub := range p.subscriptions {
		if sub.filter.Matches(event) {
			handlers = append(handlers, sub.handler)
		}
	}
	p.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (p *InMemoryPublisher) maybePrune(ctx context.Context) {
	pruner, ok := p.repo.(Pruner)
	if !ok || p.retention <= 0 || p.pruneEvery <= 0 {
		return
	}

	p.mu.Lock()
	p.published++
	due := p.published%p.pruneEvery == 0
	p.mu.Unlock()
	if !due {
		return
	}

	deleted, err := pruner.DeleteExcess(ctx, p.retention)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to prune event log")
		return
	}
	if deleted > 0 {
		p.logger.Debug().Int64("deleted", deleted).Msg("pruned event log")
	}
}

// Subscribe registers a handler to receive events matching the filter.
func (p *InMemoryPublisher) Subscribe(id string, filter Filter, handler EventHandler) error {
	if id == "" {
		return ErrInvalidSubscriptionID
	}
	if handler == nil {
		return ErrNilHandler
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; exists {
		return ErrSubscriptionExists
	}
	p.subscriptions[id] = &subscription{filter: filter, handler: handler}
	return nil
}

// Unsubscribe removes a subscription by ID.
func (p *InMemoryPublisher) Unsubscribe(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.subscriptions[id]; !exists {
		return ErrSubscriptionNotFound
	}
	delete(p.subscriptions, id)
	return nil
}

// SubscriberCount returns the number of active subscribers.
func (p *InMemoryPublisher) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subscriptions)
}

// Close removes all subscriptions.
func (p *InMemoryPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions = make(map[string]*subscription)
}

// Errors for publisher operations.
var (
	ErrInvalidSubscriptionID = &PublisherError{Message: "subscription ID is required"}
	ErrNilHandler            = &PublisherError{Message: "handler cannot be nil"}
	ErrSubscriptionExists    = &PublisherError{Message: "subscription with this ID already exists"}
	ErrSubscriptionNotFound  = &PublisherError{Message: "subscription not found"}
)

// PublisherError represents an error from publisher operations.
type PublisherError struct {
	Message string
}

func (e *PublisherError) Error() string {
	return e.Message
}
