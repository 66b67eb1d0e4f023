package models

import (
	"encoding/json"
	"time"
)

// EventType categorizes timeline activity.
type EventType string

const (
	// Post events
	EventTypePostCreated    EventType = "post.created"
	EventTypePostSettled    EventType = "post.settled"
	EventTypePostMoreLoaded EventType = "post.more_loaded"

	// Reply events
	EventTypeReplyRevealed   EventType = "reply.revealed"
	EventTypeReplyChildAdded EventType = "reply.child_added"
	EventTypeReplyUpdated    EventType = "reply.updated"

	// Quote-repost events
	EventTypeQuoteCreated EventType = "quote.created"
	EventTypeQuoteSkipped EventType = "quote.skipped"
	EventTypeQuoteUpdated EventType = "quote.updated"

	// Service events
	EventTypeQuotaDenied        EventType = "quota.denied"
	EventTypeServiceUnavailable EventType = "service.unavailable"
	EventTypeUserRenamed        EventType = "user.renamed"
)

// EntityType identifies the kind of entity an event relates to.
type EntityType string

const (
	EntityTypePost   EntityType = "post"
	EntityTypeQuote  EntityType = "quote"
	EntityTypeReply  EntityType = "reply"
	EntityTypeUser   EntityType = "user"
	EntityTypeSystem EntityType = "system"
)

// ErrorClass is the user-facing failure taxonomy. Failures are written into
// the affected entity as text, the class travels with the event.
type ErrorClass string

const (
	ErrorClassQuotaDenied        ErrorClass = "quota_denied"
	ErrorClassServiceUnavailable ErrorClass = "service_unavailable"
	ErrorClassEmptyResult        ErrorClass = "empty_result"
	ErrorClassTransportFailure   ErrorClass = "transport_failure"
)

// Event represents an append-only log entry.
type Event struct {
	ID         string            `json:"id"`
	Timestamp  time.Time         `json:"timestamp"`
	Type       EventType         `json:"type"`
	EntityType EntityType        `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TimelinePayload is the payload carried by timeline events.
type TimelinePayload struct {
	ItemID   string     `json:"item_id,omitempty"`
	ReplyID  string     `json:"reply_id,omitempty"`
	Count    int        `json:"count,omitempty"`
	Revealed int        `json:"revealed,omitempty"`
	Class    ErrorClass `json:"class,omitempty"`
	Message  string     `json:"message,omitempty"`
}

// NewEvent builds an event with a marshalled payload. ID and Timestamp are
// filled in by the publisher's repository when left empty.
func NewEvent(eventType EventType, entityType EntityType, entityID string, payload any) *Event {
	event := &Event{
		Type:       eventType,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			event.Payload = data
		}
	}
	return event
}
