package events

import "time"

// EventType names the wire/subscription string for a SystemEvent kind
// (spec §4.1, §6.2 "Enums on wire").
type EventType string

const (
	ConversationCreated        EventType = "conversation.created"
	ConversationStatusChanged  EventType = "conversation.status_changed"
	ConversationAssigned       EventType = "conversation.assigned"
	ConversationUnassigned     EventType = "conversation.unassigned"
	ConversationTagsChanged    EventType = "conversation.tags_changed"
	ConversationPriorityChanged EventType = "conversation.priority_changed"
	MessageReceived            EventType = "message.received"
	MessageSent                EventType = "message.sent"
	MessageFailed              EventType = "message.failed"
	SlaBreachedEvent           EventType = "sla.breached"
	AgentAvailabilityChanged   EventType = "agent.availability_changed"
	AgentLoggedIn              EventType = "agent.logged_in"
	AgentLoggedOut             EventType = "agent.logged_out"
)

// SystemEvent is the tagged union broadcast on the bus. Type selects
// which of the optional fields are populated; Data carries any
// type-specific payload not promoted to a named field (kept loose so the
// webhook envelope and rule-engine attribute lookups can both work off
// of it without a field explosion per event type).
type SystemEvent struct {
	Type           EventType
	ConversationID string
	ActorID        string
	OccurredAt     time.Time
	CascadeDepth   int

	// Before/after values, populated depending on Type.
	Before map[string]any
	After  map[string]any
	Data   map[string]any
}

// New builds a SystemEvent with OccurredAt stamped to now (the caller's
// clock, so tests can inject a fixed time.Time via the TimeService port
// one layer up rather than here).
func New(t EventType, conversationID, actorID string, now time.Time) SystemEvent {
	return SystemEvent{
		Type:           t,
		ConversationID: conversationID,
		ActorID:        actorID,
		OccurredAt:     now,
		Data:           map[string]any{},
	}
}

// WithData sets a single Data field and returns the event for chaining.
func (e SystemEvent) WithData(key string, value any) SystemEvent {
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	e.Data[key] = value
	return e
}

// Cascaded returns a copy of e re-stamped for re-entry into the rule
// engine at depth+1 (spec §4.4 cascade).
func (e SystemEvent) Cascaded(depth int) SystemEvent {
	e.CascadeDepth = depth
	return e
}
