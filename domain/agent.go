package domain

import "time"

// AvailabilityStatus is the agent presence state machine driven by §4.8.
type AvailabilityStatus string

const (
	AvailabilityOnline             AvailabilityStatus = "Online"
	AvailabilityAway               AvailabilityStatus = "Away"
	AvailabilityAwayManual         AvailabilityStatus = "AwayManual"
	AvailabilityAwayAndReassigning AvailabilityStatus = "AwayAndReassigning"
	AvailabilityOffline            AvailabilityStatus = "Offline"
)

// AgentAvailability is the presence record for one agent.
type AgentAvailability struct {
	UserID         string
	Status         AvailabilityStatus
	LastActivityAt time.Time
	AwaySince      *time.Time
	LastLoginAt    *time.Time
}

// AvailabilityChangeReason is carried on AgentAvailabilityChanged events
// and AgentActivityLog rows.
type AvailabilityChangeReason string

const (
	ReasonManual             AvailabilityChangeReason = "manual"
	ReasonLogin               AvailabilityChangeReason = "login"
	ReasonLogout              AvailabilityChangeReason = "logout"
	ReasonInactivityTimeout   AvailabilityChangeReason = "inactivity_timeout"
	ReasonMaxIdleThreshold    AvailabilityChangeReason = "max_idle_threshold"
)

// AgentActivityLog is an append-only audit row for every availability
// transition (§4.8 final paragraph).
type AgentActivityLog struct {
	ID        string
	UserID    string
	EventType string
	OldStatus AvailabilityStatus
	NewStatus AvailabilityStatus
	Metadata  map[string]any
	CreatedAt time.Time
}

// Team groups agents for team-assignment and business-hours SLA lookup.
type Team struct {
	ID                string
	Name              string
	MemberUserIDs     map[string]struct{}
	BusinessHours     *BusinessHours
	DefaultSlaPolicyID *string
}

// IsMember reports team membership.
func (t *Team) IsMember(userID string) bool {
	_, ok := t.MemberUserIDs[userID]
	return ok
}

// AssignmentHistory is an append-only row written on every successful
// assignment operation (§4.7 "History").
type AssignmentHistory struct {
	ID             string
	ConversationID string
	UserID         *string
	TeamID         *string
	ActorID        string
	CreatedAt      time.Time
}

// UserNotification is the durable record behind the best-effort
// real-time push (§4.7 "Notifications").
type UserNotification struct {
	ID             string
	UserID         string
	Kind           string
	ConversationID *string
	Payload        map[string]any
	CreatedAt      time.Time
	ReadAt         *time.Time
}
