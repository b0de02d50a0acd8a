package domain

import "time"

// SlaPolicy defines the three clocks a conversation may be held to.
// Each duration is stored already normalized to seconds; the wire-format
// literal parsing lives in domain.ParseDurationLiteral (§6.2 grammar).
type SlaPolicy struct {
	ID                string
	Name              string
	FirstResponseTime time.Duration
	ResolutionTime    time.Duration
	NextResponseTime  time.Duration
}

// SlaStatus is shared by AppliedSla and SlaEvent.
type SlaStatus string

const (
	SlaPending  SlaStatus = "Pending"
	SlaMet      SlaStatus = "Met"
	SlaBreached SlaStatus = "Breached"
)

// AppliedSla binds a policy to one conversation.
type AppliedSla struct {
	ID                     string
	ConversationID         string
	SlaPolicyID            string
	Status                 SlaStatus
	FirstResponseDeadline  time.Time
	ResolutionDeadline     time.Time
	AppliedAt              time.Time
}

// SlaEventType is one of the three clocks tracked per applied SLA.
type SlaEventType string

const (
	SlaEventFirstResponse SlaEventType = "first_response"
	SlaEventResolution    SlaEventType = "resolution"
	SlaEventNextResponse  SlaEventType = "next_response"
)

// SlaEvent tracks one deadline. The mutual-exclusion invariant (§4.6,
// §8-1) is enforced by the repository, not here: this struct can
// represent an invalid state in memory only transiently, during
// construction, before a repository call validates the transition.
type SlaEvent struct {
	ID           string
	AppliedSlaID string
	EventType    SlaEventType
	Status       SlaStatus
	DeadlineAt   time.Time
	MetAt        *time.Time
	BreachedAt   *time.Time
}

// Valid reports whether the event satisfies the §8 invariant 1 mutual
// exclusion and status/timestamp coupling.
func (e *SlaEvent) Valid() bool {
	switch e.Status {
	case SlaPending:
		return e.MetAt == nil && e.BreachedAt == nil
	case SlaMet:
		return e.MetAt != nil && e.BreachedAt == nil
	case SlaBreached:
		return e.BreachedAt != nil && e.MetAt == nil
	default:
		return false
	}
}

// BusinessHours describes the (timezone, weekly schedule, holidays)
// tuple business-hour SLA arithmetic is computed against (§4.6 step 3).
type BusinessHours struct {
	Timezone string // IANA zone name
	Weekly   [7]DaySchedule
	Holidays map[string]struct{} // "2006-01-02" formatted dates
}

// DaySchedule is a single open/close window per weekday. A zero value
// (Open == Close) means the team is closed that day.
type DaySchedule struct {
	Open  time.Duration // offset from local midnight
	Close time.Duration
}

// OpenAt reports whether instant t (already converted to the team's local
// timezone) falls within the weekly schedule and isn't a holiday.
func (b *BusinessHours) OpenAt(t time.Time) bool {
	dateKey := t.Format("2006-01-02")
	if _, holiday := b.Holidays[dateKey]; holiday {
		return false
	}
	day := b.Weekly[int(t.Weekday())]
	if day.Open == day.Close {
		return false
	}
	sinceMidnight := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
	return sinceMidnight >= day.Open && sinceMidnight < day.Close
}
