// Package domain holds the data model shared by every engine in the
// automation core: conversations, automation rules, SLA entities, agent
// availability, jobs, and webhooks. Types here carry no behavior beyond
// small invariant-preserving helpers; mutation always goes through the
// owning engine and its repository port.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// ConversationStatus is one of the four states a conversation can be in.
type ConversationStatus string

const (
	StatusOpen     ConversationStatus = "open"
	StatusSnoozed  ConversationStatus = "snoozed"
	StatusResolved ConversationStatus = "resolved"
	StatusClosed   ConversationStatus = "closed"
)

// Priority is optional on a conversation; the zero value means unset.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Conversation is the central entity the rest of the core mutates.
type Conversation struct {
	ID              string
	ReferenceNumber int64
	Status          ConversationStatus
	Priority        *Priority
	AssignedUserID  *string
	AssignedTeamID  *string
	Subject         string
	Tags            map[string]struct{}

	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
	ClosedAt     *time.Time
	SnoozedUntil *time.Time

	Version int64
}

// TagList returns the conversation's tags as a slice in map iteration
// order (unsorted). Callers that need deterministic ordering should sort
// the result.
func (c *Conversation) TagList() []string {
	out := make([]string, 0, len(c.Tags))
	for t := range c.Tags {
		out = append(out, t)
	}
	return out
}

// HasTag reports membership, the basis for the condition evaluator's
// Contains semantics over the tags attribute.
func (c *Conversation) HasTag(tag string) bool {
	_, ok := c.Tags[tag]
	return ok
}

// Snapshot is an immutable copy of conversation state handed to the
// condition evaluator and rule engine. Engines never mutate a Snapshot;
// they re-fetch from the repository to act on fresh state.
type Snapshot struct {
	ID              string
	ReferenceNumber int64
	Status          ConversationStatus
	Priority        *Priority
	AssignedUserID  *string
	AssignedTeamID  *string
	Tags            []string
	CreatedAt       time.Time
	Version         int64
}

// Snapshot takes a point-in-time copy suitable for condition evaluation.
func (c *Conversation) Snapshot() Snapshot {
	return Snapshot{
		ID:              c.ID,
		ReferenceNumber: c.ReferenceNumber,
		Status:          c.Status,
		Priority:        c.Priority,
		AssignedUserID:  c.AssignedUserID,
		AssignedTeamID:  c.AssignedTeamID,
		Tags:            c.TagList(),
		CreatedAt:       c.CreatedAt,
		Version:         c.Version,
	}
}

// AttributeJSON renders the subset of Snapshot fields the condition
// evaluator resolves attributes against, as canonical JSON: enums
// lowercased, absent values null. The condition evaluator extracts
// fields from this document with gjson rather than reflecting over the
// struct, so the attribute table in spec.md §4.3 is the only thing a
// reader needs to cross-reference.
func (s Snapshot) AttributeJSON() []byte {
	priority := "null"
	if s.Priority != nil {
		priority = `"` + strings.ToLower(string(*s.Priority)) + `"`
	}
	assignedUser := "null"
	if s.AssignedUserID != nil {
		assignedUser = `"` + *s.AssignedUserID + `"`
	}
	assignedTeam := "null"
	if s.AssignedTeamID != nil {
		assignedTeam = `"` + *s.AssignedTeamID + `"`
	}
	tags, _ := json.Marshal(s.Tags)

	var b strings.Builder
	b.WriteString(`{"status":"`)
	b.WriteString(strings.ToLower(string(s.Status)))
	b.WriteString(`","priority":`)
	b.WriteString(priority)
	b.WriteString(`,"tags":`)
	b.Write(tags)
	b.WriteString(`,"assigned_user_id":`)
	b.WriteString(assignedUser)
	b.WriteString(`,"assigned_team_id":`)
	b.WriteString(assignedTeam)
	b.WriteString(`}`)
	return []byte(b.String())
}
