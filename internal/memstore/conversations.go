// Package memstore is an in-memory implementation of every repository
// port in domain/ports, used by package tests across the core and as a
// reference for what the Postgres implementation must preserve
// behaviorally (version checks, mutual exclusion, idempotent tag sets).
// It is not meant for production use: no persistence, a single global
// mutex per store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oxidesk/deskcore/domain"
	"github.com/oxidesk/deskcore/domain/ports"
	svcerrors "github.com/oxidesk/deskcore/infrastructure/errors"
)

// Conversations is an in-memory ports.ConversationRepository.
type Conversations struct {
	mu       sync.Mutex
	byID     map[string]*domain.Conversation
	byRef    map[int64]string
	tags     map[string]map[string]struct{}
	nextRef  int64
}

func NewConversations() *Conversations {
	return &Conversations{
		byID:    map[string]*domain.Conversation{},
		byRef:   map[int64]string{},
		tags:    map[string]map[string]struct{}{},
		nextRef: 1,
	}
}

func (r *Conversations) GetByID(ctx context.Context, id string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, svcerrors.NewNotFound("conversation", id)
	}
	cp := *c
	return &cp, nil
}

func (r *Conversations) GetByReferenceNumber(ctx context.Context, ref int64) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byRef[ref]
	if !ok {
		return nil, svcerrors.NewNotFound("conversation", "")
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *Conversations) Create(ctx context.Context, c *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ReferenceNumber == 0 {
		c.ReferenceNumber = r.nextRef
		r.nextRef++
	}
	c.Version = 1
	cp := *c
	r.byID[c.ID] = &cp
	r.byRef[c.ReferenceNumber] = c.ID
	r.tags[c.ID] = map[string]struct{}{}
	for t := range c.Tags {
		r.tags[c.ID][t] = struct{}{}
	}
	return nil
}

func (r *Conversations) checkVersion(id string, expected int64) (*domain.Conversation, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, svcerrors.NewNotFound("conversation", id)
	}
	if c.Version != expected {
		return nil, svcerrors.NewConflict("conversation version mismatch")
	}
	return c, nil
}

func (r *Conversations) UpdateFields(ctx context.Context, id string, expectedVersion int64, status domain.ConversationStatus, resolvedAt, closedAt, snoozedUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.checkVersion(id, expectedVersion)
	if err != nil {
		return err
	}
	c.Status = status
	c.ResolvedAt = resolvedAt
	c.ClosedAt = closedAt
	c.SnoozedUntil = snoozedUntil
	c.Version++
	c.UpdatedAt = time.Now()
	return nil
}

func (r *Conversations) AssignToUser(ctx context.Context, id, userID, actorID string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.checkVersion(id, expectedVersion)
	if err != nil {
		return err
	}
	c.AssignedUserID = &userID
	c.Version++
	return nil
}

func (r *Conversations) AssignToTeam(ctx context.Context, id, teamID string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.checkVersion(id, expectedVersion)
	if err != nil {
		return err
	}
	c.AssignedTeamID = &teamID
	c.Version++
	return nil
}

func (r *Conversations) UnassignUser(ctx context.Context, id string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.checkVersion(id, expectedVersion)
	if err != nil {
		return err
	}
	c.AssignedUserID = nil
	c.Version++
	return nil
}

func (r *Conversations) UnassignOpenForAgent(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, c := range r.byID {
		if c.AssignedUserID != nil && *c.AssignedUserID == userID &&
			(c.Status == domain.StatusOpen || c.Status == domain.StatusSnoozed) {
			c.AssignedUserID = nil
			c.Version++
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func (r *Conversations) List(ctx context.Context, limit, offset int, filter ports.ConversationFilter) ([]domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Conversation
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		c := r.byID[id]
		if !matches(c, filter, r.tags[id]) {
			continue
		}
		out = append(out, *c)
	}
	if offset >= len(out) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(out) {
		end = len(out)
	}
	return out[offset:end], nil
}

func (r *Conversations) Count(ctx context.Context, filter ports.ConversationFilter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, c := range r.byID {
		if matches(c, filter, r.tags[id]) {
			n++
		}
	}
	return n, nil
}

func matches(c *domain.Conversation, f ports.ConversationFilter, tags map[string]struct{}) bool {
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.AssignedUserID != nil && (c.AssignedUserID == nil || *c.AssignedUserID != *f.AssignedUserID) {
		return false
	}
	if f.AssignedTeamID != nil && (c.AssignedTeamID == nil || *c.AssignedTeamID != *f.AssignedTeamID) {
		return false
	}
	if f.Tag != nil {
		if _, ok := tags[*f.Tag]; !ok {
			return false
		}
	}
	return true
}

func (r *Conversations) SetPriority(ctx context.Context, id string, priority *domain.Priority, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, err := r.checkVersion(id, expectedVersion)
	if err != nil {
		return err
	}
	c.Priority = priority
	c.Version++
	return nil
}

func (r *Conversations) AddTag(ctx context.Context, id, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return svcerrors.NewNotFound("conversation", id)
	}
	if r.tags[id] == nil {
		r.tags[id] = map[string]struct{}{}
	}
	r.tags[id][tag] = struct{}{}
	return nil
}

func (r *Conversations) RemoveTag(ctx context.Context, id, tag string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return svcerrors.NewNotFound("conversation", id)
	}
	delete(r.tags[id], tag)
	return nil
}

func (r *Conversations) GetTags(ctx context.Context, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.tags[id]
	if !ok {
		return nil, svcerrors.NewNotFound("conversation", id)
	}
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

var _ ports.ConversationRepository = (*Conversations)(nil)
