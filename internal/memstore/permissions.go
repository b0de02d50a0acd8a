package memstore

import (
	"context"
	"sync"

	"github.com/oxidesk/deskcore/domain/ports"
)

// Permissions is an in-memory ports.PermissionChecker: a flat
// (userID, permission) grant set.
type Permissions struct {
	mu     sync.Mutex
	grants map[string]map[string]struct{}
}

func NewPermissions() *Permissions {
	return &Permissions{grants: map[string]map[string]struct{}{}}
}

// Grant gives userID permission, for test setup.
func (p *Permissions) Grant(userID, permission string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.grants[userID] == nil {
		p.grants[userID] = map[string]struct{}{}
	}
	p.grants[userID][permission] = struct{}{}
}

func (p *Permissions) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.grants[userID][permission]
	return ok, nil
}

var _ ports.PermissionChecker = (*Permissions)(nil)
