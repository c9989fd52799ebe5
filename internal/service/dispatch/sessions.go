package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/taxigo/dispatch/pkg/errors"
	"github.com/taxigo/dispatch/pkg/logger"
)

// Binding maps a live transport session to its role and identity.
type Binding struct {
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Identity  string    `json:"identity"`
	BoundAt   time.Time `json:"bound_at"`
}

// Directory is the session directory: it resolves "who is this session"
// for every other component and drives cleanup cascades on disconnect.
type Directory struct {
	mu       sync.RWMutex
	sessions map[string]Binding

	registry    *Registry
	broadcaster *Broadcaster
	logger      *logger.Logger
}

// NewDirectory creates an empty session directory.
func NewDirectory(registry *Registry, bc *Broadcaster, log *logger.Logger) *Directory {
	return &Directory{
		sessions:    make(map[string]Binding),
		registry:    registry,
		broadcaster: bc,
		logger:      log,
	}
}

// Bind records the role and identity of a session. Rebinding the same
// session replaces the previous binding; a session never holds two roles.
func (d *Directory) Bind(sessionID string, role Role, identity string) error {
	if !role.IsValid() {
		return errors.Validation("unknown session role")
	}
	if identity == "" {
		return errors.Validation("session identity is required")
	}

	d.mu.Lock()
	d.sessions[sessionID] = Binding{
		SessionID: sessionID,
		Role:      role,
		Identity:  identity,
		BoundAt:   time.Now().UTC(),
	}
	d.mu.Unlock()

	d.logger.Info("Session bound",
		logger.String("session_id", sessionID),
		logger.String("role", string(role)),
		logger.String("identity", identity),
	)
	return nil
}

// Lookup resolves a session to its binding.
func (d *Directory) Lookup(sessionID string) (Binding, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.sessions[sessionID]
	return b, ok
}

// Unbind destroys the binding and cascades cleanup: driver sessions are
// pruned from the registry, and all topic subscriptions are dropped.
func (d *Directory) Unbind(ctx context.Context, sessionID string) {
	d.mu.Lock()
	b, ok := d.sessions[sessionID]
	delete(d.sessions, sessionID)
	d.mu.Unlock()

	if !ok {
		return
	}

	if b.Role == RoleDriver {
		d.registry.Remove(ctx, sessionID)
	}
	d.broadcaster.DropSession(sessionID)

	d.logger.Info("Session unbound",
		logger.String("session_id", sessionID),
		logger.String("role", string(b.Role)),
	)
}

// Count returns the number of bound sessions.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.sessions)
}
