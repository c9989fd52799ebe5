package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/taxigo/dispatch/internal/domain/driver"
	"github.com/taxigo/dispatch/pkg/logger"
)

// LocationMirror reflects last-known driver locations into an external
// geo index. Mirroring is best-effort; the in-memory registry stays
// authoritative.
type LocationMirror interface {
	Upsert(ctx context.Context, driverID string, lat, lng float64) error
	Remove(ctx context.Context, driverID string) error
}

// Registry tracks currently-connected drivers, their availability and
// last-known location. It is purely in-memory and ephemeral; records live
// only as long as the driver's session.
type Registry struct {
	mu        sync.RWMutex
	byDriver  map[string]*driver.Record
	bySession map[string]string // session id -> driver id

	broadcaster *Broadcaster
	mirror      LocationMirror
	logger      *logger.Logger
}

// NewRegistry creates an empty driver registry. mirror may be nil.
func NewRegistry(bc *Broadcaster, mirror LocationMirror, log *logger.Logger) *Registry {
	return &Registry{
		byDriver:    make(map[string]*driver.Record),
		bySession:   make(map[string]string),
		broadcaster: bc,
		mirror:      mirror,
		logger:      log,
	}
}

// SetOnline inserts or replaces the record for driverID and binds it to the
// calling session. A repeated declaration from the same driver replaces the
// old record, so the registry never holds two entries per driver id.
func (r *Registry) SetOnline(ctx context.Context, driverID, sessionID string, loc driver.Location, vehicle driver.Vehicle) {
	loc.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	if old, ok := r.byDriver[driverID]; ok && old.SessionID != sessionID {
		delete(r.bySession, old.SessionID)
	}
	r.byDriver[driverID] = &driver.Record{
		DriverID:  driverID,
		SessionID: sessionID,
		Status:    driver.StatusOnline,
		Location:  loc,
		Vehicle:   vehicle,
	}
	r.bySession[sessionID] = driverID
	r.mu.Unlock()

	r.mirrorUpsert(ctx, driverID, loc)
	r.logger.Info("Driver online",
		logger.String("driver_id", driverID),
		logger.String("session_id", sessionID),
	)
	r.broadcastSnapshot()
}

// UpdateLocation updates the record bound to sessionID. A stale session with
// no bound record is a logged no-op: location ticks routinely race with
// disconnects and must not fail.
func (r *Registry) UpdateLocation(ctx context.Context, sessionID string, lat, lng float64) {
	now := time.Now().UTC()

	r.mu.Lock()
	driverID, ok := r.bySession[sessionID]
	if !ok {
		r.mu.Unlock()
		r.logger.Debug("Location update from unbound session dropped",
			logger.String("session_id", sessionID))
		return
	}
	rec := r.byDriver[driverID]
	rec.Location = driver.Location{Latitude: lat, Longitude: lng, UpdatedAt: now}
	r.mu.Unlock()

	r.mirrorUpsert(ctx, driverID, driver.Location{Latitude: lat, Longitude: lng})

	// Scoped to location watchers only, not the whole registry audience.
	r.broadcaster.Publish(TopicLocations, EventDriverLocationChanged, map[string]interface{}{
		"driver_id": driverID,
		"location":  map[string]float64{"latitude": lat, "longitude": lng},
	})
}

// SetOnRide marks a driver busy. Called by the ride lifecycle on accept.
func (r *Registry) SetOnRide(driverID string) error {
	return r.setStatus(driverID, driver.StatusOnRide)
}

// SetAvailable returns a driver to the available pool after completion or
// cancellation.
func (r *Registry) SetAvailable(driverID string) error {
	return r.setStatus(driverID, driver.StatusOnline)
}

func (r *Registry) setStatus(driverID string, status driver.Status) error {
	r.mu.Lock()
	rec, ok := r.byDriver[driverID]
	if !ok {
		r.mu.Unlock()
		return driver.ErrNotRegistered
	}
	rec.Status = status
	r.mu.Unlock()

	r.broadcastSnapshot()
	return nil
}

// Remove drops the record bound to sessionID, if any. Called on disconnect
// and on explicit offline declarations.
func (r *Registry) Remove(ctx context.Context, sessionID string) {
	r.mu.Lock()
	driverID, ok := r.bySession[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.bySession, sessionID)
	delete(r.byDriver, driverID)
	r.mu.Unlock()

	if r.mirror != nil {
		if err := r.mirror.Remove(ctx, driverID); err != nil {
			r.logger.Warn("Failed to remove driver from location mirror",
				logger.String("driver_id", driverID), logger.Err(err))
		}
	}

	r.logger.Info("Driver removed from registry",
		logger.String("driver_id", driverID),
		logger.String("session_id", sessionID),
	)
	r.broadcastSnapshot()
}

// Lookup returns the live record for a driver id.
func (r *Registry) Lookup(driverID string) (driver.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byDriver[driverID]
	if !ok {
		return driver.Record{}, false
	}
	return *rec, true
}

// ListAvailable returns a snapshot of drivers currently accepting rides.
// The snapshot does not track later registry changes.
func (r *Registry) ListAvailable() []driver.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]driver.Record, 0, len(r.byDriver))
	for _, rec := range r.byDriver {
		if rec.Available() {
			out = append(out, *rec)
		}
	}
	return out
}

// Snapshot returns all live records regardless of availability.
func (r *Registry) Snapshot() []driver.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]driver.Record, 0, len(r.byDriver))
	for _, rec := range r.byDriver {
		out = append(out, *rec)
	}
	return out
}

func (r *Registry) broadcastSnapshot() {
	r.broadcaster.Publish(TopicDispatchers, EventDriversUpdated, map[string]interface{}{
		"drivers": r.ListAvailable(),
	})
}

func (r *Registry) mirrorUpsert(ctx context.Context, driverID string, loc driver.Location) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.Upsert(ctx, driverID, loc.Latitude, loc.Longitude); err != nil {
		r.logger.Warn("Failed to mirror driver location",
			logger.String("driver_id", driverID), logger.Err(err))
	}
}
