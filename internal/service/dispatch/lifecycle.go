package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taxigo/dispatch/internal/domain/ride"
	"github.com/taxigo/dispatch/pkg/errors"
	"github.com/taxigo/dispatch/pkg/logger"
)

// Actor is the authenticated party attempting a ride operation.
type Actor struct {
	Role Role
	ID   string
}

// expiryActor cancels rides that outlived the dispatch window.
var expiryActor = Actor{Role: RoleDispatcher, ID: "request-expiry"}

// LifecycleConfig holds ride lifecycle configuration.
type LifecycleConfig struct {
	// RequestExpiry cancels rides still unaccepted after this interval.
	// Zero disables the expiry sweep.
	RequestExpiry time.Duration
}

// trackedRide serializes all mutations of a single ride. The lock is held
// across the persistence call and the follow-up broadcast so subscribers
// observe transitions in commit order.
type trackedRide struct {
	mu sync.Mutex
	r  *ride.Ride
}

// Lifecycle owns ride status transitions from request to completion or
// cancellation. It is the sole authority for transitions; the durable store
// is a downstream mirror. Every successful transition is persisted before it
// is broadcast, and a failed persistence leaves memory untouched and sends
// nothing.
type Lifecycle struct {
	repo        ride.Repository
	registry    *Registry
	broadcaster *Broadcaster
	logger      *logger.Logger
	config      LifecycleConfig

	mu     sync.Mutex
	active map[uuid.UUID]*trackedRide
}

// NewLifecycle creates the ride lifecycle service.
func NewLifecycle(repo ride.Repository, registry *Registry, bc *Broadcaster, log *logger.Logger, cfg LifecycleConfig) *Lifecycle {
	return &Lifecycle{
		repo:        repo,
		registry:    registry,
		broadcaster: bc,
		logger:      log,
		config:      cfg,
		active:      make(map[uuid.UUID]*trackedRide),
	}
}

// RequestRide validates and creates a ride in the requested state. The ride
// is persisted before it becomes visible to dispatch.
func (l *Lifecycle) RequestRide(ctx context.Context, customerID string, pickup, destination ride.Location, estimatedFare float64) (*ride.Ride, error) {
	if customerID == "" {
		return nil, errors.Validation("customer id is required")
	}
	if !pickup.IsValid() {
		return nil, errors.Validation("pickup location is malformed")
	}
	if !destination.IsValid() {
		return nil, errors.Validation("destination location is malformed")
	}
	if estimatedFare < 0 {
		return nil, errors.Validation("estimated fare must not be negative")
	}

	now := time.Now().UTC()
	r := &ride.Ride{
		ID:            uuid.New(),
		CustomerID:    customerID,
		Pickup:        pickup,
		Destination:   destination,
		Status:        ride.StatusRequested,
		EstimatedFare: estimatedFare,
		PaymentStatus: ride.PaymentPending,
		RequestedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := l.repo.Create(ctx, r); err != nil {
		return nil, errors.Dependency("failed to persist ride", err)
	}

	l.mu.Lock()
	l.active[r.ID] = &trackedRide{r: r}
	l.mu.Unlock()

	l.logger.Info("Ride requested",
		logger.String("ride_id", r.ID.String()),
		logger.String("customer_id", customerID),
		logger.Float64("estimated_fare", estimatedFare),
	)
	return r.Clone(), nil
}

// AcceptRide is the at-most-one-winner operation: the first acceptance for a
// ride still in requested wins; every later attempt gets AlreadyAccepted.
// The per-ride lock makes the check-then-set atomic under concurrent
// attempts from different drivers.
func (l *Lifecycle) AcceptRide(ctx context.Context, rideID uuid.UUID, driverID string) (*ride.Ride, error) {
	if driverID == "" {
		return nil, errors.Validation("driver id is required")
	}

	tr, err := l.tracked(ctx, rideID)
	if err != nil {
		return nil, err
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.r.Status != ride.StatusRequested {
		return nil, errors.AlreadyAccepted("ride is no longer open for acceptance")
	}

	now := time.Now().UTC()
	updated := tr.r.Clone()
	updated.Status = ride.StatusAccepted
	updated.DriverID = &driverID
	updated.AcceptedAt = &now
	updated.UpdatedAt = now

	if err := l.repo.Update(ctx, updated); err != nil {
		return nil, errors.Dependency("failed to persist acceptance", err)
	}
	tr.r = updated

	if err := l.registry.SetOnRide(driverID); err != nil {
		// The driver may have disconnected between accepting and here; the
		// acceptance itself stands.
		l.logger.Warn("Accepting driver not in registry",
			logger.String("driver_id", driverID))
	}

	driverPayload := l.driverPayload(driverID)
	l.broadcaster.Publish(CustomerTopic(updated.CustomerID), EventDriverAssigned, map[string]interface{}{
		"ride_id": updated.ID,
		"driver":  driverPayload,
	})
	l.broadcaster.Publish(TopicDispatchers, EventRideAccepted, map[string]interface{}{
		"ride_id": updated.ID,
		"driver":  driverPayload,
	})
	// Losing candidates learn the request is gone.
	l.broadcaster.Publish(TopicDrivers, EventRideStatusChanged, map[string]interface{}{
		"ride_id": updated.ID,
		"status":  updated.Status,
	})

	l.logger.Info("Ride accepted",
		logger.String("ride_id", rideID.String()),
		logger.String("driver_id", driverID),
	)
	return updated.Clone(), nil
}

// Advance moves a ride along the progression
// accepted -> driver_arrived -> in_progress -> completed. Only the assigned
// driver may advance; cancellation goes through Cancel.
func (l *Lifecycle) Advance(ctx context.Context, rideID uuid.UUID, target ride.Status, actor Actor) (*ride.Ride, error) {
	if target == ride.StatusCancelled {
		return l.Cancel(ctx, rideID, actor)
	}
	if !target.IsValid() {
		return nil, errors.Validation("unknown ride status")
	}
	if target == ride.StatusAccepted {
		return nil, errors.IllegalTransition("acceptance must go through the acceptance race")
	}

	tr, err := l.tracked(ctx, rideID)
	if err != nil {
		return nil, err
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if !tr.r.Status.CanTransitionTo(target) {
		return nil, errors.IllegalTransition("cannot move ride from " + tr.r.Status.String() + " to " + target.String())
	}
	if actor.Role != RoleDriver || tr.r.DriverID == nil || *tr.r.DriverID != actor.ID {
		return nil, errors.IllegalTransition("only the assigned driver may report " + target.String())
	}

	now := time.Now().UTC()
	updated := tr.r.Clone()
	updated.Status = target
	updated.UpdatedAt = now
	if target == ride.StatusCompleted {
		updated.CompletedAt = &now
		if updated.FinalFare == nil {
			fare := updated.EstimatedFare
			updated.FinalFare = &fare
		}
	}

	if err := l.repo.Update(ctx, updated); err != nil {
		return nil, errors.Dependency("failed to persist transition", err)
	}
	tr.r = updated

	if target == ride.StatusCompleted {
		l.release(updated)
	}
	l.broadcastStatus(updated)

	l.logger.Info("Ride advanced",
		logger.String("ride_id", rideID.String()),
		logger.String("status", target.String()),
	)
	return updated.Clone(), nil
}

// Cancel moves a ride to cancelled from any non-terminal state and releases
// the assigned driver, if any, back to the available pool.
func (l *Lifecycle) Cancel(ctx context.Context, rideID uuid.UUID, actor Actor) (*ride.Ride, error) {
	tr, err := l.tracked(ctx, rideID)
	if err != nil {
		return nil, err
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.r.Status.IsTerminal() {
		return nil, errors.IllegalTransition("ride is already " + tr.r.Status.String())
	}
	if err := authorizeCancel(tr.r, actor); err != nil {
		return nil, err
	}

	wasRequested := tr.r.Status == ride.StatusRequested

	now := time.Now().UTC()
	updated := tr.r.Clone()
	updated.Status = ride.StatusCancelled
	updated.CancelledAt = &now
	updated.UpdatedAt = now

	if err := l.repo.Update(ctx, updated); err != nil {
		return nil, errors.Dependency("failed to persist cancellation", err)
	}
	tr.r = updated

	l.release(updated)
	l.broadcastStatus(updated)
	if wasRequested {
		// Drivers holding the open request learn it is gone.
		l.broadcaster.Publish(TopicDrivers, EventRideStatusChanged, map[string]interface{}{
			"ride_id": updated.ID,
			"status":  updated.Status,
		})
	}

	l.logger.Info("Ride cancelled",
		logger.String("ride_id", rideID.String()),
		logger.String("by_role", string(actor.Role)),
	)
	return updated.Clone(), nil
}

func authorizeCancel(r *ride.Ride, actor Actor) error {
	switch actor.Role {
	case RoleCustomer:
		if actor.ID != r.CustomerID {
			return errors.IllegalTransition("only the requesting customer may cancel")
		}
	case RoleDriver:
		if r.DriverID == nil || *r.DriverID != actor.ID {
			return errors.IllegalTransition("only the assigned driver may cancel")
		}
	case RoleDispatcher:
		// Dispatchers manage every ride.
	default:
		return errors.Unauthorized("unknown actor role")
	}
	return nil
}

// Get returns the current state of a ride, preferring the in-memory copy.
func (l *Lifecycle) Get(ctx context.Context, rideID uuid.UUID) (*ride.Ride, error) {
	l.mu.Lock()
	tr, ok := l.active[rideID]
	l.mu.Unlock()
	if ok {
		tr.mu.Lock()
		defer tr.mu.Unlock()
		return tr.r.Clone(), nil
	}

	r, err := l.repo.GetByID(ctx, rideID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ActiveCount returns the number of rides tracked in memory.
func (l *Lifecycle) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.active)
}

// RunExpirySweep cancels rides still requested after the configured expiry.
// It blocks until ctx is done and is a no-op when expiry is disabled.
func (l *Lifecycle) RunExpirySweep(ctx context.Context) {
	if l.config.RequestExpiry <= 0 {
		return
	}

	interval := l.config.RequestExpiry / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweepExpired(ctx)
		}
	}
}

func (l *Lifecycle) sweepExpired(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-l.config.RequestExpiry)

	// Snapshot the tracking handles first; ride state may only be read
	// under the per-ride lock, which must never nest inside l.mu.
	l.mu.Lock()
	candidates := make([]*trackedRide, 0, len(l.active))
	for _, tr := range l.active {
		candidates = append(candidates, tr)
	}
	l.mu.Unlock()

	expired := make([]uuid.UUID, 0)
	for _, tr := range candidates {
		tr.mu.Lock()
		if tr.r.Status == ride.StatusRequested && tr.r.RequestedAt.Before(cutoff) {
			expired = append(expired, tr.r.ID)
		}
		tr.mu.Unlock()
	}

	for _, id := range expired {
		if _, err := l.Cancel(ctx, id, expiryActor); err != nil {
			if !errors.IsKind(err, errors.KindIllegalTransition) {
				l.logger.Warn("Failed to expire unaccepted ride",
					logger.String("ride_id", id.String()), logger.Err(err))
			}
		} else {
			l.logger.Info("Unaccepted ride expired",
				logger.String("ride_id", id.String()))
		}
	}
}

// tracked returns the serialization handle for a ride, loading it from the
// store when the process does not have it in memory.
func (l *Lifecycle) tracked(ctx context.Context, rideID uuid.UUID) (*trackedRide, error) {
	l.mu.Lock()
	tr, ok := l.active[rideID]
	l.mu.Unlock()
	if ok {
		return tr, nil
	}

	r, err := l.repo.GetByID(ctx, rideID)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return nil, err
		}
		return nil, errors.Dependency("failed to load ride", err)
	}
	if r.Status.IsTerminal() {
		// Terminal rides are not re-tracked; callers get the appropriate
		// rejection from the status check.
		return &trackedRide{r: r}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.active[rideID]; ok {
		return existing, nil
	}
	tr = &trackedRide{r: r}
	l.active[rideID] = tr
	return tr, nil
}

// release returns the assigned driver to the pool and stops tracking a ride
// that reached a terminal state.
func (l *Lifecycle) release(r *ride.Ride) {
	if r.DriverID != nil {
		if err := l.registry.SetAvailable(*r.DriverID); err != nil {
			l.logger.Debug("Released driver not in registry",
				logger.String("driver_id", *r.DriverID))
		}
	}
	l.mu.Lock()
	delete(l.active, r.ID)
	l.mu.Unlock()
}

func (l *Lifecycle) broadcastStatus(r *ride.Ride) {
	payload := map[string]interface{}{
		"ride_id": r.ID,
		"status":  r.Status,
	}
	l.broadcaster.Publish(CustomerTopic(r.CustomerID), EventRideStatusChanged, payload)
	l.broadcaster.Publish(TopicDispatchers, EventRideStatusChanged, payload)
}

func (l *Lifecycle) driverPayload(driverID string) map[string]interface{} {
	payload := map[string]interface{}{"driver_id": driverID}
	if rec, ok := l.registry.Lookup(driverID); ok {
		payload["vehicle"] = rec.Vehicle
		payload["location"] = rec.Location
	}
	return payload
}
