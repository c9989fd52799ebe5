package dispatch

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/taxigo/dispatch/internal/domain/driver"
	"github.com/taxigo/dispatch/internal/domain/ride"
	"github.com/taxigo/dispatch/pkg/errors"
	"github.com/taxigo/dispatch/pkg/logger"
)

// Metrics receives dispatch outcome counters. The monitoring package
// implements it; a nil Metrics disables recording.
type Metrics interface {
	RecordDispatchFanout(candidates int)
	RecordAcceptanceRace(rideID string, won bool)
}

// Gateway is the transport boundary of the dispatch core: every inbound
// client event maps to a component call with an explicit result. Failures go
// back to the acting session only; nothing is broadcast for failed
// operations.
type Gateway struct {
	directory   *Directory
	registry    *Registry
	lifecycle   *Lifecycle
	matcher     *Matcher
	broadcaster *Broadcaster
	metrics     Metrics
	logger      *logger.Logger
}

// NewGateway wires the dispatch components behind the event boundary.
// metrics may be nil.
func NewGateway(directory *Directory, registry *Registry, lifecycle *Lifecycle, matcher *Matcher, bc *Broadcaster, metrics Metrics, log *logger.Logger) *Gateway {
	return &Gateway{
		directory:   directory,
		registry:    registry,
		lifecycle:   lifecycle,
		matcher:     matcher,
		broadcaster: bc,
		metrics:     metrics,
		logger:      log,
	}
}

type locationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type driverOnlinePayload struct {
	Location locationPayload `json:"location"`
	Vehicle  driver.Vehicle  `json:"vehicle"`
}

type requestRidePayload struct {
	Pickup        ride.Location `json:"pickup"`
	Destination   ride.Location `json:"destination"`
	EstimatedFare float64       `json:"estimated_fare"`
}

type acceptRidePayload struct {
	RideID string `json:"ride_id"`
}

type statusUpdatePayload struct {
	RideID string `json:"ride_id"`
	Status string `json:"status"`
}

// HandleEvent processes one inbound event from a session.
func (g *Gateway) HandleEvent(ctx context.Context, sessionID, event string, data json.RawMessage) {
	var err error
	switch event {
	case EventDriverOnline:
		err = g.driverOnline(ctx, sessionID, data)
	case EventLocationUpdate:
		err = g.locationUpdate(ctx, sessionID, data)
	case EventRequestRide:
		err = g.requestRide(ctx, sessionID, data)
	case EventAcceptRide:
		err = g.acceptRide(ctx, sessionID, data)
	case EventStatusUpdate:
		err = g.statusUpdate(ctx, sessionID, data)
	case EventDispatcherJoin:
		err = g.dispatcherJoin(sessionID)
	default:
		err = errors.Validation("unknown event: " + event)
	}

	if err != nil {
		g.reject(sessionID, event, err)
	}
}

// HandleDisconnect prunes all state bound to a departed session.
func (g *Gateway) HandleDisconnect(ctx context.Context, sessionID string) {
	g.directory.Unbind(ctx, sessionID)
}

func (g *Gateway) driverOnline(ctx context.Context, sessionID string, data json.RawMessage) error {
	binding, err := g.requireRole(sessionID, RoleDriver)
	if err != nil {
		return err
	}

	var p driverOnlinePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Validation("malformed driver-online payload")
	}

	g.registry.SetOnline(ctx, binding.Identity, sessionID, driver.Location{
		Latitude:  p.Location.Latitude,
		Longitude: p.Location.Longitude,
	}, p.Vehicle)
	g.broadcaster.Subscribe(sessionID, TopicDrivers)
	return nil
}

func (g *Gateway) locationUpdate(ctx context.Context, sessionID string, data json.RawMessage) error {
	if _, err := g.requireRole(sessionID, RoleDriver); err != nil {
		return err
	}

	var p struct {
		Location locationPayload `json:"location"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Validation("malformed location payload")
	}

	// A stale session is absorbed by the registry, not surfaced.
	g.registry.UpdateLocation(ctx, sessionID, p.Location.Latitude, p.Location.Longitude)
	return nil
}

func (g *Gateway) requestRide(ctx context.Context, sessionID string, data json.RawMessage) error {
	binding, err := g.requireRole(sessionID, RoleCustomer)
	if err != nil {
		return err
	}

	var p requestRidePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Validation("malformed ride request payload")
	}

	r, err := g.lifecycle.RequestRide(ctx, binding.Identity, p.Pickup, p.Destination, p.EstimatedFare)
	if err != nil {
		return err
	}

	g.broadcaster.Subscribe(sessionID, CustomerTopic(binding.Identity))
	g.broadcaster.Notify(sessionID, EventRideRequested, map[string]interface{}{
		"ride_id": r.ID,
		"status":  r.Status,
	})
	candidates := g.matcher.Dispatch(r)
	if g.metrics != nil {
		g.metrics.RecordDispatchFanout(len(candidates))
	}
	return nil
}

func (g *Gateway) acceptRide(ctx context.Context, sessionID string, data json.RawMessage) error {
	binding, err := g.requireRole(sessionID, RoleDriver)
	if err != nil {
		return err
	}

	var p acceptRidePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Validation("malformed accept payload")
	}
	rideID, err := uuid.Parse(p.RideID)
	if err != nil {
		return errors.Validation("malformed ride id")
	}

	r, err := g.lifecycle.AcceptRide(ctx, rideID, binding.Identity)
	if g.metrics != nil && (err == nil || errors.IsKind(err, errors.KindAlreadyAccepted)) {
		g.metrics.RecordAcceptanceRace(rideID.String(), err == nil)
	}
	if err != nil {
		return err
	}

	g.broadcaster.Notify(sessionID, EventRideAccepted, map[string]interface{}{
		"ride_id": r.ID,
		"status":  r.Status,
	})
	return nil
}

func (g *Gateway) statusUpdate(ctx context.Context, sessionID string, data json.RawMessage) error {
	binding, ok := g.directory.Lookup(sessionID)
	if !ok {
		return errors.Unauthorized("session has not declared a role")
	}

	var p statusUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return errors.Validation("malformed status update payload")
	}
	rideID, err := uuid.Parse(p.RideID)
	if err != nil {
		return errors.Validation("malformed ride id")
	}
	target, valid := ride.ParseStatus(p.Status)
	if !valid {
		return errors.Validation("unknown ride status: " + p.Status)
	}

	actor := Actor{Role: binding.Role, ID: binding.Identity}
	if _, err := g.lifecycle.Advance(ctx, rideID, target, actor); err != nil {
		return err
	}

	g.broadcaster.Notify(sessionID, EventRideStatusChanged, map[string]interface{}{
		"ride_id": rideID,
		"status":  target,
	})
	return nil
}

func (g *Gateway) dispatcherJoin(sessionID string) error {
	if _, err := g.requireRole(sessionID, RoleDispatcher); err != nil {
		return err
	}

	g.broadcaster.Subscribe(sessionID, TopicDispatchers)
	g.broadcaster.Subscribe(sessionID, TopicLocations)
	g.broadcaster.Notify(sessionID, EventDriversUpdated, map[string]interface{}{
		"drivers": g.registry.ListAvailable(),
	})
	return nil
}

func (g *Gateway) requireRole(sessionID string, role Role) (Binding, error) {
	binding, ok := g.directory.Lookup(sessionID)
	if !ok {
		return Binding{}, errors.Unauthorized("session has not declared a role")
	}
	if binding.Role != role {
		return Binding{}, errors.Unauthorized("operation requires the " + string(role) + " role")
	}
	return binding, nil
}

// reject sends a structured failure to the acting session only.
func (g *Gateway) reject(sessionID, event string, err error) {
	appErr := errors.From(err)
	g.logger.Warn("Event rejected",
		logger.String("session_id", sessionID),
		logger.String("event", event),
		logger.String("kind", string(appErr.Kind)),
		logger.Err(err),
	)
	g.broadcaster.Notify(sessionID, EventError, map[string]interface{}{
		"event":   event,
		"kind":    appErr.Kind,
		"message": appErr.Message,
	})
}
