package dispatch

import (
	"sort"

	"github.com/taxigo/dispatch/internal/domain/driver"
	"github.com/taxigo/dispatch/internal/domain/ride"
	"github.com/taxigo/dispatch/pkg/geo"
	"github.com/taxigo/dispatch/pkg/logger"
)

// DistanceFunc measures the distance in kilometers between two coordinates.
// Routing is out of scope; the default is straight-line haversine.
type DistanceFunc func(lat1, lng1, lat2, lng2 float64) float64

// MatcherConfig holds dispatch matching configuration.
type MatcherConfig struct {
	// MaxCandidates caps how many drivers are notified per ride. Zero means
	// no cap.
	MaxCandidates int
	// MaxRadiusKM excludes drivers farther than this from pickup. Zero means
	// no radius filter.
	MaxRadiusKM float64
}

// Candidate is a driver considered for a ride, with its distance to pickup.
type Candidate struct {
	Driver     driver.Record
	DistanceKM float64
}

// Matcher selects and notifies drivers eligible for a pending ride. Policy:
// broadcast to all eligible drivers, first acceptance wins. Notification is
// fire-and-forget; the winner is decided by the lifecycle's acceptance race.
type Matcher struct {
	registry    *Registry
	broadcaster *Broadcaster
	distance    DistanceFunc
	config      MatcherConfig
	logger      *logger.Logger
}

// NewMatcher creates a matcher. distance may be nil to use haversine.
func NewMatcher(registry *Registry, bc *Broadcaster, distance DistanceFunc, cfg MatcherConfig, log *logger.Logger) *Matcher {
	if distance == nil {
		distance = geo.Haversine
	}
	return &Matcher{
		registry:    registry,
		broadcaster: bc,
		distance:    distance,
		config:      cfg,
		logger:      log,
	}
}

// Dispatch notifies the eligible candidate set about a pending ride and the
// dispatcher-observer topic. It never blocks waiting for a response and
// returns the candidates it notified, nearest first.
func (m *Matcher) Dispatch(r *ride.Ride) []Candidate {
	candidates := m.rank(r)

	payload := map[string]interface{}{
		"ride_id":        r.ID,
		"pickup":         r.Pickup,
		"destination":    r.Destination,
		"estimated_fare": r.EstimatedFare,
	}

	for _, c := range candidates {
		m.broadcaster.Notify(c.Driver.SessionID, EventNewRideRequest, payload)
	}
	m.broadcaster.Publish(TopicDispatchers, EventNewRideRequest, payload)

	m.logger.Info("Ride dispatched",
		logger.String("ride_id", r.ID.String()),
		logger.Int("candidates", len(candidates)),
	)
	return candidates
}

// rank produces the filtered, proximity-sorted candidate set from a registry
// snapshot.
func (m *Matcher) rank(r *ride.Ride) []Candidate {
	available := m.registry.ListAvailable()

	candidates := make([]Candidate, 0, len(available))
	for _, rec := range available {
		d := m.distance(r.Pickup.Latitude, r.Pickup.Longitude,
			rec.Location.Latitude, rec.Location.Longitude)
		if m.config.MaxRadiusKM > 0 && d > m.config.MaxRadiusKM {
			continue
		}
		candidates = append(candidates, Candidate{Driver: rec, DistanceKM: d})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DistanceKM < candidates[j].DistanceKM
	})

	if m.config.MaxCandidates > 0 && len(candidates) > m.config.MaxCandidates {
		candidates = candidates[:m.config.MaxCandidates]
	}
	return candidates
}
