package pricing

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/taxigo/dispatch/internal/domain/ride"
	"github.com/taxigo/dispatch/pkg/geo"
)

// Config holds pricing configuration.
type Config struct {
	BaseFare           float64
	PerKMRate          float64
	PerMinuteRate      float64
	MinimumFare        float64
	AvgSpeedKMH        float64
	MaxSurgeMultiplier float64
	MinSurgeMultiplier float64
}

// Estimate is the breakdown of a quoted fare.
type Estimate struct {
	DistanceKM      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
	BaseFare        float64 `json:"base_fare"`
	DistanceFare    float64 `json:"distance_fare"`
	TimeFare        float64 `json:"time_fare"`
	SurgeMultiplier float64 `json:"surge_multiplier"`
	Total           float64 `json:"total"`
}

// Service quotes fares from straight-line distance. Routing and live
// traffic are out of scope; duration is derived from an average speed.
type Service struct {
	redis  *redis.Client
	config Config
}

// NewService creates a pricing service. redis may be nil, in which case
// surge always resolves to 1.0.
func NewService(redis *redis.Client, config Config) *Service {
	return &Service{
		redis:  redis,
		config: config,
	}
}

// Estimate quotes a fare for a trip between two locations.
func (s *Service) Estimate(ctx context.Context, pickup, destination ride.Location, region string) *Estimate {
	distanceKM := geo.Haversine(pickup.Latitude, pickup.Longitude,
		destination.Latitude, destination.Longitude)

	durationMinutes := 0
	if s.config.AvgSpeedKMH > 0 {
		durationMinutes = int(distanceKM / s.config.AvgSpeedKMH * 60)
	}

	distanceFare := distanceKM * s.config.PerKMRate
	timeFare := float64(durationMinutes) * s.config.PerMinuteRate
	surge := s.GetSurgeMultiplier(ctx, region)

	total := (s.config.BaseFare + distanceFare + timeFare) * surge
	if total < s.config.MinimumFare {
		total = s.config.MinimumFare
	}

	return &Estimate{
		DistanceKM:      distanceKM,
		DurationMinutes: durationMinutes,
		BaseFare:        s.config.BaseFare,
		DistanceFare:    distanceFare,
		TimeFare:        timeFare,
		SurgeMultiplier: surge,
		Total:           total,
	}
}

// GetSurgeMultiplier gets the current surge multiplier for a region.
func (s *Service) GetSurgeMultiplier(ctx context.Context, region string) float64 {
	if s.redis == nil {
		return 1.0
	}

	key := fmt.Sprintf("surge:%s", region)
	val, err := s.redis.Get(ctx, key).Float64()
	if err != nil {
		return 1.0 // Default no surge
	}

	return s.clamp(val)
}

// SetSurgeMultiplier sets the surge multiplier for a region.
func (s *Service) SetSurgeMultiplier(ctx context.Context, region string, multiplier float64) error {
	if s.redis == nil {
		return nil
	}

	key := fmt.Sprintf("surge:%s", region)
	return s.redis.Set(ctx, key, s.clamp(multiplier), 0).Err()
}

// CalculateSurgeBasedOnDemand derives a surge multiplier from the
// demand/supply ratio of pending rides to available drivers.
func (s *Service) CalculateSurgeBasedOnDemand(activeRides, availableDrivers int) float64 {
	if availableDrivers == 0 {
		return s.config.MaxSurgeMultiplier
	}

	ratio := float64(activeRides) / float64(availableDrivers)

	switch {
	case ratio < 0.5:
		return 1.0
	case ratio < 1.0:
		return s.clamp(1.0 + ratio*0.5)
	case ratio < 2.0:
		return s.clamp(1.5 + (ratio-1.0)*1.0)
	default:
		return s.clamp(2.5 + (ratio-2.0)*0.25)
	}
}

func (s *Service) clamp(multiplier float64) float64 {
	if multiplier > s.config.MaxSurgeMultiplier {
		return s.config.MaxSurgeMultiplier
	}
	if multiplier < s.config.MinSurgeMultiplier {
		return s.config.MinSurgeMultiplier
	}
	return multiplier
}
