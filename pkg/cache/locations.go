package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const locationsKey = "drivers:locations"

// LocationIndex mirrors last-known driver coordinates into a Redis
// geo-spatial set. The dispatch registry is the source of truth; the index
// exists for radius queries from the read API and for external tooling.
type LocationIndex struct {
	client *redis.Client
}

// NewLocationIndex creates a geo index over the given client.
func NewLocationIndex(client *redis.Client) *LocationIndex {
	return &LocationIndex{client: client}
}

// Upsert writes a driver's position to the index.
func (l *LocationIndex) Upsert(ctx context.Context, driverID string, lat, lng float64) error {
	return l.client.GeoAdd(ctx, locationsKey, &redis.GeoLocation{
		Name:      driverID,
		Latitude:  lat,
		Longitude: lng,
	}).Err()
}

// Remove drops a driver from the index.
func (l *LocationIndex) Remove(ctx context.Context, driverID string) error {
	return l.client.ZRem(ctx, locationsKey, driverID).Err()
}

// Nearby returns driver ids within radiusKM of the given point, nearest
// first, capped at count.
func (l *LocationIndex) Nearby(ctx context.Context, lat, lng, radiusKM float64, count int) ([]string, error) {
	results, err := l.client.GeoSearch(ctx, locationsKey, &redis.GeoSearchQuery{
		Latitude:   lat,
		Longitude:  lng,
		Radius:     radiusKM,
		RadiusUnit: "km",
		Sort:       "ASC",
		Count:      count,
	}).Result()
	if err != nil {
		return nil, err
	}
	return results, nil
}
