package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	// Same point is zero distance.
	assert.Equal(t, 0.0, Haversine(33.7, -84.4, 33.7, -84.4))

	// One degree of latitude is roughly 111km.
	assert.InDelta(t, 111.19, Haversine(33.0, -84.4, 34.0, -84.4), 0.5)

	// Atlanta to New York, roughly 1200km.
	assert.InDelta(t, 1200, Haversine(33.749, -84.388, 40.713, -74.006), 10)
}
