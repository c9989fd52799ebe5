package ride

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []Status{
	StatusRequested, StatusAccepted, StatusDriverArrived,
	StatusInProgress, StatusCompleted, StatusCancelled,
}

func TestCanTransitionTo(t *testing.T) {
	allowed := map[Status]map[Status]bool{
		StatusRequested:     {StatusAccepted: true, StatusCancelled: true},
		StatusAccepted:      {StatusDriverArrived: true, StatusCancelled: true},
		StatusDriverArrived: {StatusInProgress: true, StatusCancelled: true},
		StatusInProgress:    {StatusCompleted: true, StatusCancelled: true},
		StatusCompleted:     {},
		StatusCancelled:     {},
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[from][to]
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range allStatuses {
		want := s == StatusCompleted || s == StatusCancelled
		assert.Equal(t, want, s.IsTerminal(), "%s", s)
	}
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("  In_Progress ")
	assert.True(t, ok)
	assert.Equal(t, StatusInProgress, s)

	_, ok = ParseStatus("teleporting")
	assert.False(t, ok)

	_, ok = ParseStatus("")
	assert.False(t, ok)
}

func TestLocationIsValid(t *testing.T) {
	valid := Location{Address: "10 Marietta St NW", Latitude: 33.7, Longitude: -84.4}
	assert.True(t, valid.IsValid())

	assert.False(t, Location{Latitude: 33.7, Longitude: -84.4}.IsValid())
	assert.False(t, Location{Address: "x", Latitude: 91, Longitude: 0}.IsValid())
	assert.False(t, Location{Address: "x", Latitude: 0, Longitude: -181}.IsValid())
}

func TestRideClone(t *testing.T) {
	driverID := "driver-1"
	fare := 12.5
	r := &Ride{CustomerID: "cust-1", DriverID: &driverID, FinalFare: &fare, Status: StatusAccepted}

	c := r.Clone()
	*c.DriverID = "driver-2"
	*c.FinalFare = 99
	c.Status = StatusCompleted

	assert.Equal(t, "driver-1", *r.DriverID)
	assert.Equal(t, 12.5, *r.FinalFare)
	assert.Equal(t, StatusAccepted, r.Status)
}
