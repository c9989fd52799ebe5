package dispatch

// Role identifies what a transport session is allowed to do. A session holds
// exactly one role at a time.
type Role string

const (
	RoleDriver     Role = "driver"
	RoleCustomer   Role = "customer"
	RoleDispatcher Role = "dispatcher"
)

// IsValid validates the role
func (r Role) IsValid() bool {
	switch r {
	case RoleDriver, RoleCustomer, RoleDispatcher:
		return true
	}
	return false
}

// Inbound event names (client -> core).
const (
	EventDriverOnline   = "driver-online"
	EventLocationUpdate = "driver-location-update"
	EventRequestRide    = "request-ride"
	EventAcceptRide     = "accept-ride"
	EventStatusUpdate   = "ride-status-update"
	EventDispatcherJoin = "dispatcher-join"
)

// Outbound event names (core -> client).
const (
	EventDriversUpdated        = "drivers-updated"
	EventDriverLocationChanged = "driver-location-changed"
	EventNewRideRequest        = "new-ride-request"
	EventDriverAssigned        = "driver-assigned"
	EventRideAccepted          = "ride-accepted"
	EventRideStatusChanged     = "ride-status-changed"
	EventRideRequested         = "ride-requested"
	EventError                 = "error"
)

// Broadcast topics. Customer topics are derived per identity so that
// ride-specific notifications never leak to unrelated customers.
const (
	TopicDrivers     = "drivers"
	TopicDispatchers = "dispatchers"
	TopicLocations   = "locations"
)

// CustomerTopic returns the per-customer notification topic.
func CustomerTopic(customerID string) string {
	return "customer:" + customerID
}
