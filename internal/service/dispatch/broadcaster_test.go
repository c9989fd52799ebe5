package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBroadcaster_PublishReachesSubscribersOnly(t *testing.T) {
	sender := newFakeSender()
	bc := NewBroadcaster(sender, loggerForTests())

	bc.Subscribe("sess-1", TopicDrivers)
	bc.Subscribe("sess-2", TopicDrivers)
	bc.Subscribe("sess-3", TopicDispatchers)

	bc.Publish(TopicDrivers, EventNewRideRequest, map[string]string{"ride_id": "r-1"})

	assert.Equal(t, 1, sender.countFor("sess-1", EventNewRideRequest))
	assert.Equal(t, 1, sender.countFor("sess-2", EventNewRideRequest))
	assert.Equal(t, 0, sender.countFor("sess-3", EventNewRideRequest))
}

func TestBroadcaster_MembershipResolvedAtPublishTime(t *testing.T) {
	sender := newFakeSender()
	bc := NewBroadcaster(sender, loggerForTests())

	bc.Subscribe("sess-early", TopicDrivers)
	bc.Publish(TopicDrivers, EventDriversUpdated, nil)

	bc.Subscribe("sess-late", TopicDrivers)
	bc.Unsubscribe("sess-early", TopicDrivers)
	bc.Publish(TopicDrivers, EventDriversUpdated, nil)

	assert.Equal(t, 1, sender.countFor("sess-early", EventDriversUpdated))
	assert.Equal(t, 1, sender.countFor("sess-late", EventDriversUpdated))
}

func TestBroadcaster_PublishEmptyTopic(t *testing.T) {
	sender := newFakeSender()
	bc := NewBroadcaster(sender, loggerForTests())

	// No subscribers is a quiet no-op.
	bc.Publish(TopicDispatchers, EventDriversUpdated, nil)
	assert.Empty(t, sender.eventsFor("sess-1"))
}

func TestBroadcaster_DropSessionClearsAllTopics(t *testing.T) {
	sender := newFakeSender()
	bc := NewBroadcaster(sender, loggerForTests())

	bc.Subscribe("sess-1", TopicDrivers)
	bc.Subscribe("sess-1", TopicDispatchers)
	bc.Subscribe("sess-1", CustomerTopic("cust-1"))
	bc.Subscribe("sess-2", TopicDrivers)

	bc.DropSession("sess-1")

	assert.Empty(t, bc.Subscribers(TopicDispatchers))
	assert.Empty(t, bc.Subscribers(CustomerTopic("cust-1")))
	assert.Equal(t, []string{"sess-2"}, bc.Subscribers(TopicDrivers))
}

func TestBroadcaster_DeliveryFailureIsSwallowed(t *testing.T) {
	sender := newFakeSender()
	sender.failFor = "sess-broken"
	bc := NewBroadcaster(sender, loggerForTests())

	bc.Subscribe("sess-broken", TopicDrivers)
	bc.Subscribe("sess-ok", TopicDrivers)

	// A broken session must not stop delivery to the rest.
	bc.Publish(TopicDrivers, EventDriversUpdated, nil)
	assert.Equal(t, 1, sender.countFor("sess-ok", EventDriversUpdated))
}

func TestBroadcaster_NotifyTargetsSingleSession(t *testing.T) {
	sender := newFakeSender()
	bc := NewBroadcaster(sender, loggerForTests())

	bc.Subscribe("sess-1", TopicDrivers)
	bc.Subscribe("sess-2", TopicDrivers)

	bc.Notify("sess-1", EventRideAccepted, map[string]string{"ride_id": "r-1"})

	assert.Equal(t, 1, sender.countFor("sess-1", EventRideAccepted))
	assert.Equal(t, 0, sender.countFor("sess-2", EventRideAccepted))
}
