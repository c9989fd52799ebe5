package dispatch

import (
	"encoding/json"
	"sync"

	"github.com/taxigo/dispatch/pkg/logger"
)

// Sender delivers an encoded event to a single transport session. The
// websocket hub implements it; tests substitute a recorder.
type Sender interface {
	Send(sessionID string, data []byte) error
}

// Envelope is the wire format for outbound events.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// Broadcaster fans out state-change notifications to subscribed sessions.
// Topic membership is resolved at publish time, never cached, so connects
// and disconnects take effect immediately.
type Broadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[string]struct{}
	sender Sender
	logger *logger.Logger
}

// NewBroadcaster creates a broadcaster delivering through sender.
func NewBroadcaster(sender Sender, log *logger.Logger) *Broadcaster {
	return &Broadcaster{
		topics: make(map[string]map[string]struct{}),
		sender: sender,
		logger: log,
	}
}

// Subscribe adds a session to a topic.
func (b *Broadcaster) Subscribe(sessionID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[string]struct{})
		b.topics[topic] = set
	}
	set[sessionID] = struct{}{}
}

// Unsubscribe removes a session from a topic.
func (b *Broadcaster) Unsubscribe(sessionID, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.topics[topic]; ok {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(b.topics, topic)
		}
	}
}

// DropSession removes a session from every topic. Called on disconnect.
func (b *Broadcaster) DropSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, set := range b.topics {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(b.topics, topic)
		}
	}
}

// Subscribers returns the current members of a topic.
func (b *Broadcaster) Subscribers(topic string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	set := b.topics[topic]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Publish delivers an event to every session currently subscribed to the
// topic. Delivery is best-effort: a failed or vanished session is logged
// and skipped, never surfaced to the publisher.
func (b *Broadcaster) Publish(topic, event string, payload interface{}) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		b.logger.Error("Failed to marshal broadcast event",
			logger.String("event", event), logger.Err(err))
		return
	}

	for _, sessionID := range b.Subscribers(topic) {
		if err := b.sender.Send(sessionID, data); err != nil {
			b.logger.Warn("Broadcast delivery failed",
				logger.String("topic", topic),
				logger.String("event", event),
				logger.String("session_id", sessionID),
				logger.Err(err),
			)
		}
	}
}

// Notify delivers an event to a single session.
func (b *Broadcaster) Notify(sessionID, event string, payload interface{}) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		b.logger.Error("Failed to marshal notify event",
			logger.String("event", event), logger.Err(err))
		return
	}

	if err := b.sender.Send(sessionID, data); err != nil {
		b.logger.Warn("Targeted delivery failed",
			logger.String("event", event),
			logger.String("session_id", sessionID),
			logger.Err(err),
		)
	}
}
