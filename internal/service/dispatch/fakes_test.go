package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/taxigo/dispatch/internal/domain/ride"
	"github.com/taxigo/dispatch/pkg/errors"
	"github.com/taxigo/dispatch/pkg/logger"
)

func loggerForTests() *logger.Logger {
	return logger.NewNop()
}

// fakeSender records everything delivered to each session. Setting failFor
// makes delivery to that session fail.
type fakeSender struct {
	mu      sync.Mutex
	sent    map[string][]sentEvent
	failFor string
}

type sentEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]sentEvent)}
}

func (f *fakeSender) Send(sessionID string, data []byte) error {
	if f.failFor == sessionID {
		return fmt.Errorf("session %s is gone", sessionID)
	}
	var ev sentEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[sessionID] = append(f.sent[sessionID], ev)
	return nil
}

func (f *fakeSender) eventsFor(sessionID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent[sessionID]))
	for _, ev := range f.sent[sessionID] {
		out = append(out, ev.Event)
	}
	return out
}

func (f *fakeSender) payloadsFor(sessionID, event string) []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []json.RawMessage
	for _, ev := range f.sent[sessionID] {
		if ev.Event == event {
			out = append(out, ev.Data)
		}
	}
	return out
}

func (f *fakeSender) countFor(sessionID, event string) int {
	n := 0
	for _, e := range f.eventsFor(sessionID) {
		if e == event {
			n++
		}
	}
	return n
}

// memRideRepo is an in-memory ride.Repository with failure injection.
type memRideRepo struct {
	mu         sync.Mutex
	rides      map[uuid.UUID]*ride.Ride
	failCreate bool
	failUpdate bool
	updates    int
}

func newMemRideRepo() *memRideRepo {
	return &memRideRepo{rides: make(map[uuid.UUID]*ride.Ride)}
}

func (m *memRideRepo) Create(ctx context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return fmt.Errorf("store unavailable")
	}
	m.rides[r.ID] = r.Clone()
	return nil
}

func (m *memRideRepo) GetByID(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, errors.NotFound("ride not found")
	}
	return r.Clone(), nil
}

func (m *memRideRepo) Update(ctx context.Context, r *ride.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate {
		return fmt.Errorf("store unavailable")
	}
	if _, ok := m.rides[r.ID]; !ok {
		return errors.NotFound("ride not found")
	}
	m.rides[r.ID] = r.Clone()
	m.updates++
	return nil
}

func (m *memRideRepo) UpdatePayment(ctx context.Context, id uuid.UUID, status ride.PaymentStatus, finalFare float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return errors.NotFound("ride not found")
	}
	r.PaymentStatus = status
	r.FinalFare = &finalFare
	return nil
}

func (m *memRideRepo) List(ctx context.Context, f ride.Filter) ([]*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*ride.Ride, 0)
	for _, r := range m.rides {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.CustomerID != "" && r.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, r.Clone())
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memRideRepo) stored(id uuid.UUID) *ride.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rides[id]; ok {
		return r.Clone()
	}
	return nil
}

// newTestCore wires a full dispatch core over fakes.
type testCore struct {
	sender      *fakeSender
	repo        *memRideRepo
	broadcaster *Broadcaster
	registry    *Registry
	directory   *Directory
	lifecycle   *Lifecycle
	matcher     *Matcher
	gateway     *Gateway
}

func newTestCore(cfg LifecycleConfig, mcfg MatcherConfig) *testCore {
	log := loggerForTests()
	sender := newFakeSender()
	bc := NewBroadcaster(sender, log)
	registry := NewRegistry(bc, nil, log)
	repo := newMemRideRepo()
	lifecycle := NewLifecycle(repo, registry, bc, log, cfg)
	matcher := NewMatcher(registry, bc, nil, mcfg, log)
	directory := NewDirectory(registry, bc, log)
	gateway := NewGateway(directory, registry, lifecycle, matcher, bc, nil, log)
	return &testCore{
		sender:      sender,
		repo:        repo,
		broadcaster: bc,
		registry:    registry,
		directory:   directory,
		lifecycle:   lifecycle,
		matcher:     matcher,
		gateway:     gateway,
	}
}
