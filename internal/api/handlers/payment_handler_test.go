package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxigo/dispatch/internal/domain/payment"
	"github.com/taxigo/dispatch/internal/domain/ride"
	"github.com/taxigo/dispatch/pkg/errors"
	"github.com/taxigo/dispatch/pkg/logger"
	"github.com/taxigo/dispatch/pkg/monitoring"
)

// fakeRideRepo is an in-memory ride.Repository for handler tests.
type fakeRideRepo struct {
	mu    sync.Mutex
	rides map[uuid.UUID]*ride.Ride
}

func newFakeRideRepo(rides ...*ride.Ride) *fakeRideRepo {
	m := make(map[uuid.UUID]*ride.Ride, len(rides))
	for _, r := range rides {
		m[r.ID] = r
	}
	return &fakeRideRepo{rides: m}
}

func (f *fakeRideRepo) Create(ctx context.Context, r *ride.Ride) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rides[r.ID] = r.Clone()
	return nil
}

func (f *fakeRideRepo) GetByID(ctx context.Context, id uuid.UUID) (*ride.Ride, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rides[id]
	if !ok {
		return nil, errors.NotFound("ride not found")
	}
	return r.Clone(), nil
}

func (f *fakeRideRepo) Update(ctx context.Context, r *ride.Ride) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rides[r.ID] = r.Clone()
	return nil
}

func (f *fakeRideRepo) UpdatePayment(ctx context.Context, id uuid.UUID, status ride.PaymentStatus, finalFare float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rides[id]
	if !ok {
		return errors.NotFound("ride not found")
	}
	r.PaymentStatus = status
	r.FinalFare = &finalFare
	return nil
}

func (f *fakeRideRepo) List(ctx context.Context, filter ride.Filter) ([]*ride.Ride, error) {
	return nil, nil
}

func (f *fakeRideRepo) paymentStatus(id uuid.UUID) ride.PaymentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rides[id].PaymentStatus
}

// fakePaymentRepo records payments in memory.
type fakePaymentRepo struct {
	mu       sync.Mutex
	payments []*payment.Payment
}

func (f *fakePaymentRepo) Create(ctx context.Context, p *payment.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments = append(f.payments, p)
	return nil
}

func (f *fakePaymentRepo) GetByRideID(ctx context.Context, rideID uuid.UUID) (*payment.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.RideID == rideID {
			return p, nil
		}
	}
	return nil, payment.ErrPaymentNotFound
}

func (f *fakePaymentRepo) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*payment.Payment, error) {
	return nil, nil
}

func (f *fakePaymentRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payments)
}

// fakeProvider counts charges. entered/proceed let a test hold a charge
// mid-flight.
type fakeProvider struct {
	mu      sync.Mutex
	charges int
	fail    bool
	entered chan struct{}
	proceed chan struct{}
}

func (f *fakeProvider) Charge(ctx context.Context, amountCents int64, currency, description string) (string, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.proceed != nil {
		<-f.proceed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("card declined")
	}
	f.charges++
	return fmt.Sprintf("pi_test_%d", f.charges), nil
}

func (f *fakeProvider) Cancel(ctx context.Context, reference string) error { return nil }

func (f *fakeProvider) chargeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.charges
}

// memIdempotency is an in-memory IdempotencyCache with the same
// reserve-then-store semantics as the Redis one.
type memIdempotency struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{entries: make(map[string]string)}
}

func (m *memIdempotency) Lookup(ctx context.Context, key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[key]
	if !ok || v == pendingMarker {
		return nil, false
	}
	return json.RawMessage(v), true
}

func (m *memIdempotency) Reserve(ctx context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; ok {
		return false
	}
	m.entries[key] = pendingMarker
	return true
}

func (m *memIdempotency) Store(ctx context.Context, key string, response json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = string(response)
}

func (m *memIdempotency) Release(ctx context.Context, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *memIdempotency) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	return ok
}

func completedRide(fare float64) *ride.Ride {
	driverID := "driver-a"
	now := time.Now().UTC()
	return &ride.Ride{
		ID:            uuid.New(),
		CustomerID:    "cust-1",
		DriverID:      &driverID,
		Pickup:        ride.Location{Address: "10 Marietta St NW", Latitude: 33.7, Longitude: -84.4},
		Destination:   ride.Location{Address: "675 Ponce De Leon Ave", Latitude: 33.8, Longitude: -84.3},
		Status:        ride.StatusCompleted,
		EstimatedFare: fare,
		FinalFare:     &fare,
		PaymentStatus: ride.PaymentPending,
		RequestedAt:   now,
		CompletedAt:   &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func newPaymentHandlers(rides *fakeRideRepo, payments *fakePaymentRepo, provider *fakeProvider, idem *memIdempotency) *Handlers {
	return &Handlers{
		Rides:       rides,
		Payments:    payments,
		Provider:    provider,
		Idempotency: idem,
		Monitor:     &monitoring.NewRelicApp{},
		Logger:      logger.NewNop(),
	}
}

func performPayment(h *Handlers, body, idempotencyKey string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	c.Request = req
	h.ProcessPayment(c)
	return w
}

func paymentBody(rideID uuid.UUID, amount float64) string {
	return fmt.Sprintf(`{"ride_id":%q,"method":"card","amount":%.2f}`, rideID, amount)
}

// TestProcessPayment_ChargesOnceAndReplaysResponse tests the replay path:
// a repeated key returns the cached response without a second charge
func TestProcessPayment_ChargesOnceAndReplaysResponse(t *testing.T) {
	rd := completedRide(15.5)
	rides := newFakeRideRepo(rd)
	payments := &fakePaymentRepo{}
	provider := &fakeProvider{}
	h := newPaymentHandlers(rides, payments, provider, newMemIdempotency())

	w := performPayment(h, paymentBody(rd.ID, 15.5), "key-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, provider.chargeCount())
	assert.Equal(t, 1, payments.count())
	assert.Equal(t, ride.PaymentPaid, rides.paymentStatus(rd.ID))

	replay := performPayment(h, paymentBody(rd.ID, 15.5), "key-1")
	require.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, 1, provider.chargeCount(), "replay must not charge again")
	assert.Equal(t, 1, payments.count())
	assert.JSONEq(t, w.Body.String(), replay.Body.String(), "replay returns the original response")
}

// TestProcessPayment_ConcurrentSameKey tests that a key reserved by an
// in-flight request never reaches the provider a second time
func TestProcessPayment_ConcurrentSameKey(t *testing.T) {
	rd := completedRide(15.5)
	provider := &fakeProvider{
		entered: make(chan struct{}, 1),
		proceed: make(chan struct{}),
	}
	h := newPaymentHandlers(newFakeRideRepo(rd), &fakePaymentRepo{}, provider, newMemIdempotency())

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- performPayment(h, paymentBody(rd.ID, 15.5), "key-1")
	}()
	<-provider.entered

	// The first request is holding the charge; a duplicate must be
	// rejected before the provider.
	dup := performPayment(h, paymentBody(rd.ID, 15.5), "key-1")
	assert.Equal(t, http.StatusConflict, dup.Code, dup.Body.String())

	close(provider.proceed)
	w := <-first
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, provider.chargeCount(), "exactly one charge for the key")
}

// TestProcessPayment_ProviderFailureReleasesKey tests a declined charge
// frees the key so the customer can retry
func TestProcessPayment_ProviderFailureReleasesKey(t *testing.T) {
	rd := completedRide(15.5)
	rides := newFakeRideRepo(rd)
	payments := &fakePaymentRepo{}
	provider := &fakeProvider{fail: true}
	idem := newMemIdempotency()
	h := newPaymentHandlers(rides, payments, provider, idem)

	w := performPayment(h, paymentBody(rd.ID, 15.5), "key-1")
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())
	assert.False(t, idem.has("key-1"), "failed charge must release the key")
	assert.Equal(t, ride.PaymentFailed, rides.paymentStatus(rd.ID))

	// Payment status resets with the durable record; the retry charges.
	rides.rides[rd.ID].PaymentStatus = ride.PaymentPending
	provider.fail = false
	retry := performPayment(h, paymentBody(rd.ID, 15.5), "key-1")
	require.Equal(t, http.StatusOK, retry.Code, retry.Body.String())
	assert.Equal(t, 1, provider.chargeCount())
}

// TestProcessPayment_Validation tests boundary rejections before any charge
func TestProcessPayment_Validation(t *testing.T) {
	rd := completedRide(15.5)
	inProgress := completedRide(10.0)
	inProgress.Status = ride.StatusInProgress
	provider := &fakeProvider{}
	h := newPaymentHandlers(newFakeRideRepo(rd, inProgress), &fakePaymentRepo{}, provider, newMemIdempotency())

	tests := []struct {
		name     string
		body     string
		key      string
		wantCode int
	}{
		{"missing idempotency key", paymentBody(rd.ID, 15.5), "", http.StatusBadRequest},
		{"amount mismatch", paymentBody(rd.ID, 20.0), "key-a", http.StatusBadRequest},
		{"ride not completed", paymentBody(inProgress.ID, 10.0), "key-b", http.StatusConflict},
		{"unknown ride", paymentBody(uuid.New(), 15.5), "key-c", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := performPayment(h, tt.body, tt.key)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, 0, provider.chargeCount(), "rejected requests never charge")
}
