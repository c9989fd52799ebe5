package monitoring

import (
	"fmt"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
)

// Config holds New Relic configuration
type Config struct {
	LicenseKey string
	AppName    string
	Enabled    bool
}

// NewRelicApp wraps the New Relic application
type NewRelicApp struct {
	*newrelic.Application
	enabled bool
}

// New creates a new New Relic application
func New(cfg Config) (*NewRelicApp, error) {
	if !cfg.Enabled || cfg.LicenseKey == "" {
		// Return disabled app
		return &NewRelicApp{nil, false}, nil
	}

	app, err := newrelic.NewApplication(
		newrelic.ConfigAppName(cfg.AppName),
		newrelic.ConfigLicense(cfg.LicenseKey),
		newrelic.ConfigAppLogForwardingEnabled(true),
		newrelic.ConfigDistributedTracerEnabled(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create New Relic application: %w", err)
	}

	return &NewRelicApp{app, true}, nil
}

// RecordCustomEvent records a custom event
func (nr *NewRelicApp) RecordCustomEvent(eventType string, params map[string]interface{}) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomEvent(eventType, params)
}

// RecordCustomMetric records a custom metric
func (nr *NewRelicApp) RecordCustomMetric(name string, value float64) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.RecordCustomMetric(name, value)
}

// Shutdown gracefully shuts down the New Relic application
func (nr *NewRelicApp) Shutdown(timeout time.Duration) {
	if !nr.enabled || nr.Application == nil {
		return
	}
	nr.Application.Shutdown(timeout)
}

// IsEnabled returns whether New Relic is enabled
func (nr *NewRelicApp) IsEnabled() bool {
	return nr.enabled
}

// Custom metric helpers

// RecordDispatchFanout records how many drivers were notified for a ride
func (nr *NewRelicApp) RecordDispatchFanout(candidates int) {
	nr.RecordCustomMetric("custom/dispatch/fanout", float64(candidates))
}

// RecordAcceptanceRace records the outcome of an acceptance attempt
func (nr *NewRelicApp) RecordAcceptanceRace(rideID string, won bool) {
	nr.RecordCustomEvent("AcceptanceRace", map[string]interface{}{
		"ride_id": rideID,
		"won":     won,
	})
}

// RecordRideCompleted records ride completion
func (nr *NewRelicApp) RecordRideCompleted(rideID string, fare float64, distanceKM float64) {
	nr.RecordCustomEvent("RideCompleted", map[string]interface{}{
		"ride_id":     rideID,
		"fare":        fare,
		"distance_km": distanceKM,
	})
}

// RecordPaymentProcessed records payment processing
func (nr *NewRelicApp) RecordPaymentProcessed(amount float64, method string, status string) {
	nr.RecordCustomEvent("PaymentProcessed", map[string]interface{}{
		"amount": amount,
		"method": method,
		"status": status,
	})
}

// RecordActiveSessions records the live websocket session count
func (nr *NewRelicApp) RecordActiveSessions(count int) {
	nr.RecordCustomMetric("custom/ws/active_sessions", float64(count))
}
