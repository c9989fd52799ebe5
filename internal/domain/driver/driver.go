package driver

import (
	"errors"
	"time"
)

// Status represents driver availability status
type Status string

const (
	StatusOffline Status = "offline"
	StatusOnline  Status = "online"
	StatusOnRide  Status = "on_ride"
)

// IsValid validates the status
func (s Status) IsValid() bool {
	switch s {
	case StatusOffline, StatusOnline, StatusOnRide:
		return true
	}
	return false
}

// Vehicle describes the driver's car.
type Vehicle struct {
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year,omitempty"`
	Color        string `json:"color,omitempty"`
	LicensePlate string `json:"license_plate"`
}

// Location is a driver's last-known position.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record is a live entry in the driver registry. It exists only while the
// driver's transport session is connected; it is not persisted.
type Record struct {
	DriverID  string   `json:"driver_id"`
	SessionID string   `json:"-"`
	Status    Status   `json:"status"`
	Location  Location `json:"location"`
	Vehicle   Vehicle  `json:"vehicle"`
}

// Errors
var (
	ErrNotRegistered = errors.New("driver not registered")
)

// Available reports whether the driver can be offered new rides.
func (r *Record) Available() bool {
	return r.Status == StatusOnline
}
