package ride

import "strings"

// Status represents ride status
type Status string

const (
	StatusRequested     Status = "requested"
	StatusAccepted      Status = "accepted"
	StatusDriverArrived Status = "driver_arrived"
	StatusInProgress    Status = "in_progress"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// ParseStatus normalizes and validates a status string.
func ParseStatus(in string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(in)))
	return s, s.IsValid()
}

// IsValid validates the status
func (s Status) IsValid() bool {
	switch s {
	case StatusRequested, StatusAccepted, StatusDriverArrived,
		StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo reports whether a transition from s to next is legal.
// Cancellation is reachable from every non-terminal state; everything else
// follows the linear requested -> accepted -> driver_arrived -> in_progress
// -> completed progression.
func (s Status) CanTransitionTo(next Status) bool {
	if next == StatusCancelled {
		return !s.IsTerminal()
	}

	switch s {
	case StatusRequested:
		return next == StatusAccepted
	case StatusAccepted:
		return next == StatusDriverArrived
	case StatusDriverArrived:
		return next == StatusInProgress
	case StatusInProgress:
		return next == StatusCompleted
	default:
		return false
	}
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}
