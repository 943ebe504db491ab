package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the semantic health of a container derived from one observation.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
	StatusCleanExit
	StatusCrashed
)

var statusNames = [...]string{
	StatusUnknown:   "Unknown",
	StatusHealthy:   "Healthy",
	StatusUnhealthy: "Unhealthy",
	StatusCleanExit: "CleanExit",
	StatusCrashed:   "Crashed",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return statusNames[StatusUnknown]
	}
	return statusNames[s]
}

// ParseStatus is the inverse of String. Unrecognised names map to StatusUnknown.
func ParseStatus(v string) Status {
	for i, name := range statusNames {
		if strings.EqualFold(name, strings.TrimSpace(v)) {
			return Status(i)
		}
	}
	return StatusUnknown
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed := ParseStatus(string(b))
	if parsed == StatusUnknown && !strings.EqualFold(strings.TrimSpace(string(b)), "unknown") {
		return fmt.Errorf("unknown status %q", string(b))
	}
	*s = parsed
	return nil
}

// Observation is one container as reported by the engine during a poll.
type Observation struct {
	ID           string
	Name         string
	Service      string
	State        string
	Health       string
	ExitCode     *int
	ErrorMessage string
}

type ContainerRecord struct {
	Name              string    `json:"name"`
	Status            Status    `json:"status"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	LastErrorMessage  string    `json:"last_error_message,omitempty"`
	LastSeenAt        time.Time `json:"last_seen_at"`
}

type AlertEvent struct {
	ID             int64     `json:"id"`
	TS             time.Time `json:"ts"`
	Project        string    `json:"project"`
	Container      string    `json:"container"`
	Status         Status    `json:"status"`
	ErrorCount     int       `json:"error_count"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Message        string    `json:"message"`
	Delivered      bool      `json:"delivered"`
	HTTPStatus     int       `json:"http_status,omitempty"`
	Error          string    `json:"error,omitempty"`
}
