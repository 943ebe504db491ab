// Package health maps raw engine observations to semantic statuses.
package health

import (
	"strings"

	"composewatch/internal/models"
)

// Raw values reported by the engine.
const (
	StateCreated = "created"
	StateRunning = "running"
	StateExited  = "exited"

	HealthHealthy = "healthy"
)

// Classify derives the status of one observation. Anything the rules do not
// recognise is Unknown.
func Classify(o models.Observation) models.Status {
	switch normalize(o.State) {
	case StateCreated:
		return models.StatusHealthy
	case StateRunning:
		if normalize(o.Health) == HealthHealthy {
			return models.StatusHealthy
		}
		return models.StatusUnhealthy
	case StateExited:
		switch {
		case o.ExitCode == nil:
			return models.StatusUnknown
		case *o.ExitCode != 0:
			return models.StatusCrashed
		default:
			return models.StatusCleanExit
		}
	}
	return models.StatusUnknown
}

func normalize(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
