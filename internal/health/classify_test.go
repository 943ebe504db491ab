package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"composewatch/internal/models"
)

func intp(v int) *int { return &v }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		obs  models.Observation
		want models.Status
	}{
		{"created", models.Observation{State: "created"}, models.StatusHealthy},
		{"created ignores health", models.Observation{State: "created", Health: "unhealthy"}, models.StatusHealthy},
		{"running healthy", models.Observation{State: "running", Health: "healthy"}, models.StatusHealthy},
		{"running unhealthy", models.Observation{State: "running", Health: "unhealthy"}, models.StatusUnhealthy},
		{"running starting", models.Observation{State: "running", Health: "starting"}, models.StatusUnhealthy},
		{"running no healthcheck", models.Observation{State: "running"}, models.StatusUnhealthy},
		{"exited zero", models.Observation{State: "exited", ExitCode: intp(0)}, models.StatusCleanExit},
		{"exited nonzero", models.Observation{State: "exited", ExitCode: intp(137)}, models.StatusCrashed},
		{"exited negative", models.Observation{State: "exited", ExitCode: intp(-1)}, models.StatusCrashed},
		{"exited no metadata", models.Observation{State: "exited"}, models.StatusUnknown},
		{"paused", models.Observation{State: "paused", ExitCode: intp(0)}, models.StatusUnknown},
		{"restarting", models.Observation{State: "restarting"}, models.StatusUnknown},
		{"dead", models.Observation{State: "dead", ExitCode: intp(1)}, models.StatusUnknown},
		{"empty", models.Observation{}, models.StatusUnknown},
		{"case and space", models.Observation{State: " Running ", Health: "HEALTHY"}, models.StatusHealthy},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.obs))
		})
	}
}

func TestClassifyCreatedIsAlwaysHealthy(t *testing.T) {
	for _, h := range []string{"", "healthy", "unhealthy", "starting", "none"} {
		for _, code := range []*int{nil, intp(0), intp(1)} {
			got := Classify(models.Observation{State: StateCreated, Health: h, ExitCode: code})
			assert.Equal(t, models.StatusHealthy, got, "health=%q", h)
		}
	}
}
