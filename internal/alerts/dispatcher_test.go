package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"composewatch/internal/db"
	"composewatch/internal/models"
	"composewatch/internal/notifier"
)

func TestShouldAlert(t *testing.T) {
	var fired []int
	for k := 0; k <= 7; k++ {
		if ShouldAlert(k, 3) {
			fired = append(fired, k)
		}
	}
	assert.Equal(t, []int{3, 6}, fired)

	for k := 1; k <= 5; k++ {
		assert.True(t, ShouldAlert(k, 1), "threshold 1 alerts every error poll")
	}
	assert.False(t, ShouldAlert(0, 1))
	assert.True(t, ShouldAlert(2, 0), "non-positive threshold behaves like 1")
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "web-1", ShortName("shop-web-1", "shop"))
	assert.Equal(t, "web_1", ShortName("shop_web_1", "shop"))
	assert.Equal(t, "other-web-1", ShortName("other-web-1", "shop"))
	assert.Equal(t, "shop", ShortName("shop", "shop"))
	assert.Equal(t, "shop-web-1", ShortName("shop-web-1", ""))
}

func TestMessageFormat(t *testing.T) {
	rec := models.ContainerRecord{Status: models.StatusCrashed, LastErrorMessage: "exit 2"}
	assert.Equal(t,
		"\nContainer web-1 is Crashed\nThis has been in error for at least 7.50 seconds.\n\nError message: exit 2\n",
		Message("web-1", rec, 7.5))
}

func TestDispatchPlainWebhookSendsTextOnly(t *testing.T) {
	var bodies []map[string]any
	w := capturingWebhook(t, "https://hooks.example.com/alert", http.StatusOK, &bodies)

	d := NewDispatcher(w, nil, discardLogger(), "shop", 2*time.Second)
	d.Dispatch(context.Background(), models.ContainerRecord{Name: "shop-web-1", Status: models.StatusUnhealthy, ConsecutiveErrors: 3})

	require.Len(t, bodies, 1)
	assert.NotContains(t, bodies[0], "title")
	text := bodies[0]["text"].(string)
	assert.Contains(t, text, "Container web-1 is Unhealthy")
	assert.Contains(t, text, "at least 6.00 seconds")
}

func TestDispatchPushcutAddsTitle(t *testing.T) {
	var bodies []map[string]any
	w := capturingWebhook(t, "https://api.pushcut.io/secret/notifications/Docker", http.StatusOK, &bodies)

	d := NewDispatcher(w, nil, discardLogger(), "shop", time.Second)
	d.Dispatch(context.Background(), models.ContainerRecord{Name: "shop-db-1", Status: models.StatusCrashed, ConsecutiveErrors: 5})

	require.Len(t, bodies, 1)
	assert.Equal(t, "Container db-1 is Crashed", bodies[0]["title"])
	assert.Contains(t, bodies[0]["text"], "Container db-1 is Crashed")
}

func TestDispatchJournalsOutcome(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	var bodies []map[string]any
	ok := NewDispatcher(capturingWebhook(t, "https://hooks.example.com/a", http.StatusOK, &bodies), repo, discardLogger(), "shop", time.Second)
	ok.Dispatch(ctx, models.ContainerRecord{Name: "shop-web-1", Status: models.StatusUnhealthy, ConsecutiveErrors: 5})

	bad := NewDispatcher(capturingWebhook(t, "https://hooks.example.com/a", http.StatusInternalServerError, &bodies), repo, discardLogger(), "shop", time.Second)
	bad.Dispatch(ctx, models.ContainerRecord{Name: "shop-db-1", Status: models.StatusCrashed, ConsecutiveErrors: 10})

	events, err := repo.RecentAlertEvents(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	byName := map[string]models.AlertEvent{}
	for _, e := range events {
		byName[e.Container] = e
	}
	assert.True(t, byName["shop-web-1"].Delivered)
	assert.Equal(t, http.StatusOK, byName["shop-web-1"].HTTPStatus)
	assert.False(t, byName["shop-db-1"].Delivered)
	assert.Equal(t, http.StatusInternalServerError, byName["shop-db-1"].HTTPStatus)
	assert.Equal(t, 10.0, byName["shop-db-1"].ElapsedSeconds)
	assert.Equal(t, "Container db-1 is Crashed", byName["shop-db-1"].Message)
}

func TestDispatchSwallowsTransportAndJournalErrors(t *testing.T) {
	w := notifier.NewWebhook("https://hooks.example.com/a", time.Second)
	w.HTTP = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})}
	j := &failingJournal{}
	d := NewDispatcher(w, j, discardLogger(), "shop", time.Second)

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), models.ContainerRecord{Name: "shop-web-1", Status: models.StatusUnhealthy, ConsecutiveErrors: 5})
	})
	require.Len(t, j.events, 1)
	assert.False(t, j.events[0].Delivered)
	assert.Contains(t, j.events[0].Error, "connection refused")
}

type failingJournal struct {
	events []models.AlertEvent
}

func (f *failingJournal) InsertAlertEvent(_ context.Context, e models.AlertEvent) (int64, error) {
	f.events = append(f.events, e)
	return 0, errors.New("database is locked")
}

func capturingWebhook(t *testing.T, url string, status int, bodies *[]map[string]any) *notifier.Webhook {
	t.Helper()
	w := notifier.NewWebhook(url, time.Second)
	w.HTTP = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return nil, err
		}
		*bodies = append(*bodies, body)
		return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(`{}`))}, nil
	})}
	return w
}

func newTestRepo(t *testing.T) *db.Repository {
	t.Helper()
	sqldb, err := db.Open(t.TempDir() + "/test.db")
	require.NoError(t, err, "open db")
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, db.Migrate(sqldb), "migrate db")
	return db.NewRepository(sqldb)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
