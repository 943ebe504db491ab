package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakePruner struct {
	cutoffs []time.Time
	err     error
}

func (f *fakePruner) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 3, f.err
}

func TestRunUsesRetentionWindow(t *testing.T) {
	p := &fakePruner{}
	s := NewService(p, 7, slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Run(context.Background())
	assert.Equal(t, []time.Time{now.AddDate(0, 0, -7)}, p.cutoffs)
}

func TestRunDefaultsAndSurvivesErrors(t *testing.T) {
	p := &fakePruner{err: errors.New("disk I/O error")}
	s := NewService(p, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, 14, s.retentionDays)
	s.Run(context.Background())
	assert.Len(t, p.cutoffs, 1)
}

func TestLoopStopsWithContext(t *testing.T) {
	p := &fakePruner{}
	s := NewService(p, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Loop(ctx, time.Hour)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}
