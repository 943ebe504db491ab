package state

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"composewatch/internal/models"
)

// ResetPolicy decides which observations end an error streak.
type ResetPolicy string

const (
	// ResetOnRecovered ends a streak when the new status is Healthy or CleanExit.
	ResetOnRecovered ResetPolicy = "recovered"
	// ResetOnPreviousHealthy ends a streak when the new status is CleanExit or
	// the previously recorded status was Healthy.
	ResetOnPreviousHealthy ResetPolicy = "previous-healthy"
)

func ParseResetPolicy(v string) (ResetPolicy, error) {
	switch p := ResetPolicy(v); p {
	case ResetOnRecovered, ResetOnPreviousHealthy:
		return p, nil
	case "":
		return ResetOnRecovered, nil
	default:
		return "", fmt.Errorf("unknown reset policy %q", v)
	}
}

func (p ResetPolicy) isError(prev, next models.Status) bool {
	if p == ResetOnPreviousHealthy {
		return next != models.StatusCleanExit && prev != models.StatusHealthy
	}
	return next != models.StatusHealthy && next != models.StatusCleanExit
}

// Store keeps the last known status and error streak of every container seen
// by this process. Records are never removed.
type Store struct {
	policy ResetPolicy
	now    func() time.Time

	mu      sync.RWMutex
	records map[string]*models.ContainerRecord
}

func NewStore(policy ResetPolicy) *Store {
	if policy == "" {
		policy = ResetOnRecovered
	}
	return &Store{policy: policy, now: time.Now, records: map[string]*models.ContainerRecord{}}
}

func (s *Store) Policy() ResetPolicy { return s.policy }

// Update records a new classification for name and reports whether the
// error streak grew.
func (s *Store) Update(name string, status models.Status, errMsg string) (models.ContainerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[name]
	if !ok {
		rec = &models.ContainerRecord{Name: name, Status: models.StatusUnknown}
		s.records[name] = rec
	}

	incremented := s.policy.isError(rec.Status, status)
	if incremented {
		rec.ConsecutiveErrors++
	} else {
		// A new streak must not report text from a recovered one.
		rec.ConsecutiveErrors = 0
		rec.LastErrorMessage = ""
	}
	rec.Status = status
	if errMsg != "" {
		rec.LastErrorMessage = errMsg
	}
	rec.LastSeenAt = s.now().UTC()
	return *rec, incremented
}

func (s *Store) Get(name string) (models.ContainerRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok {
		return models.ContainerRecord{}, false
	}
	return *rec, true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns copies of all records sorted by name.
func (s *Store) Snapshot() []models.ContainerRecord {
	s.mu.RLock()
	out := make([]models.ContainerRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
