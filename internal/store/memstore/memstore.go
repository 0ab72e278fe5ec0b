// Package memstore is an in-memory store.Store implementation used by
// pipeline tests and by config-less development runs that have no
// Postgres instance to point at.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/imgproxy/imgproxy/internal/store"
)

// Store keeps verdicts and reports in maps guarded by a single mutex;
// it makes no attempt at the concurrency scaling a pooled SQL
// connection gives the real backend.
type Store struct {
	mu       sync.RWMutex
	verdicts map[string]store.Verdict // keyed by URL
	reports  map[string]store.Report  // keyed by report ID string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		verdicts: make(map[string]store.Verdict),
		reports:  make(map[string]store.Report),
	}
}

func (s *Store) GetVerdicts(ctx context.Context, urls []string) ([]store.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Verdict
	for _, u := range urls {
		if v, ok := s.verdicts[u]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) GetAllVerdicts(ctx context.Context) ([]store.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Verdict, 0, len(s.verdicts))
	for _, v := range s.verdicts {
		out = append(out, v)
	}
	return out, nil
}

// PutVerdict does nothing if a verdict already exists for v.URL,
// matching the SQL backend's ON CONFLICT DO NOTHING semantics.
func (s *Store) PutVerdict(ctx context.Context, v store.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.verdicts[v.URL]; exists {
		return nil
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = time.Now()
	}
	s.verdicts[v.URL] = v
	return nil
}

func (s *Store) UpdateVerdict(ctx context.Context, v store.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v.UpdatedAt = time.Now()
	s.verdicts[v.URL] = v
	return nil
}

// PutReport does nothing if a report with r.ID already exists.
func (s *Store) PutReport(ctx context.Context, r store.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := r.ID.String()
	if _, exists := s.reports[key]; exists {
		return nil
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	s.reports[key] = r
	return nil
}

func (s *Store) GetReports(ctx context.Context) ([]store.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Report, 0, len(s.reports))
	for _, r := range s.reports {
		out = append(out, r)
	}
	return out, nil
}
