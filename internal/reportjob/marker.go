package reportjob

import (
	"context"
	"fmt"
)

// MarkerKey is the session key holding the jobs a client believes are running.
const MarkerKey = "CurrentReportGenerate"

// Marker records the report jobs this client believes are in flight. It is
// advisory: the backend is the source of truth and the poller overwrites the
// marker with whatever the backend reports.
type Marker struct {
	store SessionStore
	key   string
}

func NewMarker(store SessionStore) *Marker {
	return &Marker{store: store, key: MarkerKey}
}

// IsMarked reports whether at least one job is recorded.
func (m *Marker) IsMarked(ctx context.Context) (bool, error) {
	v, ok, err := m.store.Get(ctx, m.key)
	if err != nil {
		return false, fmt.Errorf("marker: %w", err)
	}
	if !ok {
		return false, nil
	}
	jobs, err := DecodeJobs(v)
	if err != nil {
		// Unreadable content still means somebody wrote it.
		return v != "", nil
	}
	return len(jobs) > 0, nil
}

// Jobs returns the recorded jobs, nil when the marker is empty.
func (m *Marker) Jobs(ctx context.Context) ([]JobID, error) {
	v, ok, err := m.store.Get(ctx, m.key)
	if err != nil {
		return nil, fmt.Errorf("marker: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return DecodeJobs(v)
}

// Mark replaces the recorded jobs. Marking nothing clears the marker.
func (m *Marker) Mark(ctx context.Context, jobs ...JobID) error {
	if len(jobs) == 0 {
		return m.Clear(ctx)
	}
	v, err := EncodeJobs(jobs)
	if err != nil {
		return fmt.Errorf("marker: %w", err)
	}
	if err := m.store.Set(ctx, m.key, v); err != nil {
		return fmt.Errorf("marker: %w", err)
	}
	return nil
}

// TryMark records job only if the marker is empty. It returns false, without
// writing, when another job is already recorded.
func (m *Marker) TryMark(ctx context.Context, job JobID) (bool, error) {
	v, err := EncodeJobs([]JobID{job})
	if err != nil {
		return false, fmt.Errorf("marker: %w", err)
	}
	ok, err := m.store.SetIfAbsent(ctx, m.key, v)
	if err != nil {
		return false, fmt.Errorf("marker: %w", err)
	}
	return ok, nil
}

// Clear empties the marker. Clearing an empty marker is not an error.
func (m *Marker) Clear(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.key); err != nil {
		return fmt.Errorf("marker: %w", err)
	}
	return nil
}
