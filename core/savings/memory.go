package savings

import (
	"sort"
	"sync"
	"time"

	"github.com/viklund/heatopt/core/model"
)

// MemoryStore keeps the ledger in memory for testing or lightweight usage.
type MemoryStore struct {
	mu   sync.Mutex
	recs map[string][]model.SavingsRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: map[string][]model.SavingsRecord{}}
}

// Add appends the record. Existing records are never modified.
func (s *MemoryStore) Add(r model.SavingsRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[r.ZoneID] = append(s.recs[r.ZoneID], r)
	return nil
}

// Query returns records whose period starts within [start, end).
func (s *MemoryStore) Query(zoneID string, start, end time.Time) ([]model.SavingsRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SavingsRecord
	for _, r := range s.recs[zoneID] {
		if !r.PeriodStart.Before(start) && r.PeriodStart.Before(end) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.Before(out[j].PeriodStart) })
	return out, nil
}
