package recognition

import (
	"sync"
	"time"

	"github.com/your-org/facehook/internal/models"
	"github.com/your-org/facehook/internal/observability"
)

// LatestStore is a single-slot holder of the most recent record. Writers are
// serialized; readers see either the old or the new record, never a mix.
// It keeps no history.
type LatestStore struct {
	mu  sync.RWMutex
	rec models.RecognitionRecord
}

// NewLatestStore starts with the waiting sentinel stamped at startedAt.
func NewLatestStore(startedAt time.Time) *LatestStore {
	return &LatestStore{rec: models.Waiting(startedAt)}
}

// Set replaces the stored record. Records are immutable, so no copy is made.
func (s *LatestStore) Set(rec models.RecognitionRecord) {
	s.mu.Lock()
	s.rec = rec
	s.mu.Unlock()
	observability.LatestRecordTimestamp.Set(float64(rec.ReceivedAt().UnixMilli()) / 1000)
}

func (s *LatestStore) Get() models.RecognitionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec
}
