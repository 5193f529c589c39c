package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory append-only repository useful for tests.
// It is not intended for production use.
//
// The sequence counter mirrors the Postgres BIGSERIAL column: appends in a
// single process observe a strictly increasing sequence, which is the
// tie-break when occurred_at timestamps collide.

type MemoryRepo struct {
	mu      sync.Mutex
	records []Record
	seq     int64
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, rec Record) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	r.seq++
	rec.Sequence = r.seq
	r.records = append(r.records, rec)
	return rec, nil
}

func (r *MemoryRepo) FindBySubject(ctx context.Context, subjectID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0)
	for _, rec := range r.records {
		if rec.SubjectID == subjectID {
			out = append(out, rec)
		}
	}
	sortTrail(out)
	return out, nil
}

func (r *MemoryRepo) FindByParent(ctx context.Context, parentID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Record, 0)
	for _, rec := range r.records {
		if rec.ParentID == parentID && parentID != "" {
			out = append(out, rec)
		}
	}
	sortTrail(out)
	return out, nil
}

func (r *MemoryRepo) FindByID(ctx context.Context, id string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrRecordNotFound
}

// Records returns a copy of everything appended, in insertion order.
func (r *MemoryRepo) Records() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

func sortTrail(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].OccurredAt.Equal(recs[j].OccurredAt) {
			return recs[i].Sequence < recs[j].Sequence
		}
		return recs[i].OccurredAt.Before(recs[j].OccurredAt)
	})
}
