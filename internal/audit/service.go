package audit

import (
	"context"
	"time"

	"audit-platform/pkg/logger"
)

// Repository is the persistence contract for audit records.
//
// It MUST be append-only. No Update/Delete methods are provided by design.
// Append assigns id, occurred_at (when absent) and the sequence tie-break
// key, and must persist atomically: a failed append leaves no trace.

type Repository interface {
	Append(ctx context.Context, r Record) (Record, error)

	// FindBySubject returns the subject's records ascending by
	// (occurred_at, sequence). Empty slice, not an error, when none exist.
	FindBySubject(ctx context.Context, subjectID string) ([]Record, error)

	// FindByParent returns the direct children of a record, same ordering.
	FindByParent(ctx context.Context, parentID string) ([]Record, error)

	// FindByID is the point lookup used for parent projection.
	// Returns ErrRecordNotFound for unknown ids.
	FindByID(ctx context.Context, id string) (Record, error)
}

// ActorDirectory resolves actor ids to display info for trail reads.
// Lookups are best-effort; a failing directory degrades the projection,
// never the query.
type ActorDirectory interface {
	LookupActor(ctx context.Context, actorID string) (ActorInfo, error)
}

// Service is the audit trail engine: the only component with business rules.
// It validates and persists records and answers the two traversal queries.
//
// The service holds no shared mutable state; all durable state lives in the
// repository, so concurrent calls need no engine-level locking.
type Service struct {
	repo   Repository
	actors ActorDirectory
	clock  func() time.Time
}

// NewService constructs the engine. actors may be nil; trail reads then
// skip the actor projection.
func NewService(repo Repository, actors ActorDirectory) *Service {
	return &Service{repo: repo, actors: actors, clock: time.Now}
}

// Entry carries the caller-supplied fields of a record to be written.
type Entry struct {
	ActorID     string
	SubjectKind string
	SubjectID   string
	Action      Action
	Payload     []byte
	Transport   Transport
}

func (e Entry) validate() *ValidationError {
	var missing []string
	if e.ActorID == "" {
		missing = append(missing, "actor_id")
	}
	if e.SubjectKind == "" {
		missing = append(missing, "subject_kind")
	}
	if e.SubjectID == "" {
		missing = append(missing, "subject_id")
	}
	if !e.Action.Valid() {
		missing = append(missing, "action")
	}
	if len(e.Payload) == 0 {
		missing = append(missing, "payload")
	}
	if !e.Transport.Valid() {
		missing = append(missing, "transport")
	}
	if len(missing) == 0 {
		return nil
	}
	return &ValidationError{Fields: missing}
}

// Record validates and persists one audit record.
// Validation rejects before any I/O is attempted; store failures propagate
// to the caller as StorageError, never swallowed.
func (s *Service) Record(ctx context.Context, e Entry) (Record, error) {
	if s.repo == nil {
		return Record{}, ErrNotConfigured
	}
	if verr := e.validate(); verr != nil {
		return Record{}, verr
	}

	r := Record{
		ActorID:     e.ActorID,
		SubjectID:   e.SubjectID,
		SubjectKind: e.SubjectKind,
		Action:      e.Action,
		Transport:   e.Transport,
		Payload:     e.Payload,
		OccurredAt:  s.clock().UTC(),
	}
	stored, err := s.repo.Append(ctx, r)
	if err != nil {
		return Record{}, &StorageError{Op: "append", Err: err}
	}
	return stored, nil
}

// RecordLinked persists a record marked as a consequence of parentID.
// The parent reference is mandatory here; its existence is the caller's
// responsibility (trails are built bottom-up, parents before children).
func (s *Service) RecordLinked(ctx context.Context, e Entry, parentID string) (Record, error) {
	if s.repo == nil {
		return Record{}, ErrNotConfigured
	}
	if parentID == "" {
		return Record{}, &ValidationError{Fields: []string{"parent_id"}}
	}
	if verr := e.validate(); verr != nil {
		return Record{}, verr
	}

	r := Record{
		ActorID:     e.ActorID,
		SubjectID:   e.SubjectID,
		SubjectKind: e.SubjectKind,
		Action:      e.Action,
		Transport:   e.Transport,
		Payload:     e.Payload,
		ParentID:    parentID,
		OccurredAt:  s.clock().UTC(),
	}
	stored, err := s.repo.Append(ctx, r)
	if err != nil {
		return Record{}, &StorageError{Op: "append", Err: err}
	}
	return stored, nil
}

// TrailFor returns the subject's full chronological trail, each record
// expanded with best-effort actor and parent projections.
func (s *Service) TrailFor(ctx context.Context, subjectID string) ([]TrailEntry, error) {
	if s.repo == nil {
		return nil, ErrNotConfigured
	}
	if subjectID == "" {
		return nil, &ValidationError{Fields: []string{"subject_id"}}
	}

	records, err := s.repo.FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, &StorageError{Op: "find_by_subject", Err: err}
	}

	// Parents are usually in the same trail; index it before falling back
	// to point lookups.
	byID := make(map[string]int, len(records))
	for i, r := range records {
		byID[r.ID] = i
	}

	actorCache := make(map[string]*ActorInfo)
	entries := make([]TrailEntry, 0, len(records))
	for _, r := range records {
		entry := TrailEntry{Record: r}
		entry.Actor = s.projectActor(ctx, r.ActorID, actorCache)
		entry.Parent = s.projectParent(ctx, r.ParentID, records, byID)
		entries = append(entries, entry)
	}
	return entries, nil
}

// ChildrenOf returns the direct children of parentID only, never the
// transitive closure. Reconstructing a full subtree is the caller's recursion;
// keeping this call one hop keeps it bounded.
func (s *Service) ChildrenOf(ctx context.Context, parentID string) ([]Record, error) {
	if s.repo == nil {
		return nil, ErrNotConfigured
	}
	if parentID == "" {
		return nil, &ValidationError{Fields: []string{"parent_id"}}
	}
	records, err := s.repo.FindByParent(ctx, parentID)
	if err != nil {
		return nil, &StorageError{Op: "find_by_parent", Err: err}
	}
	return records, nil
}

func (s *Service) projectActor(ctx context.Context, actorID string, cache map[string]*ActorInfo) *ActorInfo {
	if s.actors == nil || actorID == "" {
		return nil
	}
	if info, ok := cache[actorID]; ok {
		return info
	}
	info, err := s.actors.LookupActor(ctx, actorID)
	if err != nil {
		// Soft failure: return the raw reference unexpanded.
		logger.From(ctx).Debug("actor projection failed", "actor_id", actorID, "err", err)
		cache[actorID] = nil
		return nil
	}
	cache[actorID] = &info
	return &info
}

func (s *Service) projectParent(ctx context.Context, parentID string, trail []Record, byID map[string]int) *Record {
	if parentID == "" {
		return nil
	}
	if i, ok := byID[parentID]; ok {
		parent := trail[i]
		return &parent
	}
	parent, err := s.repo.FindByID(ctx, parentID)
	if err != nil {
		logger.From(ctx).Debug("parent projection failed", "parent_id", parentID, "err", err)
		return nil
	}
	return &parent
}
