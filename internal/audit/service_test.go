package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	at := time.Unix(1700000000, 0).UTC()
	return func() time.Time { return at }
}

func validEntry() Entry {
	return Entry{
		ActorID:     "actor-1",
		SubjectKind: "User",
		SubjectID:   "user-1",
		Action:      ActionCreate,
		Payload:     []byte(`{"name":"a"}`),
		Transport:   TransportPost,
	}
}

func TestService_RecordRoundTrip(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	e := validEntry()
	rec, err := svc.Record(context.Background(), e)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rec.ID == "" || rec.Sequence == 0 || rec.OccurredAt.IsZero() {
		t.Fatalf("expected generated fields, got %+v", rec)
	}
	if rec.ActorID != e.ActorID || rec.SubjectID != e.SubjectID || rec.SubjectKind != e.SubjectKind || rec.Action != e.Action {
		t.Fatalf("stored fields do not match input: %+v", rec)
	}

	trail, err := svc.TrailFor(context.Background(), e.SubjectID)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(trail) != 1 || trail[0].ID != rec.ID {
		t.Fatalf("expected trail to contain the record, got %+v", trail)
	}
}

func TestService_RecordValidationCompleteness(t *testing.T) {
	cases := map[string]func(*Entry){
		"actor_id":     func(e *Entry) { e.ActorID = "" },
		"subject_kind": func(e *Entry) { e.SubjectKind = "" },
		"subject_id":   func(e *Entry) { e.SubjectID = "" },
		"action":       func(e *Entry) { e.Action = "" },
		"payload":      func(e *Entry) { e.Payload = nil },
	}
	for field, mutate := range cases {
		repo := NewMemoryRepo()
		svc := NewService(repo, nil)

		e := validEntry()
		mutate(&e)
		_, err := svc.Record(context.Background(), e)
		if !IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", field, err)
		}
		var verr *ValidationError
		errors.As(err, &verr)
		found := false
		for _, f := range verr.Fields {
			if f == field {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected %q named in %v", field, verr.Fields)
		}
		if len(repo.Records()) != 0 {
			t.Fatalf("%s: nothing may be persisted on validation failure", field)
		}
	}
}

func TestService_RecordRejectsUnknownActionAndTransport(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	e := validEntry()
	e.Action = "UPSERT"
	if _, err := svc.Record(context.Background(), e); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown action, got %v", err)
	}

	e = validEntry()
	e.Transport = "CARRIER-PIGEON"
	if _, err := svc.Record(context.Background(), e); !IsValidation(err) {
		t.Fatalf("expected validation error for unknown transport, got %v", err)
	}
	if len(repo.Records()) != 0 {
		t.Fatalf("nothing may be persisted")
	}
}

func TestService_TrailOrderingIsStableUnderEqualTimestamps(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)
	// Every record gets the identical timestamp; ordering must fall back to
	// the store's sequence key.
	svc.clock = fixedClock()

	var ids []string
	for i := 0; i < 5; i++ {
		e := validEntry()
		rec, err := svc.Record(context.Background(), e)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		ids = append(ids, rec.ID)
	}

	trail, err := svc.TrailFor(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(trail) != len(ids) {
		t.Fatalf("expected %d entries, got %d", len(ids), len(trail))
	}
	for i, entry := range trail {
		if entry.ID != ids[i] {
			t.Fatalf("trail out of order at %d: got %s want %s", i, entry.ID, ids[i])
		}
	}
}

func TestService_RecordLinkedRequiresParent(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	_, err := svc.RecordLinked(context.Background(), validEntry(), "")
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	var verr *ValidationError
	if errors.As(err, &verr) && (len(verr.Fields) != 1 || verr.Fields[0] != "parent_id") {
		t.Fatalf("expected parent_id named, got %v", verr.Fields)
	}
	if len(repo.Records()) != 0 {
		t.Fatalf("nothing may be persisted")
	}
}

func TestService_ChildrenOfReturnsDirectChildrenOnly(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	root, err := svc.Record(context.Background(), validEntry())
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	child, err := svc.RecordLinked(context.Background(), validEntry(), root.ID)
	if err != nil {
		t.Fatalf("child: %v", err)
	}
	// Grandchild is two hops from root and must not appear in root's children.
	grandchild, err := svc.RecordLinked(context.Background(), validEntry(), child.ID)
	if err != nil {
		t.Fatalf("grandchild: %v", err)
	}

	children, err := svc.ChildrenOf(context.Background(), root.ID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("expected only the direct child, got %+v", children)
	}

	children, err = svc.ChildrenOf(context.Background(), child.ID)
	if err != nil {
		t.Fatalf("children of child: %v", err)
	}
	if len(children) != 1 || children[0].ID != grandchild.ID {
		t.Fatalf("expected grandchild under child, got %+v", children)
	}
}

func TestService_EndToEndCreateThenLinkedUpdate(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	r1, err := svc.Record(context.Background(), Entry{
		ActorID:     "actor-1",
		SubjectKind: "User",
		SubjectID:   "subject-s",
		Action:      ActionCreate,
		Payload:     []byte(`{"name":"a"}`),
	})
	if err != nil {
		t.Fatalf("r1: %v", err)
	}

	r2, err := svc.RecordLinked(context.Background(), Entry{
		ActorID:     "actor-1",
		SubjectKind: "User",
		SubjectID:   "subject-s",
		Action:      ActionUpdate,
		Payload:     []byte(`{"name":{"from":"a","to":"b"}}`),
	}, r1.ID)
	if err != nil {
		t.Fatalf("r2: %v", err)
	}

	trail, err := svc.TrailFor(context.Background(), "subject-s")
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(trail) != 2 || trail[0].ID != r1.ID || trail[1].ID != r2.ID {
		t.Fatalf("expected [r1, r2], got %+v", trail)
	}
	if trail[1].Parent == nil || trail[1].Parent.ID != r1.ID {
		t.Fatalf("expected r2's parent projection to resolve r1")
	}

	children, err := svc.ChildrenOf(context.Background(), r1.ID)
	if err != nil {
		t.Fatalf("children: %v", err)
	}
	if len(children) != 1 || children[0].ID != r2.ID {
		t.Fatalf("expected [r2], got %+v", children)
	}
}

func TestService_TrailResolvesParentFromAnotherSubject(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, nil)

	// The parent lives in a different subject's trail, so projection has to
	// go through the store's point lookup rather than the indexed trail.
	root, err := svc.Record(context.Background(), Entry{
		ActorID:     "actor-1",
		SubjectKind: "BulkOperation",
		SubjectID:   "op-1",
		Action:      ActionUpdate,
		Payload:     []byte(`{"status":"disabled"}`),
	})
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	e := validEntry()
	e.Action = ActionUpdate
	child, err := svc.RecordLinked(context.Background(), e, root.ID)
	if err != nil {
		t.Fatalf("child: %v", err)
	}

	trail, err := svc.TrailFor(context.Background(), e.SubjectID)
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if len(trail) != 1 || trail[0].ID != child.ID {
		t.Fatalf("expected only the child in its subject's trail, got %+v", trail)
	}
	if trail[0].Parent == nil || trail[0].Parent.ID != root.ID {
		t.Fatalf("expected the out-of-trail parent resolved, got %+v", trail[0].Parent)
	}
	if trail[0].Parent.SubjectID != "op-1" {
		t.Fatalf("unexpected parent: %+v", trail[0].Parent)
	}
}

// noLookupRepo stores normally but fails point lookups, as a store whose
// parent reads are unavailable would.
type noLookupRepo struct{ *MemoryRepo }

func (r noLookupRepo) FindByID(ctx context.Context, id string) (Record, error) {
	return Record{}, errors.New("lookup unavailable")
}

func TestService_ParentLookupFailureDoesNotFailRead(t *testing.T) {
	svc := NewService(noLookupRepo{NewMemoryRepo()}, nil)

	root, err := svc.Record(context.Background(), Entry{
		ActorID:     "actor-1",
		SubjectKind: "BulkOperation",
		SubjectID:   "op-1",
		Action:      ActionUpdate,
		Payload:     []byte(`{"status":"disabled"}`),
	})
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	e := validEntry()
	e.Action = ActionUpdate
	child, err := svc.RecordLinked(context.Background(), e, root.ID)
	if err != nil {
		t.Fatalf("child: %v", err)
	}

	trail, err := svc.TrailFor(context.Background(), e.SubjectID)
	if err != nil {
		t.Fatalf("lookup failure must not fail the read: %v", err)
	}
	if len(trail) != 1 || trail[0].ID != child.ID {
		t.Fatalf("expected the record regardless, got %+v", trail)
	}
	if trail[0].Parent != nil {
		t.Fatalf("expected nil parent projection on lookup failure")
	}
	if trail[0].ParentID != root.ID {
		t.Fatalf("raw parent reference must survive unexpanded")
	}
}

type fakeDirectory struct {
	actors map[string]ActorInfo
	err    error
}

func (d fakeDirectory) LookupActor(ctx context.Context, actorID string) (ActorInfo, error) {
	if d.err != nil {
		return ActorInfo{}, d.err
	}
	info, ok := d.actors[actorID]
	if !ok {
		return ActorInfo{}, errors.New("unknown actor")
	}
	return info, nil
}

func TestService_TrailExpandsActors(t *testing.T) {
	repo := NewMemoryRepo()
	dir := fakeDirectory{actors: map[string]ActorInfo{
		"actor-1": {ID: "actor-1", DisplayName: "Ada", Email: "ada@example.com"},
	}}
	svc := NewService(repo, dir)

	if _, err := svc.Record(context.Background(), validEntry()); err != nil {
		t.Fatalf("record: %v", err)
	}

	trail, err := svc.TrailFor(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("trail: %v", err)
	}
	if trail[0].Actor == nil || trail[0].Actor.DisplayName != "Ada" {
		t.Fatalf("expected actor projection, got %+v", trail[0].Actor)
	}
}

func TestService_ProjectionFailureDoesNotFailRead(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo, fakeDirectory{err: errors.New("directory down")})

	if _, err := svc.Record(context.Background(), validEntry()); err != nil {
		t.Fatalf("record: %v", err)
	}

	trail, err := svc.TrailFor(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("projection failure must not fail the read: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("expected the record regardless, got %d entries", len(trail))
	}
	if trail[0].Actor != nil {
		t.Fatalf("expected nil actor on projection failure")
	}
	if trail[0].ActorID != "actor-1" {
		t.Fatalf("raw actor reference must survive unexpanded")
	}
}

type failingRepo struct{}

func (failingRepo) Append(ctx context.Context, r Record) (Record, error) {
	return Record{}, errors.New("connection refused")
}
func (failingRepo) FindBySubject(ctx context.Context, subjectID string) ([]Record, error) {
	return nil, errors.New("connection refused")
}
func (failingRepo) FindByParent(ctx context.Context, parentID string) ([]Record, error) {
	return nil, errors.New("connection refused")
}
func (failingRepo) FindByID(ctx context.Context, id string) (Record, error) {
	return Record{}, errors.New("connection refused")
}

func TestService_StorageFailurePropagates(t *testing.T) {
	svc := NewService(failingRepo{}, nil)

	_, err := svc.Record(context.Background(), validEntry())
	if !IsStorage(err) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if _, err := svc.TrailFor(context.Background(), "user-1"); !IsStorage(err) {
		t.Fatalf("expected storage error on trail, got %v", err)
	}
	if _, err := svc.ChildrenOf(context.Background(), "x"); !IsStorage(err) {
		t.Fatalf("expected storage error on children, got %v", err)
	}
}
