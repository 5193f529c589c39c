package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"audit-platform/internal/audit"
	"audit-platform/internal/tracker"
	"audit-platform/pkg/logger"

	"github.com/google/uuid"
)

const (
	// SubjectKindUser tags audit records about a single user.
	SubjectKindUser = "User"
	// SubjectKindBulk tags the root record of a compound bulk operation.
	// Per-user records hang off it via parent_id.
	SubjectKindBulk = "BulkOperation"
)

var (
	ErrNotFound        = errors.New("users: not found")
	ErrInvalidArgument = errors.New("users: invalid argument")
)

// Repository is the persistence contract for users.
type Repository interface {
	Insert(ctx context.Context, u User) error
	FindByID(ctx context.Context, id string) (User, error)
	Update(ctx context.Context, u User) error
	Delete(ctx context.Context, id string) error
}

// Directory adapts a user Repository to the audit engine's actor lookup.
type Directory struct {
	repo Repository
}

func NewDirectory(repo Repository) *Directory { return &Directory{repo: repo} }

func (d *Directory) LookupActor(ctx context.Context, actorID string) (audit.ActorInfo, error) {
	u, err := d.repo.FindByID(ctx, actorID)
	if err != nil {
		return audit.ActorInfo{}, err
	}
	return audit.ActorInfo{ID: u.ID, DisplayName: u.Name, Email: u.Email}, nil
}

// Service provides user CRUD with audit emission.
//
// Audit invariants:
// - Every mutation writes exactly one audit record for the user touched.
// - An audit write failure fails the whole operation AND rolls the mutation
//   back with a compensating write, so no mutation survives without its
//   record. The compensation happens at this layer because the Repository
//   contract spans implementations (memory, Postgres) and the audit append
//   also drives cache invalidation a DB transaction could not cover.
//   If the compensating write itself fails the gap is logged loudly; the
//   caller still sees the original audit error.
// - Bulk operations chain per-user records under one root record so the
//   compound operation's causal history can be reconstructed. The batch is
//   not all-or-nothing: each per-user unit is consistent on its own, and an
//   abort leaves earlier units committed with their records.
type Service struct {
	repo  Repository
	trail *audit.Service
	clock func() time.Time
}

func NewService(repo Repository, trail *audit.Service) *Service {
	return &Service{repo: repo, trail: trail, clock: time.Now}
}

type CreateRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (s *Service) Create(ctx context.Context, actorID string, transport audit.Transport, req CreateRequest) (User, error) {
	if actorID == "" || req.Email == "" || req.Name == "" {
		return User{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	u := User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Name:      req.Name,
		Status:    UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Encode before writing anything: an encode failure must not leave a
	// user behind with no CREATE record.
	payload, err := json.Marshal(u.snapshot())
	if err != nil {
		return User{}, fmt.Errorf("users: encode create payload: %w", err)
	}
	if err := s.repo.Insert(ctx, u); err != nil {
		return User{}, err
	}
	if _, err := s.trail.Record(ctx, audit.Entry{
		ActorID:     actorID,
		SubjectKind: SubjectKindUser,
		SubjectID:   u.ID,
		Action:      audit.ActionCreate,
		Payload:     payload,
		Transport:   transport,
	}); err != nil {
		// No user may exist without its CREATE record.
		if rerr := s.repo.Delete(ctx, u.ID); rerr != nil {
			logger.From(ctx).Error("audit compensation failed", "op", "create", "user_id", u.ID, "err", rerr)
		}
		return User{}, err
	}
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	if id == "" {
		return User{}, ErrInvalidArgument
	}
	return s.repo.FindByID(ctx, id)
}

// UpdateRequest is a patch: nil fields are left untouched.
type UpdateRequest struct {
	Email  *string     `json:"email,omitempty"`
	Name   *string     `json:"name,omitempty"`
	Status *UserStatus `json:"status,omitempty"`
}

func (r UpdateRequest) apply(u User) (User, error) {
	if r.Email != nil {
		if *r.Email == "" {
			return User{}, ErrInvalidArgument
		}
		u.Email = *r.Email
	}
	if r.Name != nil {
		if *r.Name == "" {
			return User{}, ErrInvalidArgument
		}
		u.Name = *r.Name
	}
	if r.Status != nil {
		if !r.Status.Valid() {
			return User{}, ErrInvalidArgument
		}
		u.Status = *r.Status
	}
	return u, nil
}

// Update applies a patch and records the resulting field changes.
// A no-op patch (nothing actually changed) writes nothing and emits no
// audit record.
func (s *Service) Update(ctx context.Context, actorID string, transport audit.Transport, id string, req UpdateRequest) (User, error) {
	if actorID == "" || id == "" {
		return User{}, ErrInvalidArgument
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	updated, err := req.apply(current)
	if err != nil {
		return User{}, err
	}

	changes, err := tracker.Diff(current.snapshot(), updated.snapshot())
	if err != nil {
		return User{}, err
	}
	if changes.Empty() {
		return current, nil
	}

	payload, err := changes.Payload()
	if err != nil {
		return User{}, fmt.Errorf("users: encode update payload: %w", err)
	}

	updated.UpdatedAt = s.clock().UTC()
	if err := s.repo.Update(ctx, updated); err != nil {
		return User{}, err
	}
	if _, err := s.trail.Record(ctx, audit.Entry{
		ActorID:     actorID,
		SubjectKind: SubjectKindUser,
		SubjectID:   updated.ID,
		Action:      audit.ActionUpdate,
		Payload:     payload,
		Transport:   transport,
	}); err != nil {
		// Restore the previous state; the change has no record.
		if rerr := s.repo.Update(ctx, current); rerr != nil {
			logger.From(ctx).Error("audit compensation failed", "op", "update", "user_id", current.ID, "err", rerr)
		}
		return User{}, err
	}
	return updated, nil
}

// Delete removes the user and records the final state prior to removal.
func (s *Service) Delete(ctx context.Context, actorID string, transport audit.Transport, id string) error {
	if actorID == "" || id == "" {
		return ErrInvalidArgument
	}

	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(current.snapshot())
	if err != nil {
		return fmt.Errorf("users: encode delete payload: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if _, err := s.trail.Record(ctx, audit.Entry{
		ActorID:     actorID,
		SubjectKind: SubjectKindUser,
		SubjectID:   id,
		Action:      audit.ActionDelete,
		Payload:     payload,
		Transport:   transport,
	}); err != nil {
		// Bring the user back; a removal with no DELETE record anywhere
		// would be an invisible audit gap.
		if rerr := s.repo.Insert(ctx, current); rerr != nil {
			logger.From(ctx).Error("audit compensation failed", "op", "delete", "user_id", current.ID, "err", rerr)
		}
		return err
	}
	return nil
}

// BulkResult reports the outcome of a bulk status update.
type BulkResult struct {
	OperationID string   `json:"operation_id"`
	RootRecord  string   `json:"root_record_id"`
	Updated     []string `json:"updated"`
	Missing     []string `json:"missing"`
}

// BulkUpdateStatus moves many users to the target status as one compound
// operation: a root audit record describes the operation, and every per-user
// change is linked to it via parent_id. Unknown ids are skipped and reported
// in the result rather than aborting the batch.
func (s *Service) BulkUpdateStatus(ctx context.Context, actorID string, transport audit.Transport, userIDs []string, status UserStatus) (BulkResult, error) {
	if actorID == "" || len(userIDs) == 0 || !status.Valid() {
		return BulkResult{}, ErrInvalidArgument
	}

	opID := uuid.NewString()
	rootPayload, err := json.Marshal(map[string]any{
		"status":   string(status),
		"user_ids": userIDs,
	})
	if err != nil {
		return BulkResult{}, fmt.Errorf("users: encode bulk payload: %w", err)
	}

	// Parent first: children store a reference to an already-persisted id.
	root, err := s.trail.Record(ctx, audit.Entry{
		ActorID:     actorID,
		SubjectKind: SubjectKindBulk,
		SubjectID:   opID,
		Action:      audit.ActionUpdate,
		Payload:     rootPayload,
		Transport:   transport,
	})
	if err != nil {
		return BulkResult{}, err
	}

	out := BulkResult{
		OperationID: opID,
		RootRecord:  root.ID,
		Updated:     make([]string, 0, len(userIDs)),
		Missing:     make([]string, 0),
	}
	for _, id := range userIDs {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				out.Missing = append(out.Missing, id)
				continue
			}
			return BulkResult{}, err
		}

		updated := current
		updated.Status = status
		changes, err := tracker.Diff(current.snapshot(), updated.snapshot())
		if err != nil {
			return BulkResult{}, err
		}
		if changes.Empty() {
			continue
		}

		updated.UpdatedAt = s.clock().UTC()
		if err := s.repo.Update(ctx, updated); err != nil {
			return BulkResult{}, err
		}

		payload, err := changes.Payload()
		if err != nil {
			return BulkResult{}, fmt.Errorf("users: encode bulk change payload: %w", err)
		}
		if _, err := s.trail.RecordLinked(ctx, audit.Entry{
			ActorID:     actorID,
			SubjectKind: SubjectKindUser,
			SubjectID:   updated.ID,
			Action:      audit.ActionUpdate,
			Payload:     payload,
			Transport:   transport,
		}, root.ID); err != nil {
			// The unit's record failed; undo the unit so the abort leaves
			// only fully-recorded changes behind.
			if rerr := s.repo.Update(ctx, current); rerr != nil {
				logger.From(ctx).Error("audit compensation failed", "op", "bulk_update", "user_id", current.ID, "err", rerr)
			}
			return BulkResult{}, err
		}
		out.Updated = append(out.Updated, id)
	}
	return out, nil
}
