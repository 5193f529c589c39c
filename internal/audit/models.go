package audit

import (
	"encoding/json"
	"time"
)

// Record is one immutable entry in the audit trail. It describes a single
// observed state transition of exactly one subject entity.
//
// Invariants:
// - Records are never updated or deleted; the trail is append-only.
// - actor_id, subject_id, subject_kind, action and payload are mandatory.
// - parent_id, when set, references an already-persisted record. The engine
//   does not enforce existence; callers build trails bottom-up.
//
// Storage recommendation (Postgres):
// - Table audit_records with an INSERT-only policy.
// - Indexes on subject_id and parent_id (the two required lookup paths).
// - A BIGSERIAL sequence column as the tie-break ordering key.

type Record struct {
	ID string `json:"id" db:"id"`

	// ActorID is the principal that caused the transition.
	ActorID string `json:"actor_id" db:"actor_id"`

	// SubjectID and SubjectKind identify the entity that changed.
	SubjectID   string `json:"subject_id" db:"subject_id"`
	SubjectKind string `json:"subject_kind" db:"subject_kind"`

	Action Action `json:"action" db:"action"`

	// Transport names the channel that triggered the mutation.
	// Informational only; never used for business logic.
	Transport Transport `json:"transport,omitempty" db:"transport"`

	// Payload describes what changed.
	// CREATE: the initial state. DELETE: the final state before removal.
	// UPDATE: a map of changed field name to {from, to}.
	Payload json.RawMessage `json:"payload" db:"payload"`

	// ParentID links this record as a consequence of another record.
	ParentID string `json:"parent_id,omitempty" db:"parent_id"`

	OccurredAt time.Time `json:"occurred_at" db:"occurred_at"`

	// Sequence is assigned by the store and breaks occurred_at ties so the
	// trail order is deterministic even under equal wall-clock timestamps.
	Sequence int64 `json:"sequence" db:"sequence"`
}

type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// Transport tags the triggering channel with an HTTP-verb-like label.
type Transport string

const (
	TransportGet    Transport = "GET"
	TransportPost   Transport = "POST"
	TransportPut    Transport = "PUT"
	TransportPatch  Transport = "PATCH"
	TransportDelete Transport = "DELETE"
)

// Valid accepts the empty transport; the field is optional.
func (t Transport) Valid() bool {
	switch t {
	case "", TransportGet, TransportPost, TransportPut, TransportPatch, TransportDelete:
		return true
	default:
		return false
	}
}

// ActorInfo is the display projection of an actor, resolved best-effort
// from the actor directory when reading a trail.
type ActorInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// TrailEntry is a Record plus its optional read-time projections.
// Actor and Parent stay nil when the expansion cannot be resolved;
// projection failures never fail the read.
type TrailEntry struct {
	Record

	Actor  *ActorInfo `json:"actor,omitempty"`
	Parent *Record    `json:"parent,omitempty"`
}
