package users

import "time"

// User is a tracked entity: every create/update/delete on it produces an
// audit record. Users also act as audit actors, so the repository doubles
// as the actor directory for trail projections.
type User struct {
	ID    string `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
	Name  string `json:"name" db:"name"`

	Status UserStatus `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusDisabled:
		return true
	default:
		return false
	}
}

// snapshot is the shape fed to the change tracker and to CREATE/DELETE
// audit payloads. Timestamps are excluded: they change on every write and
// would drown the diff in noise.
func (u User) snapshot() map[string]any {
	return map[string]any{
		"email":  u.Email,
		"name":   u.Name,
		"status": string(u.Status),
	}
}
