package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeAccess TokenType = "access"

// Claims are the only supported JWT claims shape for this service.
// ActorID identifies the acting principal; it becomes the actor_id on every
// audit record the request produces. Authorization policy is deliberately
// not encoded here — this service only attributes actions, it does not
// decide them.
type Claims struct {
	jwt.RegisteredClaims

	ActorID   string    `json:"actor_id"`
	TokenType TokenType `json:"token_type"`
}
