package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	Email  string
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients by the
// identity service. This backend only verifies and reads them.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	Role   enums.ActorRole `json:"role"`
	Email  string          `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller carried in request context.
type Principal struct {
	UserID uuid.UUID
	Role   enums.ActorRole
	Email  string
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == enums.ActorRoleAdmin
}
