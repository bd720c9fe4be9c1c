package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cartaviva/cartaviva-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	Role        enums.ActorRole
	DisplayName string
	JTI         string
}

// AccessTokenClaims represents the typed JWT issued to clients.
type AccessTokenClaims struct {
	UserID      uuid.UUID       `json:"user_id"`
	Role        enums.ActorRole `json:"role"`
	DisplayName string          `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// IsModerator reports whether the claims grant moderator privileges.
func (c *AccessTokenClaims) IsModerator() bool {
	return c != nil && c.Role == enums.ActorRoleModerator
}
