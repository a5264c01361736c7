package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	BuyerID string
	Email   string
	JTI     string
}

// AccessTokenClaims is the buyer identity issued by the storefront's login provider.
// The buyer principal travels in the standard subject claim.
type AccessTokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// BuyerID returns the caller principal carried in the token.
func (c *AccessTokenClaims) BuyerID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
