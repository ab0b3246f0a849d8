// Package token decodes access token claims without verifying the signature.
//
// The decoded claims are advisory. They drive cosmetic routing decisions such as
// which page to show or which cart owner to address. They must never gate a
// security-sensitive decision, because the backend re-validates every token.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed is returned when the token is not a decodable JWT
var ErrMalformed = errors.New("malformed token")

// Claims is the non-authoritative projection of an access token
type Claims struct {
	// Subject is the user id as issued by the auth service, empty when absent
	Subject string
	// Role is the raw role claim, empty when absent
	Role string
	// ExpiresAt is zero when the token carries no exp claim
	ExpiresAt time.Time
}

var parser = jwt.NewParser()

// Decode extracts sub, role and exp from raw. The signature is not checked.
func Decode(raw string) (Claims, error) {
	if strings.Count(raw, ".") != 2 {
		return Claims{}, ErrMalformed
	}

	mc := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(raw, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var c Claims
	c.Subject = stringClaim(mc["sub"])
	if c.Subject == "" {
		c.Subject = stringClaim(mc["user_id"])
	}
	c.Role = stringClaim(mc["role"])

	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}

	return c, nil
}

func stringClaim(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// Expired reports whether the token is expired at now, treating anything
// within buffer of expiry as already expired. A token without exp is expired.
func (c Claims) Expired(now time.Time, buffer time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return true
	}
	return c.ExpiresAt.Before(now.Add(buffer))
}

// Roles returns the uppercased role claim as a list
func (c Claims) Roles() []string {
	role := strings.ToUpper(strings.TrimSpace(c.Role))
	if role == "" {
		return []string{}
	}
	return []string{role}
}

// HasRole reports whether the claims carry role, compared case-insensitively
func (c Claims) HasRole(role string) bool {
	for _, r := range c.Roles() {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// UserID returns the subject as a numeric user id when it is one
func (c Claims) UserID() (int64, bool) {
	if c.Subject == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
