// Package identity generates the identifiers the storefront threads through
// requests and persists per browser.
package identity

import (
	"github.com/google/uuid"
)

// GuestPrefix marks anonymous cart owners
const GuestPrefix = "guest-"

// NewCorrelationID returns a fresh identifier for one outgoing request
func NewCorrelationID() string {
	return uuid.NewString()
}

// NewGuestID returns a new anonymous cart owner identifier
func NewGuestID() string {
	return GuestPrefix + uuid.NewString()
}

// NewBrowserID returns the identifier of a new browsing context
func NewBrowserID() string {
	return uuid.NewString()
}

// ValidBrowserID reports whether id looks like an identifier issued by NewBrowserID
func ValidBrowserID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
