// Package cart keeps the published cart view of one browsing context and
// applies add, remove and clear optimistically against the cart service.
package cart

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

// Owner types as reported by the cart service
const (
	OwnerTypeUser  = "USER"
	OwnerTypeGuest = "GUEST"
)

var (
	// ErrInvalidQuantity is returned when a line quantity is not positive
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
	// ErrInvalidProduct is returned for an empty product id
	ErrInvalidProduct = errors.New("cart: product id is required")
)

// Owner is either a signed-in user or an anonymous guest. Exactly one of
// UserID and GuestID is set.
type Owner struct {
	UserID  int64
	GuestID string
}

// UserOwner returns the owner for a signed-in user
func UserOwner(id int64) Owner {
	return Owner{UserID: id}
}

// GuestOwner returns the owner for an anonymous guest
func GuestOwner(id string) Owner {
	return Owner{GuestID: id}
}

// IsUser reports whether the owner is a signed-in user
func (o Owner) IsUser() bool {
	return o.UserID != 0 && o.GuestID == ""
}

// IsZero reports whether the owner names neither a user nor a guest
func (o Owner) IsZero() bool {
	return o.UserID == 0 && o.GuestID == ""
}

// Key is the cache key of the owner's cart. The zero owner has no key.
func (o Owner) Key() string {
	if o.IsZero() {
		return ""
	}
	if o.IsUser() {
		return "user:" + strconv.FormatInt(o.UserID, 10)
	}
	return "guest:" + o.GuestID
}

// Type returns OwnerTypeUser or OwnerTypeGuest
func (o Owner) Type() string {
	if o.IsUser() {
		return OwnerTypeUser
	}
	return OwnerTypeGuest
}

// ID returns the owner id as the cart service reports it
func (o Owner) ID() string {
	if o.IsUser() {
		return strconv.FormatInt(o.UserID, 10)
	}
	return o.GuestID
}

// Query returns the userId or guestId query parameter
func (o Owner) Query() url.Values {
	q := url.Values{}
	if o.IsUser() {
		q.Set("userId", o.ID())
	} else {
		q.Set("guestId", o.GuestID)
	}
	return q
}

func (o Owner) String() string {
	return o.Key()
}

// Line is one product in the cart
type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Cart is the cart service representation. Values are never mutated in
// place; every change builds a new Cart.
type Cart struct {
	OwnerType  string `json:"ownerType"`
	OwnerID    string `json:"ownerId"`
	TotalItems int    `json:"totalItems"`
	Items      []Line `json:"items"`
}

// Empty returns an empty cart for owner
func Empty(owner Owner) Cart {
	return Cart{
		OwnerType: owner.Type(),
		OwnerID:   owner.ID(),
		Items:     []Line{},
	}
}

// Quantity returns the quantity of productID, or 0
func (c Cart) Quantity(productID string) int {
	for _, l := range c.Items {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

// WithAdded returns a copy with quantity merged into an existing line or
// appended as a new one.
func (c Cart) WithAdded(productID string, quantity int) Cart {
	next := c
	next.Items = make([]Line, 0, len(c.Items)+1)

	merged := false
	for _, l := range c.Items {
		if l.ProductID == productID {
			l.Quantity += quantity
			merged = true
		}
		next.Items = append(next.Items, l)
	}
	if !merged {
		next.Items = append(next.Items, Line{ProductID: productID, Quantity: quantity})
	}
	next.TotalItems = max(0, c.TotalItems+quantity)
	return next
}

// WithoutLine returns a copy without productID
func (c Cart) WithoutLine(productID string) Cart {
	next := c
	next.Items = make([]Line, 0, len(c.Items))

	removed := 0
	for _, l := range c.Items {
		if l.ProductID == productID {
			removed += l.Quantity
			continue
		}
		next.Items = append(next.Items, l)
	}
	next.TotalItems = max(0, c.TotalItems-removed)
	return next
}

// IntegrityError reports a cart whose total disagrees with its lines
type IntegrityError struct {
	OwnerType  string
	OwnerID    string
	TotalItems int
	LineSum    int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("cart integrity violation for %s %s: totalItems %d, lines sum to %d",
		e.OwnerType, e.OwnerID, e.TotalItems, e.LineSum)
}

// Validate checks that totalItems equals the sum of line quantities, that
// every quantity is positive and that product ids are unique.
func (c Cart) Validate() error {
	sum := 0
	seen := make(map[string]struct{}, len(c.Items))
	for _, l := range c.Items {
		if l.Quantity < 1 {
			return fmt.Errorf("cart line %q: %w", l.ProductID, ErrInvalidQuantity)
		}
		if _, dup := seen[l.ProductID]; dup {
			return fmt.Errorf("cart line %q appears twice", l.ProductID)
		}
		seen[l.ProductID] = struct{}{}
		sum += l.Quantity
	}
	if sum != c.TotalItems {
		return &IntegrityError{
			OwnerType:  c.OwnerType,
			OwnerID:    c.OwnerID,
			TotalItems: c.TotalItems,
			LineSum:    sum,
		}
	}
	return nil
}
