package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ritikkatiyar/ecom-storefront/internal/browser"
	"github.com/ritikkatiyar/ecom-storefront/pkg/response"
)

// CartHandler exposes the cart store of the current browser
type CartHandler struct{}

// NewCartHandler creates a new CartHandler
func NewCartHandler() *CartHandler {
	return &CartHandler{}
}

// AddItemRequest is the body of POST /api/cart/items
type AddItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,min=1"`
}

// MergeRequest is the body of POST /api/cart/merge
type MergeRequest struct {
	UserID  int64  `json:"userId" binding:"required"`
	GuestID string `json:"guestId" binding:"required"`
}

// Get returns the current cart
// GET /api/cart
func (h *CartHandler) Get(c *gin.Context) {
	b := browser.MustFromContext(c)
	current, err := b.Cart.Current(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, current)
}

// AddItem adds a product to the cart
// POST /api/cart/items
func (h *CartHandler) AddItem(c *gin.Context) {
	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	b := browser.MustFromContext(c)
	updated, err := b.Cart.AddItem(c.Request.Context(), req.ProductID, req.Quantity)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, updated)
}

// RemoveItem drops a product from the cart
// DELETE /api/cart/items/:productId
func (h *CartHandler) RemoveItem(c *gin.Context) {
	b := browser.MustFromContext(c)
	updated, err := b.Cart.RemoveItem(c.Request.Context(), c.Param("productId"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, updated)
}

// Clear empties the cart
// DELETE /api/cart
func (h *CartHandler) Clear(c *gin.Context) {
	b := browser.MustFromContext(c)
	if _, err := b.Cart.Clear(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	response.NoContent(c)
}

// Merge moves a guest cart into a user cart
// POST /api/cart/merge
func (h *CartHandler) Merge(c *gin.Context) {
	var req MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	b := browser.MustFromContext(c)
	merged, err := b.Cart.MergeGuestIntoUser(c.Request.Context(), req.UserID, req.GuestID)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, merged)
}
