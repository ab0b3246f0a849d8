package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ritikkatiyar/ecom-storefront/internal/browser"
	"github.com/ritikkatiyar/ecom-storefront/internal/identity"
	"github.com/ritikkatiyar/ecom-storefront/internal/middleware"
	"github.com/ritikkatiyar/ecom-storefront/internal/orders"
	"github.com/ritikkatiyar/ecom-storefront/pkg/logger"
	"github.com/ritikkatiyar/ecom-storefront/pkg/response"
)

var errNoUserID = errors.New("signed-in subject is not a user id")

// AccountHandler serves the guarded account, checkout and admin routes
type AccountHandler struct {
	log *logger.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(log *logger.Logger) *AccountHandler {
	return &AccountHandler{log: log}
}

// CheckoutRequest is the body of POST /checkout
type CheckoutRequest struct {
	Currency string `json:"currency"`
}

func userID(b *browser.Browser) (int64, error) {
	id, err := strconv.ParseInt(b.Session.Subject(), 10, 64)
	if err != nil {
		return 0, errNoUserID
	}
	return id, nil
}

// Account returns the signed-in session
// GET /account
func (h *AccountHandler) Account(c *gin.Context) {
	response.Success(c, sessionView(browser.MustFromContext(c)))
}

// Orders lists the signed-in user's orders
// GET /account/orders
func (h *AccountHandler) Orders(c *gin.Context) {
	b := browser.MustFromContext(c)
	id, err := userID(b)
	if err != nil {
		response.Forbidden(c, err.Error())
		return
	}

	list, err := b.Orders.ListUserOrders(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, list)
}

// Checkout turns the current cart into an order and opens a payment intent
// for it. The cart is cleared once the order exists.
// POST /checkout
func (h *AccountHandler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	if req.Currency == "" {
		req.Currency = "USD"
	}

	b := browser.MustFromContext(c)
	ctx := c.Request.Context()

	id, err := userID(b)
	if err != nil {
		response.Forbidden(c, err.Error())
		return
	}

	current, err := b.Cart.Current(ctx)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(current.Items) == 0 {
		response.Error(c, http.StatusBadRequest, "EMPTY_CART", "cart is empty", "")
		return
	}

	items := make([]orders.Item, 0, len(current.Items))
	for _, line := range current.Items {
		p, err := b.Catalog.GetProduct(ctx, line.ProductID)
		if err != nil {
			writeError(c, err)
			return
		}
		items = append(items, orders.Item{
			ProductID: line.ProductID,
			SKU:       line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
		})
	}

	order, err := b.Orders.CreateOrder(ctx, orders.CreateOrderRequest{
		UserID:   id,
		Currency: req.Currency,
		Items:    items,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if _, err := b.Cart.Clear(ctx); err != nil {
		h.log.Warn("cart not cleared after order", zap.String("order_id", order.ID), zap.Error(err))
	}

	payment, err := b.Orders.CreatePaymentIntent(ctx, orders.PaymentIntentRequest{
		OrderID:        order.ID,
		UserID:         id,
		Amount:         order.TotalAmount,
		Currency:       order.Currency,
		IdempotencyKey: checkoutKey(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	h.log.Info("checkout completed",
		zap.String("order_id", order.ID),
		zap.String("payment_id", payment.PaymentID),
	)
	response.Created(c, gin.H{
		"order":   order,
		"payment": payment,
	})
}

// checkoutKey reuses the caller's idempotency key so a replayed checkout
// maps onto the same payment intent
func checkoutKey(c *gin.Context) string {
	if key, ok := middleware.GetIdempotencyKey(c); ok {
		return "checkout-" + key
	}
	return "checkout-" + identity.NewCorrelationID()
}

// AdminPing confirms the admin guard let the caller through
// GET /admin/ping
func (h *AccountHandler) AdminPing(c *gin.Context) {
	response.Success(c, gin.H{"pong": true, "roles": browser.MustFromContext(c).Session.Roles()})
}
