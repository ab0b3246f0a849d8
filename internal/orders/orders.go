// Package orders creates and reads orders and opens payment intents.
package orders

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ritikkatiyar/ecom-storefront/internal/apiclient"
)

// ErrMissingIdempotencyKey is returned when a payment intent has no key
var ErrMissingIdempotencyKey = errors.New("orders: payment intent requires an idempotency key")

// Item is one order line
type Item struct {
	ProductID string  `json:"productId"`
	SKU       string  `json:"sku"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// CreateOrderRequest is the body of POST /api/orders
type CreateOrderRequest struct {
	UserID   int64  `json:"userId"`
	Currency string `json:"currency"`
	Items    []Item `json:"items"`
}

// Order is an order as returned by the order service
type Order struct {
	ID          string  `json:"id"`
	UserID      int64   `json:"userId"`
	Status      string  `json:"status"`
	TotalAmount float64 `json:"totalAmount"`
	Currency    string  `json:"currency"`
	Items       []Item  `json:"items"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

// PaymentIntentRequest is the body of POST /api/payments/intents
type PaymentIntentRequest struct {
	OrderID        string  `json:"orderId"`
	UserID         int64   `json:"userId"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	IdempotencyKey string  `json:"idempotencyKey"`
}

// Payment is a payment as returned by the payment service
type Payment struct {
	PaymentID         string  `json:"paymentId"`
	OrderID           string  `json:"orderId"`
	UserID            int64   `json:"userId"`
	Amount            float64 `json:"amount"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
	ProviderPaymentID string  `json:"providerPaymentId,omitempty"`
	IdempotencyKey    string  `json:"idempotencyKey,omitempty"`
	FailureReason     string  `json:"failureReason,omitempty"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// Client is the order and payment boundary client
type Client struct {
	api *apiclient.Client
}

// New creates an orders client on top of the request pipeline
func New(api *apiclient.Client) *Client {
	return &Client{api: api}
}

// CreateOrder places an order. It is sent once and never retried.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error) {
	var out Order
	if err := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/orders",
		Body:   req,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetOrder returns one order
func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	var out Order
	if err := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   "/api/orders/" + url.PathEscape(id),
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListUserOrders returns the orders of userID
func (c *Client) ListUserOrders(ctx context.Context, userID int64) ([]Order, error) {
	out := []Order{}
	if err := c.api.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   "/api/orders",
		Query:  url.Values{"userId": {strconv.FormatInt(userID, 10)}},
	}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreatePaymentIntent opens a payment for an order. The idempotency key is
// sent in the body and as the X-Idempotency-Key header so that a caller
// repeating the request cannot charge twice.
func (c *Client) CreatePaymentIntent(ctx context.Context, req PaymentIntentRequest) (*Payment, error) {
	if req.IdempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}

	var out Payment
	if err := c.api.Do(ctx, &apiclient.Request{
		Method:         http.MethodPost,
		Path:           "/api/payments/intents",
		Body:           req,
		IdempotencyKey: req.IdempotencyKey,
	}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
