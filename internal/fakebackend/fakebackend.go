// Package fakebackend is an in-memory stand-in for the platform gateway:
// auth, cart, catalog, inventory, orders and payments. It signs real HS256
// access tokens, answers with the gateway's error body and can be told to
// fail specific routes.
package fakebackend

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ritikkatiyar/ecom-storefront/internal/cart"
	"github.com/ritikkatiyar/ecom-storefront/internal/catalog"
	"github.com/ritikkatiyar/ecom-storefront/internal/orders"
)

const (
	correlationHeader = "X-Correlation-Id"
	userIDKey         = "fake_user_id"
)

// Config configures the fake gateway
type Config struct {
	Secret    string
	AccessTTL time.Duration
}

// DefaultConfig returns a 15 minute access token lifetime
func DefaultConfig() Config {
	return Config{
		Secret:    "fake-backend-secret",
		AccessTTL: 15 * time.Minute,
	}
}

type user struct {
	id       int64
	email    string
	password string
	role     string
}

type fault struct {
	status  int
	message string
}

// Backend is safe for concurrent use
type Backend struct {
	cfg Config

	mu       sync.Mutex
	secret   []byte
	users    map[string]*user
	nextID   int64
	refresh  map[string]int64
	carts    map[string][]cart.Line
	products []catalog.Product
	stock    map[string]catalog.Stock
	orders   map[string]*orders.Order
	payments map[string]*orders.Payment
	faults   map[string][]fault
	calls    map[string]int
	images   int
}

// New creates an empty fake gateway
func New(cfg Config) *Backend {
	if cfg.Secret == "" {
		cfg.Secret = DefaultConfig().Secret
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultConfig().AccessTTL
	}
	return &Backend{
		cfg:      cfg,
		secret:   []byte(cfg.Secret),
		users:    make(map[string]*user),
		refresh:  make(map[string]int64),
		carts:    make(map[string][]cart.Line),
		stock:    make(map[string]catalog.Stock),
		orders:   make(map[string]*orders.Order),
		payments: make(map[string]*orders.Payment),
		faults:   make(map[string][]fault),
		calls:    make(map[string]int),
	}
}

// Handler returns the gateway routes
func (b *Backend) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), b.record())

	api := r.Group("/api")
	{
		auth := api.Group("/auth")
		auth.POST("/login", b.login)
		auth.POST("/signup", b.signup)
		auth.POST("/refresh", b.refreshToken)
		auth.POST("/logout", b.logout)

		c := api.Group("/cart")
		c.GET("", b.getCart)
		c.DELETE("", b.clearCart)
		c.POST("/items", b.addCartItem)
		c.DELETE("/items/:productId", b.removeCartItem)
		c.POST("/merge", b.mergeCart)

		api.GET("/products", b.listProducts)
		api.GET("/products/:id", b.getProduct)
		api.POST("/products/images", b.requireAuth(), b.uploadImages)
		api.GET("/search/products", b.searchProducts)
		api.GET("/inventory/stock/:sku", b.getStock)

		o := api.Group("/orders", b.requireAuth())
		o.POST("", b.createOrder)
		o.GET("", b.listOrders)
		o.GET("/:id", b.getOrder)

		api.POST("/payments/intents", b.requireAuth(), b.createPaymentIntent)
	}
	return r
}

// AddUser registers an account and returns its id
func (b *Backend) AddUser(email, password, role string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addUserLocked(email, password, role)
}

func (b *Backend) addUserLocked(email, password, role string) int64 {
	if role == "" {
		role = "USER"
	}
	b.nextID++
	b.users[strings.ToLower(email)] = &user{
		id:       b.nextID,
		email:    email,
		password: password,
		role:     strings.ToUpper(role),
	}
	return b.nextID
}

// AddProduct adds a product to the catalog
func (b *Backend) AddProduct(p catalog.Product) {
	b.mu.Lock()
	b.products = append(b.products, p)
	b.mu.Unlock()
}

// SetStock sets the inventory of a SKU
func (b *Backend) SetStock(sku string, available, reserved int) {
	b.mu.Lock()
	b.stock[sku] = catalog.Stock{SKU: sku, AvailableQuantity: available, ReservedQuantity: reserved}
	b.mu.Unlock()
}

// SeedCart replaces the cart of an owner key ("user:<id>" or "guest:<id>")
func (b *Backend) SeedCart(ownerKey string, lines ...cart.Line) {
	b.mu.Lock()
	b.carts[ownerKey] = append([]cart.Line(nil), lines...)
	b.mu.Unlock()
}

// Fail makes the next calls to route answer with the given statuses, one
// per call. route is "<METHOD> <gin path>", e.g. "POST /api/cart/items".
func (b *Backend) Fail(route string, statuses ...int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range statuses {
		b.faults[route] = append(b.faults[route], fault{status: s, message: http.StatusText(s)})
	}
}

// Calls returns how many times route was hit
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// RotateSecret invalidates every access token issued so far
func (b *Backend) RotateSecret() {
	b.mu.Lock()
	b.secret = []byte(uuid.NewString())
	b.mu.Unlock()
}

// RevokeRefreshTokens invalidates every refresh token issued so far
func (b *Backend) RevokeRefreshTokens() {
	b.mu.Lock()
	b.refresh = make(map[string]int64)
	b.mu.Unlock()
}

// IssueAccessToken signs an access token for userID expiring after ttl
func (b *Backend) IssueAccessToken(userID int64, role string, ttl time.Duration) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signLocked(userID, role, ttl)
}

func (b *Backend) signLocked(userID int64, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     strconv.FormatInt(userID, 10),
		"user_id": userID,
		"role":    role,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
		"jti":     uuid.NewString(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
}

func (b *Backend) record() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(correlationHeader, id)

		route := c.Request.Method + " " + c.FullPath()

		b.mu.Lock()
		b.calls[route]++
		var f *fault
		if queue := b.faults[route]; len(queue) > 0 {
			f = &queue[0]
			b.faults[route] = queue[1:]
		}
		b.mu.Unlock()

		if f != nil {
			b.fail(c, f.status, "INJECTED_FAULT", f.message)
			return
		}
		c.Next()
	}
}

// fail writes the gateway error body
func (b *Backend) fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"path":          c.Request.URL.Path,
		"errorCode":     code,
		"message":       message,
		"correlationId": c.Writer.Header().Get(correlationHeader),
	})
}

func (b *Backend) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" {
			b.fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
			return
		}
		userID, err := b.verify(raw)
		if err != nil {
			b.fail(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (b *Backend) verify(raw string) (int64, error) {
	b.mu.Lock()
	secret := b.secret
	b.mu.Unlock()

	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return 0, err
	}
	sub, err := tok.Claims.GetSubject()
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(sub, 10, 64)
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

type tokenResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	TokenType        string `json:"tokenType"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (b *Backend) issuePairLocked(u *user) (*tokenResponse, error) {
	access, err := b.signLocked(u.id, u.role, b.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	refresh := base64.URLEncoding.EncodeToString(buf)
	b.refresh[refresh] = u.id

	return &tokenResponse{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresInSeconds: int64(b.cfg.AccessTTL.Seconds()),
	}, nil
}

func (b *Backend) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		b.fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[strings.ToLower(req.Email)]
	if !ok || u.password != req.Password {
		b.fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}
	pair, err := b.issuePairLocked(u)
	if err != nil {
		b.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (b *Backend) signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": "Validation failed",
			"errors":  []gin.H{{"field": "email", "defaultMessage": "must not be blank"}},
		})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.users[strings.ToLower(req.Email)]; exists {
		b.fail(c, http.StatusConflict, "USER_EXISTS", "User with this email already exists")
		return
	}
	b.addUserLocked(req.Email, req.Password, req.Role)
	pair, err := b.issuePairLocked(b.users[strings.ToLower(req.Email)])
	if err != nil {
		b.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	c.JSON(http.StatusCreated, pair)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (b *Backend) refreshToken(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)

	b.mu.Lock()
	defer b.mu.Unlock()

	userID, ok := b.refresh[req.RefreshToken]
	if !ok {
		b.fail(c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid or expired")
		return
	}
	// rotation: the presented token is single-use
	delete(b.refresh, req.RefreshToken)

	for _, u := range b.users {
		if u.id == userID {
			pair, err := b.issuePairLocked(u)
			if err != nil {
				b.fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
				return
			}
			c.JSON(http.StatusOK, pair)
			return
		}
	}
	b.fail(c, http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "User no longer exists")
}

func (b *Backend) logout(c *gin.Context) {
	var req refreshRequest
	_ = c.ShouldBindJSON(&req)

	b.mu.Lock()
	delete(b.refresh, req.RefreshToken)
	b.mu.Unlock()

	c.Status(http.StatusNoContent)
}

var errOwner = errors.New("exactly one of userId or guestId is required")

// ownerKey applies the cart service's exactly-one-owner rule
func ownerKey(userID *int64, guestID string) (string, cart.Owner, error) {
	hasUser := userID != nil && *userID > 0
	hasGuest := strings.TrimSpace(guestID) != ""
	if hasUser == hasGuest || (userID != nil && !hasUser) {
		return "", cart.Owner{}, errOwner
	}
	if hasUser {
		o := cart.UserOwner(*userID)
		return o.Key(), o, nil
	}
	o := cart.GuestOwner(guestID)
	return o.Key(), o, nil
}

func queryOwner(c *gin.Context) (string, cart.Owner, error) {
	var userID *int64
	if v := c.Query("userId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", cart.Owner{}, err
		}
		userID = &id
	}
	return ownerKey(userID, c.Query("guestId"))
}

func (b *Backend) cartLocked(key string, owner cart.Owner) cart.Cart {
	out := cart.Empty(owner)
	for _, l := range b.carts[key] {
		out.Items = append(out.Items, l)
		out.TotalItems += l.Quantity
	}
	return out
}

func (b *Backend) addLocked(key, productID string, quantity int) {
	lines := b.carts[key]
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity += quantity
			return
		}
	}
	b.carts[key] = append(lines, cart.Line{ProductID: productID, Quantity: quantity})
}

func (b *Backend) getCart(c *gin.Context) {
	key, owner, err := queryOwner(c)
	if err != nil {
		b.fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c.JSON(http.StatusOK, b.cartLocked(key, owner))
}

type cartItemRequest struct {
	UserID    *int64 `json:"userId"`
	GuestID   string `json:"guestId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (b *Backend) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		b.fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if req.ProductID == "" || req.Quantity < 1 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": "Validation failed",
			"errors":  []gin.H{{"field": "quantity", "defaultMessage": "must be greater than or equal to 1"}},
		})
		return
	}
	key, owner, err := ownerKey(req.UserID, req.GuestID)
	if err != nil {
		b.fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if s, tracked := b.stock[req.ProductID]; tracked {
		current := 0
		for _, l := range b.carts[key] {
			if l.ProductID == req.ProductID {
				current = l.Quantity
			}
		}
		if current+req.Quantity > s.AvailableQuantity {
			b.fail(c, http.StatusConflict, "INSUFFICIENT_STOCK", "Not enough stock for "+req.ProductID)
			return
		}
	}

	b.addLocked(key, req.ProductID, req.Quantity)
	c.JSON(http.StatusOK, b.cartLocked(key, owner))
}

func (b *Backend) removeCartItem(c *gin.Context) {
	key, owner, err := queryOwner(c)
	if err != nil {
		b.fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	productID := c.Param("productId")

	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.carts[key][:0:0]
	for _, l := range b.carts[key] {
		if l.ProductID != productID {
			kept = append(kept, l)
		}
	}
	b.carts[key] = kept
	c.JSON(http.StatusOK, b.cartLocked(key, owner))
}

func (b *Backend) clearCart(c *gin.Context) {
	key, _, err := queryOwner(c)
	if err != nil {
		b.fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	b.mu.Lock()
	delete(b.carts, key)
	b.mu.Unlock()
	c.Status(http.StatusNoContent)
}

type mergeRequest struct {
	UserID  int64  `json:"userId" binding:"required"`
	GuestID string `json:"guestId" binding:"required"`
}

// mergeCart adds guest quantities onto the user's lines and drops the guest cart
func (b *Backend) mergeCart(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		b.fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	user := cart.UserOwner(req.UserID)
	guest := cart.GuestOwner(req.GuestID)

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, l := range b.carts[guest.Key()] {
		b.addLocked(user.Key(), l.ProductID, l.Quantity)
	}
	delete(b.carts, guest.Key())
	c.JSON(http.StatusOK, b.cartLocked(user.Key(), user))
}

func (b *Backend) listProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "0"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if size <= 0 {
		size = 20
	}
	category := c.Query("category")
	q := strings.ToLower(c.Query("q"))

	b.mu.Lock()
	var matched []catalog.Product
	for _, p := range b.products {
		if category != "" && !strings.EqualFold(p.Category, category) {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) {
			continue
		}
		matched = append(matched, p)
	}
	b.mu.Unlock()

	from := min(page*size, len(matched))
	to := min(from+size, len(matched))
	totalPages := (len(matched) + size - 1) / size

	c.JSON(http.StatusOK, catalog.ProductPage{
		Content:       append([]catalog.Product{}, matched[from:to]...),
		TotalElements: int64(len(matched)),
		TotalPages:    totalPages,
		Size:          size,
		Number:        page,
		First:         page == 0,
		Last:          page >= totalPages-1,
	})
}

func (b *Backend) getProduct(c *gin.Context) {
	id := c.Param("id")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.products {
		if p.ID == id {
			c.JSON(http.StatusOK, p)
			return
		}
	}
	b.fail(c, http.StatusNotFound, "PRODUCT_NOT_FOUND", "Product not found")
}

func (b *Backend) searchProducts(c *gin.Context) {
	q := strings.ToLower(c.Query("q"))
	activeOnly := c.Query("activeOnly") == "true"

	b.mu.Lock()
	out := catalog.SearchPage{Content: []catalog.SearchProduct{}, Size: 20}
	for _, p := range b.products {
		if activeOnly && !p.Active {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name+" "+p.Description), q) {
			continue
		}
		active := p.Active
		out.Content = append(out.Content, catalog.SearchProduct{
			ProductID:   p.ID,
			Name:        p.Name,
			Description: p.Description,
			Category:    p.Category,
			Brand:       p.Brand,
			Price:       p.Price,
			Active:      &active,
		})
	}
	b.mu.Unlock()

	out.TotalElements = int64(len(out.Content))
	c.JSON(http.StatusOK, out)
}

func (b *Backend) getStock(c *gin.Context) {
	b.mu.Lock()
	s, ok := b.stock[c.Param("sku")]
	b.mu.Unlock()
	if !ok {
		b.fail(c, http.StatusNotFound, "STOCK_NOT_FOUND", "No stock for "+c.Param("sku"))
		return
	}
	c.JSON(http.StatusOK, s)
}

func (b *Backend) uploadImages(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil || len(form.File["files"]) == 0 {
		b.fail(c, http.StatusBadRequest, "NO_FILES", "No files uploaded")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	urls := make([]string, 0, len(form.File["files"]))
	for _, fh := range form.File["files"] {
		b.images++
		urls = append(urls, fmt.Sprintf("/images/%d-%s", b.images, fh.Filename))
	}
	c.JSON(http.StatusOK, urls)
}

func (b *Backend) createOrder(c *gin.Context) {
	var req orders.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		b.fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	if len(req.Items) == 0 {
		b.fail(c, http.StatusBadRequest, "EMPTY_ORDER", "Order must contain at least one item")
		return
	}
	if req.UserID != c.GetInt64(userIDKey) {
		b.fail(c, http.StatusForbidden, "FORBIDDEN", "Cannot order for another user")
		return
	}

	total := 0.0
	for _, it := range req.Items {
		total += float64(it.Quantity) * it.UnitPrice
	}
	now := time.Now().UTC().Format(time.RFC3339)
	o := &orders.Order{
		ID:          uuid.NewString(),
		UserID:      req.UserID,
		Status:      "PENDING",
		TotalAmount: total,
		Currency:    req.Currency,
		Items:       req.Items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	b.mu.Lock()
	b.orders[o.ID] = o
	b.mu.Unlock()

	c.JSON(http.StatusCreated, o)
}

func (b *Backend) listOrders(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Query("userId"), 10, 64)
	if err != nil {
		b.fail(c, http.StatusBadRequest, "BAD_REQUEST", "userId is required")
		return
	}
	if userID != c.GetInt64(userIDKey) {
		b.fail(c, http.StatusForbidden, "FORBIDDEN", "Cannot list another user's orders")
		return
	}

	b.mu.Lock()
	out := []orders.Order{}
	for _, o := range b.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	b.mu.Unlock()

	c.JSON(http.StatusOK, out)
}

func (b *Backend) getOrder(c *gin.Context) {
	b.mu.Lock()
	o, ok := b.orders[c.Param("id")]
	b.mu.Unlock()
	if !ok || o.UserID != c.GetInt64(userIDKey) {
		b.fail(c, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
		return
	}
	c.JSON(http.StatusOK, o)
}

// createPaymentIntent returns the existing payment for a repeated
// idempotency key instead of opening a second one
func (b *Backend) createPaymentIntent(c *gin.Context) {
	var req orders.PaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		b.fail(c, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	key := c.GetHeader("X-Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}
	if key == "" {
		b.fail(c, http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "idempotencyKey is required")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if p, ok := b.payments[key]; ok {
		c.JSON(http.StatusOK, p)
		return
	}
	o, ok := b.orders[req.OrderID]
	if !ok {
		b.fail(c, http.StatusNotFound, "ORDER_NOT_FOUND", "Order not found")
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	p := &orders.Payment{
		PaymentID:      uuid.NewString(),
		OrderID:        o.ID,
		UserID:         req.UserID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Status:         "REQUIRES_CONFIRMATION",
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	b.payments[key] = p
	c.JSON(http.StatusCreated, p)
}
