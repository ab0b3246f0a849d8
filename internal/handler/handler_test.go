package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritikkatiyar/ecom-storefront/internal/apiclient"
	"github.com/ritikkatiyar/ecom-storefront/internal/browser"
	"github.com/ritikkatiyar/ecom-storefront/internal/cart"
	"github.com/ritikkatiyar/ecom-storefront/internal/catalog"
	"github.com/ritikkatiyar/ecom-storefront/internal/fakebackend"
	"github.com/ritikkatiyar/ecom-storefront/internal/middleware"
	"github.com/ritikkatiyar/ecom-storefront/pkg/logger"
	"github.com/ritikkatiyar/ecom-storefront/pkg/response"
)

const cookieName = "ecom_browser"

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorData `json:"error"`
}

type app struct {
	backend  *fakebackend.Backend
	router   *gin.Engine
	registry *browser.Registry
}

func newApp(t *testing.T) *app {
	t.Helper()

	fb := fakebackend.New(fakebackend.DefaultConfig())
	srv := httptest.NewServer(fb.Handler())
	t.Cleanup(srv.Close)

	apiCfg := apiclient.DefaultConfig()
	apiCfg.BaseURL = srv.URL
	apiCfg.GetRetryDelay = time.Millisecond

	log := logger.NewNop()
	factory := browser.NewFactory(browser.FactoryConfig{API: apiCfg, Logger: log}, browser.MemoryStores())
	registry := browser.NewRegistry(factory, log)

	return &app{
		backend:  fb,
		registry: registry,
		router: NewRouter(RouterConfig{
			ServiceName: "storefront",
			Registry:    registry,
			Cookie:      browser.CookieConfig{Name: cookieName, MaxAge: time.Hour},
			Logger:      log,
		}),
	}
}

// visitor is one browser: it keeps the cookie the storefront hands out
type visitor struct {
	t      *testing.T
	app    *app
	cookie *http.Cookie
}

func (a *app) visitor(t *testing.T) *visitor {
	return &visitor{t: t, app: a}
}

func (v *visitor) request(method, path string, body interface{}, accept string) *httptest.ResponseRecorder {
	v.t.Helper()
	return v.requestWith(method, path, body, map[string]string{"Accept": accept})
}

func (v *visitor) requestWith(method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	v.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(v.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, val := range header {
		if val != "" {
			req.Header.Set(k, val)
		}
	}
	if v.cookie != nil {
		req.AddCookie(v.cookie)
	}

	w := httptest.NewRecorder()
	v.app.router.ServeHTTP(w, req)

	for _, c := range w.Result().Cookies() {
		if c.Name == cookieName {
			v.cookie = c
		}
	}
	return w
}

func (v *visitor) json(method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	v.t.Helper()
	w := v.request(method, path, body, "application/json")
	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(v.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func (v *visitor) login(email, password string) {
	v.t.Helper()
	w, _ := v.json(http.MethodPost, "/api/session/login", LoginRequest{Email: email, Password: password})
	require.Equal(v.t, http.StatusOK, w.Code, w.Body.String())
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHealthAndReady(t *testing.T) {
	a := newApp(t)
	v := a.visitor(t)

	w := v.request(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, v.cookie, "health checks do not create browsers")

	w = v.request(http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReady_StorageDown(t *testing.T) {
	h := NewHealthHandler("storefront", func(context.Context) error { return errors.New("connection refused") })

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/ready", nil)
	h.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "disconnected")
}

func TestBrowserCookieIssuedAndReused(t *testing.T) {
	a := newApp(t)
	v := a.visitor(t)

	w, env := v.json(http.MethodGet, "/api/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, v.cookie)
	assert.True(t, v.cookie.HttpOnly)

	first := v.cookie.Value
	view := decode[SessionView](t, env.Data)
	assert.False(t, view.Authenticated)
	assert.Equal(t, "anonymous", view.State)

	v.json(http.MethodGet, "/api/session", nil)
	assert.Equal(t, first, v.cookie.Value)
	assert.Equal(t, 1, a.registry.Len())
}

func TestGuestCartAddAndRemove(t *testing.T) {
	a := newApp(t)
	v := a.visitor(t)

	w, env := v.json(http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: "sku-1", Quantity: 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	c := decode[cart.Cart](t, env.Data)
	assert.Equal(t, cart.OwnerTypeGuest, c.OwnerType)
	assert.Equal(t, 1, c.TotalItems)

	w, env = v.json(http.MethodGet, "/api/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []cart.Line{{ProductID: "sku-1", Quantity: 1}}, decode[cart.Cart](t, env.Data).Items)

	w, env = v.json(http.MethodDelete, "/api/cart/items/sku-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decode[cart.Cart](t, env.Data).TotalItems)
}

func TestCartRejectionPassesStatusAndCorrelationID(t *testing.T) {
	a := newApp(t)
	a.backend.SetStock("sku-1", 1, 0)
	v := a.visitor(t)

	w, _ := v.json(http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: "sku-1", Quantity: 1})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := v.json(http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: "sku-1", Quantity: 1})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INSUFFICIENT_STOCK", env.Error.Code)
	assert.NotEmpty(t, env.Error.CorrelationID)

	_, env = v.json(http.MethodGet, "/api/cart", nil)
	assert.Equal(t, 1, decode[cart.Cart](t, env.Data).Quantity("sku-1"))
}

func TestCartAddValidation(t *testing.T) {
	a := newApp(t)
	v := a.visitor(t)

	w, env := v.json(http.MethodPost, "/api/cart/items", map[string]interface{}{"productId": "A", "quantity": 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "BAD_REQUEST", env.Error.Code)
}

func TestLoginMergesGuestCart(t *testing.T) {
	a := newApp(t)
	userID := a.backend.AddUser("a@b.c", "pw", "USER")
	a.backend.SeedCart(cart.UserOwner(userID).Key(), cart.Line{ProductID: "A", Quantity: 1})
	v := a.visitor(t)

	w, _ := v.json(http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: "A", Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := v.json(http.MethodPost, "/api/session/login", LoginRequest{Email: "a@b.c", Password: "pw", ReturnTo: "/checkout"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]json.RawMessage](t, env.Data)
	assert.JSONEq(t, `"/checkout"`, string(body["redirect"]))

	_, env = v.json(http.MethodGet, "/api/cart", nil)
	c := decode[cart.Cart](t, env.Data)
	assert.Equal(t, cart.OwnerTypeUser, c.OwnerType)
	assert.Equal(t, 3, c.Quantity("A"))
	assert.Equal(t, 1, a.backend.Calls("POST /api/cart/merge"))
}

func TestLoginAdminRedirect(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("admin@b.c", "pw", "ADMIN")
	v := a.visitor(t)

	w, env := v.json(http.MethodPost, "/api/session/login", LoginRequest{Email: "admin@b.c", Password: "pw", ReturnTo: "//evil.com"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]json.RawMessage](t, env.Data)
	assert.JSONEq(t, `"/admin/dashboard"`, string(body["redirect"]))
}

func TestLoginInvalidCredentials(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("a@b.c", "pw", "USER")
	v := a.visitor(t)

	w, env := v.json(http.MethodPost, "/api/session/login", LoginRequest{Email: "a@b.c", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)
	assert.NotEmpty(t, env.Error.CorrelationID)

	_, env = v.json(http.MethodGet, "/api/session", nil)
	assert.False(t, decode[SessionView](t, env.Data).Authenticated)
}

func TestSignupConflictAndRole(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("taken@b.c", "pw", "USER")
	v := a.visitor(t)

	w, env := v.json(http.MethodPost, "/api/session/signup", SignupRequest{Email: "taken@b.c", Password: "pw"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "USER_EXISTS", env.Error.Code)

	w, env = v.json(http.MethodPost, "/api/session/signup", SignupRequest{Email: "new@b.c", Password: "pw", Role: "user"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"USER"}, decode[SessionView](t, env.Data).Roles)
}

func TestAccountGuard(t *testing.T) {
	a := newApp(t)
	v := a.visitor(t)

	w := v.request(http.MethodGet, "/account", nil, "text/html")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?returnTo=%2Faccount", w.Header().Get("Location"))

	w, env := v.json(http.MethodGet, "/account/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "/login?returnTo=%2Faccount%2Forders", env.Error.Location)
}

func TestAdminGuard(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("user@b.c", "pw", "USER")
	a.backend.AddUser("admin@b.c", "pw", "ADMIN")

	user := a.visitor(t)
	user.login("user@b.c", "pw")
	w := user.request(http.MethodGet, "/admin/ping", nil, "text/html")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/unauthorized", w.Header().Get("Location"))

	admin := a.visitor(t)
	admin.login("admin@b.c", "pw")
	w, _ = admin.json(http.MethodGet, "/admin/ping", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRejectedAccessTokenIsRefreshedOnce(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("a@b.c", "pw", "USER")
	v := a.visitor(t)
	v.login("a@b.c", "pw")

	w, _ := v.json(http.MethodGet, "/account/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)

	a.backend.RotateSecret()

	w, _ = v.json(http.MethodGet, "/account/orders", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, a.backend.Calls("POST /api/auth/refresh"))
	assert.Equal(t, 3, a.backend.Calls("GET /api/orders"))
}

func TestFailedRefreshSignsOut(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("a@b.c", "pw", "USER")
	v := a.visitor(t)
	v.login("a@b.c", "pw")

	a.backend.RotateSecret()
	a.backend.RevokeRefreshTokens()

	w, env := v.json(http.MethodGet, "/account/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, env.Error)
	assert.NotEmpty(t, env.Error.CorrelationID)

	w = v.request(http.MethodGet, "/account", nil, "text/html")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?returnTo=%2Faccount", w.Header().Get("Location"))
}

func TestLogoutClearsSession(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("a@b.c", "pw", "USER")
	v := a.visitor(t)
	v.login("a@b.c", "pw")

	w, env := v.json(http.MethodPost, "/api/session/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[SessionView](t, env.Data).Authenticated)
	assert.Equal(t, 1, a.backend.Calls("POST /api/auth/logout"))
}

func TestLogoutSucceedsWhenBackendDown(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("a@b.c", "pw", "USER")
	v := a.visitor(t)
	v.login("a@b.c", "pw")
	a.backend.Fail("POST /api/auth/logout", http.StatusInternalServerError)

	w, env := v.json(http.MethodPost, "/api/session/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[SessionView](t, env.Data).Authenticated)
}

func TestCheckout(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("a@b.c", "pw", "USER")
	a.backend.AddProduct(catalog.Product{ID: "p1", Name: "Tee", Price: 10, Active: true})
	v := a.visitor(t)
	v.login("a@b.c", "pw")

	w, _ := v.json(http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: "p1", Quantity: 2})
	require.Equal(t, http.StatusOK, w.Code)

	w, env := v.json(http.MethodPost, "/checkout", CheckoutRequest{Currency: "EUR"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out struct {
		Order struct {
			ID          string  `json:"id"`
			TotalAmount float64 `json:"totalAmount"`
			Currency    string  `json:"currency"`
		} `json:"order"`
		Payment struct {
			OrderID        string `json:"orderId"`
			IdempotencyKey string `json:"idempotencyKey"`
		} `json:"payment"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, 20.0, out.Order.TotalAmount)
	assert.Equal(t, "EUR", out.Order.Currency)
	assert.Equal(t, out.Order.ID, out.Payment.OrderID)
	assert.Contains(t, out.Payment.IdempotencyKey, "checkout-")

	_, env = v.json(http.MethodGet, "/api/cart", nil)
	assert.Zero(t, decode[cart.Cart](t, env.Data).TotalItems)
}

func TestCheckoutReplayedWithSameKey(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("a@b.c", "pw", "USER")
	a.backend.AddProduct(catalog.Product{ID: "p1", Name: "Tee", Price: 10, Active: true})
	v := a.visitor(t)
	v.login("a@b.c", "pw")

	w, _ := v.json(http.MethodPost, "/api/cart/items", AddItemRequest{ProductID: "p1", Quantity: 1})
	require.Equal(t, http.StatusOK, w.Code)

	header := map[string]string{"Accept": "application/json", middleware.IdempotencyKeyHeader: "submit-1"}
	first := v.requestWith(http.MethodPost, "/checkout", nil, header)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := v.requestWith(http.MethodPost, "/checkout", nil, header)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, a.backend.Calls("POST /api/orders"))
	assert.Contains(t, first.Body.String(), `"idempotencyKey":"checkout-submit-1"`)
}

func TestCheckoutEmptyCart(t *testing.T) {
	a := newApp(t)
	a.backend.AddUser("a@b.c", "pw", "USER")
	v := a.visitor(t)
	v.login("a@b.c", "pw")

	w, env := v.json(http.MethodPost, "/checkout", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_CART", env.Error.Code)
}

func TestProductsRetriedOnServerError(t *testing.T) {
	a := newApp(t)
	a.backend.AddProduct(catalog.Product{ID: "p1", Name: "Tee", Active: true})
	a.backend.Fail("GET /api/products", http.StatusServiceUnavailable, http.StatusServiceUnavailable)
	v := a.visitor(t)

	w, env := v.json(http.MethodGet, "/api/products?size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[catalog.ProductPage](t, env.Data)
	assert.Len(t, page.Content, 1)
	assert.Equal(t, 3, a.backend.Calls("GET /api/products"))
}

func TestProductNotFound(t *testing.T) {
	a := newApp(t)
	v := a.visitor(t)

	w, env := v.json(http.MethodGet, "/api/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PRODUCT_NOT_FOUND", env.Error.Code)
}

func TestSearchAndStock(t *testing.T) {
	a := newApp(t)
	a.backend.AddProduct(catalog.Product{ID: "p1", Name: "Blue Hoodie", Active: true})
	a.backend.AddProduct(catalog.Product{ID: "p2", Name: "Old Hoodie", Active: false})
	a.backend.SetStock("p1", 4, 1)
	v := a.visitor(t)

	w, env := v.json(http.MethodGet, "/api/search?q=hoodie&activeOnly=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[catalog.SearchPage](t, env.Data).Content, 1)

	w, env = v.json(http.MethodGet, "/api/stock/p1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, decode[catalog.Stock](t, env.Data).AvailableQuantity)

	w, _ = v.json(http.MethodGet, "/api/search?activeOnly=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWriteError_NetworkUnavailable(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Set(middleware.CorrelationIDKey, "corr-local")

	writeError(c, &apiclient.APIError{Kind: apiclient.KindNetworkUnavailable, Err: errors.New("dial tcp: refused")})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "BACKEND_UNAVAILABLE", env.Error.Code)
	assert.Equal(t, "corr-local", env.Error.CorrelationID)
}

func TestWriteError_Validation(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	writeError(c, &apiclient.APIError{
		Kind:          apiclient.KindValidation,
		Status:        http.StatusUnprocessableEntity,
		Message:       "must not be blank",
		CorrelationID: "corr-backend",
		FieldErrors:   []apiclient.FieldError{{Field: "email", Message: "must not be blank"}},
	})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)
	assert.Equal(t, "corr-backend", env.Error.CorrelationID)
	assert.Equal(t, map[string]string{"email": "must not be blank"}, env.Error.Fields)
}

func TestWriteError_Integrity(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	writeError(c, &cart.IntegrityError{OwnerType: "GUEST", OwnerID: "g", TotalItems: 3, LineSum: 2})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "CART_INTEGRITY")
}
