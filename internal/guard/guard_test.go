package guard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritikkatiyar/ecom-storefront/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSession struct {
	authenticated bool
	roles         []string
}

func (s stubSession) IsAuthenticated() bool { return s.authenticated }
func (s stubSession) Roles() []string      { return s.roles }

func sessionOf(s Session) SessionFunc {
	return func(*gin.Context) (Session, bool) {
		return s, s != nil
	}
}

func newRouter(h gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/account/orders", h, func(c *gin.Context) {
		c.String(http.StatusOK, "through")
	})
	return r
}

func TestRequireSession(t *testing.T) {
	tests := []struct {
		name         string
		session      Session
		accept       string
		wantStatus   int
		wantLocation string
	}{
		{
			name:       "signed in passes",
			session:    stubSession{authenticated: true},
			wantStatus: http.StatusOK,
		},
		{
			name:         "anonymous is redirected with returnTo",
			session:      stubSession{},
			wantStatus:   http.StatusFound,
			wantLocation: "/login?returnTo=%2Faccount%2Forders",
		},
		{
			name:         "no session at all",
			session:      nil,
			wantStatus:   http.StatusFound,
			wantLocation: "/login?returnTo=%2Faccount%2Forders",
		},
		{
			name:         "json caller gets 401",
			session:      stubSession{},
			accept:       "application/json",
			wantStatus:   http.StatusUnauthorized,
			wantLocation: "/login?returnTo=%2Faccount%2Forders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(RequireSession(sessionOf(tt.session), DefaultLoginPath))

			req := httptest.NewRequest(http.MethodGet, "/account/orders?page=2", nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
		})
	}
}

func TestRequireSession_JSONBodyCarriesLocation(t *testing.T) {
	r := newRouter(RequireSession(sessionOf(stubSession{}), DefaultLoginPath))

	req := httptest.NewRequest(http.MethodGet, "/account/orders", nil)
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
	assert.Equal(t, "/login?returnTo=%2Faccount%2Forders", body.Error.Location)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name         string
		session      Session
		wantStatus   int
		wantLocation string
	}{
		{
			name:       "admin passes",
			session:    stubSession{authenticated: true, roles: []string{"ADMIN"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "role match is case-insensitive",
			session:    stubSession{authenticated: true, roles: []string{"admin"}},
			wantStatus: http.StatusOK,
		},
		{
			name:         "user without role is denied",
			session:      stubSession{authenticated: true, roles: []string{"USER"}},
			wantStatus:   http.StatusFound,
			wantLocation: DefaultDeniedPath,
		},
		{
			name:         "anonymous goes to login",
			session:      stubSession{},
			wantStatus:   http.StatusFound,
			wantLocation: "/login?returnTo=%2Faccount%2Forders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(RequireRole(sessionOf(tt.session), "admin", DefaultLoginPath, DefaultDeniedPath))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/account/orders", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
		})
	}
}

func TestSafeReturnTo(t *testing.T) {
	tests := map[string]string{
		"":                    "/",
		"/checkout":           "/checkout",
		"//evil.example.com":  "/",
		"/\\evil.example.com": "/",
		"https://evil.com/":   "/",
		"account":             "/",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeReturnTo(in), "input %q", in)
	}
}
