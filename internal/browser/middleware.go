package browser

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ritikkatiyar/ecom-storefront/internal/identity"
	"github.com/ritikkatiyar/ecom-storefront/internal/middleware"
	"github.com/ritikkatiyar/ecom-storefront/pkg/response"
)

const contextKey = "browser"

// CookieConfig describes the browser id cookie
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Middleware reads the browser id cookie, issuing a new id when it is
// missing or malformed, and attaches the browsing context to the request.
func (r *Registry) Middleware(cookie CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cookie.Name)
		if err != nil || !identity.ValidBrowserID(id) {
			id = identity.NewBrowserID()
		}

		http.SetCookie(c.Writer, &http.Cookie{
			Name:     cookie.Name,
			Value:    id,
			Path:     "/",
			MaxAge:   int(cookie.MaxAge.Seconds()),
			Secure:   cookie.Secure,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})

		b, err := r.Get(c.Request.Context(), id)
		if err != nil {
			response.WriteError(c, http.StatusServiceUnavailable, &response.ErrorData{
				Code:          "BROWSER_UNAVAILABLE",
				Message:       "browsing session could not be restored",
				CorrelationID: middleware.GetCorrelationID(c),
			})
			c.Abort()
			return
		}

		c.Set(contextKey, b)
		c.Set(middleware.BrowserIDKey, id)
		c.Next()
	}
}

// FromContext returns the browsing context attached by Middleware
func FromContext(c *gin.Context) (*Browser, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return nil, false
	}
	b, ok := v.(*Browser)
	return b, ok
}

// MustFromContext is FromContext for handlers mounted behind Middleware
func MustFromContext(c *gin.Context) *Browser {
	b, ok := FromContext(c)
	if !ok {
		panic("browser: middleware not installed")
	}
	return b
}
