// Package guard protects storefront routes. Roles come from decoded token
// claims and only decide where a visitor is sent; every backend call is
// still authorized by the backend itself.
package guard

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ritikkatiyar/ecom-storefront/pkg/response"
)

// Default redirect targets
const (
	DefaultLoginPath  = "/login"
	DefaultDeniedPath = "/unauthorized"
	ReturnToParam     = "returnTo"
)

// Session is what a guard needs to know about the visitor
type Session interface {
	IsAuthenticated() bool
	Roles() []string
}

// SessionFunc returns the session of the current request
type SessionFunc func(c *gin.Context) (Session, bool)

// RequireSession lets signed-in visitors through. Others are redirected to
// loginPath with the requested path in returnTo, or get a 401 carrying the
// same location when they asked for JSON.
func RequireSession(sessions SessionFunc, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := authenticated(c, sessions); !ok {
			redirectToLogin(c, loginPath)
			return
		}
		c.Next()
	}
}

// RequireRole is RequireSession plus a role check. Signed-in visitors
// without the role are sent to deniedPath.
func RequireRole(sessions SessionFunc, role, loginPath, deniedPath string) gin.HandlerFunc {
	role = strings.ToUpper(role)

	return func(c *gin.Context) {
		s, ok := authenticated(c, sessions)
		if !ok {
			redirectToLogin(c, loginPath)
			return
		}
		if !hasRole(s.Roles(), role) {
			deny(c, http.StatusForbidden, "FORBIDDEN", "insufficient role", deniedPath)
			return
		}
		c.Next()
	}
}

// LoginLocation builds the sign-in URL that returns to path afterwards
func LoginLocation(loginPath, path string) string {
	if path == "" {
		return loginPath
	}
	return loginPath + "?" + ReturnToParam + "=" + url.QueryEscape(path)
}

// SafeReturnTo returns target when it is a local path, else "/"
func SafeReturnTo(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "/"
	}
	return target
}

func authenticated(c *gin.Context, sessions SessionFunc) (Session, bool) {
	s, ok := sessions(c)
	if !ok || s == nil || !s.IsAuthenticated() {
		return nil, false
	}
	return s, true
}

func redirectToLogin(c *gin.Context, loginPath string) {
	deny(c, http.StatusUnauthorized, "UNAUTHORIZED", "sign in required",
		LoginLocation(loginPath, c.Request.URL.Path))
}

func deny(c *gin.Context, status int, code, message, location string) {
	if wantsJSON(c.Request) {
		c.Header("Location", location)
		response.WriteError(c, status, &response.ErrorData{
			Code:     code,
			Message:  message,
			Location: location,
		})
		c.Abort()
		return
	}
	c.Redirect(http.StatusFound, location)
	c.Abort()
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if strings.ToUpper(r) == role {
			return true
		}
	}
	return false
}
