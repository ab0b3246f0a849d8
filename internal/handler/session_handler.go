package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ritikkatiyar/ecom-storefront/internal/browser"
	"github.com/ritikkatiyar/ecom-storefront/internal/guard"
	"github.com/ritikkatiyar/ecom-storefront/pkg/logger"
	"github.com/ritikkatiyar/ecom-storefront/pkg/response"
)

const adminLanding = "/admin/dashboard"

// SessionHandler handles sign-in, sign-up, sign-out and refresh
type SessionHandler struct {
	log *logger.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(log *logger.Logger) *SessionHandler {
	return &SessionHandler{log: log}
}

// LoginRequest is the body of POST /api/session/login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	ReturnTo string `json:"returnTo"`
}

// SignupRequest is the body of POST /api/session/signup
type SignupRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role"`
}

// SessionView is the public view of a session
type SessionView struct {
	Authenticated bool       `json:"authenticated"`
	State         string     `json:"state"`
	Subject       string     `json:"subject,omitempty"`
	Roles         []string   `json:"roles"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

func sessionView(b *browser.Browser) SessionView {
	v := SessionView{
		Authenticated: b.Session.IsAuthenticated(),
		State:         b.Session.State().String(),
		Subject:       b.Session.Subject(),
		Roles:         b.Session.Roles(),
	}
	if v.Roles == nil {
		v.Roles = []string{}
	}
	if creds, ok := b.Session.Credentials(); ok && !creds.ExpiresAt.IsZero() {
		exp := creds.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}

// Get returns the current session
// GET /api/session
func (h *SessionHandler) Get(c *gin.Context) {
	response.Success(c, sessionView(browser.MustFromContext(c)))
}

// Login signs in and merges the guest cart into the user's cart
// POST /api/session/login
func (h *SessionHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	b := browser.MustFromContext(c)
	ctx := c.Request.Context()

	roles, err := b.Session.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}

	if _, merged, err := b.Cart.MergeAfterLogin(ctx); err != nil {
		h.log.Warn("guest cart merge failed", zap.String("browser_id", b.ID), zap.Error(err))
	} else if merged {
		h.log.Info("guest cart merged after sign-in", zap.String("browser_id", b.ID))
	}

	redirect := guard.SafeReturnTo(req.ReturnTo)
	for _, r := range roles {
		if r == "ADMIN" {
			redirect = adminLanding
		}
	}

	response.Success(c, gin.H{
		"session":  sessionView(b),
		"redirect": redirect,
	})
}

// Signup registers and signs in
// POST /api/session/signup
func (h *SessionHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	b := browser.MustFromContext(c)
	if err := b.Session.Signup(c.Request.Context(), req.Email, req.Password, req.Role); err != nil {
		writeError(c, err)
		return
	}

	response.Created(c, sessionView(b))
}

// Logout signs out. It always succeeds locally.
// POST /api/session/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	b := browser.MustFromContext(c)
	b.Session.Logout(c.Request.Context())
	response.Success(c, sessionView(b))
}

// Refresh rotates the credential pair
// POST /api/session/refresh
func (h *SessionHandler) Refresh(c *gin.Context) {
	b := browser.MustFromContext(c)
	if !b.Session.Refresh(c.Request.Context()) {
		response.WriteError(c, http.StatusUnauthorized, &response.ErrorData{
			Code:     "UNAUTHORIZED",
			Message:  "session could not be refreshed",
			Location: guard.DefaultLoginPath,
		})
		return
	}
	response.Success(c, sessionView(b))
}
