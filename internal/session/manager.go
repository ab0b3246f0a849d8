// Package session owns the credential pair of one browsing context: login,
// signup, logout, the single-flight refresh, and the accessors the request
// pipeline reads the bearer credential from.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ritikkatiyar/ecom-storefront/internal/apiclient"
	"github.com/ritikkatiyar/ecom-storefront/internal/storage"
	"github.com/ritikkatiyar/ecom-storefront/internal/token"
	"github.com/ritikkatiyar/ecom-storefront/pkg/logger"
	"github.com/ritikkatiyar/ecom-storefront/pkg/telemetry"
)

var (
	// ErrNoRefreshToken is returned by a refresh attempted without a refresh credential
	ErrNoRefreshToken = errors.New("session: no refresh token")
	// ErrRefreshSuperseded is returned by a refresh whose starting pair was
	// replaced or cleared while the backend call was in flight
	ErrRefreshSuperseded = errors.New("session: refresh superseded")
)

const refreshKey = "refresh"

// Option is a functional option for configuring a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithExpiryBuffer sets how close to expiry an access token counts as expired.
func WithExpiryBuffer(d time.Duration) Option {
	return func(m *Manager) {
		m.buffer = d
	}
}

// WithCredentialKey sets the storage key of the persisted pair.
func WithCredentialKey(key string) Option {
	return func(m *Manager) {
		m.key = key
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager implements apiclient.CredentialSource and apiclient.Reauthenticator.
type Manager struct {
	api    AuthAPI
	store  storage.Store
	log    *logger.Logger
	buffer time.Duration
	key    string
	now    func() time.Time

	mu     sync.RWMutex
	creds  *Credentials
	claims token.Claims
	state  State

	// persistMu orders storage writes so the store ends with the latest pair
	persistMu sync.Mutex

	refreshGroup singleflight.Group
}

// NewManager creates a manager in the Anonymous state. Call Init to adopt a
// persisted pair.
func NewManager(api AuthAPI, store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		api:    api,
		store:  store,
		log:    logger.Get(),
		buffer: 60 * time.Second,
		key:    storage.CredentialKey,
		now:    time.Now,
		state:  StateAnonymous,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init adopts the persisted pair. An access token that is expired, or within
// the expiry buffer, is refreshed once before Init returns.
func (m *Manager) Init(ctx context.Context) error {
	raw, err := m.store.Get(ctx, m.key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal([]byte(raw), &creds); err != nil || creds.AccessToken == "" {
		m.log.Warn("discarding unreadable persisted credentials", zap.Error(err))
		_ = m.store.Delete(ctx, m.key)
		return nil
	}

	claims, _ := token.Decode(creds.AccessToken)

	m.mu.Lock()
	m.creds = &creds
	m.claims = claims
	m.state = StateAuthenticated
	m.mu.Unlock()

	if claims.Expired(m.now(), m.buffer) {
		m.log.Info("persisted access token expired, refreshing")
		m.Refresh(ctx)
	}
	return nil
}

// Login exchanges credentials for a token pair and returns the uppercased roles.
func (m *Manager) Login(ctx context.Context, email, password string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "session.login")
	defer span.End()

	prev := m.beginAuthenticating()

	resp, err := m.api.Login(ctx, LoginRequest{Email: email, Password: password})
	if err != nil {
		m.endAuthenticating(prev)
		telemetry.RecordError(span, err)
		return nil, err
	}

	claims := m.adopt(ctx, resp, "")
	m.log.Info("signed in", zap.String("subject", claims.Subject))
	return claims.Roles(), nil
}

// Signup registers a new account and signs it in.
func (m *Manager) Signup(ctx context.Context, email, password, role string) error {
	ctx, span := telemetry.StartSpan(ctx, "session.signup")
	defer span.End()

	prev := m.beginAuthenticating()

	resp, err := m.api.Signup(ctx, SignupRequest{Email: email, Password: password, Role: role})
	if err != nil {
		m.endAuthenticating(prev)
		telemetry.RecordError(span, err)
		return err
	}

	claims := m.adopt(ctx, resp, "")
	m.log.Info("signed up", zap.String("subject", claims.Subject))
	return nil
}

// Logout notifies the backend on a best-effort basis and always clears the
// local pair.
func (m *Manager) Logout(ctx context.Context) {
	ctx, span := telemetry.StartSpan(ctx, "session.logout")
	defer span.End()

	m.mu.RLock()
	creds := m.creds
	m.mu.RUnlock()

	if creds != nil {
		if err := m.api.Logout(ctx, creds.AccessToken, creds.RefreshToken); err != nil {
			m.log.Warn("logout notification failed", zap.Error(err))
		}
	}

	m.clear(ctx)
}

// Refresh rotates the pair. Concurrent callers share one backend call and
// observe the same outcome. On an invalid or missing refresh credential the
// pair is cleared and Refresh reports false.
func (m *Manager) Refresh(ctx context.Context) bool {
	_, err := m.refresh(ctx)
	return err == nil
}

// OnUnauthorized implements apiclient.Reauthenticator. When the pair already
// changed since rejected was sent, the current token is returned without
// another refresh.
func (m *Manager) OnUnauthorized(ctx context.Context, rejected string) (string, bool) {
	if current := m.CurrentAccessToken(); current != "" && current != rejected {
		return current, true
	}

	tok, err := m.refresh(ctx)
	if errors.Is(err, ErrRefreshSuperseded) {
		if current := m.CurrentAccessToken(); current != "" && current != rejected {
			return current, true
		}
	}
	if err != nil {
		return "", false
	}
	return tok, true
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	ch := m.refreshGroup.DoChan(refreshKey, func() (interface{}, error) {
		// detached: a canceled caller must not fail the joined ones
		return m.doRefresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context) (string, error) {
	ctx, span := telemetry.StartSpan(ctx, "session.refresh")
	defer span.End()

	m.mu.Lock()
	creds := m.creds
	if creds == nil || creds.RefreshToken == "" {
		m.mu.Unlock()
		m.clear(ctx)
		telemetry.RecordError(span, ErrNoRefreshToken)
		return "", ErrNoRefreshToken
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	resp, err := m.api.Refresh(ctx, creds.RefreshToken)
	if err != nil {
		telemetry.RecordError(span, err)

		if errors.Is(err, apiclient.ErrNetworkUnavailable) {
			// backend never saw the refresh token; keep the pair
			m.mu.Lock()
			if m.creds == creds {
				m.state = StateAuthenticated
			}
			m.mu.Unlock()
			m.log.Warn("session refresh could not reach the backend", zap.Error(err))
			return "", err
		}

		if !m.clearFrom(ctx, creds) {
			m.log.Info("session changed during rejected refresh, keeping it")
			return "", ErrRefreshSuperseded
		}
		m.log.Warn("session refresh rejected, signing out", zap.Error(err))
		return "", err
	}

	next, claims := m.credentialsFrom(resp, creds.RefreshToken)
	if !m.install(ctx, creds, next, claims) {
		m.log.Info("session changed during refresh, discarding rotated pair")
		telemetry.RecordError(span, ErrRefreshSuperseded)
		return "", ErrRefreshSuperseded
	}
	m.log.Info("session refreshed")
	return resp.AccessToken, nil
}

// adopt replaces the whole pair with resp. An empty refresh token in resp
// keeps previousRefresh.
func (m *Manager) adopt(ctx context.Context, resp *TokenResponse, previousRefresh string) token.Claims {
	creds, claims := m.credentialsFrom(resp, previousRefresh)

	m.mu.Lock()
	m.creds = creds
	m.claims = claims
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.persist(ctx)
	return claims
}

func (m *Manager) credentialsFrom(resp *TokenResponse, previousRefresh string) (*Credentials, token.Claims) {
	now := m.now()
	claims, err := token.Decode(resp.AccessToken)
	if err != nil {
		m.log.Warn("access token claims unreadable", zap.Error(err))
	}

	creds := &Credentials{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		IssuedAt:     now,
		ExpiresAt:    claims.ExpiresAt,
	}
	if creds.RefreshToken == "" {
		creds.RefreshToken = previousRefresh
	}
	if resp.ExpiresInSeconds > 0 {
		creds.ExpiresAt = now.Add(time.Duration(resp.ExpiresInSeconds) * time.Second)
	}
	return creds, claims
}

// install swaps in next only while from is still the live pair.
func (m *Manager) install(ctx context.Context, from, next *Credentials, claims token.Claims) bool {
	m.mu.Lock()
	if m.creds != from {
		m.mu.Unlock()
		return false
	}
	m.creds = next
	m.claims = claims
	m.state = StateAuthenticated
	m.mu.Unlock()

	m.persist(ctx)
	return true
}

func (m *Manager) clear(ctx context.Context) {
	m.mu.Lock()
	m.creds = nil
	m.claims = token.Claims{}
	m.state = StateAnonymous
	m.mu.Unlock()

	m.persist(ctx)
}

// clearFrom signs out only while from is still the live pair.
func (m *Manager) clearFrom(ctx context.Context, from *Credentials) bool {
	m.mu.Lock()
	if m.creds != from {
		m.mu.Unlock()
		return false
	}
	m.creds = nil
	m.claims = token.Claims{}
	m.state = StateAnonymous
	m.mu.Unlock()

	m.persist(ctx)
	return true
}

// persist writes the live pair to storage, or deletes it when signed out.
// Every state change calls it afterwards, so the last write reflects the
// last change.
func (m *Manager) persist(ctx context.Context) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.RLock()
	creds := m.creds
	m.mu.RUnlock()

	if creds == nil {
		if err := m.store.Delete(ctx, m.key); err != nil {
			m.log.Error("failed to delete persisted credentials", zap.Error(err))
		}
		return
	}

	raw, err := json.Marshal(creds)
	if err != nil {
		m.log.Error("failed to encode credentials", zap.Error(err))
		return
	}
	if err := m.store.Set(ctx, m.key, string(raw)); err != nil {
		m.log.Error("failed to persist credentials", zap.Error(err))
	}
}

func (m *Manager) beginAuthenticating() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.state
	m.state = StateAuthenticating
	return prev
}

func (m *Manager) endAuthenticating(prev State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticating {
		return
	}
	if m.creds != nil && prev != StateAnonymous {
		m.state = StateAuthenticated
		return
	}
	m.state = StateAnonymous
}

// CurrentAccessToken implements apiclient.CredentialSource.
func (m *Manager) CurrentAccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creds == nil {
		return ""
	}
	return m.creds.AccessToken
}

// Credentials returns a copy of the live pair
func (m *Manager) Credentials() (Credentials, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creds == nil {
		return Credentials{}, false
	}
	return *m.creds, true
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Claims returns the advisory claims of the live access token
func (m *Manager) Claims() (token.Claims, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.claims, m.creds != nil
}

// Subject returns the signed-in user id, or ""
func (m *Manager) Subject() string {
	c, _ := m.Claims()
	return c.Subject
}

// IsAuthenticated reports whether a pair is live
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds != nil
}

// Roles returns the uppercased roles of the live access token
func (m *Manager) Roles() []string {
	c, _ := m.Claims()
	return c.Roles()
}

var (
	_ apiclient.CredentialSource = (*Manager)(nil)
	_ apiclient.Reauthenticator  = (*Manager)(nil)
)
