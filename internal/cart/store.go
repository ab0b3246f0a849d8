package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ritikkatiyar/ecom-storefront/internal/apiclient"
	"github.com/ritikkatiyar/ecom-storefront/internal/identity"
	"github.com/ritikkatiyar/ecom-storefront/internal/optimistic"
	"github.com/ritikkatiyar/ecom-storefront/internal/storage"
	"github.com/ritikkatiyar/ecom-storefront/pkg/logger"
	"github.com/ritikkatiyar/ecom-storefront/pkg/telemetry"
)

// Identity is the part of the session the store resolves owners from.
type Identity interface {
	// Subject returns the signed-in subject, or ""
	Subject() string
	IsAuthenticated() bool
}

// Option is a functional option for configuring a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

// WithGuestKey sets the storage key of the guest identifier.
func WithGuestKey(key string) Option {
	return func(s *Store) {
		s.guestKey = key
	}
}

// Store is the cart cache of one browsing context, keyed by owner.
// Concurrent mutations against the same owner are not serialized: each
// one snapshots, applies and rolls back on its own, and the last to settle
// decides the published view.
type Store struct {
	client   *apiclient.Client
	session  Identity
	storage  storage.Store
	log      *logger.Logger
	guestKey string

	mu      sync.Mutex
	entries map[string]*entry
	// merged is the user that received the guest cart, while that session lasts
	merged *Owner
}

// NewStore creates a cart store.
func NewStore(client *apiclient.Client, session Identity, store storage.Store, opts ...Option) *Store {
	s := &Store{
		client:   client,
		session:  session,
		storage:  store,
		log:      logger.Get(),
		guestKey: storage.GuestIDKey,
		entries:  make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Owner resolves the active owner: the signed-in user when the subject is
// a positive numeric user id, otherwise the persisted guest, created on first need.
func (s *Store) Owner(ctx context.Context) (Owner, error) {
	if s.session.IsAuthenticated() {
		if id, err := strconv.ParseInt(s.session.Subject(), 10, 64); err == nil && id > 0 {
			return UserOwner(id), nil
		}
		s.mu.Lock()
		merged := s.merged
		s.mu.Unlock()
		if merged != nil {
			return *merged, nil
		}
	} else {
		s.mu.Lock()
		s.merged = nil
		s.mu.Unlock()
	}

	guestID, err := storage.GetOrCreate(ctx, s.storage, s.guestKey, identity.NewGuestID)
	if err != nil {
		return Owner{}, fmt.Errorf("failed to resolve guest id: %w", err)
	}
	return GuestOwner(guestID), nil
}

// Published returns the view currently published for the active owner
// without contacting the backend.
func (s *Store) Published(ctx context.Context) (Cart, bool, error) {
	owner, err := s.Owner(ctx)
	if err != nil {
		return Cart{}, false, err
	}
	c, ok := s.entry(owner).Snapshot()
	return c, ok, nil
}

// Current returns the cached cart of the active owner, fetching it when
// absent or invalidated. A fetched cart whose total disagrees with its lines
// is rejected with an *IntegrityError.
func (s *Store) Current(ctx context.Context) (Cart, error) {
	owner, err := s.Owner(ctx)
	if err != nil {
		return Cart{}, err
	}

	e := s.entry(owner)
	if c, fresh := e.fresh(); fresh {
		return c, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "cart.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("cart.owner", owner.Key()))

	version := e.currentVersion()

	var fetched Cart
	err = s.client.Do(ctx, &apiclient.Request{
		Method: http.MethodGet,
		Path:   "/api/cart",
		Query:  owner.Query(),
	}, &fetched)
	if err != nil {
		telemetry.RecordError(span, err)
		return Cart{}, err
	}
	if err := s.check(fetched); err != nil {
		telemetry.RecordError(span, err)
		return Cart{}, err
	}

	if !e.fill(fetched, version) {
		// a mutation published while the fetch was in flight
		if c, ok := e.Snapshot(); ok {
			return c, nil
		}
	}
	return fetched, nil
}

// AddItem adds quantity of productID, merging into an existing line.
func (s *Store) AddItem(ctx context.Context, productID string, quantity int) (Cart, error) {
	if productID == "" {
		return Cart{}, ErrInvalidProduct
	}
	if quantity < 1 {
		return Cart{}, ErrInvalidQuantity
	}

	owner, err := s.Owner(ctx)
	if err != nil {
		return Cart{}, err
	}

	body := map[string]interface{}{
		"productId": productID,
		"quantity":  quantity,
	}
	ownerFields(owner, body)

	return s.mutate(ctx, "cart.add_item", owner,
		func(prev Cart) Cart { return prev.WithAdded(productID, quantity) },
		func(ctx context.Context) (Cart, error) {
			var out Cart
			err := s.client.Do(ctx, &apiclient.Request{
				Method: http.MethodPost,
				Path:   "/api/cart/items",
				Body:   body,
			}, &out)
			return out, err
		},
	)
}

// RemoveItem drops the line of productID.
func (s *Store) RemoveItem(ctx context.Context, productID string) (Cart, error) {
	if productID == "" {
		return Cart{}, ErrInvalidProduct
	}

	owner, err := s.Owner(ctx)
	if err != nil {
		return Cart{}, err
	}

	return s.mutate(ctx, "cart.remove_item", owner,
		func(prev Cart) Cart { return prev.WithoutLine(productID) },
		func(ctx context.Context) (Cart, error) {
			var out Cart
			err := s.client.Do(ctx, &apiclient.Request{
				Method: http.MethodDelete,
				Path:   "/api/cart/items/" + url.PathEscape(productID),
				Query:  owner.Query(),
			}, &out)
			return out, err
		},
	)
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) (Cart, error) {
	owner, err := s.Owner(ctx)
	if err != nil {
		return Cart{}, err
	}

	return s.mutate(ctx, "cart.clear", owner,
		func(Cart) Cart { return Empty(owner) },
		func(ctx context.Context) (Cart, error) {
			_, err := s.client.Send(ctx, &apiclient.Request{
				Method: http.MethodDelete,
				Path:   "/api/cart",
				Query:  owner.Query(),
			})
			if err != nil {
				return Cart{}, err
			}
			return Empty(owner), nil
		},
	)
}

// MergeGuestIntoUser moves the guest cart into the user's cart. The merged
// cart returned by the backend is published as-is and the user becomes the
// owner for subsequent operations.
func (s *Store) MergeGuestIntoUser(ctx context.Context, userID int64, guestID string) (Cart, error) {
	if guestID == "" {
		return Cart{}, errors.New("cart: guest id is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "cart.merge")
	defer span.End()

	var merged Cart
	err := s.client.Do(ctx, &apiclient.Request{
		Method: http.MethodPost,
		Path:   "/api/cart/merge",
		Body: map[string]interface{}{
			"userId":  userID,
			"guestId": guestID,
		},
	}, &merged)
	if err != nil {
		telemetry.RecordError(span, err)
		return Cart{}, err
	}
	if err := s.check(merged); err != nil {
		telemetry.RecordError(span, err)
		return Cart{}, err
	}

	user := UserOwner(userID)
	guest := GuestOwner(guestID)

	s.mu.Lock()
	s.merged = &user
	delete(s.entries, guest.Key())
	s.mu.Unlock()

	s.entry(user).replace(merged)

	s.log.Info("guest cart merged",
		zap.Int64("user_id", userID),
		zap.String("guest_id", guestID),
		zap.Int("total_items", merged.TotalItems),
	)
	return merged, nil
}

// MergeAfterLogin merges the persisted guest cart into the signed-in user's
// cart. It reports false when there is no numeric user id or no guest id.
func (s *Store) MergeAfterLogin(ctx context.Context) (Cart, bool, error) {
	if !s.session.IsAuthenticated() {
		return Cart{}, false, nil
	}
	userID, err := strconv.ParseInt(s.session.Subject(), 10, 64)
	if err != nil {
		return Cart{}, false, nil
	}

	guestID, err := s.storage.Get(ctx, s.guestKey)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && guestID == "") {
		return Cart{}, false, nil
	}
	if err != nil {
		return Cart{}, false, fmt.Errorf("failed to load guest id: %w", err)
	}

	merged, err := s.MergeGuestIntoUser(ctx, userID, guestID)
	if err != nil {
		return Cart{}, false, err
	}
	return merged, true, nil
}

// mutate runs one optimistic mutation. The local change is published before
// the request is sent; on failure the exact prior snapshot is restored. The
// entry is invalidated once the mutation settles either way.
func (s *Store) mutate(
	ctx context.Context,
	name string,
	owner Owner,
	apply func(prev Cart) Cart,
	remote func(ctx context.Context) (Cart, error),
) (Cart, error) {
	ctx, span := telemetry.StartSpan(ctx, name)
	defer span.End()
	span.SetAttributes(attribute.String("cart.owner", owner.Key()))

	e := s.entry(owner)
	defer e.invalidate()

	res, err := optimistic.Apply(ctx, e,
		func(prev Cart, present bool) Cart {
			if !present {
				prev = Empty(owner)
			}
			return apply(prev)
		},
		func(ctx context.Context) (Cart, error) {
			c, err := remote(ctx)
			if err != nil {
				return Cart{}, err
			}
			if err := s.check(c); err != nil {
				return Cart{}, err
			}
			return c, nil
		},
	)
	if err != nil {
		telemetry.RecordError(span, err)
		s.log.Warn("cart mutation rolled back",
			zap.String("operation", name),
			zap.String("owner", owner.Key()),
			zap.Error(err),
		)
		return Cart{}, err
	}

	e.Publish(res)
	return res, nil
}

func (s *Store) check(c Cart) error {
	err := c.Validate()
	if err != nil {
		s.log.Error("cart service returned an inconsistent cart",
			zap.String("owner_type", c.OwnerType),
			zap.String("owner_id", c.OwnerID),
			zap.Error(err),
		)
	}
	return err
}

func (s *Store) entry(owner Owner) *entry {
	if owner.IsZero() {
		// detached so a failed owner lookup never reads or writes a cached cart
		return &entry{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[owner.Key()]
	if !ok {
		e = &entry{}
		s.entries[owner.Key()] = e
	}
	return e
}

func ownerFields(owner Owner, body map[string]interface{}) {
	if owner.IsUser() {
		body["userId"] = owner.UserID
		return
	}
	body["guestId"] = owner.GuestID
}

// entry is the cached cart of one owner. version changes on every publish
// so that a fetch begun earlier cannot overwrite a newer view.
type entry struct {
	mu      sync.RWMutex
	cart    Cart
	present bool
	stale   bool
	version uint64
}

// Snapshot implements optimistic.Cell
func (e *entry) Snapshot() (Cart, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cart, e.present
}

// Publish implements optimistic.Cell
func (e *entry) Publish(c Cart) {
	e.mu.Lock()
	e.cart, e.present = c, true
	e.version++
	e.mu.Unlock()
}

// Restore implements optimistic.Cell
func (e *entry) Restore(prev Cart, present bool) {
	e.mu.Lock()
	e.cart, e.present = prev, present
	e.version++
	e.mu.Unlock()
}

func (e *entry) fresh() (Cart, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cart, e.present && !e.stale
}

func (e *entry) currentVersion() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

func (e *entry) invalidate() {
	e.mu.Lock()
	e.stale = true
	e.mu.Unlock()
}

// fill stores a fetched cart unless the entry changed since version.
func (e *entry) fill(c Cart, version uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.version != version {
		return false
	}
	e.cart, e.present, e.stale = c, true, false
	e.version++
	return true
}

func (e *entry) replace(c Cart) {
	e.mu.Lock()
	e.cart, e.present, e.stale = c, true, false
	e.version++
	e.mu.Unlock()
}

var _ optimistic.Cell[Cart] = (*entry)(nil)
