// Package browser builds and tracks browsing contexts. Each context owns
// its storage namespace, credential pair, refresh single-flight and cart
// cache, so nothing about one visitor leaks into another.
package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ritikkatiyar/ecom-storefront/internal/apiclient"
	"github.com/ritikkatiyar/ecom-storefront/internal/cart"
	"github.com/ritikkatiyar/ecom-storefront/internal/catalog"
	"github.com/ritikkatiyar/ecom-storefront/internal/orders"
	"github.com/ritikkatiyar/ecom-storefront/internal/session"
	"github.com/ritikkatiyar/ecom-storefront/internal/storage"
	"github.com/ritikkatiyar/ecom-storefront/pkg/logger"
)

// Browser is one browsing context
type Browser struct {
	ID      string
	Storage storage.Store
	Session *session.Manager
	Cart    *cart.Store
	Catalog *catalog.Client
	Orders  *orders.Client
}

// StoreFunc returns the storage namespace of one browser
type StoreFunc func(browserID string) storage.Store

// MemoryStores gives every browser its own process-local store
func MemoryStores() StoreFunc {
	return func(string) storage.Store {
		return storage.NewMemory()
	}
}

// FactoryConfig configures how browsing contexts are built
type FactoryConfig struct {
	API           apiclient.Config
	ExpiryBuffer  time.Duration
	CredentialKey string
	GuestKey      string
	HTTPClient    *http.Client
	Logger        *logger.Logger
}

// Factory builds browsing contexts
type Factory struct {
	cfg    FactoryConfig
	stores StoreFunc
}

// NewFactory creates a factory. Empty keys and buffer fall back to the
// storage and session defaults.
func NewFactory(cfg FactoryConfig, stores StoreFunc) *Factory {
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	if cfg.CredentialKey == "" {
		cfg.CredentialKey = storage.CredentialKey
	}
	if cfg.GuestKey == "" {
		cfg.GuestKey = storage.GuestIDKey
	}
	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = 60 * time.Second
	}
	if stores == nil {
		stores = MemoryStores()
	}
	return &Factory{cfg: cfg, stores: stores}
}

// Build wires a new browsing context. The auth service gets its own
// pipeline without a reauthenticator so that a 401 from refresh can never
// recurse into another refresh.
func (f *Factory) Build(id string) *Browser {
	log := f.cfg.Logger.With(zap.String("browser_id", id))
	store := f.stores(id)

	authPipeline := apiclient.New(f.cfg.API, f.pipelineOptions(log)...)
	mgr := session.NewManager(session.NewAuthAPI(authPipeline), store,
		session.WithLogger(log),
		session.WithExpiryBuffer(f.cfg.ExpiryBuffer),
		session.WithCredentialKey(f.cfg.CredentialKey),
	)

	api := apiclient.New(f.cfg.API, append(f.pipelineOptions(log),
		apiclient.WithCredentials(mgr),
		apiclient.WithReauthenticator(mgr),
	)...)

	return &Browser{
		ID:      id,
		Storage: store,
		Session: mgr,
		Cart: cart.NewStore(api, mgr, store,
			cart.WithLogger(log),
			cart.WithGuestKey(f.cfg.GuestKey),
		),
		Catalog: catalog.New(api),
		Orders:  orders.New(api),
	}
}

func (f *Factory) pipelineOptions(log *logger.Logger) []apiclient.Option {
	opts := []apiclient.Option{apiclient.WithLogger(log)}
	if f.cfg.HTTPClient != nil {
		opts = append(opts, apiclient.WithHTTPClient(f.cfg.HTTPClient))
	}
	return opts
}

type slot struct {
	ready    chan struct{}
	browser  *Browser
	err      error
	lastSeen atomic.Int64
}

func (s *slot) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// Registry holds the live browsing contexts by id
type Registry struct {
	factory *Factory
	log     *logger.Logger

	mu    sync.Mutex
	slots map[string]*slot
	now   func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry(factory *Factory, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Get()
	}
	return &Registry{
		factory: factory,
		log:     log,
		slots:   make(map[string]*slot),
		now:     time.Now,
	}
}

// Get returns the browsing context for id, building and initialising it on
// first use. Concurrent first requests for the same id share one build.
func (r *Registry) Get(ctx context.Context, id string) (*Browser, error) {
	r.mu.Lock()
	s, ok := r.slots[id]
	if !ok {
		s = &slot{ready: make(chan struct{})}
		r.slots[id] = s
	}
	s.touch(r.now())
	r.mu.Unlock()

	if ok {
		select {
		case <-s.ready:
			return s.browser, s.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b := r.factory.Build(id)
	if err := b.Session.Init(context.WithoutCancel(ctx)); err != nil {
		s.err = fmt.Errorf("failed to initialise browser %s: %w", id, err)
		r.mu.Lock()
		delete(r.slots, id)
		r.mu.Unlock()
		close(s.ready)
		r.log.Error("browser initialisation failed", zap.String("browser_id", id), zap.Error(err))
		return nil, s.err
	}

	s.browser = b
	close(s.ready)
	r.log.Debug("browser context created", zap.String("browser_id", id))
	return b, nil
}

// Forget drops the context for id. Its persisted state stays in storage
// and is adopted again on the next Get.
func (r *Registry) Forget(id string) {
	r.mu.Lock()
	delete(r.slots, id)
	r.mu.Unlock()
}

// EvictIdle forgets every context not requested within idle and returns
// how many were dropped. Contexts still being built are kept.
func (r *Registry) EvictIdle(idle time.Duration) int {
	cutoff := r.now().Add(-idle).UnixNano()

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, s := range r.slots {
		select {
		case <-s.ready:
		default:
			continue
		}
		if s.lastSeen.Load() < cutoff {
			delete(r.slots, id)
			evicted++
		}
	}
	return evicted
}

// RunJanitor evicts idle contexts every interval until ctx is done. Only
// use it with a storage driver that outlives the context, otherwise an
// evicted visitor is signed out.
func (r *Registry) RunJanitor(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.EvictIdle(idle); n > 0 {
				r.log.Debug("evicted idle browser contexts", zap.Int("count", n), zap.Int("live", r.Len()))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Len returns the number of live contexts
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
