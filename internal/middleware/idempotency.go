package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ritikkatiyar/ecom-storefront/internal/storage"
	"github.com/ritikkatiyar/ecom-storefront/pkg/response"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency key
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// ContextKeyIdempotencyKey is the context key for idempotency key
	ContextKeyIdempotencyKey = "idempotency_key"
	// DefaultIdempotencyTTL is how long a completed response is replayed
	DefaultIdempotencyTTL = 5 * time.Minute
	// IdempotencyKeyPrefix namespaces the records inside a browser store
	IdempotencyKeyPrefix = "idempotency:"
)

// IdempotencyStatus represents the status of an idempotency record
type IdempotencyStatus string

const (
	StatusProcessing IdempotencyStatus = "processing"
	StatusCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord stores the state of an idempotent request
type IdempotencyRecord struct {
	Key          string            `json:"key"`
	Status       IdempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code"`
	ResponseBody string            `json:"response_body"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

func (r *IdempotencyRecord) expired(now time.Time, cfg *IdempotencyConfig) bool {
	if r.Status == StatusProcessing {
		return now.Sub(r.CreatedAt) > cfg.ProcessingTTL
	}
	return r.CompletedAt == nil || now.Sub(*r.CompletedAt) > cfg.TTL
}

// IdempotencyConfig holds configuration for idempotency middleware
type IdempotencyConfig struct {
	// Store returns where records of the current request live. Records are
	// scoped to it, so two browsers never share a key.
	Store func(*gin.Context) (storage.Store, bool)
	// TTL for COMPLETED records
	TTL time.Duration
	// ProcessingTTL after which an unfinished record is considered abandoned
	ProcessingTTL time.Duration
	// Required rejects requests without a key instead of passing them through
	Required bool
	// IncludeBodyInHash includes request body in the hash (default: true)
	IncludeBodyInHash bool
	now               func() time.Time
}

// DefaultIdempotencyConfig returns default configuration
func DefaultIdempotencyConfig(store func(*gin.Context) (storage.Store, bool)) *IdempotencyConfig {
	return &IdempotencyConfig{
		Store:             store,
		TTL:               DefaultIdempotencyTTL,
		ProcessingTTL:     60 * time.Second,
		IncludeBodyInHash: true,
	}
}

// IdempotencyMiddleware replays the stored response of a request already
// completed under the same X-Idempotency-Key. Server errors are not stored
// so the caller may retry them.
func IdempotencyMiddleware(config *IdempotencyConfig) gin.HandlerFunc {
	if config.ProcessingTTL == 0 {
		config.ProcessingTTL = 60 * time.Second
	}
	if config.TTL == 0 {
		config.TTL = DefaultIdempotencyTTL
	}
	if config.now == nil {
		config.now = time.Now
	}

	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
		if idempotencyKey == "" {
			if config.Required {
				response.Error(c, http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "X-Idempotency-Key header is required", "")
				c.Abort()
				return
			}
			c.Next()
			return
		}
		c.Set(ContextKeyIdempotencyKey, idempotencyKey)

		store, ok := config.Store(c)
		if !ok {
			c.Next()
			return
		}

		var bodyBytes []byte
		if c.Request.Body != nil && config.IncludeBodyInHash {
			bodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}
		requestHash := generateRequestHash(c, bodyBytes)
		key := IdempotencyKeyPrefix + idempotencyKey
		ctx := c.Request.Context()

		existing, err := getIdempotencyRecord(ctx, store, key)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			// fail open
			c.Next()
			return
		}
		if existing != nil && existing.expired(config.now(), config) {
			_ = store.Delete(ctx, key)
			existing = nil
		}
		if existing != nil {
			replay(c, existing, requestHash)
			return
		}

		record := &IdempotencyRecord{
			Key:         idempotencyKey,
			Status:      StatusProcessing,
			RequestHash: requestHash,
			CreatedAt:   config.now(),
		}
		if !trySetIdempotencyRecord(ctx, store, key, record) {
			if existing, _ = getIdempotencyRecord(ctx, store, key); existing != nil {
				replay(c, existing, requestHash)
				return
			}
		}

		rw := &idempotencyResponseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
			status:         http.StatusOK,
		}
		c.Writer = rw

		c.Next()

		if rw.status >= http.StatusInternalServerError {
			_ = store.Delete(ctx, key)
			return
		}

		now := config.now()
		record.Status = StatusCompleted
		record.ResponseCode = rw.status
		record.ResponseBody = rw.body.String()
		record.CompletedAt = &now
		_ = saveIdempotencyRecord(ctx, store, key, record)
	}
}

func replay(c *gin.Context, existing *IdempotencyRecord, requestHash string) {
	if existing.RequestHash != requestHash {
		response.Error(c, http.StatusUnprocessableEntity, "IDEMPOTENCY_KEY_REUSED", "Idempotency key already used with different request", "")
		c.Abort()
		return
	}
	if existing.Status == StatusProcessing {
		response.Error(c, http.StatusConflict, "REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed", "")
		c.Abort()
		return
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(existing.ResponseCode, "application/json; charset=utf-8", []byte(existing.ResponseBody))
	c.Abort()
}

// GetIdempotencyKey extracts idempotency key from gin context
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	key, exists := c.Get(ContextKeyIdempotencyKey)
	if !exists {
		return "", false
	}
	k, ok := key.(string)
	return k, ok
}

// idempotencyResponseWriter captures response for caching
type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *idempotencyResponseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func (w *idempotencyResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func generateRequestHash(c *gin.Context, body []byte) string {
	h := sha256.New()
	h.Write([]byte(c.Request.Method))
	h.Write([]byte(c.Request.URL.Path))
	if len(body) > 0 {
		h.Write(body)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func getIdempotencyRecord(ctx context.Context, store storage.Store, key string) (*IdempotencyRecord, error) {
	raw, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var record IdempotencyRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func trySetIdempotencyRecord(ctx context.Context, store storage.Store, key string, record *IdempotencyRecord) bool {
	data, err := json.Marshal(record)
	if err != nil {
		return false
	}
	ok, err := store.SetIfAbsent(ctx, key, string(data))
	return err == nil && ok
}

func saveIdempotencyRecord(ctx context.Context, store storage.Store, key string, record *IdempotencyRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(data))
}
