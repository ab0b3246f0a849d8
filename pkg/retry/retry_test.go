package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", config.MaxRetries)
	}

	if config.InitialInterval != 1*time.Second {
		t.Errorf("InitialInterval = %v, want 1s", config.InitialInterval)
	}

	if config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0", config.Multiplier)
	}
}

func TestFixedConfig(t *testing.T) {
	retrier := New(FixedConfig(2, 500*time.Millisecond))

	if retrier.MaxAttempts() != 3 {
		t.Errorf("MaxAttempts = %d, want 3", retrier.MaxAttempts())
	}

	for attempt := 0; attempt < 3; attempt++ {
		if got := retrier.calculateInterval(attempt); got != 500*time.Millisecond {
			t.Errorf("interval(%d) = %v, want 500ms", attempt, got)
		}
	}
}

func TestNew_WithNilConfig(t *testing.T) {
	retrier := New(nil)
	if retrier == nil {
		t.Fatal("New(nil) returned nil")
	}

	if retrier.config.InitialInterval != 1*time.Second {
		t.Errorf("Default InitialInterval = %v, want 1s", retrier.config.InitialInterval)
	}
}

func TestNew_DoesNotMutateCallerConfig(t *testing.T) {
	config := &Config{MaxRetries: -3, Multiplier: 0}
	New(config)

	if config.MaxRetries != -3 || config.Multiplier != 0 {
		t.Errorf("caller config was modified: %+v", config)
	}
}

func TestNew_WithZeroValues(t *testing.T) {
	retrier := New(&Config{})

	if retrier.config.InitialInterval != 0 {
		t.Errorf("InitialInterval = %v, want 0", retrier.config.InitialInterval)
	}

	if retrier.config.MaxInterval != 30*time.Second {
		t.Errorf("MaxInterval = %v, want 30s (default)", retrier.config.MaxInterval)
	}

	if retrier.config.Multiplier != 1 {
		t.Errorf("Multiplier = %f, want 1", retrier.config.Multiplier)
	}
}

func TestRetrier_Do_Success(t *testing.T) {
	attempts := 0
	result := New(FixedConfig(3, time.Millisecond)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})

	if result.Err != nil {
		t.Errorf("Err = %v, want nil", result.Err)
	}

	if result.Attempts != 1 || attempts != 1 {
		t.Errorf("Attempts = %d (op calls %d), want 1", result.Attempts, attempts)
	}
}

func TestRetrier_Do_SuccessAfterRetries(t *testing.T) {
	attempts := 0
	result := New(FixedConfig(2, time.Millisecond)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	if result.Err != nil {
		t.Errorf("Err = %v, want nil", result.Err)
	}

	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
}

func TestRetrier_Do_MaxRetriesExceeded(t *testing.T) {
	expectedErr := errors.New("persistent error")
	attempts := 0

	result := New(FixedConfig(2, time.Millisecond)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return expectedErr
	})

	if !errors.Is(result.Err, ErrMaxRetriesExceeded) {
		t.Errorf("Err = %v, want ErrMaxRetriesExceeded", result.Err)
	}

	if !errors.Is(result.Err, expectedErr) {
		t.Errorf("Err = %v, want it to wrap %v", result.Err, expectedErr)
	}

	if result.LastError != expectedErr {
		t.Errorf("LastError = %v, want %v", result.LastError, expectedErr)
	}

	// Initial attempt + 2 retries
	if attempts != 3 {
		t.Errorf("Operation called %d times, want 3", attempts)
	}
}

func TestRetrier_Do_ZeroRetries(t *testing.T) {
	attempts := 0
	result := New(FixedConfig(0, time.Millisecond)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("boom")
	})

	if attempts != 1 {
		t.Errorf("Operation called %d times, want 1", attempts)
	}

	if !errors.Is(result.Err, ErrMaxRetriesExceeded) {
		t.Errorf("Err = %v, want ErrMaxRetriesExceeded", result.Err)
	}
}

func TestRetrier_Do_PermanentError(t *testing.T) {
	permErr := errors.New("permanent error")
	attempts := 0

	result := New(FixedConfig(5, time.Millisecond)).Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(permErr)
	})

	if result.Err != permErr {
		t.Errorf("Err = %v, want %v", result.Err, permErr)
	}

	if attempts != 1 {
		t.Errorf("Operation called %d times, want 1", attempts)
	}
}

func TestPermanent_Nil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestRetrier_Do_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	result := New(FixedConfig(10, 100*time.Millisecond)).Do(ctx, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("error")
	})

	if !errors.Is(result.Err, ErrContextCanceled) {
		t.Errorf("Err = %v, want ErrContextCanceled", result.Err)
	}

	if !errors.Is(result.Err, context.Canceled) {
		t.Errorf("Err = %v, want it to wrap context.Canceled", result.Err)
	}

	if attempts != 2 {
		t.Errorf("Operation called %d times, want 2", attempts)
	}
}

func TestRetrier_Do_ContextTimeoutDuringWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := New(FixedConfig(3, time.Second)).Do(ctx, func(ctx context.Context) error {
		return errors.New("error")
	})

	if !errors.Is(result.Err, ErrContextCanceled) {
		t.Errorf("Err = %v, want ErrContextCanceled", result.Err)
	}

	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("retrier kept waiting after context expired")
	}
}

func TestRetrier_DoWithCallback(t *testing.T) {
	var intervals []time.Duration
	attempts := 0

	result := New(FixedConfig(3, 2*time.Millisecond)).DoWithCallback(context.Background(),
		func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.New("error")
			}
			return nil
		},
		func(attempt int, err error, next time.Duration) {
			intervals = append(intervals, next)
		},
	)

	if result.Err != nil {
		t.Errorf("Err = %v, want nil", result.Err)
	}

	if len(intervals) != 2 {
		t.Fatalf("callback called %d times, want 2", len(intervals))
	}

	for _, iv := range intervals {
		if iv != 2*time.Millisecond {
			t.Errorf("interval = %v, want 2ms", iv)
		}
	}
}

func TestCalculateInterval_ExponentialCapped(t *testing.T) {
	retrier := New(&Config{
		MaxRetries:      5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     300 * time.Millisecond,
		Multiplier:      2,
	})

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for attempt, w := range want {
		if got := retrier.calculateInterval(attempt); got != w {
			t.Errorf("interval(%d) = %v, want %v", attempt, got, w)
		}
	}
}
