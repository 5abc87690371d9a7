package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/hvacsearch/internal/domain"
	"github.com/kailas-cloud/hvacsearch/internal/metrics"
)

// Defaults for Options.
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 60 * time.Second
	// NoRetries as Options.MaxRetries runs fn exactly once.
	NoRetries = -1
	// JitterFraction bounds the random delay added on top of the exponential backoff.
	JitterFraction = 0.1
)

// DefaultRetryableStatuses are HTTP statuses treated as transient.
var DefaultRetryableStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Options configures Do. Zero fields take the package defaults; use NoRetries to
// disable retrying.
type Options struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RetryableStatuses []int

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Rand returns a uniform value in [0,1) used for jitter.
	Rand   func() float64
	Logger *zap.Logger
}

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.RetryableStatuses == nil {
		o.RetryableStatuses = DefaultRetryableStatuses
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	if o.Rand == nil {
		o.Rand = rand.Float64
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Do runs fn until it succeeds, fails with a non-retryable error, or MaxRetries
// retries have been spent. A negative MaxRetries disables retrying.
// The last error is returned unchanged so callers can classify it.
func Do(ctx context.Context, op string, opts Options, fn func(ctx context.Context) error) error {
	opts = opts.withDefaults()

	var err error
	for attempt := 0; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			if attempt > 0 {
				metrics.RetryAttemptsTotal.WithLabelValues(op, "recovered").Inc()
			}
			return nil
		}

		if !IsRetryable(err, opts.RetryableStatuses) {
			return err
		}
		if attempt >= opts.MaxRetries {
			metrics.RetryAttemptsTotal.WithLabelValues(op, "exhausted").Inc()
			opts.Logger.Warn("retries exhausted",
				zap.String("op", op),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			return err
		}

		delay := Backoff(attempt, opts.BaseDelay, opts.MaxDelay, opts.Rand())
		metrics.RetryAttemptsTotal.WithLabelValues(op, "retry").Inc()
		opts.Logger.Warn("transient failure, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", opts.MaxRetries),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)

		if serr := opts.Sleep(ctx, delay); serr != nil {
			return fmt.Errorf("%s: retry aborted: %w", op, serr)
		}
	}
}

// Backoff returns min(base*2^attempt, maxDelay) plus jitter of up to JitterFraction
// of that delay; r is a uniform sample in [0,1).
func Backoff(attempt int, base, maxDelay time.Duration, r float64) time.Duration {
	d := float64(base) * math.Pow(2, float64(attempt))
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	return time.Duration(d + d*JitterFraction*r)
}

// IsRetryable classifies err as transient.
//
// Status codes in statuses, rate limiting, upstream unavailability and network faults
// are retried. Our own deadlines (domain.ErrTimeout, context errors) are not: retrying a
// slow call only compounds latency.
func IsRetryable(err error, statuses []int) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch domain.ClassOf(err) {
	case domain.ErrValidation, domain.ErrFilterValidation,
		domain.ErrUnauthenticated, domain.ErrSessionExpired, domain.ErrForbidden,
		domain.ErrNotFound, domain.ErrDimensionMismatch:
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		return slices.Contains(statuses, sc.HTTPStatus())
	}

	if errors.Is(err, domain.ErrRateLimited) ||
		errors.Is(err, domain.ErrUpstreamUnavailable) ||
		errors.Is(err, domain.ErrNetwork) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return isNetworkMessage(err.Error())
}

var networkMarkers = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"no such host",
	"i/o timeout",
	"network",
}

func isNetworkMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, m := range networkMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
