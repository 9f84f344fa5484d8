package critics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"landmash/services/store"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("landmash/services/critics")
var meter = otel.Meter("landmash/services/critics")
var reviewLookups, _ = meter.Int64Counter(
	"critic_review_lookups",
	metric.WithDescription("review lookups by critic and outcome"),
)

const (
	RottenTomatoesID = "rotten_tomatoes"
	IMDbID           = "imdb"
)

// Critic is an external rating source. GetReview never fails: a film the
// critic has no rating for and a critic that cannot be reached both
// result in ok=false.
type Critic interface {
	ID() string
	GetReview(ctx context.Context, film store.Film) (review store.Review, ok bool)
}

// CriticUnavailableError wraps any failure while fetching a review, it is
// logged and absorbed at the critic boundary.
type CriticUnavailableError struct {
	Critic string
	Film   string
	Err    error
}

func (e *CriticUnavailableError) Error() string {
	return fmt.Sprintf("critic %s unavailable for %q: %v", e.Critic, e.Film, e.Err)
}

func (e *CriticUnavailableError) Unwrap() error {
	return e.Err
}

// ParseRecoverableError is returned when a scraped page kept yielding
// malformed fragments after the allowed number had been dropped. The page
// is then treated as having no results.
type ParseRecoverableError struct {
	Url string
	Err error
}

func (e *ParseRecoverableError) Error() string {
	return fmt.Sprintf("unrecoverable fragments on %s: %v", e.Url, e.Err)
}

func (e *ParseRecoverableError) Unwrap() error {
	return e.Err
}

type BreakerOptions struct {
	// ConsecutiveFailures before the breaker opens, defaults to 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open, defaults to 30s.
	OpenTimeout time.Duration
}

func newBreaker(name string, opts BreakerOptions) *gobreaker.CircuitBreaker[*store.Review] {
	threshold := opts.ConsecutiveFailures
	if threshold == 0 {
		threshold = 5
	}
	timeout := opts.OpenTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker[*store.Review](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("critic circuit breaker changed state", "critic", name, "from", from.String(), "to", to.String())
		},
	})
}

// lookup runs fetch through breaker and converts its outcome into the
// (review, ok) form of Critic.GetReview.
func lookup(
	ctx context.Context,
	span trace.Span,
	critic string,
	film store.Film,
	breaker *gobreaker.CircuitBreaker[*store.Review],
	fetch func() (*store.Review, error),
) (store.Review, bool) {
	span.SetAttributes(
		attribute.String("critic", critic),
		attribute.String("title", film.Title),
	)

	review, err := breaker.Execute(fetch)
	outcome := "found"
	switch {
	case err != nil:
		outcome = "unavailable"
	case review == nil:
		outcome = "none"
	}
	reviewLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("critic", critic),
		attribute.String("outcome", outcome),
	))

	if err != nil {
		err = &CriticUnavailableError{Critic: critic, Film: film.Title, Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.WarnContext(ctx, "no review, critic unavailable", "critic", critic, "title", film.Title, "err", err)
		return store.Review{}, false
	}
	if review == nil {
		slog.DebugContext(ctx, "no review found", "critic", critic, "title", film.Title)
		return store.Review{}, false
	}
	return *review, true
}
