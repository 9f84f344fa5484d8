package films

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"landmash/services/critics"
	"landmash/services/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("landmash/services/films")
var meter = otel.Meter("landmash/services/films")
var resolutions, _ = meter.Int64Counter(
	"film_resolutions",
	metric.WithDescription("film resolutions by whether the film was already known"),
)

var ErrMissingID = errors.New("film has no id")

// Registry resolves films to their stored, reviewed form. Every film is
// reviewed by each critic exactly once, when it is first seen.
type Registry struct {
	store   store.Store
	critics []critics.Critic
	group   *singleflight.Group
}

func NewRegistry(s store.Store, c []critics.Critic) Registry {
	return Registry{
		store:   s,
		critics: c,
		group:   &singleflight.Group{},
	}
}

// Resolve returns the stored film with seed's lm_id or, failing that, seed's
// title, creating and reviewing it if this is the first time it has been
// seen. Concurrent resolutions of the same film share a single lookup.
func (r Registry) Resolve(ctx context.Context, seed store.Film) (store.Film, error) {
	ctx, span := tracer.Start(ctx, "Resolve")
	defer span.End()

	span.SetAttributes(
		attribute.String("lm_id", seed.LmID),
		attribute.String("title", seed.Title),
	)

	if seed.LmID == "" {
		span.RecordError(ErrMissingID)
		span.SetStatus(codes.Error, ErrMissingID.Error())
		return store.Film{}, ErrMissingID
	}

	// films sharing a title share an identity, whatever their lm_id
	key := TitleID(seed.Title)
	if key == "" {
		key = seed.LmID
	}
	value, err, shared := r.group.Do(key, func() (any, error) {
		return r.resolve(context.WithoutCancel(ctx), seed)
	})
	span.SetAttributes(attribute.Bool("shared", shared))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return store.Film{}, err
	}
	return value.(store.Film), nil
}

func (r Registry) resolve(ctx context.Context, seed store.Film) (store.Film, error) {
	film, found, err := r.store.GetFilm(ctx, seed.LmID)
	if err != nil {
		return store.Film{}, err
	}
	if found {
		resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "cached")))
		return film, nil
	}

	if seed.Title != "" {
		film, found, err = r.store.GetFilmByTitle(ctx, seed.Title)
		if err != nil {
			return store.Film{}, err
		}
		if found {
			resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "cached")))
			return film, nil
		}
	}

	seed.Reviews = nil
	created, err := r.store.CreateFilm(ctx, seed)
	if err != nil {
		return store.Film{}, fmt.Errorf("create film %s: %w", seed.LmID, err)
	}
	if created {
		resolutions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "created")))
		err = r.review(ctx, seed)
		if err != nil {
			return store.Film{}, err
		}
	}

	film, found, err = r.store.GetFilm(ctx, seed.LmID)
	if err != nil {
		return store.Film{}, err
	}
	if !found {
		return store.Film{}, fmt.Errorf("film %s vanished after creation", seed.LmID)
	}
	return film, nil
}

// review asks every critic for a review of film concurrently and stores
// the reviews in critic order.
func (r Registry) review(ctx context.Context, film store.Film) error {
	ctx, span := tracer.Start(ctx, "review")
	defer span.End()

	reviews := make([]*store.Review, len(r.critics))
	var group errgroup.Group
	for i, critic := range r.critics {
		i, critic := i, critic
		group.Go(func() error {
			review, ok := critic.GetReview(ctx, film)
			if ok {
				reviews[i] = &review
			}
			return nil
		})
	}
	group.Wait()

	for i, review := range reviews {
		if review == nil {
			slog.DebugContext(ctx, "film has no review", "critic", r.critics[i].ID(), "title", film.Title)
			continue
		}
		err := r.store.AppendReview(ctx, film.LmID, *review)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("append %s review of %s: %w", review.Critic, film.LmID, err)
		}
	}
	return nil
}

// Film returns a stored film, store.ErrNotFound if it has never been
// resolved.
func (r Registry) Film(ctx context.Context, lmID string) (store.Film, error) {
	ctx, span := tracer.Start(ctx, "Film")
	defer span.End()

	span.SetAttributes(attribute.String("lm_id", lmID))

	film, found, err := r.store.GetFilm(ctx, lmID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return store.Film{}, err
	}
	if !found {
		return store.Film{}, fmt.Errorf("film %s: %w", lmID, store.ErrNotFound)
	}
	return film, nil
}
