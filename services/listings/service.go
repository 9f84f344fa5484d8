package listings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"landmash/services/films"
	"landmash/services/landmark"
	"landmash/services/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("landmash/services/listings")
var meter = otel.Meter("landmash/services/listings")
var listingRequests, _ = meter.Int64Counter(
	"listing_requests",
	metric.WithDescription("listing requests by whether the listing was cached"),
)

var ErrMarketNotFound = fmt.Errorf("market %w", store.ErrNotFound)

// Resolver turns a film seed into its stored, reviewed form.
type Resolver interface {
	Resolve(ctx context.Context, seed store.Film) (store.Film, error)
}

type Options struct {
	// Workers bounds how many films are resolved at once, defaults to 4.
	Workers int
	// ExcludeUnrated drops showings of films no critic could rate instead
	// of ranking them last.
	ExcludeUnrated bool
}

// Service serves the listing of a market on a day, building it from the
// upstream showtimes the first time it is requested.
type Service struct {
	store   store.Store
	fetcher landmark.Fetcher
	films   Resolver
	opts    Options
	group   *singleflight.Group
}

func NewService(s store.Store, fetcher landmark.Fetcher, resolver Resolver, opts Options) Service {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return Service{
		store:   s,
		fetcher: fetcher,
		films:   resolver,
		opts:    opts,
		group:   &singleflight.Group{},
	}
}

func (s Service) checkMarket(ctx context.Context, market string) error {
	_, found, err := s.store.GetMarket(ctx, market)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrMarketNotFound, market)
	}
	return nil
}

// GetListing returns the listing for market on date's day. A listing is
// built at most once, later calls return the stored listing.
func (s Service) GetListing(ctx context.Context, date time.Time, market string) (store.Listing, error) {
	ctx, span := tracer.Start(ctx, "GetListing")
	defer span.End()

	date = store.Day(date)
	key := date.Format(store.DateLayout) + "|" + market
	span.SetAttributes(attribute.String("key", key))

	err := s.checkMarket(ctx, market)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return store.Listing{}, err
	}

	listing, found, err := s.store.GetListing(ctx, date, market)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return store.Listing{}, err
	}
	if found {
		listingRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "cached")))
		return listing, nil
	}

	// the build is shared by every waiter, so it outlives the caller that
	// started it. Upstream clients bound it with their own timeouts.
	value, err, shared := s.group.Do(key, func() (any, error) {
		return s.build(context.WithoutCancel(ctx), date, market)
	})
	span.SetAttributes(attribute.Bool("shared", shared))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return store.Listing{}, err
	}
	return value.(store.Listing), nil
}

func (s Service) build(ctx context.Context, date time.Time, market string) (store.Listing, error) {
	ctx, span := tracer.Start(ctx, "build")
	defer span.End()

	// a build that finished while this one waited to start
	listing, found, err := s.store.GetListing(ctx, date, market)
	if err != nil {
		return store.Listing{}, err
	}
	if found {
		return listing, nil
	}
	listingRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "built")))

	raw, err := s.fetcher.Fetch(ctx, date, market)
	if err != nil {
		return store.Listing{}, err
	}
	span.SetAttributes(attribute.Int("raw_showings", len(raw)))

	resolved, err := s.resolveFilms(ctx, raw)
	if err != nil {
		return store.Listing{}, err
	}

	showings := make([]store.Showing, 0, len(raw))
	for i, r := range raw {
		film := resolved[i]
		if s.opts.ExcludeUnrated && len(film.Reviews) == 0 {
			slog.DebugContext(ctx, "excluding unrated showing", "title", film.Title, "location", r.LocationName)
			continue
		}
		showings = append(showings, store.Showing{
			LocationName: r.LocationName,
			LocationHref: r.LocationHref,
			TimeString:   r.TimeString,
			CSetting:     r.CSetting,
			Film:         film,
		})
	}
	SortShowings(showings)

	err = s.store.SaveListing(ctx, store.Listing{
		Date:     date,
		Market:   market,
		Showings: showings,
	})
	if err != nil && !errors.Is(err, store.ErrListingExists) {
		return store.Listing{}, fmt.Errorf("save listing: %w", err)
	}
	if errors.Is(err, store.ErrListingExists) {
		slog.InfoContext(ctx, "listing was saved by another build", "date", date.Format(store.DateLayout), "market", market)
	}

	listing, found, err = s.store.GetListing(ctx, date, market)
	if err != nil {
		return store.Listing{}, err
	}
	if !found {
		return store.Listing{}, fmt.Errorf("listing %s %s missing after save", date.Format(store.DateLayout), market)
	}
	return listing, nil
}

// resolveFilms resolves the film of every raw showing, showings of the
// same film share one *store.Film.
func (s Service) resolveFilms(ctx context.Context, raw []landmark.RawShowing) ([]*store.Film, error) {
	ctx, span := tracer.Start(ctx, "resolveFilms")
	defer span.End()

	ids := make([]string, len(raw))
	var seeds []store.Film
	seen := map[string]bool{}
	for i, r := range raw {
		seed, err := films.Seed(r.Title, r.Href)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("film link %q: %w", r.Href, err)
		}
		ids[i] = seed.LmID
		if !seen[seed.LmID] {
			seen[seed.LmID] = true
			seeds = append(seeds, seed)
		}
	}
	span.SetAttributes(attribute.Int("films", len(seeds)))

	resolved := make([]store.Film, len(seeds))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.opts.Workers)
	for i, seed := range seeds {
		i, seed := i, seed
		group.Go(func() error {
			film, err := s.films.Resolve(groupCtx, seed)
			if err != nil {
				return fmt.Errorf("resolve film %s: %w", seed.LmID, err)
			}
			resolved[i] = film
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	byID := make(map[string]*store.Film, len(seeds))
	for i, seed := range seeds {
		byID[seed.LmID] = &resolved[i]
	}
	out := make([]*store.Film, len(raw))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out, nil
}

// Listing returns a stored listing without building it, store.ErrNotFound
// if it has not been built.
func (s Service) Listing(ctx context.Context, date time.Time, market string) (store.Listing, error) {
	ctx, span := tracer.Start(ctx, "Listing")
	defer span.End()

	date = store.Day(date)
	span.SetAttributes(
		attribute.String("date", date.Format(store.DateLayout)),
		attribute.String("market", market),
	)

	listing, found, err := s.store.GetListing(ctx, date, market)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return store.Listing{}, err
	}
	if !found {
		return store.Listing{}, fmt.Errorf("listing %s %s: %w", date.Format(store.DateLayout), market, store.ErrNotFound)
	}
	return listing, nil
}
