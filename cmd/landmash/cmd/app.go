package cmd

import (
	"context"
	"errors"
	"time"

	"landmash/lib/telemetry"
	"landmash/lib/webcache"
	"landmash/services/critics"
	"landmash/services/films"
	"landmash/services/landmark"
	"landmash/services/listings"
	"landmash/services/store"
)

// app holds the services shared by every command.
type app struct {
	config    Config
	store     *store.SQLStore
	pageCache *webcache.Cache
	films     films.Registry
	listings  listings.Service
	telemetry telemetry.Telemetry
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func newApp(ctx context.Context, config Config) (*app, error) {
	a := &app{config: config}

	tel, err := telemetry.SetupFromEnv(ctx, "landmash")
	if err != nil {
		return nil, err
	}
	a.telemetry = tel
	if tel.MeterProvider != nil {
		telemetry.InstrumentPerfStats(ctx, 15*time.Second)
	}

	a.store, err = store.Open(config.Database)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	for _, name := range config.Markets {
		err = a.store.UpsertMarket(ctx, store.Market{Name: name})
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	if !config.IMDb.PageCache.Disabled {
		a.pageCache, err = webcache.Open(webcache.Options{
			Dir: config.IMDb.PageCache.Dir,
			TTL: time.Duration(config.IMDb.PageCache.TTLHours) * time.Hour,
		})
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	rt, err := critics.NewRottenTomatoes(critics.RottenTomatoesOptions{
		BaseUrl:      config.RottenTomatoes.BaseUrl,
		ApiKey:       config.RottenTomatoes.ApiKey,
		MaxPerSecond: config.RottenTomatoes.MaxPerSecond,
		NoScoreFloor: config.RottenTomatoes.NoScoreFloor,
		Timeout:      seconds(config.RottenTomatoes.TimeoutSeconds),
		Breaker:      config.RottenTomatoes.Breaker.options(),
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	imdb, err := critics.NewIMDb(critics.IMDbOptions{
		BaseUrl:         config.IMDb.BaseUrl,
		MaxPerSecond:    config.IMDb.MaxPerSecond,
		MaxParseRetries: config.IMDb.MaxParseRetries,
		Timeout:         seconds(config.IMDb.TimeoutSeconds),
		PageCache:       a.pageCache,
		Breaker:         config.IMDb.Breaker.options(),
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	source, err := landmark.NewClient(landmark.ClientOptions{
		BaseUrl: config.Landmark.BaseUrl,
		Timeout: seconds(config.Landmark.TimeoutSeconds),
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.films = films.NewRegistry(a.store, []critics.Critic{rt, imdb})
	a.listings = listings.NewService(a.store, source, a.films, listings.Options{
		Workers:        config.Listings.Workers,
		ExcludeUnrated: config.Listings.ExcludeUnrated,
	})
	return a, nil
}

func (a *app) Close(ctx context.Context) error {
	var errlist []error
	if a.pageCache != nil {
		errlist = append(errlist, a.pageCache.Close())
	}
	if a.store != nil {
		errlist = append(errlist, a.store.Close())
	}
	errlist = append(errlist, a.telemetry.Shutdown(ctx))
	return errors.Join(errlist...)
}
