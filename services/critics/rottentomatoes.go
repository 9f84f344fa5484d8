package critics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"landmash/lib/ratelimit"
	"landmash/lib/telemetry"
	"landmash/services/store"

	"github.com/antzucaro/matchr"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
)

const (
	DefaultRottenTomatoesUrl = "http://api.rottentomatoes.com/api/public/v1.0/movies.json"
	// the api reports a negative critics score when a film has no score
	DefaultNoScoreFloor = 49
)

type RottenTomatoesOptions struct {
	BaseUrl      string
	ApiKey       string
	MaxPerSecond float64
	// NoScoreFloor replaces negative scores, defaults to DefaultNoScoreFloor.
	NoScoreFloor *float64
	Timeout      time.Duration
	Breaker      BreakerOptions
}

// RottenTomatoes rates films through the Rotten Tomatoes movie search api.
type RottenTomatoes struct {
	http    *resty.Client
	baseUrl string
	apiKey  string
	floor   float64
	breaker *gobreaker.CircuitBreaker[*store.Review]
}

func NewRottenTomatoes(opts RottenTomatoesOptions) (*RottenTomatoes, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultRottenTomatoesUrl
	}
	if opts.MaxPerSecond == 0 {
		opts.MaxPerSecond = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	floor := float64(DefaultNoScoreFloor)
	if opts.NoScoreFloor != nil {
		floor = *opts.NoScoreFloor
	}

	limiter, err := ratelimit.New(opts.MaxPerSecond)
	if err != nil {
		return nil, fmt.Errorf("rotten tomatoes: %w", err)
	}

	httpClient := resty.New()
	httpClient.SetTimeout(opts.Timeout)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Acquire(req.Context())
	})
	telemetry.InstrumentResty(httpClient, RottenTomatoesID)

	return &RottenTomatoes{
		http:    httpClient,
		baseUrl: opts.BaseUrl,
		apiKey:  opts.ApiKey,
		floor:   floor,
		breaker: newBreaker(RottenTomatoesID, opts.Breaker),
	}, nil
}

func (c *RottenTomatoes) ID() string {
	return RottenTomatoesID
}

// rtYear accepts the api's year as a number, a numeric string, an empty
// string or null. Anything that is not a number is 0.
type rtYear int

func (y *rtYear) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	if raw == "" || raw == "null" {
		*y = 0
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*y = 0
		return nil
	}
	*y = rtYear(n)
	return nil
}

type rtMovie struct {
	Title   string `json:"title"`
	Year    rtYear `json:"year"`
	Ratings struct {
		CriticsScore float64 `json:"critics_score"`
	} `json:"ratings"`
	Links struct {
		Alternate string `json:"alternate"`
	} `json:"links"`
}

type rtSearchResponse struct {
	Movies []rtMovie `json:"movies"`
}

// pickMovie returns the most recent candidate. Candidates from the same
// year are ordered by how closely their title matches, then by the order
// the api returned them in.
func pickMovie(title string, movies []rtMovie) (rtMovie, bool) {
	if len(movies) == 0 {
		return rtMovie{}, false
	}
	sorted := slices.Clone(movies)
	needle := strings.ToLower(title)
	slices.SortStableFunc(sorted, func(a, b rtMovie) int {
		if a.Year != b.Year {
			return int(b.Year) - int(a.Year)
		}
		simA := matchr.JaroWinkler(needle, strings.ToLower(a.Title), false)
		simB := matchr.JaroWinkler(needle, strings.ToLower(b.Title), false)
		switch {
		case simA > simB:
			return -1
		case simA < simB:
			return 1
		}
		return 0
	})
	return sorted[0], true
}

func (c *RottenTomatoes) fetch(ctx context.Context, title string) (*store.Review, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("q", title).
		SetQueryParam("apikey", c.apiKey).
		Get(c.baseUrl)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("search %q: status %s", title, res.Status())
	}

	var parsed rtSearchResponse
	err = json.Unmarshal(res.Body(), &parsed)
	if err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	movie, ok := pickMovie(title, parsed.Movies)
	if !ok {
		return nil, nil
	}

	score := movie.Ratings.CriticsScore
	if score < 0 {
		score = c.floor
	}
	return &store.Review{
		Critic:     RottenTomatoesID,
		Rating:     score,
		URL:        movie.Links.Alternate,
		Normalized: score,
	}, nil
}

func (c *RottenTomatoes) GetReview(ctx context.Context, film store.Film) (store.Review, bool) {
	ctx, span := tracer.Start(ctx, "RottenTomatoes.GetReview")
	defer span.End()

	return lookup(ctx, span, RottenTomatoesID, film, c.breaker, func() (*store.Review, error) {
		return c.fetch(ctx, film.Title)
	})
}
