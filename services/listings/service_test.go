package listings

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"landmash/lib/testutil"
	"landmash/services/critics"
	"landmash/services/films"
	"landmash/services/landmark"
	"landmash/services/store"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const market = "Boston"

var showDate = time.Date(2024, 3, 1, 19, 30, 0, 0, time.UTC)

type fakeFetcher struct {
	calls    atomic.Int32
	delay    time.Duration
	showings []landmark.RawShowing
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context, date time.Time, market string) ([]landmark.RawShowing, error) {
	f.calls.Add(1)
	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.showings, nil
}

// scores maps film ids to the normalized score a critic gives them,
// films missing from the map have no review.
type fakeCritic struct {
	id     string
	scores map[string]float64
	calls  atomic.Int32
}

func (c *fakeCritic) ID() string {
	return c.id
}

func (c *fakeCritic) GetReview(ctx context.Context, film store.Film) (store.Review, bool) {
	c.calls.Add(1)
	score, ok := c.scores[film.LmID]
	if !ok {
		return store.Review{}, false
	}
	return store.Review{Critic: c.id, Rating: score, URL: "http://" + c.id + "/" + film.LmID, Normalized: score}, true
}

func raw(title, id, location, at string) landmark.RawShowing {
	return landmark.RawShowing{
		Title:        title,
		Href:         "http://www.landmarktheatres.com/Films?id=" + id,
		LocationName: location,
		LocationHref: "http://www.landmarktheatres.com/Theatres/" + location,
		TimeString:   at,
	}
}

type harness struct {
	store   store.Store
	fetcher *fakeFetcher
	rt      *fakeCritic
	imdb    *fakeCritic
	service Service
}

func newHarness(t *testing.T, fetcher *fakeFetcher, rtScores, imdbScores map[string]float64, opts Options) harness {
	s := testutil.Store(t, market)

	rt := &fakeCritic{id: critics.RottenTomatoesID, scores: rtScores}
	imdb := &fakeCritic{id: critics.IMDbID, scores: imdbScores}
	registry := films.NewRegistry(s, []critics.Critic{rt, imdb})

	return harness{
		store:   s,
		fetcher: fetcher,
		rt:      rt,
		imdb:    imdb,
		service: NewService(s, fetcher, registry, opts),
	}
}

func titles(listing store.Listing) []string {
	out := make([]string, len(listing.Showings))
	for i, showing := range listing.Showings {
		out[i] = showing.Film.Title
	}
	return out
}

func TestRank(t *testing.T) {
	testCases := []struct {
		name     string
		film     *store.Film
		expected float64
	}{
		{
			name:     "mean of normalized scores",
			film:     &store.Film{Reviews: []store.Review{{Normalized: 80}, {Normalized: 60}}},
			expected: 70,
		},
		{
			name:     "single review",
			film:     &store.Film{Reviews: []store.Review{{Normalized: 49}}},
			expected: 49,
		},
		{
			name:     "no reviews",
			film:     &store.Film{},
			expected: math.Inf(-1),
		},
		{
			name:     "no film",
			expected: math.Inf(-1),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, Rank(store.Showing{Film: tc.film}))
		})
	}
}

func TestSortShowingsIsStable(t *testing.T) {
	rated := func(title string, scores ...float64) store.Showing {
		film := &store.Film{Title: title}
		for _, s := range scores {
			film.Reviews = append(film.Reviews, store.Review{Normalized: s})
		}
		return store.Showing{Film: film}
	}
	showings := []store.Showing{
		rated("unrated a"),
		rated("tie a", 60),
		rated("top", 90, 70),
		rated("tie b", 50, 70),
		rated("unrated b"),
	}
	SortShowings(showings)
	require.Equal(t, []string{"top", "tie a", "tie b", "unrated a", "unrated b"}, titles(store.Listing{Showings: showings}))
}

func TestGetListingEndToEnd(t *testing.T) {
	fetcher := &fakeFetcher{showings: []landmark.RawShowing{
		raw("Beta", "2", "Kendall", "7:00 PM"),
		raw("Alpha", "1", "Kendall", "9:00 PM"),
	}}
	h := newHarness(t, fetcher,
		map[string]float64{"1": 90},
		map[string]float64{"2": 50},
		Options{},
	)

	listing, err := h.service.GetListing(context.Background(), showDate, market)
	require.NoError(t, err)

	require.Equal(t, store.Day(showDate), listing.Date)
	require.Equal(t, market, listing.Market)
	require.Equal(t, []string{"Alpha", "Beta"}, titles(listing))
	require.Equal(t, 90.0, Rank(listing.Showings[0]))
	require.Equal(t, 50.0, Rank(listing.Showings[1]))
	require.Equal(t, "9:00 PM", listing.Showings[0].TimeString)
	require.Equal(t, "http://www.landmarktheatres.com/Assets/Images/Films/1.jpg", listing.Showings[0].Film.Img)
}

func TestGetListingIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{showings: []landmark.RawShowing{
		raw("Alpha", "1", "Kendall", "7:00 PM"),
		raw("Beta", "2", "Kendall", "9:00 PM"),
		raw("Alpha", "1", "Embassy", "8:15 PM"),
	}}
	h := newHarness(t, fetcher,
		map[string]float64{"1": 80, "2": 40},
		map[string]float64{"1": 60},
		Options{},
	)
	ctx := context.Background()

	first, err := h.service.GetListing(ctx, showDate, market)
	require.NoError(t, err)
	second, err := h.service.GetListing(ctx, showDate.Add(time.Hour), market)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatal(diff)
	}
	require.EqualValues(t, 1, fetcher.calls.Load())

	// each distinct film is reviewed once by each critic
	require.EqualValues(t, 2, h.rt.calls.Load())
	require.EqualValues(t, 2, h.imdb.calls.Load())

	require.Equal(t, []string{"Alpha", "Alpha", "Beta"}, titles(first))
	require.Equal(t, "Kendall", first.Showings[0].LocationName)
	require.Equal(t, "Embassy", first.Showings[1].LocationName)
	require.Same(t, first.Showings[0].Film, first.Showings[1].Film)
	require.Equal(t, 70.0, Rank(first.Showings[0]))

	stored, err := h.service.Listing(ctx, showDate, market)
	require.NoError(t, err)
	if diff := cmp.Diff(first, stored); diff != "" {
		t.Fatal(diff)
	}
}

func TestGetListingUnratedFilms(t *testing.T) {
	showings := []landmark.RawShowing{
		raw("Gamma", "3", "Kendall", "6:00 PM"),
		raw("Alpha", "1", "Kendall", "7:00 PM"),
	}

	h := newHarness(t, &fakeFetcher{showings: showings}, map[string]float64{"1": 90}, nil, Options{})
	listing, err := h.service.GetListing(context.Background(), showDate, market)
	require.NoError(t, err)
	require.Equal(t, []string{"Alpha", "Gamma"}, titles(listing))
	require.Empty(t, listing.Showings[1].Film.Reviews)

	h = newHarness(t, &fakeFetcher{showings: showings}, map[string]float64{"1": 90}, nil, Options{ExcludeUnrated: true})
	listing, err = h.service.GetListing(context.Background(), showDate, market)
	require.NoError(t, err)
	require.Equal(t, []string{"Alpha"}, titles(listing))
}

func TestGetListingEmptyUpstream(t *testing.T) {
	h := newHarness(t, &fakeFetcher{}, nil, nil, Options{})

	listing, err := h.service.GetListing(context.Background(), showDate, market)
	require.NoError(t, err)
	require.Empty(t, listing.Showings)

	_, err = h.service.GetListing(context.Background(), showDate, market)
	require.NoError(t, err)
	require.EqualValues(t, 1, h.fetcher.calls.Load())
}

func TestGetListingFetchFailure(t *testing.T) {
	upstreamErr := &landmark.UpstreamUnavailableError{Status: 503}
	h := newHarness(t, &fakeFetcher{err: upstreamErr}, nil, nil, Options{})
	ctx := context.Background()

	_, err := h.service.GetListing(ctx, showDate, market)
	var target *landmark.UpstreamUnavailableError
	require.True(t, errors.As(err, &target))
	require.Equal(t, 503, target.Status)

	_, err = h.service.Listing(ctx, showDate, market)
	require.ErrorIs(t, err, store.ErrNotFound)

	// nothing was cached, the next request fetches again
	_, err = h.service.GetListing(ctx, showDate, market)
	require.Error(t, err)
	require.EqualValues(t, 2, h.fetcher.calls.Load())
}

type failingResolver struct{}

func (failingResolver) Resolve(ctx context.Context, seed store.Film) (store.Film, error) {
	if seed.LmID == "2" {
		return store.Film{}, errors.New("store is read only")
	}
	return seed, nil
}

func TestGetListingResolveFailure(t *testing.T) {
	s := testutil.Store(t, market)
	ctx := context.Background()

	fetcher := &fakeFetcher{showings: []landmark.RawShowing{
		raw("Alpha", "1", "Kendall", "7:00 PM"),
		raw("Beta", "2", "Kendall", "9:00 PM"),
	}}
	service := NewService(s, fetcher, failingResolver{}, Options{Workers: 1})

	_, err := service.GetListing(ctx, showDate, market)
	require.ErrorContains(t, err, "store is read only")

	_, found, err := s.GetListing(ctx, showDate, market)
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetListingUnknownMarket(t *testing.T) {
	fetcher := &fakeFetcher{}
	h := newHarness(t, fetcher, nil, nil, Options{})

	_, err := h.service.GetListing(context.Background(), showDate, "Atlantis")
	require.ErrorIs(t, err, ErrMarketNotFound)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.Zero(t, fetcher.calls.Load())
}

func TestGetListingConcurrent(t *testing.T) {
	fetcher := &fakeFetcher{
		delay: 50 * time.Millisecond,
		showings: []landmark.RawShowing{
			raw("Alpha", "1", "Kendall", "7:00 PM"),
			raw("Beta", "2", "Kendall", "9:00 PM"),
		},
	}
	h := newHarness(t, fetcher, map[string]float64{"1": 90, "2": 10}, nil, Options{})

	const requests = 8
	listings := make([]store.Listing, requests)
	errs := make([]error, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			listings[i], errs[i] = h.service.GetListing(context.Background(), showDate, market)
		}()
	}
	wg.Wait()

	for i := 0; i < requests; i++ {
		require.NoError(t, errs[i])
		if diff := cmp.Diff(listings[0], listings[i]); diff != "" {
			t.Fatal(diff)
		}
	}
	require.EqualValues(t, 1, fetcher.calls.Load())
	require.EqualValues(t, 2, h.rt.calls.Load())
}

func TestGetListingOutlivesCanceledCaller(t *testing.T) {
	fetcher := &fakeFetcher{
		delay: 200 * time.Millisecond,
		showings: []landmark.RawShowing{
			raw("Alpha", "1", "Kendall", "7:00 PM"),
		},
	}
	h := newHarness(t, fetcher, map[string]float64{"1": 90}, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := h.service.GetListing(ctx, showDate, market)
		first <- err
	}()

	// the first caller has started the build, the second joins it
	time.Sleep(50 * time.Millisecond)
	second := make(chan error, 1)
	var listing store.Listing
	go func() {
		var err error
		listing, err = h.service.GetListing(context.Background(), showDate, market)
		second <- err
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	require.NoError(t, <-second)
	require.Equal(t, []string{"Alpha"}, titles(listing))
	require.NoError(t, <-first)
	require.EqualValues(t, 1, fetcher.calls.Load())

	stored, err := h.service.Listing(context.Background(), showDate, market)
	require.NoError(t, err)
	require.Len(t, stored.Showings, 1)
}
