package critics

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"landmash/lib/htmlutil"
	"landmash/lib/ratelimit"
	"landmash/lib/telemetry"
	"landmash/lib/webcache"
	"landmash/services/store"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultIMDbUrl = "http://www.imdb.com"

const (
	searchResultSelector = "td.result_text"
	ratingSelector       = "div.titlePageSprite, span[itemprop=ratingValue]"
)

type IMDbOptions struct {
	BaseUrl      string
	MaxPerSecond float64
	// MaxParseRetries bounds how many malformed fragments are dropped from
	// a single page, defaults to 5.
	MaxParseRetries int
	Timeout         time.Duration
	// PageCache, when set, stores title pages between runs.
	PageCache *webcache.Cache
	Breaker   BreakerOptions
}

// IMDb rates films by scraping the IMDb title search and title pages.
type IMDb struct {
	http            *resty.Client
	baseUrl         *url.URL
	maxParseRetries int
	cache           *webcache.Cache
	breaker         *gobreaker.CircuitBreaker[*store.Review]
}

func NewIMDb(opts IMDbOptions) (*IMDb, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultIMDbUrl
	}
	if opts.MaxPerSecond == 0 {
		opts.MaxPerSecond = 5
	}
	if opts.MaxParseRetries <= 0 {
		opts.MaxParseRetries = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.New(opts.MaxPerSecond)
	if err != nil {
		return nil, fmt.Errorf("imdb: %w", err)
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetHeader("accept-language", "en-US,en;q=0.9")
	httpClient.SetTimeout(opts.Timeout)
	httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Acquire(req.Context())
	})
	telemetry.InstrumentResty(httpClient, IMDbID)

	return &IMDb{
		http:            httpClient,
		baseUrl:         baseUrl,
		maxParseRetries: opts.MaxParseRetries,
		cache:           opts.PageCache,
		breaker:         newBreaker(IMDbID, opts.Breaker),
	}, nil
}

func (c *IMDb) ID() string {
	return IMDbID
}

func (c *IMDb) getPage(ctx context.Context, path string, query map[string]string) (*goquery.Document, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("get %s: status %s", path, res.Status())
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

func extractTitleHref(sel *goquery.Selection) (string, error) {
	href, ok := sel.Find("a[href]").First().Attr("href")
	if !ok || !strings.Contains(href, "/title/") {
		return "", fmt.Errorf("%w: search result without a title link", htmlutil.ErrFragment)
	}
	// drop tracking parameters
	href, _, _ = strings.Cut(href, "?")
	return href, nil
}

// search returns the title page paths of the search results for title.
func (c *IMDb) search(ctx context.Context, title string, exact bool) ([]string, error) {
	ctx, span := tracer.Start(ctx, "IMDb.search")
	defer span.End()
	span.SetAttributes(attribute.Bool("exact", exact))

	doc, err := c.getPage(ctx, "/find", map[string]string{
		"q":     title,
		"s":     "tt",
		"ttype": "ft",
		"exact": strconv.FormatBool(exact),
	})
	if err != nil {
		return nil, err
	}

	results, err := htmlutil.ExtractFragments(ctx, doc.Selection, searchResultSelector, c.maxParseRetries, extractTitleHref)
	if errors.Is(err, htmlutil.ErrRecoveryExhausted) {
		slog.DebugContext(ctx, "treating search page as empty", "err", &ParseRecoverableError{Url: "/find?q=" + title, Err: err})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return results, nil
}

func extractRating(sel *goquery.Selection) (float64, error) {
	text := htmlutil.SelectionText(sel)
	rating, err := strconv.ParseFloat(text, 64)
	if err != nil || rating < 0 || rating > 10 {
		return 0, fmt.Errorf("%w: rating %q", htmlutil.ErrFragment, text)
	}
	return rating, nil
}

func (c *IMDb) titleDocument(ctx context.Context, pageUrl, path string) (*goquery.Document, error) {
	if c.cache != nil {
		contents, found, err := c.cache.Get(ctx, pageUrl)
		if err != nil {
			slog.WarnContext(ctx, "failed to read page cache", "url", pageUrl, "err", err)
		}
		if found {
			return goquery.NewDocumentFromReader(bytes.NewReader(contents))
		}
	}

	res, err := c.http.R().SetContext(ctx).Get(path)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("get %s: status %s", path, res.Status())
	}
	if c.cache != nil {
		err = c.cache.Set(ctx, pageUrl, res.Body())
		if err != nil {
			slog.WarnContext(ctx, "failed to write page cache", "url", pageUrl, "err", err)
		}
	}
	return goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
}

// rating scrapes the rating off a title page.
func (c *IMDb) rating(ctx context.Context, path string) (*store.Review, error) {
	ctx, span := tracer.Start(ctx, "IMDb.rating")
	defer span.End()

	pageUrl, err := htmlutil.ResolveURL(c.baseUrl, path)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("url", pageUrl))

	doc, err := c.titleDocument(ctx, pageUrl, path)
	if err != nil {
		return nil, err
	}

	ratings, err := htmlutil.ExtractFragments(ctx, doc.Selection, ratingSelector, c.maxParseRetries, extractRating)
	if errors.Is(err, htmlutil.ErrRecoveryExhausted) {
		slog.DebugContext(ctx, "treating title page as unrated", "err", &ParseRecoverableError{Url: pageUrl, Err: err})
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(ratings) == 0 {
		return nil, nil
	}

	return &store.Review{
		Critic:     IMDbID,
		Rating:     ratings[0],
		URL:        pageUrl,
		Normalized: ratings[0] * 10,
	}, nil
}

func (c *IMDb) fetch(ctx context.Context, title string) (*store.Review, error) {
	var results []string
	// exact first, then fuzzy
	for _, exact := range []bool{true, false} {
		var err error
		results, err = c.search(ctx, title, exact)
		if err != nil {
			return nil, err
		}
		if len(results) > 0 {
			break
		}
	}
	if len(results) == 0 {
		return nil, nil
	}
	return c.rating(ctx, results[0])
}

func (c *IMDb) GetReview(ctx context.Context, film store.Film) (store.Review, bool) {
	ctx, span := tracer.Start(ctx, "IMDb.GetReview")
	defer span.End()

	return lookup(ctx, span, IMDbID, film, c.breaker, func() (*store.Review, error) {
		return c.fetch(ctx, film.Title)
	})
}
