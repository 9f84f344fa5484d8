package landmark

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"landmash/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("landmash/services/landmark")

const (
	DefaultBaseUrl = "http://www.landmarktheatres.com"
	showtimesPath  = "/Market/MarketShowtimes.asp"
	// the upstream form expects dates as M/D/YYYY
	showDateLayout = "1/2/2006"
)

// UpstreamUnavailableError is returned when the listing source responds
// with a non-success status, cannot be reached, or returns a page that no
// longer has the expected shape. Status is 0 when no response was received.
type UpstreamUnavailableError struct {
	Status int
	Err    error
}

func (e *UpstreamUnavailableError) Error() string {
	msg := "landmark: upstream unavailable"
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamUnavailableError) Unwrap() error {
	return e.Err
}

// RawShowing is one showing as it appears on the market showtimes page.
// Hrefs are absolute.
type RawShowing struct {
	Title        string
	Href         string
	LocationName string
	LocationHref string
	TimeString   string
	// CSetting is empty when the showing has no special presentation.
	CSetting string
}

// Fetcher returns the raw showings of a market on a date.
type Fetcher interface {
	Fetch(ctx context.Context, date time.Time, market string) ([]RawShowing, error)
}

type ClientOptions struct {
	BaseUrl string
	Timeout time.Duration
}

type Client struct {
	baseUrl *url.URL
	http    *resty.Client
}

func NewClient(opts ClientOptions) (*Client, error) {
	if opts.BaseUrl == "" {
		opts.BaseUrl = DefaultBaseUrl
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second * 30
	}
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	httpClient.SetBaseURL(opts.BaseUrl)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	httpClient.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(httpClient, "landmark")

	return &Client{
		baseUrl: baseUrl,
		http:    httpClient,
	}, nil
}

// Fetch issues a single request for the showtimes of market on date.
func (c *Client) Fetch(ctx context.Context, date time.Time, market string) ([]RawShowing, error) {
	ctx, span := tracer.Start(ctx, "Fetch")
	defer span.End()

	showDate := date.Format(showDateLayout)
	span.SetAttributes(
		attribute.String("market", market),
		attribute.String("ddtshow", showDate),
	)

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("market", market).
		SetFormData(map[string]string{
			"ddtshow": showDate,
		}).
		Post(showtimesPath)
	if err != nil {
		err = &UpstreamUnavailableError{Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if res.IsError() || res.StatusCode() < 200 || res.StatusCode() > 299 {
		err = &UpstreamUnavailableError{Status: res.StatusCode()}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	showings, err := ParseShowtimes(ctx, c.baseUrl, bytes.NewBuffer(res.Body()))
	if err != nil {
		err = &UpstreamUnavailableError{Status: res.StatusCode(), Err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("showings", len(showings)))

	return showings, nil
}
