package landmark

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"

	"landmash/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ErrUnexpectedShape means the showtimes page no longer has the sections
// the parser relies on.
var ErrUnexpectedShape = errors.New("showtimes page has no location sections")

// ParseShowtimes extracts showings from a market showtimes page.
//
// Each location is a ul#navMainST whose first li links to the theatre,
// every other li without an id is a film showing at that location.
func ParseShowtimes(ctx context.Context, baseUrl *url.URL, r io.Reader) ([]RawShowing, error) {
	ctx, span := tracer.Start(ctx, "ParseShowtimes")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	locations := doc.Find("ul#navMainST")
	if locations.Length() == 0 {
		return nil, ErrUnexpectedShape
	}

	showings := []RawShowing{}
	locations.Each(func(_ int, location *goquery.Selection) {
		header, ok := htmlutil.FirstAnchor(ctx, location.Find("li").First().Find("a"))
		if !ok {
			slog.WarnContext(ctx, "skipping location without a theatre link")
			return
		}
		locationHref, err := htmlutil.ResolveURL(baseUrl, header.Href)
		if err != nil {
			slog.WarnContext(ctx, "skipping location with invalid link", "href", header.Href, "err", err)
			return
		}

		location.Find("li:not([id])").Each(func(_ int, item *goquery.Selection) {
			film, ok := htmlutil.FirstAnchor(ctx, item.Find("a"))
			if !ok {
				slog.WarnContext(ctx, "skipping entry without a film link", "location", header.Name)
				return
			}
			timeString := htmlutil.SelectionText(item.Find("span.shwTime").First())
			if timeString == "" {
				slog.WarnContext(ctx, "skipping film without a showtime", "title", film.Name, "location", header.Name)
				return
			}
			filmHref, err := htmlutil.ResolveURL(baseUrl, film.Href)
			if err != nil {
				slog.WarnContext(ctx, "skipping film with invalid link", "title", film.Name, "href", film.Href, "err", err)
				return
			}

			showings = append(showings, RawShowing{
				Title:        film.Name,
				Href:         filmHref,
				LocationName: header.Name,
				LocationHref: locationHref,
				TimeString:   timeString,
				CSetting:     htmlutil.SelectionText(item.Find("span.cSetting").First()),
			})
		})
	})

	return showings, nil
}
