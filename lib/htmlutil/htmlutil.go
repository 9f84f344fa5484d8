package htmlutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/PuerkitoBio/purell"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("landmash/lib/htmlutil")

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, buffer)
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

// CleanText strips non-printable characters and collapses whitespace.
func CleanText(s string) string {
	var b strings.Builder
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			b.WriteRune(c)
		}
	}
	out := strings.TrimSpace(b.String())
	return innerWhitespace.ReplaceAllString(out, " ")
}

// SelectionText is the cleaned text of every node in sel.
func SelectionText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		b.WriteString(GetText(n))
	}
	return CleanText(b.String())
}

type Anchor struct {
	Name string
	Href string
}

// GetAnchors returns the text and href of every anchor in sel, anchors
// whose href cannot be parsed are skipped.
func GetAnchors(ctx context.Context, sel *goquery.Selection) []Anchor {
	_, span := tracer.Start(ctx, "GetAnchors")
	defer span.End()

	anchors := []Anchor{}
	for _, n := range sel.Nodes {
		href := ""
		for _, a := range n.Attr {
			if a.Key == "href" {
				href = strings.TrimSpace(a.Val)
				break
			}
		}

		link, err := url.Parse(href)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "got error while parsing url")
			continue
		}

		name := CleanText(GetText(n))
		anchors = append(anchors, Anchor{
			Name: name,
			Href: link.String(),
		})
		span.AddEvent("anchor", trace.WithAttributes(
			attribute.String("name", name),
			attribute.String("url", link.String()),
		))
	}

	return anchors
}

// FirstAnchor returns the first anchor in sel with non-empty text.
func FirstAnchor(ctx context.Context, sel *goquery.Selection) (Anchor, bool) {
	for _, a := range GetAnchors(ctx, sel) {
		if a.Name != "" {
			return a, true
		}
	}
	return Anchor{}, false
}

// keyFlags may map distinct resources onto the same string, they are only
// used for cache keys.
const keyFlags = purell.FlagsSafe |
	purell.FlagsUsuallySafeNonGreedy |
	purell.FlagRemoveDirectoryIndex |
	purell.FlagRemoveFragment |
	purell.FlagSortQuery

// resolveFlags never change the path or query of a url.
const resolveFlags = purell.FlagsSafe | purell.FlagRemoveFragment

// Canonicalize normalizes an absolute url so that equivalent urls compare
// equal. The result is a lookup key, not a fetchable url.
func Canonicalize(u *url.URL) string {
	return purell.NormalizeURL(u, keyFlags)
}

// ResolveURL resolves href against base. Scheme and host are lowercased and
// the fragment is dropped, the path and query are kept as written.
func ResolveURL(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return purell.NormalizeURL(base.ResolveReference(ref), resolveFlags), nil
}

// ErrFragment marks a single malformed fragment of an otherwise usable
// document. Extractors passed to ExtractFragments return it (wrapped) to
// have the fragment dropped.
var ErrFragment = errors.New("malformed fragment")

// ErrRecoveryExhausted is returned when more than the allowed number of
// fragments had to be dropped.
var ErrRecoveryExhausted = errors.New("fragment recovery exhausted")

// ExtractFragments runs extract over every element of doc matching
// selector. When extract fails with ErrFragment the offending element is
// removed from the document and extraction restarts, at most maxDrops
// times. Any other error is returned as is.
func ExtractFragments[T any](
	ctx context.Context,
	doc *goquery.Selection,
	selector string,
	maxDrops int,
	extract func(*goquery.Selection) (T, error),
) ([]T, error) {
	_, span := tracer.Start(ctx, "ExtractFragments")
	defer span.End()
	span.SetAttributes(attribute.String("selector", selector))

	for attempt := 0; attempt <= maxDrops; attempt++ {
		var out []T
		var bad *goquery.Selection
		var badErr error

		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			value, err := extract(sel)
			if err != nil {
				bad, badErr = sel, err
				return false
			}
			out = append(out, value)
			return true
		})

		if bad == nil {
			return out, nil
		}
		if !errors.Is(badErr, ErrFragment) {
			span.RecordError(badErr)
			span.SetStatus(codes.Error, badErr.Error())
			return nil, badErr
		}
		if attempt == maxDrops {
			break
		}

		span.AddEvent("dropped fragment", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("err", badErr.Error()),
		))
		bad.Remove()
	}

	err := fmt.Errorf("%w: dropped %d fragments matching %q", ErrRecoveryExhausted, maxDrops, selector)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}
