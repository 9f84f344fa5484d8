package htmlutil

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func mustDoc(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func TestCleanText(t *testing.T) {
	testCases := []struct {
		in  string
		out string
	}{
		{in: "  The   Film\n\t", out: "The Film"},
		{in: "Alpha\u0000", out: "Alpha"},
		{in: "", out: ""},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.out, CleanText(tc.in), "input %q", tc.in)
	}
}

func TestGetAnchors(t *testing.T) {
	doc := mustDoc(t, `<ul>
		<li><a href="/Theatres/Theatre.asp?id=7">  Kendall
			Square </a></li>
		<li><a href="">   </a></li>
		<li><a href="/Films?id=2">Beta</a></li>
	</ul>`)

	anchors := GetAnchors(context.Background(), doc.Find("a"))
	expected := []Anchor{
		{Name: "Kendall Square", Href: "/Theatres/Theatre.asp?id=7"},
		{Name: "", Href: ""},
		{Name: "Beta", Href: "/Films?id=2"},
	}
	if diff := cmp.Diff(expected, anchors); diff != "" {
		t.Fatal(diff)
	}

	first, ok := FirstAnchor(context.Background(), doc.Find("li").Eq(1).Find("a"))
	require.False(t, ok)
	require.Equal(t, Anchor{}, first)
}

func TestResolveURL(t *testing.T) {
	base, err := url.Parse("http://www.landmarktheatres.com")
	require.NoError(t, err)

	testCases := []struct {
		href     string
		expected string
	}{
		{href: "/Films?id=1", expected: "http://www.landmarktheatres.com/Films?id=1"},
		{href: "/Theatres/Theatre.asp?id=9", expected: "http://www.landmarktheatres.com/Theatres/Theatre.asp?id=9"},
		{href: " Films?b=2&a=1 ", expected: "http://www.landmarktheatres.com/Films?b=2&a=1"},
		{href: "/Films/", expected: "http://www.landmarktheatres.com/Films/"},
		{href: "/Films/index.html", expected: "http://www.landmarktheatres.com/Films/index.html"},
		{href: "http://WWW.Example.com/x#frag", expected: "http://www.example.com/x"},
	}
	for _, tc := range testCases {
		resolved, err := ResolveURL(base, tc.href)
		require.NoError(t, err)
		require.Equal(t, tc.expected, resolved, tc.href)
	}
}

func TestCanonicalize(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
	}{
		{raw: "http://WWW.Example.com:80/x?b=2&a=1#frag", expected: "http://www.example.com/x/?a=1&b=2"},
		{raw: "http://www.example.com/x/index.html", expected: "http://www.example.com/x/"},
	}
	for _, tc := range testCases {
		u, err := url.Parse(tc.raw)
		require.NoError(t, err)
		require.Equal(t, tc.expected, Canonicalize(u), tc.raw)
	}
}

func parseScore(sel *goquery.Selection) (int, error) {
	text := SelectionText(sel)
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrFragment, text)
	}
	return n, nil
}

func TestExtractFragments(t *testing.T) {
	testCases := []struct {
		name     string
		markup   string
		maxDrops int
		expected []int
		err      error
	}{
		{
			name:     "all valid",
			markup:   `<p class="s">1</p><p class="s">2</p>`,
			maxDrops: 2,
			expected: []int{1, 2},
		},
		{
			name:     "malformed fragment before valid one",
			markup:   `<p class="s">oops</p><p class="s">7</p>`,
			maxDrops: 2,
			expected: []int{7},
		},
		{
			name:     "too many malformed fragments",
			markup:   `<p class="s">a</p><p class="s">b</p><p class="s">c</p>`,
			maxDrops: 2,
			err:      ErrRecoveryExhausted,
		},
		{
			name:     "no fragments",
			markup:   `<div></div>`,
			maxDrops: 1,
			expected: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			doc := mustDoc(t, tc.markup)
			out, err := ExtractFragments(context.Background(), doc.Selection, "p.s", tc.maxDrops, parseScore)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tc.expected, out); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestExtractFragmentsOtherError(t *testing.T) {
	doc := mustDoc(t, `<p class="s">1</p>`)
	boom := fmt.Errorf("boom")
	_, err := ExtractFragments(context.Background(), doc.Selection, "p.s", 3, func(*goquery.Selection) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
}
