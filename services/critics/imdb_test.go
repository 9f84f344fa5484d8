package critics

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"landmash/lib/htmlutil"
	"landmash/lib/webcache"
	"landmash/services/store"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func searchPage(hrefs ...string) string {
	rows := ""
	for i, href := range hrefs {
		rows += fmt.Sprintf(`<tr><td class="primary_photo"></td><td class="result_text"><a href="%s">Result %d</a> (2013)</td></tr>`, href, i)
	}
	return `<html><body><table class="findList">` + rows + `</table></body></html>`
}

func titlePage(ratings ...string) string {
	body := ""
	for _, r := range ratings {
		body += r
	}
	return `<html><body><div class="star-box">` + body + `</div></body></html>`
}

type imdbFake struct {
	mu     sync.Mutex
	exact  string
	fuzzy  string
	titles map[string]string
	status int
	hits   []string
}

func (f *imdbFake) server() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		if r.URL.Path == "/find" {
			q := r.URL.Query()
			if q.Get("s") != "tt" || q.Get("ttype") != "ft" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if q.Get("exact") == "true" {
				f.hits = append(f.hits, "exact:"+q.Get("q"))
				w.Write([]byte(f.exact))
				return
			}
			f.hits = append(f.hits, "fuzzy:"+q.Get("q"))
			w.Write([]byte(f.fuzzy))
			return
		}
		page, ok := f.titles[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.hits = append(f.hits, r.URL.Path)
		w.Write([]byte(page))
	}))
}

func (f *imdbFake) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.hits...)
}

func titleUrl(t *testing.T, server *httptest.Server, path string) string {
	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	resolved, err := htmlutil.ResolveURL(base, path)
	require.NoError(t, err)
	return resolved
}

func TestIMDbGetReview(t *testing.T) {
	const alphaPath = "/title/tt0000001/"

	testCases := []struct {
		name      string
		fake      *imdbFake
		retries   int
		rating    float64
		ok        bool
		requested []string
	}{
		{
			name: "exact match",
			fake: &imdbFake{
				exact:  searchPage(alphaPath + "?ref_=fn_ft_tt_1"),
				titles: map[string]string{alphaPath: titlePage(`<div class="titlePageSprite star-box-giga-star">7.5</div>`)},
			},
			rating:    7.5,
			ok:        true,
			requested: []string{"exact:Alpha", alphaPath},
		},
		{
			name: "falls back to fuzzy search",
			fake: &imdbFake{
				exact:  searchPage(),
				fuzzy:  searchPage(alphaPath, "/title/tt0000002/"),
				titles: map[string]string{alphaPath: titlePage(`<span itemprop="ratingValue">6.1</span>`)},
			},
			rating:    6.1,
			ok:        true,
			requested: []string{"exact:Alpha", "fuzzy:Alpha", alphaPath},
		},
		{
			name: "drops malformed search result",
			fake: &imdbFake{
				exact:  searchPage("/name/nm0000001/", alphaPath),
				titles: map[string]string{alphaPath: titlePage(`<div class="titlePageSprite">7.5</div>`)},
			},
			rating:    7.5,
			ok:        true,
			requested: []string{"exact:Alpha", alphaPath},
		},
		{
			name: "drops malformed rating",
			fake: &imdbFake{
				exact: searchPage(alphaPath),
				titles: map[string]string{alphaPath: titlePage(
					`<span itemprop="ratingValue">N/A</span>`,
					`<div class="titlePageSprite">7.5</div>`,
				)},
			},
			rating:    7.5,
			ok:        true,
			requested: []string{"exact:Alpha", alphaPath},
		},
		{
			name: "too many malformed ratings",
			fake: &imdbFake{
				exact: searchPage(alphaPath),
				titles: map[string]string{alphaPath: titlePage(
					`<span itemprop="ratingValue">N/A</span>`,
					`<span itemprop="ratingValue">11</span>`,
					`<div class="titlePageSprite">7.5</div>`,
				)},
			},
			retries:   1,
			ok:        false,
			requested: []string{"exact:Alpha", alphaPath},
		},
		{
			name: "unrated title",
			fake: &imdbFake{
				exact:  searchPage(alphaPath),
				titles: map[string]string{alphaPath: titlePage()},
			},
			ok:        false,
			requested: []string{"exact:Alpha", alphaPath},
		},
		{
			name: "no results",
			fake: &imdbFake{
				exact: searchPage(),
				fuzzy: searchPage(),
			},
			ok:        false,
			requested: []string{"exact:Alpha", "fuzzy:Alpha"},
		},
		{
			name:      "unavailable",
			fake:      &imdbFake{status: http.StatusBadGateway},
			ok:        false,
			requested: nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := tc.fake.server()
			defer server.Close()

			critic, err := NewIMDb(IMDbOptions{
				BaseUrl:         server.URL,
				MaxPerSecond:    100,
				MaxParseRetries: tc.retries,
			})
			require.NoError(t, err)
			require.Equal(t, IMDbID, critic.ID())

			review, ok := critic.GetReview(context.Background(), store.Film{LmID: "1", Title: "Alpha"})
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				expected := store.Review{
					Critic:     IMDbID,
					Rating:     tc.rating,
					URL:        titleUrl(t, server, alphaPath),
					Normalized: tc.rating * 10,
				}
				if diff := cmp.Diff(expected, review); diff != "" {
					t.Fatal(diff)
				}
			}
			if diff := cmp.Diff(tc.requested, tc.fake.requests()); diff != "" {
				t.Fatal(diff)
			}
		})
	}
}

func TestIMDbPageCache(t *testing.T) {
	const alphaPath = "/title/tt0000001/"
	fake := &imdbFake{
		exact:  searchPage(alphaPath),
		titles: map[string]string{alphaPath: titlePage(`<div class="titlePageSprite">8.0</div>`)},
	}
	server := fake.server()
	defer server.Close()

	cache, err := webcache.Open(webcache.Options{})
	require.NoError(t, err)
	defer cache.Close()

	critic, err := NewIMDb(IMDbOptions{
		BaseUrl:      server.URL,
		MaxPerSecond: 100,
		PageCache:    cache,
	})
	require.NoError(t, err)

	film := store.Film{LmID: "1", Title: "Alpha"}
	first, ok := critic.GetReview(context.Background(), film)
	require.True(t, ok)
	second, ok := critic.GetReview(context.Background(), film)
	require.True(t, ok)
	require.Equal(t, first, second)
	require.Equal(t, 80.0, second.Normalized)

	// the title page is fetched once, searches are not cached
	require.Equal(t, []string{"exact:Alpha", alphaPath, "exact:Alpha"}, fake.requests())
}
