package films

import (
	"net/url"
	"strings"

	"landmash/services/store"
)

const posterPath = "/Assets/Images/Films/"

// TitleID is the identity of a film whose link carries no id.
func TitleID(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// FilmID derives a film's identity from its link: the id query parameter,
// else whatever follows the last '=', else the film's title.
func FilmID(href *url.URL, title string) string {
	id := strings.TrimSpace(href.Query().Get("id"))
	if id != "" {
		return id
	}
	raw := href.String()
	i := strings.LastIndex(raw, "=")
	if i >= 0 && i < len(raw)-1 {
		return raw[i+1:]
	}
	return TitleID(title)
}

// Seed is the unreviewed film behind a showing's film link. The poster is
// served from the same host as the link.
func Seed(title, href string) (store.Film, error) {
	u, err := url.Parse(href)
	if err != nil {
		return store.Film{}, err
	}
	id := FilmID(u, title)
	poster := url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   posterPath + id + ".jpg",
	}
	return store.Film{
		LmID:  id,
		Title: strings.TrimSpace(title),
		Href:  href,
		Img:   poster.String(),
	}, nil
}
