package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by lookups that are exposed to callers, such
	// as film detail views.
	ErrNotFound = errors.New("not found")
	// ErrListingExists is returned by SaveListing when a listing for the
	// same date and market was saved first.
	ErrListingExists = errors.New("listing already exists")
)

// DateLayout is the layout of a listing's date in its cache key.
const DateLayout = "2006-01-02"

// Day truncates t to its calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

type Market struct {
	Name string `json:"name"`
}

// Review is a single critic's rating of a film. Normalized is on a 0-100
// scale shared by all critics, Rating is on the critic's own scale.
type Review struct {
	Critic     string  `json:"critic"`
	Rating     float64 `json:"rating"`
	URL        string  `json:"url"`
	Normalized float64 `json:"normalized"`
}

type Film struct {
	LmID    string   `json:"lm_id"`
	Title   string   `json:"title"`
	Href    string   `json:"href"`
	Img     string   `json:"img"`
	Reviews []Review `json:"reviews"`
}

// Showing is one screening of a film. Showings of the same film in a
// listing point at the same Film.
type Showing struct {
	LocationName string `json:"location_name"`
	LocationHref string `json:"location_href"`
	TimeString   string `json:"time_string"`
	// CSetting is empty when the showing has no special presentation.
	CSetting string `json:"c_setting,omitempty"`
	Film     *Film  `json:"film"`
}

type Listing struct {
	Date      time.Time `json:"date"`
	Market    string    `json:"market"`
	Showings  []Showing `json:"showings"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists markets, films and listings. Lookups return found=false
// rather than an error on a miss.
type Store interface {
	GetMarket(ctx context.Context, name string) (Market, bool, error)
	ListMarkets(ctx context.Context) ([]Market, error)
	UpsertMarket(ctx context.Context, market Market) error

	GetFilm(ctx context.Context, lmID string) (Film, bool, error)
	GetFilmByTitle(ctx context.Context, title string) (Film, bool, error)
	// CreateFilm inserts film without its reviews, created is false when a
	// film with the same id already exists.
	CreateFilm(ctx context.Context, film Film) (created bool, err error)
	// AppendReview adds review to a film's review set, a second review from
	// the same critic is ignored.
	AppendReview(ctx context.Context, lmID string, review Review) error

	GetListing(ctx context.Context, date time.Time, market string) (Listing, bool, error)
	// SaveListing persists listing and its showings atomically, every
	// showing's film must already exist.
	SaveListing(ctx context.Context, listing Listing) error

	Close() error
}
