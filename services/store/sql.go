package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"landmash/lib/sqliteutil"
	"landmash/services/store/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("landmash/services/store")

type SQLStore struct {
	db  *sql.DB
	qry *db.Queries
	now func() time.Time
}

func NewSQLStore(database *sql.DB) *SQLStore {
	return &SQLStore{
		db:  database,
		qry: db.New(database),
		now: time.Now,
	}
}

// Open opens the sqlite file or libsql url at dsn and applies the schema.
func Open(dsn string) (*SQLStore, error) {
	database, err := sqliteutil.OpenDB(db.Schema, dsn)
	if err != nil {
		return nil, err
	}
	return NewSQLStore(database), nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (s *SQLStore) GetMarket(ctx context.Context, name string) (Market, bool, error) {
	ctx, span := tracer.Start(ctx, "GetMarket")
	defer span.End()

	found, err := s.qry.GetMarket(ctx, name)
	if errors.Is(err, sql.ErrNoRows) {
		return Market{}, false, nil
	}
	if err != nil {
		return Market{}, false, fail(span, err)
	}
	return Market{Name: found}, true, nil
}

func (s *SQLStore) ListMarkets(ctx context.Context) ([]Market, error) {
	ctx, span := tracer.Start(ctx, "ListMarkets")
	defer span.End()

	names, err := s.qry.ListMarkets(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	out := make([]Market, len(names))
	for i, n := range names {
		out[i] = Market{Name: n}
	}
	return out, nil
}

func (s *SQLStore) UpsertMarket(ctx context.Context, market Market) error {
	ctx, span := tracer.Start(ctx, "UpsertMarket")
	defer span.End()

	if market.Name == "" {
		return fail(span, fmt.Errorf("market name must not be empty"))
	}
	err := s.qry.CreateMarket(ctx, market.Name)
	if err != nil {
		return fail(span, err)
	}
	return nil
}

func (s *SQLStore) reviews(ctx context.Context, qry *db.Queries, lmID string) ([]Review, error) {
	rows, err := qry.GetReviews(ctx, lmID)
	if err != nil {
		return nil, err
	}
	reviews := make([]Review, len(rows))
	for i, r := range rows {
		reviews[i] = Review{
			Critic:     r.Critic,
			Rating:     r.Rating,
			URL:        r.Url,
			Normalized: r.Normalized,
		}
	}
	return reviews, nil
}

func (s *SQLStore) hydrateFilm(ctx context.Context, qry *db.Queries, row db.Film) (Film, error) {
	reviews, err := s.reviews(ctx, qry, row.LmID)
	if err != nil {
		return Film{}, err
	}
	return Film{
		LmID:    row.LmID,
		Title:   row.Title,
		Href:    row.Href,
		Img:     row.Img,
		Reviews: reviews,
	}, nil
}

func (s *SQLStore) GetFilm(ctx context.Context, lmID string) (Film, bool, error) {
	ctx, span := tracer.Start(ctx, "GetFilm")
	defer span.End()
	span.SetAttributes(attribute.String("lm_id", lmID))

	row, err := s.qry.GetFilm(ctx, lmID)
	if errors.Is(err, sql.ErrNoRows) {
		return Film{}, false, nil
	}
	if err != nil {
		return Film{}, false, fail(span, err)
	}
	film, err := s.hydrateFilm(ctx, s.qry, row)
	if err != nil {
		return Film{}, false, fail(span, err)
	}
	return film, true, nil
}

func (s *SQLStore) GetFilmByTitle(ctx context.Context, title string) (Film, bool, error) {
	ctx, span := tracer.Start(ctx, "GetFilmByTitle")
	defer span.End()
	span.SetAttributes(attribute.String("title", title))

	row, err := s.qry.GetFilmByTitle(ctx, title)
	if errors.Is(err, sql.ErrNoRows) {
		return Film{}, false, nil
	}
	if err != nil {
		return Film{}, false, fail(span, err)
	}
	film, err := s.hydrateFilm(ctx, s.qry, row)
	if err != nil {
		return Film{}, false, fail(span, err)
	}
	return film, true, nil
}

func (s *SQLStore) CreateFilm(ctx context.Context, film Film) (bool, error) {
	ctx, span := tracer.Start(ctx, "CreateFilm")
	defer span.End()
	span.SetAttributes(attribute.String("lm_id", film.LmID))

	if film.LmID == "" {
		return false, fail(span, fmt.Errorf("film %q has no id", film.Title))
	}
	n, err := s.qry.CreateFilm(ctx, db.CreateFilmParams{
		LmID:      film.LmID,
		Title:     film.Title,
		Href:      film.Href,
		Img:       film.Img,
		CreatedAt: s.now().Unix(),
	})
	if err != nil {
		return false, fail(span, err)
	}
	return n > 0, nil
}

func (s *SQLStore) AppendReview(ctx context.Context, lmID string, review Review) error {
	ctx, span := tracer.Start(ctx, "AppendReview")
	defer span.End()
	span.SetAttributes(
		attribute.String("lm_id", lmID),
		attribute.String("critic", review.Critic),
	)

	n, err := s.qry.AddReview(ctx, db.AddReviewParams{
		FilmID:     lmID,
		Critic:     review.Critic,
		Rating:     review.Rating,
		Url:        review.URL,
		Normalized: review.Normalized,
	})
	if err != nil {
		return fail(span, err)
	}
	if n == 0 {
		span.AddEvent("review already present")
	}
	return nil
}

func (s *SQLStore) GetListing(ctx context.Context, date time.Time, market string) (Listing, bool, error) {
	ctx, span := tracer.Start(ctx, "GetListing")
	defer span.End()

	dateKey := Day(date).Format(DateLayout)
	span.SetAttributes(
		attribute.String("date", dateKey),
		attribute.String("market", market),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Listing{}, false, fail(span, err)
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	row, err := txqry.GetListing(ctx, db.GetListingParams{
		Date:   dateKey,
		Market: market,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Listing{}, false, nil
	}
	if err != nil {
		return Listing{}, false, fail(span, err)
	}

	showingRows, err := txqry.GetShowings(ctx, row.ID)
	if err != nil {
		return Listing{}, false, fail(span, err)
	}

	films := map[string]*Film{}
	showings := make([]Showing, len(showingRows))
	for i, r := range showingRows {
		film, ok := films[r.Film.LmID]
		if !ok {
			hydrated, err := s.hydrateFilm(ctx, txqry, r.Film)
			if err != nil {
				return Listing{}, false, fail(span, err)
			}
			film = &hydrated
			films[r.Film.LmID] = film
		}
		showings[i] = Showing{
			LocationName: r.LocationName,
			LocationHref: r.LocationHref,
			TimeString:   r.TimeString,
			CSetting:     r.CSetting.String,
			Film:         film,
		}
	}

	parsedDate, err := time.Parse(DateLayout, row.Date)
	if err != nil {
		return Listing{}, false, fail(span, err)
	}

	return Listing{
		Date:      parsedDate,
		Market:    row.Market,
		Showings:  showings,
		CreatedAt: time.Unix(row.CreatedAt, 0),
	}, true, nil
}

func (s *SQLStore) SaveListing(ctx context.Context, listing Listing) error {
	ctx, span := tracer.Start(ctx, "SaveListing")
	defer span.End()

	dateKey := Day(listing.Date).Format(DateLayout)
	span.SetAttributes(
		attribute.String("date", dateKey),
		attribute.String("market", listing.Market),
		attribute.Int("showings", len(listing.Showings)),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(span, err)
	}
	defer tx.Rollback()
	txqry := s.qry.WithTx(tx)

	createdAt := listing.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	listingID, err := txqry.CreateListing(ctx, db.CreateListingParams{
		Date:      dateKey,
		Market:    listing.Market,
		CreatedAt: createdAt.Unix(),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return ErrListingExists
	}
	if err != nil {
		return fail(span, err)
	}

	for i, showing := range listing.Showings {
		if showing.Film == nil {
			return fail(span, fmt.Errorf("showing %d has no film", i))
		}
		err = txqry.CreateShowing(ctx, db.CreateShowingParams{
			ListingID:    listingID,
			Position:     int64(i),
			FilmID:       showing.Film.LmID,
			LocationName: showing.LocationName,
			LocationHref: showing.LocationHref,
			TimeString:   showing.TimeString,
			CSetting: sql.NullString{
				String: showing.CSetting,
				Valid:  showing.CSetting != "",
			},
		})
		if err != nil {
			return fail(span, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return fail(span, err)
	}
	return nil
}
