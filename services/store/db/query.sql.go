package db

import (
	"context"
	"database/sql"
)

const getMarket = `-- name: GetMarket :one
SELECT name FROM Market WHERE name = ?
`

func (q *Queries) GetMarket(ctx context.Context, name string) (string, error) {
	row := q.db.QueryRowContext(ctx, getMarket, name)
	err := row.Scan(&name)
	return name, err
}

const listMarkets = `-- name: ListMarkets :many
SELECT name FROM Market ORDER BY name
`

func (q *Queries) ListMarkets(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listMarkets)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createMarket = `-- name: CreateMarket :exec
INSERT OR IGNORE INTO Market (name) VALUES (?)
`

func (q *Queries) CreateMarket(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, createMarket, name)
	return err
}

const getFilm = `-- name: GetFilm :one
SELECT lm_id, title, href, img, created_at FROM Film WHERE lm_id = ?
`

func (q *Queries) GetFilm(ctx context.Context, lmID string) (Film, error) {
	row := q.db.QueryRowContext(ctx, getFilm, lmID)
	var i Film
	err := row.Scan(
		&i.LmID,
		&i.Title,
		&i.Href,
		&i.Img,
		&i.CreatedAt,
	)
	return i, err
}

const getFilmByTitle = `-- name: GetFilmByTitle :one
SELECT lm_id, title, href, img, created_at FROM Film
WHERE title = ? COLLATE NOCASE
ORDER BY created_at, lm_id
LIMIT 1
`

func (q *Queries) GetFilmByTitle(ctx context.Context, title string) (Film, error) {
	row := q.db.QueryRowContext(ctx, getFilmByTitle, title)
	var i Film
	err := row.Scan(
		&i.LmID,
		&i.Title,
		&i.Href,
		&i.Img,
		&i.CreatedAt,
	)
	return i, err
}

const createFilm = `-- name: CreateFilm :execrows
INSERT OR IGNORE INTO Film (lm_id, title, href, img, created_at)
VALUES (?, ?, ?, ?, ?)
`

type CreateFilmParams struct {
	LmID      string
	Title     string
	Href      string
	Img       string
	CreatedAt int64
}

func (q *Queries) CreateFilm(ctx context.Context, arg CreateFilmParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, createFilm,
		arg.LmID,
		arg.Title,
		arg.Href,
		arg.Img,
		arg.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getReviews = `-- name: GetReviews :many
SELECT film_id, critic, rating, url, normalized FROM Review
WHERE film_id = ?
ORDER BY rowid
`

func (q *Queries) GetReviews(ctx context.Context, filmID string) ([]Review, error) {
	rows, err := q.db.QueryContext(ctx, getReviews, filmID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Review
	for rows.Next() {
		var i Review
		if err := rows.Scan(
			&i.FilmID,
			&i.Critic,
			&i.Rating,
			&i.Url,
			&i.Normalized,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const addReview = `-- name: AddReview :execrows
INSERT OR IGNORE INTO Review (film_id, critic, rating, url, normalized)
VALUES (?, ?, ?, ?, ?)
`

type AddReviewParams struct {
	FilmID     string
	Critic     string
	Rating     float64
	Url        string
	Normalized float64
}

func (q *Queries) AddReview(ctx context.Context, arg AddReviewParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, addReview,
		arg.FilmID,
		arg.Critic,
		arg.Rating,
		arg.Url,
		arg.Normalized,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getListing = `-- name: GetListing :one
SELECT id, date, market, created_at FROM Listing
WHERE date = ? AND market = ?
`

type GetListingParams struct {
	Date   string
	Market string
}

func (q *Queries) GetListing(ctx context.Context, arg GetListingParams) (Listing, error) {
	row := q.db.QueryRowContext(ctx, getListing, arg.Date, arg.Market)
	var i Listing
	err := row.Scan(
		&i.ID,
		&i.Date,
		&i.Market,
		&i.CreatedAt,
	)
	return i, err
}

const createListing = `-- name: CreateListing :one
INSERT INTO Listing (date, market, created_at)
VALUES (?, ?, ?)
ON CONFLICT (date, market) DO NOTHING
RETURNING id
`

type CreateListingParams struct {
	Date      string
	Market    string
	CreatedAt int64
}

func (q *Queries) CreateListing(ctx context.Context, arg CreateListingParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, createListing, arg.Date, arg.Market, arg.CreatedAt)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const createShowing = `-- name: CreateShowing :exec
INSERT INTO Showing (
    listing_id, position, film_id,
    location_name, location_href, time_string, c_setting
) VALUES (?, ?, ?, ?, ?, ?, ?)
`

type CreateShowingParams struct {
	ListingID    int64
	Position     int64
	FilmID       string
	LocationName string
	LocationHref string
	TimeString   string
	CSetting     sql.NullString
}

func (q *Queries) CreateShowing(ctx context.Context, arg CreateShowingParams) error {
	_, err := q.db.ExecContext(ctx, createShowing,
		arg.ListingID,
		arg.Position,
		arg.FilmID,
		arg.LocationName,
		arg.LocationHref,
		arg.TimeString,
		arg.CSetting,
	)
	return err
}

const getShowings = `-- name: GetShowings :many
SELECT
    Showing.position, Showing.location_name, Showing.location_href,
    Showing.time_string, Showing.c_setting,
    Film.lm_id, Film.title, Film.href, Film.img, Film.created_at
FROM Showing
INNER JOIN Film ON Film.lm_id = Showing.film_id
WHERE Showing.listing_id = ?
ORDER BY Showing.position
`

type GetShowingsRow struct {
	Position     int64
	LocationName string
	LocationHref string
	TimeString   string
	CSetting     sql.NullString
	Film         Film
}

func (q *Queries) GetShowings(ctx context.Context, listingID int64) ([]GetShowingsRow, error) {
	rows, err := q.db.QueryContext(ctx, getShowings, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetShowingsRow
	for rows.Next() {
		var i GetShowingsRow
		if err := rows.Scan(
			&i.Position,
			&i.LocationName,
			&i.LocationHref,
			&i.TimeString,
			&i.CSetting,
			&i.Film.LmID,
			&i.Film.Title,
			&i.Film.Href,
			&i.Film.Img,
			&i.Film.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
