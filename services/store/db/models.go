package db

import (
	"database/sql"
)

type Film struct {
	LmID      string
	Title     string
	Href      string
	Img       string
	CreatedAt int64
}

type Listing struct {
	ID        int64
	Date      string
	Market    string
	CreatedAt int64
}

type Market struct {
	Name string
}

type Review struct {
	FilmID     string
	Critic     string
	Rating     float64
	Url        string
	Normalized float64
}

type Showing struct {
	ListingID    int64
	Position     int64
	FilmID       string
	LocationName string
	LocationHref string
	TimeString   string
	CSetting     sql.NullString
}
