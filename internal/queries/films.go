package queries

import (
	"bytes"
	"context"
	"time"

	"query-streamer/internal/driver"
	"query-streamer/internal/exporter"
	"query-streamer/internal/stream"
)

// Film is one row of the film table.
type Film struct {
	FilmID             int32     `json:"film_id"`
	Title              string    `json:"title"`
	Description        *string   `json:"description"`
	ReleaseYear        *int32    `json:"release_year"`
	LanguageID         int16     `json:"language_id"`
	OriginalLanguageID *int32    `json:"original_language_id"`
	RentalDuration     int16     `json:"rental_duration"`
	Length             *int16    `json:"length"`
	LastUpdate         time.Time `json:"last_update"`
}

const filmSelect = `SELECT film_id, title, description, release_year, language_id,
	original_language_id, rental_duration, length, last_update
FROM film ORDER BY film_id`

// ScanFilm maps a row of filmSelect.
func ScanFilm(s driver.Scanner) (Film, error) {
	var f Film
	err := s.Scan(&f.FilmID, &f.Title, &f.Description, &f.ReleaseYear, &f.LanguageID,
		&f.OriginalLanguageID, &f.RentalDuration, &f.Length, &f.LastUpdate)
	return f, err
}

// FilmQuery streams a page of films as a JSON array.
type FilmQuery struct {
	exporter.ArrayFraming
	Page    Page
	Dialect driver.Dialect
}

func (q *FilmQuery) Descriptor() SQLDescriptor {
	return paged(q.Dialect, filmSelect, q.Page)
}

func (q *FilmQuery) Open(ctx context.Context, conn driver.Conn, d *SQLDescriptor) (stream.Cursor[Film], error) {
	rows, err := conn.Query(ctx, d.SQL, d.Args...)
	return openRows(rows, err, ScanFilm)
}

func (q *FilmQuery) WriteRecord(f Film, buf *bytes.Buffer) error {
	return exporter.WriteJSON(buf, f)
}
