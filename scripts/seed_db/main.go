package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"query-streamer/internal/driver"
)

// junkDoc is stored in every junk row.
var junkDoc = map[string]any{
	"firstName": "John",
	"lastName":  "Doe",
	"gender":    "man",
	"age":       24,
	"address": map[string]any{
		"streetAddress": "126",
		"city":          "San Jone",
		"state":         "CA",
		"postalCode":    "394221",
	},
	"phoneNumbers": []map[string]string{
		{"type": "home", "number": "7383627627"},
	},
	"colors": []map[string]string{
		{"color": "red", "value": "#f00"},
		{"color": "green", "value": "#0f0"},
		{"color": "blue", "value": "#00f"},
		{"color": "cyan", "value": "#0ff"},
		{"color": "magenta", "value": "#f0f"},
		{"color": "yellow", "value": "#ff0"},
		{"color": "black", "value": "#000"},
	},
	"batters": map[string]any{
		"batter": []map[string]string{
			{"id": "1001", "type": "Regular"},
			{"id": "1002", "type": "Chocolate"},
			{"id": "1003", "type": "Blueberry"},
			{"id": "1004", "type": "Devil's Food"},
		},
	},
	"topping": []map[string]string{
		{"id": "5001", "type": "None"},
		{"id": "5002", "type": "Glazed"},
		{"id": "5005", "type": "Sugar"},
		{"id": "5007", "type": "Powdered Sugar"},
		{"id": "5006", "type": "Chocolate with Sprinkles"},
		{"id": "5003", "type": "Chocolate"},
		{"id": "5004", "type": "Maple"},
	},
}

var filmTitles = []string{
	"ACADEMY DINOSAUR", "ACE GOLDFINGER", "ADAPTATION HOLES", "AFFAIR PREJUDICE",
	"AFRICAN EGG", "AGENT TRUMAN", "AIRPLANE SIERRA", "AIRPORT POLLOCK",
	"ALABAMA DEVIL", "ALADDIN CALENDAR", "ALAMO VIDEOTAPE", "ALASKA PHANTOM",
}

type schema struct {
	junk string
	film string
}

var schemas = map[string]schema{
	"mysql": {
		junk: `CREATE TABLE IF NOT EXISTS junk (id BIGINT AUTO_INCREMENT PRIMARY KEY, jsn JSON NOT NULL)`,
		film: `CREATE TABLE IF NOT EXISTS film (
			film_id INT AUTO_INCREMENT PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			description TEXT,
			release_year INT,
			language_id SMALLINT NOT NULL,
			original_language_id INT,
			rental_duration SMALLINT NOT NULL DEFAULT 3,
			length SMALLINT,
			last_update TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	"postgres": {
		junk: `CREATE TABLE IF NOT EXISTS junk (id BIGSERIAL PRIMARY KEY, jsn JSONB NOT NULL)`,
		film: `CREATE TABLE IF NOT EXISTS film (
			film_id SERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			release_year INT,
			language_id SMALLINT NOT NULL,
			original_language_id INT,
			rental_duration SMALLINT NOT NULL DEFAULT 3,
			length SMALLINT,
			last_update TIMESTAMP NOT NULL DEFAULT now()
		)`,
	},
	"sqlite": {
		junk: `CREATE TABLE IF NOT EXISTS junk (id INTEGER PRIMARY KEY AUTOINCREMENT, jsn TEXT NOT NULL)`,
		film: `CREATE TABLE IF NOT EXISTS film (
			film_id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			description TEXT,
			release_year INTEGER,
			language_id INTEGER NOT NULL,
			original_language_id INTEGER,
			rental_duration INTEGER NOT NULL DEFAULT 3,
			length INTEGER,
			last_update DATETIME NOT NULL
		)`,
	},
}

func main() {
	_ = godotenv.Load()

	driverName := flag.String("driver", envOr("DB_DRIVER", "postgres"), "mysql, postgres or sqlite")
	dsn := flag.String("dsn", os.Getenv("DATABASE_URL"), "database DSN (or file path for sqlite)")
	rows := flag.Int("rows", 10000, "number of junk rows to insert")
	batch := flag.Int("batch", 500, "rows per INSERT statement")
	flag.Parse()

	if err := run(*driverName, *dsn, *rows, *batch); err != nil {
		slog.Error("Seeding failed", "error", err)
		os.Exit(1)
	}
}

func run(driverName, dsn string, rows, batch int) error {
	sch, ok := schemas[driverName]
	if !ok {
		return fmt.Errorf("unsupported driver %q", driverName)
	}

	var (
		d   *driver.SQLDriver
		err error
	)
	switch driverName {
	case "mysql":
		d, err = driver.NewMySQLDriver(dsn, 4)
	case "postgres":
		d, err = driver.NewPostgresDriver(dsn, 4)
	case "sqlite":
		d, err = driver.NewSQLiteDriver(dsn, 1)
	}
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := context.Background()
	for i := 0; i < 30; i++ {
		if err = d.Ping(ctx); err == nil {
			break
		}
		slog.Info("Waiting for database...", "attempt", i+1)
		time.Sleep(time.Second)
	}
	if err != nil {
		return fmt.Errorf("database not reachable: %w", err)
	}

	slog.Info("Connected. Creating tables...", "driver", driverName)
	db := d.DB()
	for _, ddl := range []string{sch.junk, sch.film} {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	doc, err := json.Marshal(junkDoc)
	if err != nil {
		return err
	}

	var existing int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM junk").Scan(&existing); err != nil {
		return err
	}
	if existing >= rows {
		slog.Info("Junk table already seeded", "rows", existing)
	} else {
		start := time.Now()
		for done := existing; done < rows; done += batch {
			n := min(batch, rows-done)
			placeholders := make([]string, n)
			args := make([]any, n)
			for j := range n {
				placeholders[j] = "(" + d.Dialect().Placeholder(j+1) + ")"
				args[j] = string(doc)
			}
			stmt := "INSERT INTO junk (jsn) VALUES " + strings.Join(placeholders, ",")
			if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
				return fmt.Errorf("insert junk batch at %d: %w", done, err)
			}
		}
		slog.Info("Seeded junk", "rows", rows-existing, "duration", time.Since(start))
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM film").Scan(&existing); err != nil {
		return err
	}
	if existing > 0 {
		slog.Info("Film table already seeded", "rows", existing)
		return nil
	}

	ph := d.Dialect().Placeholder
	stmt := fmt.Sprintf(`INSERT INTO film (title, description, release_year, language_id, rental_duration, length, last_update)
		VALUES (%s, %s, %s, %s, %s, %s, %s)`, ph(1), ph(2), ph(3), ph(4), ph(5), ph(6), ph(7))
	now := time.Now().UTC().Truncate(time.Second)
	for i, title := range filmTitles {
		var desc any
		if i%3 != 1 {
			desc = fmt.Sprintf("A thoughtful story of %s", strings.ToLower(title))
		}
		if _, err := db.ExecContext(ctx, stmt, title, desc, 2006, 1, 3+i%5, 46+i*7, now); err != nil {
			return fmt.Errorf("insert film %q: %w", title, err)
		}
	}
	slog.Info("Seeded films", "rows", len(filmTitles))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
