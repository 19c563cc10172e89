// Package history provides access to cached historical price and FX data.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/database"
	"github.com/jmercier/folio/internal/domain"
)

// Repository stores and retrieves daily close and FX rate series.
// Everything in history.db is a cache of provider data and can be refetched.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new history repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "history").Logger(),
	}
}

// RateEntry is one cached FX rate row
type RateEntry struct {
	Pair string
	Date time.Time
	Rate float64
}

// UpsertDailyCloses stores a close series for a symbol in one transaction
func (r *Repository) UpsertDailyCloses(symbol string, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT OR REPLACE INTO daily_prices (symbol, date, close) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare daily price upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.Exec(symbol, domain.DayKey(p.Date), p.Close); err != nil {
				return fmt.Errorf("failed to upsert daily price for %s: %w", symbol, err)
			}
		}
		return nil
	})
}

// GetDailyCloses returns the cached close series for a symbol within the
// inclusive date range, ascending by date
func (r *Repository) GetDailyCloses(symbol string, from, to time.Time) ([]domain.PricePoint, error) {
	rows, err := r.db.Query(
		"SELECT date, close FROM daily_prices WHERE symbol = ? AND date >= ? AND date <= ? ORDER BY date ASC",
		symbol, domain.DayKey(from), domain.DayKey(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// UpsertRateSeries stores a historical FX series for a pair in one transaction
func (r *Repository) UpsertRateSeries(pair string, points []domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT OR REPLACE INTO fx_rates (pair, date, rate) VALUES (?, ?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare fx rate upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.Exec(pair, domain.DayKey(p.Date), p.Close); err != nil {
				return fmt.Errorf("failed to upsert fx rate for %s: %w", pair, err)
			}
		}
		return nil
	})
}

// UpsertRate stores a single FX rate observation for a day
func (r *Repository) UpsertRate(pair string, date time.Time, rate float64) error {
	_, err := r.db.Exec(
		"INSERT OR REPLACE INTO fx_rates (pair, date, rate) VALUES (?, ?, ?)",
		pair, domain.DayKey(date), rate,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert fx rate for %s: %w", pair, err)
	}
	return nil
}

// GetRateSeries returns the cached FX series for a pair within the inclusive
// date range, ascending by date
func (r *Repository) GetRateSeries(pair string, from, to time.Time) ([]domain.PricePoint, error) {
	rows, err := r.db.Query(
		"SELECT date, rate FROM fx_rates WHERE pair = ? AND date >= ? AND date <= ? ORDER BY date ASC",
		pair, domain.DayKey(from), domain.DayKey(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query fx rates: %w", err)
	}
	defer rows.Close()

	return scanPricePoints(rows)
}

// GetLatestRate returns the most recent cached rate for a pair, or nil when
// nothing is cached
func (r *Repository) GetLatestRate(pair string) (*RateEntry, error) {
	var dateStr string
	var rate float64
	err := r.db.QueryRow(
		"SELECT date, rate FROM fx_rates WHERE pair = ? ORDER BY date DESC LIMIT 1",
		pair,
	).Scan(&dateStr, &rate)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest fx rate: %w", err)
	}

	date, err := domain.ParseDay(dateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid date in fx_rates: %w", err)
	}

	return &RateEntry{Pair: pair, Date: date, Rate: rate}, nil
}

func scanPricePoints(rows *sql.Rows) ([]domain.PricePoint, error) {
	var points []domain.PricePoint
	for rows.Next() {
		var dateStr string
		var value float64
		if err := rows.Scan(&dateStr, &value); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}

		date, err := domain.ParseDay(dateStr)
		if err != nil {
			return nil, fmt.Errorf("invalid date in series: %w", err)
		}

		points = append(points, domain.PricePoint{Date: date, Close: value})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating series: %w", err)
	}

	return points, nil
}
