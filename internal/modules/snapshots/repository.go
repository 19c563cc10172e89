package snapshots

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jmercier/folio/internal/database"
	"github.com/jmercier/folio/internal/domain"
	"github.com/jmercier/folio/internal/modules/valuation"
)

// Repository handles snapshot persistence in snapshots.db.
// Uniqueness per (date, account) is enforced by the upsert path rather than
// a constraint: account_id is nullable and range scans stay on plain
// indexes.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new snapshot repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

const snapshotColumns = `id, date, account_id, total_value, total_cost,
	daily_pnl, daily_pnl_pct, total_pnl, currency, breakdown, movers, updated_at`

// Upsert writes the snapshot for (date, account), overwriting numeric
// fields and sub-lists in place when a record already exists.
func (r *Repository) Upsert(s *Snapshot) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		return upsertTx(tx, s)
	})
}

// BatchUpsert writes all snapshots in a single transaction. Used by
// backfill so a run commits once at the end.
func (r *Repository) BatchUpsert(snaps []Snapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for i := range snaps {
			if err := upsertTx(tx, &snaps[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.log.Info().Int("count", len(snaps)).Msg("Batch snapshot write committed")
	return nil
}

func upsertTx(tx *sql.Tx, s *Snapshot) error {
	breakdown, movers, err := marshalSublists(s)
	if err != nil {
		return err
	}

	day := domain.DayKey(s.Date)
	now := time.Now()

	var existingID int64
	err = tx.QueryRow(
		`SELECT id FROM snapshots WHERE date = ? AND account_id IS ?`,
		day, s.AccountID,
	).Scan(&existingID)

	switch {
	case err == sql.ErrNoRows:
		result, err := tx.Exec(
			`INSERT INTO snapshots (date, account_id, total_value, total_cost,
			 daily_pnl, daily_pnl_pct, total_pnl, currency, breakdown, movers, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			day, s.AccountID, s.TotalValue, s.TotalCost,
			s.DailyPnL, s.DailyPnLPct, s.TotalPnL, s.Currency,
			breakdown, movers, now.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert snapshot for %s: %w", day, err)
		}
		s.ID, _ = result.LastInsertId()
	case err != nil:
		return fmt.Errorf("failed to look up snapshot for %s: %w", day, err)
	default:
		_, err := tx.Exec(
			`UPDATE snapshots SET total_value = ?, total_cost = ?, daily_pnl = ?,
			 daily_pnl_pct = ?, total_pnl = ?, currency = ?, breakdown = ?,
			 movers = ?, updated_at = ? WHERE id = ?`,
			s.TotalValue, s.TotalCost, s.DailyPnL,
			s.DailyPnLPct, s.TotalPnL, s.Currency, breakdown,
			movers, now.Unix(), existingID,
		)
		if err != nil {
			return fmt.Errorf("failed to update snapshot for %s: %w", day, err)
		}
		s.ID = existingID
	}

	s.UpdatedAt = now
	return nil
}

// GetRange returns snapshots for one account (nil for global) in [from, to],
// sorted ascending by date.
func (r *Repository) GetRange(accountID *string, from, to time.Time) ([]Snapshot, error) {
	rows, err := r.db.Query(
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE account_id IS ? AND date >= ? AND date <= ?
		 ORDER BY date ASC`,
		accountID, domain.DayKey(from), domain.DayKey(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	return scanSnapshots(rows)
}

// ExistsForDate reports whether a snapshot exists for (date, account).
func (r *Repository) ExistsForDate(date time.Time, accountID *string) (bool, error) {
	var one int
	err := r.db.QueryRow(
		`SELECT 1 FROM snapshots WHERE date = ? AND account_id IS ?`,
		domain.DayKey(date), accountID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check snapshot existence: %w", err)
	}
	return true, nil
}

// CoveredDates returns the set of snapshot dates for one account in range,
// keyed by day string. Backfill uses this to find the gaps.
func (r *Repository) CoveredDates(accountID *string, from, to time.Time) (map[string]bool, error) {
	rows, err := r.db.Query(
		`SELECT date FROM snapshots WHERE account_id IS ? AND date >= ? AND date <= ?`,
		accountID, domain.DayKey(from), domain.DayKey(to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot dates: %w", err)
	}
	defer rows.Close()

	covered := make(map[string]bool)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot date: %w", err)
		}
		covered[day] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot dates: %w", err)
	}
	return covered, nil
}

// GetLatest returns the most recent snapshot for one account (nil for
// global). Returns nil, nil when none exist.
func (r *Repository) GetLatest(accountID *string) (*Snapshot, error) {
	row := r.db.QueryRow(
		`SELECT `+snapshotColumns+` FROM snapshots
		 WHERE account_id IS ? ORDER BY date DESC LIMIT 1`,
		accountID,
	)
	s, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	return s, nil
}

// DeleteAll removes every snapshot. Only the explicit data-reset path
// calls this.
func (r *Repository) DeleteAll() error {
	_, err := r.db.Exec(`DELETE FROM snapshots`)
	if err != nil {
		return fmt.Errorf("failed to delete snapshots: %w", err)
	}
	r.log.Warn().Msg("All snapshots deleted")
	return nil
}

func marshalSublists(s *Snapshot) (string, string, error) {
	if s.Breakdown == nil {
		s.Breakdown = []valuation.AssetBreakdown{}
	}
	if s.Movers == nil {
		s.Movers = []valuation.HoldingMover{}
	}

	breakdown, err := json.Marshal(s.Breakdown)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal breakdown: %w", err)
	}
	movers, err := json.Marshal(s.Movers)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal movers: %w", err)
	}
	return string(breakdown), string(movers), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var s Snapshot
	var day, breakdown, movers string
	var accountID sql.NullString
	var updatedAt int64

	err := row.Scan(&s.ID, &day, &accountID, &s.TotalValue, &s.TotalCost,
		&s.DailyPnL, &s.DailyPnLPct, &s.TotalPnL, &s.Currency,
		&breakdown, &movers, &updatedAt)
	if err != nil {
		return nil, err
	}

	s.Date, err = domain.ParseDay(day)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot date %q: %w", day, err)
	}
	if accountID.Valid {
		s.AccountID = &accountID.String
	}
	if err := json.Unmarshal([]byte(breakdown), &s.Breakdown); err != nil {
		return nil, fmt.Errorf("failed to unmarshal breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(movers), &s.Movers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal movers: %w", err)
	}
	s.UpdatedAt = time.Unix(updatedAt, 0)
	return &s, nil
}

func scanSnapshots(rows *sql.Rows) ([]Snapshot, error) {
	var snaps []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snaps, nil
}
