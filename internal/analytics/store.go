package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Melashkevich/MarketScan/models"
)

// Store keeps per-strategy signal history in PostgreSQL and derives the
// win-rate side channels the ensemble engine consumes. The engine itself
// stays stateless; everything historical lives here.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New creates a new analytics store
func New(params ConnectionParams) (*Store, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &Store{
		db:     db,
		logger: log.With().Str("component", "analytics_store").Logger(),
	}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS signal_history (
			id SERIAL PRIMARY KEY,
			scan_date TEXT NOT NULL,
			symbol TEXT NOT NULL,
			strategy TEXT NOT NULL,
			direction TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			correct BOOLEAN,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// RecordEnsemble stores every strategy vote of one scan cycle as an
// unresolved prediction.
func (s *Store) RecordEnsemble(ctx context.Context, scanDate string, results []models.EnsembleResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO signal_history (scan_date, symbol, strategy, direction, confidence)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range results {
		for name, vote := range res.PerStrategy {
			if _, err := stmt.ExecContext(ctx, scanDate, res.Symbol, name, string(vote.Signal), vote.FinalConfidence); err != nil {
				return fmt.Errorf("inserting vote for %s/%s: %w", res.Symbol, name, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing votes: %w", err)
	}
	s.logger.Debug().Str("scan_date", scanDate).Int("symbols", len(results)).Msg("Recorded ensemble votes")
	return nil
}

// ResolveDay scores the unresolved predictions of one scan date against
// the realized directions observed afterwards.
func (s *Store) ResolveDay(ctx context.Context, scanDate string, realized map[string]models.Direction) error {
	for symbol, direction := range realized {
		_, err := s.db.ExecContext(ctx, `
			UPDATE signal_history
			SET correct = (direction = $1)
			WHERE scan_date = $2 AND symbol = $3 AND correct IS NULL
		`, string(direction), scanDate, symbol)
		if err != nil {
			return fmt.Errorf("resolving %s/%s: %w", scanDate, symbol, err)
		}
	}
	return nil
}

// WinRates aggregates the resolved non-hold predictions recorded since
// the cutoff into symbol -> strategy -> win rate. A zero cutoff covers
// the whole history.
func (s *Store) WinRates(ctx context.Context, since time.Time) (map[string]map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, strategy, AVG(CASE WHEN correct THEN 1.0 ELSE 0.0 END)
		FROM signal_history
		WHERE correct IS NOT NULL AND direction <> 'hold' AND created_at >= $1
		GROUP BY symbol, strategy
	`, since)
	if err != nil {
		return nil, fmt.Errorf("querying win rates: %w", err)
	}
	defer rows.Close()

	rates := make(map[string]map[string]float64)
	for rows.Next() {
		var symbol, strategy string
		var rate float64
		if err := rows.Scan(&symbol, &strategy, &rate); err != nil {
			return nil, fmt.Errorf("scanning win rate row: %w", err)
		}
		if rates[symbol] == nil {
			rates[symbol] = make(map[string]float64)
		}
		rates[symbol][strategy] = rate
	}
	return rates, rows.Err()
}

// BacktestWinRates returns the all-history win rates.
func (s *Store) BacktestWinRates(ctx context.Context) (map[string]map[string]float64, error) {
	return s.WinRates(ctx, time.Time{})
}

// RecentPerformance returns win rates over the trailing window.
func (s *Store) RecentPerformance(ctx context.Context, window time.Duration) (map[string]map[string]float64, error) {
	return s.WinRates(ctx, time.Now().Add(-window))
}
