package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/michaelpento.lv/cyclearb/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS passes (
	id               TEXT PRIMARY KEY,
	snapshot_version INTEGER NOT NULL,
	started_at       INTEGER NOT NULL,
	duration_us      INTEGER NOT NULL,
	sources          INTEGER NOT NULL,
	edges            INTEGER NOT NULL,
	cycles_found     INTEGER NOT NULL,
	cycles_discarded INTEGER NOT NULL,
	filtered         INTEGER NOT NULL,
	opportunities    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS opportunities (
	pass_id        TEXT NOT NULL REFERENCES passes(id),
	rank           INTEGER NOT NULL,
	path           TEXT NOT NULL,
	exchanges      TEXT NOT NULL,
	start_amount   REAL NOT NULL,
	final_amount   REAL NOT NULL,
	profit         REAL NOT NULL,
	profit_pct     REAL NOT NULL,
	estimated_cost REAL NOT NULL,
	cycle_key      TEXT NOT NULL,
	PRIMARY KEY (pass_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_passes_started_at ON passes(started_at);
`

const pathSeparator = ","

// ErrArchiveNotFound is returned by OpenExisting when there is no archive file.
var ErrArchiveNotFound = errors.New("archive not found")

// PassRecord is an archived pass with its best opportunity, if any.
type PassRecord struct {
	ID              string
	SnapshotVersion uint64
	StartedAt       time.Time
	Duration        time.Duration
	Stats           types.PassStats
	Opportunities   int
	BestPath        []string
	BestProfitPct   float64
}

// Archive stores every pass and its ranked opportunities in a SQLite file.
type Archive struct {
	db *sql.DB
}

func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// OpenExisting opens an archive that an earlier run created. Unlike Open it
// never creates the file.
func OpenExisting(path string) (*Archive, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat archive %s: %w", path, err)
	}
	return Open(path)
}

func (a *Archive) Name() string { return "sqlite" }

func (a *Archive) Close() error { return a.db.Close() }

// Report writes the pass and its opportunities in one transaction.
func (a *Archive) Report(ctx context.Context, result types.PassResult) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin archive transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO passes (id, snapshot_version, started_at, duration_us, sources, edges,
			cycles_found, cycles_discarded, filtered, opportunities)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, int64(result.SnapshotVersion), result.StartedAt.UnixMicro(), result.Duration.Microseconds(),
		result.Stats.Sources, result.Stats.Edges, result.Stats.CyclesFound, result.Stats.CyclesDiscarded,
		result.Stats.Filtered, len(result.Opportunities))
	if err != nil {
		return fmt.Errorf("failed to archive pass %s: %w", result.ID, err)
	}

	if len(result.Opportunities) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO opportunities (pass_id, rank, path, exchanges, start_amount, final_amount,
				profit, profit_pct, estimated_cost, cycle_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare opportunity insert: %w", err)
		}
		defer stmt.Close()

		for i, opp := range result.Opportunities {
			_, err := stmt.ExecContext(ctx, result.ID, i+1,
				strings.Join(opp.Path, pathSeparator), strings.Join(opp.Exchanges, pathSeparator),
				opp.StartAmount, opp.FinalAmount, opp.Profit, opp.ProfitPct, opp.EstimatedCost,
				fmt.Sprintf("%016x", opp.Key))
			if err != nil {
				return fmt.Errorf("failed to archive opportunity %d of pass %s: %w", i+1, result.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit pass %s: %w", result.ID, err)
	}
	return nil
}

// Recent returns up to limit passes, newest first.
func (a *Archive) Recent(ctx context.Context, limit int) ([]PassRecord, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT p.id, p.snapshot_version, p.started_at, p.duration_us, p.sources, p.edges,
			p.cycles_found, p.cycles_discarded, p.filtered, p.opportunities,
			COALESCE(o.path, ''), COALESCE(o.profit_pct, 0)
		FROM passes p
		LEFT JOIN opportunities o ON o.pass_id = p.id AND o.rank = 1
		ORDER BY p.started_at DESC, p.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query passes: %w", err)
	}
	defer rows.Close()

	var records []PassRecord
	for rows.Next() {
		var (
			rec      PassRecord
			version  int64
			started  int64
			duration int64
			bestPath string
		)
		err := rows.Scan(&rec.ID, &version, &started, &duration,
			&rec.Stats.Sources, &rec.Stats.Edges, &rec.Stats.CyclesFound, &rec.Stats.CyclesDiscarded,
			&rec.Stats.Filtered, &rec.Opportunities, &bestPath, &rec.BestProfitPct)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pass: %w", err)
		}
		rec.SnapshotVersion = uint64(version)
		rec.StartedAt = time.UnixMicro(started)
		rec.Duration = time.Duration(duration) * time.Microsecond
		if bestPath != "" {
			rec.BestPath = strings.Split(bestPath, pathSeparator)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Opportunities returns the archived opportunities of one pass in rank order.
func (a *Archive) Opportunities(ctx context.Context, passID string) ([]types.Opportunity, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT path, exchanges, start_amount, final_amount, profit, profit_pct, estimated_cost, cycle_key
		FROM opportunities
		WHERE pass_id = ?
		ORDER BY rank`, passID)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer rows.Close()

	opps := []types.Opportunity{}
	for rows.Next() {
		var (
			opp       types.Opportunity
			path      string
			exchanges string
			key       string
		)
		err := rows.Scan(&path, &exchanges, &opp.StartAmount, &opp.FinalAmount,
			&opp.Profit, &opp.ProfitPct, &opp.EstimatedCost, &key)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		opp.Path = strings.Split(path, pathSeparator)
		if exchanges != "" {
			opp.Exchanges = strings.Split(exchanges, pathSeparator)
		}
		if _, err := fmt.Sscanf(key, "%x", &opp.Key); err != nil {
			return nil, fmt.Errorf("malformed cycle key %q: %w", key, err)
		}
		opp.ProfitBps = opp.ProfitPct * 100
		opps = append(opps, opp)
	}
	return opps, rows.Err()
}
