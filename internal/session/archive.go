package session

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/labstack/gommon/log"
	"github.com/marcboeker/go-duckdb"
	"github.com/plate-filler/backend/internal/models"
)

// shortID safely truncates an ID for logging (handles short IDs gracefully)
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// ArchiveOptions tunes the DuckDB connection.
type ArchiveOptions struct {
	Threads     int
	MemoryLimit string
}

// Archive keeps the wells of every completed run in a DuckDB file so they
// can be queried after the in-memory run has been cleaned up.
type Archive struct {
	db     *sql.DB
	dbPath string
}

// OpenArchive opens or creates the archive at dbPath. An empty path opens
// an in-memory database.
func OpenArchive(dbPath string, opts ArchiveOptions) (*Archive, error) {
	if opts.Threads <= 0 {
		opts.Threads = 4
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "1GB"
	}

	log.Infof("[Archive] Opening database at: %q", dbPath)
	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS wells (
			run_id   VARCHAR NOT NULL,
			strategy VARCHAR NOT NULL,
			plate    INTEGER NOT NULL,
			row_idx  INTEGER NOT NULL,
			col_idx  INTEGER NOT NULL,
			well     VARCHAR NOT NULL,
			sample   VARCHAR NOT NULL,
			reagent  VARCHAR NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	return &Archive{db: db, dbPath: dbPath}, nil
}

// SaveLayout stores every filled well of a layout under runID.
func (a *Archive) SaveLayout(ctx context.Context, runID string, strategy models.Strategy, layout models.Layout) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO wells VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, plate := range layout.Plates {
		for r, row := range plate.Wells {
			for c, w := range row {
				if w == nil {
					continue
				}
				if _, err := stmt.ExecContext(ctx, runID, strategy.String(), plate.Index, r, c,
					models.WellLabel(r, c), w.Sample, w.Reagent); err != nil {
					return fmt.Errorf("insert well %s: %w", models.WellLabel(r, c), err)
				}
			}
		}
	}

	return tx.Commit()
}

// QueryWells returns the archived wells of a run in plate and row-major order.
func (a *Archive) QueryWells(ctx context.Context, runID string, filter models.WellFilter) ([]models.ArchivedWell, error) {
	conds := []string{"run_id = ?"}
	args := []interface{}{runID}
	if filter.Sample != "" {
		conds = append(conds, "sample = ?")
		args = append(args, filter.Sample)
	}
	if filter.Reagent != "" {
		conds = append(conds, "reagent = ?")
		args = append(args, filter.Reagent)
	}
	if filter.Plate != nil {
		conds = append(conds, "plate = ?")
		args = append(args, *filter.Plate)
	}

	query := `SELECT run_id, plate, row_idx, col_idx, well, sample, reagent FROM wells WHERE ` +
		strings.Join(conds, " AND ") + ` ORDER BY plate, row_idx, col_idx`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query wells: %w", err)
	}
	defer rows.Close()

	wells := make([]models.ArchivedWell, 0)
	for rows.Next() {
		var w models.ArchivedWell
		if err := rows.Scan(&w.RunID, &w.Plate, &w.Row, &w.Column, &w.Well, &w.Sample, &w.Reagent); err != nil {
			return nil, fmt.Errorf("scan well: %w", err)
		}
		wells = append(wells, w)
	}
	return wells, rows.Err()
}

// DeleteRun removes the wells of a run.
func (a *Archive) DeleteRun(ctx context.Context, runID string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM wells WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", shortID(runID), err)
	}
	return nil
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
