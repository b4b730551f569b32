// Package factdb reads the external FACT run catalog. The catalog is
// the source of truth for which runs are scientifically eligible for
// event-list processing; this package never writes to it.
package factdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/fact-project/eventlist/pkg/model"

	_ "github.com/go-sql-driver/mysql"
)

// Catalog enumerates the runs eligible for processing.
type Catalog interface {
	// EligibleRuns returns every (night, runId) matching the fixed
	// observational-quality predicate, regardless of whether the run's
	// file exists on any filesystem.
	EligibleRuns(ctx context.Context) ([]model.CatalogRun, error)

	Close() error
}

// eligibleRunsQuery selects data and pedestal runs at the standard
// region of interest that have not been DRS-calibrated.
const eligibleRunsQuery = `
	SELECT fNight, fRunID
	FROM RunInfo
	WHERE fROI = 300
	  AND fRunTypeKey IN (1, 2)
	  AND fDrsStep IS NULL
	ORDER BY fNight, fRunID`

// Client implements Catalog against the FACT MySQL database.
type Client struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open connects to the catalog using a go-sql-driver/mysql DSN.
func Open(dsn string, logger *slog.Logger) (*Client, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open fact database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping fact database: %w", err)
	}
	return NewWithDB(db, logger), nil
}

// NewWithDB wraps an existing connection (used by tests).
func NewWithDB(db *sql.DB, logger *slog.Logger) *Client {
	return &Client{
		db:     db,
		logger: logger.With("component", "factdb"),
	}
}

// Close closes the catalog connection.
func (c *Client) Close() error {
	return c.db.Close()
}

// EligibleRuns runs the eligibility query.
func (c *Client) EligibleRuns(ctx context.Context) ([]model.CatalogRun, error) {
	c.logger.Debug("sql", "op", "select", "table", "RunInfo")

	rows, err := c.db.QueryContext(ctx, eligibleRunsQuery)
	if err != nil {
		return nil, fmt.Errorf("query eligible runs: %w", err)
	}
	defer rows.Close()

	var runs []model.CatalogRun
	for rows.Next() {
		var r model.CatalogRun
		if err := rows.Scan(&r.Night, &r.RunID); err != nil {
			return nil, fmt.Errorf("scan eligible run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate eligible runs: %w", err)
	}

	c.logger.Debug("eligible runs fetched", "count", len(runs))
	return runs, nil
}
