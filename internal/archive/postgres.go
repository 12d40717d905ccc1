// Package archive persists committed-bid events to PostgreSQL for bid
// history queries. It is a downstream subscriber of the fan-out queue; the
// settlement write path never depends on it.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/gavelworks/gavel/internal/event"
)

// PostgresClient wraps the archival database connection.
type PostgresClient struct {
	db *sql.DB
}

// NewPostgresClient opens and pings the archival database.
func NewPostgresClient(connStr string) (*PostgresClient, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresClient{db: db}, nil
}

// NewWithDB wraps an existing connection. Used in tests.
func NewWithDB(db *sql.DB) *PostgresClient {
	return &PostgresClient{db: db}
}

// InitSchema creates the archival table.
func (c *PostgresClient) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS committed_bids (
		event_id VARCHAR(255) PRIMARY KEY,
		auction_id VARCHAR(255) NOT NULL,
		username VARCHAR(255) NOT NULL,
		bid_amount BIGINT NOT NULL,
		total_amount BIGINT NOT NULL,
		bid_date TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_committed_bids_auction_id ON committed_bids(auction_id);
	CREATE INDEX IF NOT EXISTS idx_committed_bids_bid_date ON committed_bids(bid_date);
	`

	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertCommitted records one committed bid. Redelivered events are absorbed
// by the event-id conflict clause.
func (c *PostgresClient) InsertCommitted(ctx context.Context, e event.CommittedBid) error {
	query := `
		INSERT INTO committed_bids (event_id, auction_id, username, bid_amount, total_amount, bid_date)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING
	`

	_, err := c.db.ExecContext(ctx, query,
		e.EventID,
		e.Auction.AuctionID,
		e.User.Username,
		e.Bid.BidAmount,
		e.Bid.TotalAmount,
		e.Bid.Date,
	)
	if err != nil {
		return fmt.Errorf("failed to insert committed bid: %w", err)
	}
	return nil
}

// HistoryEntry is one archived bid.
type HistoryEntry struct {
	EventID     string
	AuctionID   string
	Username    string
	BidAmount   int64
	TotalAmount int64
	Date        time.Time
}

// BidHistory returns an auction's archived bids, newest first.
func (c *PostgresClient) BidHistory(ctx context.Context, auctionID string, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT event_id, auction_id, username, bid_amount, total_amount, bid_date
		FROM committed_bids
		WHERE auction_id = $1
		ORDER BY bid_date DESC
		LIMIT $2
	`

	rows, err := c.db.QueryContext(ctx, query, auctionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query bid history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.EventID, &e.AuctionID, &e.Username, &e.BidAmount, &e.TotalAmount, &e.Date); err != nil {
			return nil, fmt.Errorf("failed to scan bid history row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection.
func (c *PostgresClient) Close() error {
	return c.db.Close()
}
