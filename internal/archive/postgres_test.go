package archive

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gavelworks/gavel/internal/event"
)

func newMockClient(t *testing.T) (*PostgresClient, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func sampleEvent(date time.Time) event.CommittedBid {
	return event.CommittedBid{
		EventID: "e1",
		Auction: event.AuctionRef{AuctionID: "a1"},
		User:    event.UserRef{Username: "bob"},
		Bid:     event.BidRef{BidAmount: 100, TotalAmount: 600, Date: date},
	}
}

func TestInsertCommitted(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	date := time.Now().UTC()

	mock.ExpectExec("INSERT INTO committed_bids").
		WithArgs("e1", "a1", "bob", int64(100), int64(600), date).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, client.InsertCommitted(context.Background(), sampleEvent(date)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCommittedRedeliveryIsIdempotent(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	date := time.Now().UTC()

	// ON CONFLICT DO NOTHING: zero rows affected is still success.
	mock.ExpectExec("INSERT INTO committed_bids").
		WithArgs("e1", "a1", "bob", int64(100), int64(600), date).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, client.InsertCommitted(context.Background(), sampleEvent(date)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBidHistory(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)
	date := time.Now().UTC()

	rows := sqlmock.NewRows([]string{"event_id", "auction_id", "username", "bid_amount", "total_amount", "bid_date"}).
		AddRow("e2", "a1", "carol", int64(50), int64(650), date).
		AddRow("e1", "a1", "bob", int64(100), int64(600), date.Add(-time.Minute))

	mock.ExpectQuery("SELECT event_id, auction_id, username, bid_amount, total_amount, bid_date").
		WithArgs("a1", 10).
		WillReturnRows(rows)

	entries, err := client.BidHistory(context.Background(), "a1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "carol", entries[0].Username)
	assert.Equal(t, int64(650), entries[0].TotalAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitSchema(t *testing.T) {
	t.Parallel()

	client, mock := newMockClient(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS committed_bids").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, client.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
