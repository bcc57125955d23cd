package audit_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ticket-inventory/internal/audit"
	"ticket-inventory/internal/models"
)

func setupTestDB(t *testing.T) *bun.DB {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, bunDB.ResetModel(context.Background(), (*models.AuditEntry)(nil)))

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}

func TestAppendAndQuery(t *testing.T) {
	trail := audit.New(setupTestDB(t))
	ctx := context.Background()

	entries := []models.AuditEntry{
		{TicketID: "t1", EventID: "e1", Actor: "admin-1", ToState: "VALID", Outcome: "OK", Detail: "ticket issued"},
		{TicketID: "t1", EventID: "e1", Actor: "scanner-1", FromState: "VALID", ToState: "USED", Outcome: "OK", Detail: "ticket admitted"},
		{TicketID: "t2", EventID: "e1", Actor: "admin-1", ToState: "VALID", Outcome: "OK", Detail: "ticket issued"},
		{TicketID: "t3", EventID: "e2", Actor: "admin-2", ToState: "VALID", Outcome: "OK", Detail: "ticket issued"},
	}
	for i := range entries {
		require.NoError(t, trail.Append(ctx, &entries[i]))
	}

	forTicket, err := trail.EntriesForTicket(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, forTicket, 2)
	assert.Equal(t, "ticket issued", forTicket[0].Detail)
	assert.Equal(t, "ticket admitted", forTicket[1].Detail)
	assert.False(t, forTicket[0].CreatedAt.IsZero())

	forEvent, err := trail.EntriesForEvent(ctx, "e1")
	require.NoError(t, err)
	assert.Len(t, forEvent, 3)

	empty, err := trail.EntriesForTicket(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAttemptsSince(t *testing.T) {
	trail := audit.New(setupTestDB(t))
	ctx := context.Background()

	old := models.AuditEntry{
		TicketID: "t1", EventID: "e1", Actor: "scanner-1",
		Outcome: "ALREADY_ADMITTED", CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, trail.Append(ctx, &old))
	for i := 0; i < 3; i++ {
		entry := models.AuditEntry{TicketID: "t1", EventID: "e1", Actor: "scanner-1", Outcome: "ALREADY_ADMITTED"}
		require.NoError(t, trail.Append(ctx, &entry))
	}

	recent, err := trail.AttemptsSince(ctx, "t1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, recent)

	all, err := trail.AttemptsSince(ctx, "t1", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, all)
}
