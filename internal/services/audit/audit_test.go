// Copyright 2026 Martin Kadlec
// Licensed under the EUPL-1.2

package audit_test

import (
	"context"
	"testing"

	"codeberg.org/mkadlec/gatekeeper/internal/models"
	"codeberg.org/mkadlec/gatekeeper/internal/services/audit"
	"codeberg.org/mkadlec/gatekeeper/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest(t *testing.T) {
	assert.Equal(t, "b00114473fe3bdc4ad7897ae5531cb1d8b5949173894703d365dbfdd1d28e9e4", audit.Digest("ST-12345"))
	assert.Equal(t, audit.Digest("ST-12345"), audit.Digest("ST-12345"))
	assert.NotEqual(t, audit.Digest("ST-12345"), audit.Digest("ST-12346"))
}

func TestDigest_Empty(t *testing.T) {
	assert.Empty(t, audit.Digest(""))
}

func TestRecord(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	logger := audit.New(repo)
	ctx := context.Background()

	subjectID := int64(42)
	logger.Record(ctx, audit.Entry{
		SubjectID: &subjectID,
		Login:     "jan.novak",
		Ticket:    "ST-12345",
		Token:     "raw-state-token",
		Result:    models.AuditSuccess,
		Detail:    "standard",
	})

	records, err := repo.ListAuditRecords(ctx, subjectID, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.AuditSuccess, records[0].Result)
	assert.Equal(t, "jan.novak", records[0].Login)

	// Only one-way digests reach storage
	assert.NotContains(t, records[0].TicketDigest, "ST-12345")
	assert.Len(t, records[0].TicketDigest, 64)
	assert.Len(t, records[0].TokenDigest, 64)
}

func TestRecord_UnknownSubject(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	logger := audit.New(repo)
	ctx := context.Background()

	logger.Record(ctx, audit.Entry{
		Ticket: "ST-12345",
		Result: models.AuditFailure,
		Detail: "state token invalid or expired",
	})

	count, err := repo.CountAuditRecords(ctx, models.AuditFailure)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRecord_SwallowsWriteFailure(t *testing.T) {
	db, repo := testutil.NewTestDB(t)
	logger := audit.New(repo)

	// A closed store must not turn the audit write into a caller failure
	require.NoError(t, db.Close())

	logger.Record(context.Background(), audit.Entry{
		Ticket: "ST-12345",
		Result: models.AuditFailure,
		Detail: "provider unreachable",
	})
}
