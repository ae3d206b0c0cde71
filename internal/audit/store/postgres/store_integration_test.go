//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"

	id "persona/pkg/domain"
	platformtx "persona/pkg/platform/tx"
	"persona/pkg/testutil/containers"

	"persona/internal/audit"
)

type AuditStoreIntegrationSuite struct {
	suite.Suite
	ctx   context.Context
	db    *sql.DB
	store *Store
}

func TestAuditStoreIntegrationSuite(t *testing.T) {
	suite.Run(t, new(AuditStoreIntegrationSuite))
}

func (s *AuditStoreIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	container := containers.NewPostgresContainer(s.T())

	db, err := sql.Open("postgres", container.DSN)
	s.Require().NoError(err)
	s.db = db
	s.store = New(db)
	s.Require().NoError(s.store.EnsureSchema(s.ctx))
}

func (s *AuditStoreIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *AuditStoreIntegrationSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, "TRUNCATE audit_entries")
	s.Require().NoError(err)
}

func (s *AuditStoreIntegrationSuite) entry(identityID id.IdentityID, seq uint64, prevHash string) audit.Entry {
	e := audit.Entry{
		ID:         id.NewAuditEntryID(),
		IdentityID: identityID,
		Action:     audit.ActionSwitched,
		Level:      audit.LevelOperations,
		Timestamp:  time.Now().UTC().Truncate(time.Microsecond),
		Actor:      "alice",
		Metadata:   map[string]string{"switch_id": "s-1"},
		Sequence:   seq,
		PrevHash:   prevHash,
	}
	e.Hash = "hash-" + prevHash
	return e
}

func (s *AuditStoreIntegrationSuite) TestAppendAndList() {
	identityID := id.NewIdentityID()
	first := s.entry(identityID, 1, "0000000000000000")
	second := s.entry(identityID, 2, first.Hash)

	s.Require().NoError(s.store.Append(s.ctx, first))
	s.Require().NoError(s.store.Append(s.ctx, second))

	entries, err := s.store.ListByIdentity(s.ctx, identityID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(first.ID, entries[0].ID)
	s.Equal(second.ID, entries[1].ID)
	s.Equal(map[string]string{"switch_id": "s-1"}, entries[0].Metadata)
}

func (s *AuditStoreIntegrationSuite) TestDuplicateSequenceRejected() {
	identityID := id.NewIdentityID()
	s.Require().NoError(s.store.Append(s.ctx, s.entry(identityID, 1, "0000000000000000")))
	s.Error(s.store.Append(s.ctx, s.entry(identityID, 1, "0000000000000000")))
}

func (s *AuditStoreIntegrationSuite) TestTransactionalAppend() {
	identityID := id.NewIdentityID()
	tx, err := s.db.BeginTx(s.ctx, nil)
	s.Require().NoError(err)

	ctx := platformtx.WithTx(s.ctx, tx)
	s.Require().NoError(s.store.Append(ctx, s.entry(identityID, 1, "0000000000000000")))
	s.Require().NoError(tx.Rollback())

	entries, err := s.store.ListByIdentity(s.ctx, identityID)
	s.Require().NoError(err)
	s.Empty(entries, "rolled-back transaction leaves no entries")
}
