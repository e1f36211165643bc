//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"catcher/internal/item"
	"catcher/internal/item/store"
	"catcher/internal/platform/postgres"
	"catcher/pkg/platform/sentinel"
	"catcher/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) TearDownSuite() {
	s.postgres.Terminate(s.T())
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.postgres.DB.ExecContext(s.ctx, "TRUNCATE items, outbox")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) fields(name, serial string) item.Fields {
	f := item.Fields{Name: name, SerialNumber: serial}
	s.Require().NoError(f.Validate())
	return f
}

func (s *PostgresStoreSuite) TestInsertAndList() {
	first, err := s.store.Insert(s.ctx, "user-1", s.fields("First", "SN-PG-1"))
	s.Require().NoError(err)
	second, err := s.store.Insert(s.ctx, "user-1", s.fields("Second", "SN-PG-2"))
	s.Require().NoError(err)
	_, err = s.store.Insert(s.ctx, "user-2", s.fields("Foreign", "SN-PG-3"))
	s.Require().NoError(err)

	items, err := s.store.ListByUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal(second.ID, items[0].ID)
	s.Equal(first.ID, items[1].ID)
	s.Equal(item.StatusSafe, items[0].Status)
	s.False(items[0].CreatedAt.IsZero())
}

func (s *PostgresStoreSuite) TestUniqueSerialViolation() {
	_, err := s.store.Insert(s.ctx, "user-1", s.fields("Original", "SN-PG-DUP"))
	s.Require().NoError(err)

	_, err = s.store.Insert(s.ctx, "user-2", s.fields("Copy", "SN-PG-DUP"))
	s.Require().ErrorIs(err, sentinel.ErrDuplicateSerial)
}

func (s *PostgresStoreSuite) TestConcurrentInsertSameSerial() {
	const goroutines = 20
	var wg sync.WaitGroup
	var successes, conflicts atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Insert(s.ctx, "user-1", item.Fields{
				Name: "Raced", SerialNumber: "SN-PG-RACE", Status: item.StatusSafe,
			})
			switch {
			case err == nil:
				successes.Add(1)
			default:
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successes.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())
}

func (s *PostgresStoreSuite) TestUpdateScoping() {
	created, err := s.store.Insert(s.ctx, "user-1", s.fields("Owned", "SN-PG-UPD"))
	s.Require().NoError(err)

	stolen := item.StatusStolen
	updated, err := s.store.Update(s.ctx, "user-1", created.ID, item.Patch{Status: &stolen})
	s.Require().NoError(err)
	s.Equal(item.StatusStolen, updated.Status)
	s.True(updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))

	name := "hijack"
	_, err = s.store.Update(s.ctx, "user-2", created.ID, item.Patch{Name: &name})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDeleteScoping() {
	created, err := s.store.Insert(s.ctx, "user-1", s.fields("Doomed", "SN-PG-DEL"))
	s.Require().NoError(err)

	s.Require().ErrorIs(s.store.Delete(s.ctx, "user-2", created.ID), sentinel.ErrNotFound)
	s.Require().NoError(s.store.Delete(s.ctx, "user-1", created.ID))
	s.Require().ErrorIs(s.store.Delete(s.ctx, "user-1", created.ID), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSerialLookups() {
	created, err := s.store.Insert(s.ctx, "user-1", s.fields("Exact", "SN-PG-FIND"))
	s.Require().NoError(err)
	_, err = s.store.Insert(s.ctx, "user-2", s.fields("Partial", "sn-pg-findable"))
	s.Require().NoError(err)

	found, err := s.store.FindBySerial(s.ctx, "SN-PG-FIND")
	s.Require().NoError(err)
	s.Equal(created.ID, found.ID)

	_, err = s.store.FindBySerial(s.ctx, "SN-PG-MISSING")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	summaries, err := s.store.SearchBySerial(s.ctx, "pg-find")
	s.Require().NoError(err)
	s.Len(summaries, 2)
}

func (s *PostgresStoreSuite) TestSearchEscapesLikeWildcards() {
	_, err := s.store.Insert(s.ctx, "user-1", s.fields("Literal", "SN_%_1"))
	s.Require().NoError(err)
	_, err = s.store.Insert(s.ctx, "user-1", s.fields("Other", "SNX9Y1"))
	s.Require().NoError(err)

	summaries, err := s.store.SearchBySerial(s.ctx, "SN_%")
	s.Require().NoError(err)
	s.Require().Len(summaries, 1)
	s.Equal("SN_%_1", summaries[0].SerialNumber)
}

func (s *PostgresStoreSuite) TestUpdateUnknownID() {
	name := "x"
	_, err := s.store.Update(s.ctx, "user-1", uuid.New(), item.Patch{Name: &name})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
