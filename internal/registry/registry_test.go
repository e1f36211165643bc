package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"catcher/internal/feed"
	"catcher/internal/item"
	itemstore "catcher/internal/item/store"
	dErrors "catcher/pkg/domain-errors"
)

type RegistrySuite struct {
	suite.Suite
	backend *itemstore.Memory
	store   *Store
	ctx     context.Context
}

func (s *RegistrySuite) SetupTest() {
	s.backend = itemstore.NewMemory()
	s.store = New("user-1", s.backend, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.ctx = context.Background()
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) create(name, serial string) item.Item {
	created, err := s.store.Create(s.ctx, item.Fields{Name: name, SerialNumber: serial})
	s.Require().NoError(err)
	return created
}

func (s *RegistrySuite) TestCreateAndList() {
	s.Run("new items appear first", func() {
		first := s.create("First", "SN-1")
		second := s.create("Second", "SN-2")

		items := s.store.List()
		s.Require().Len(items, 2)
		s.Equal(second.ID, items[0].ID)
		s.Equal(first.ID, items[1].ID)
	})

	s.Run("a rejected create leaves the cache untouched", func() {
		s.create("Original", "SN-DUP")
		before := s.store.List()

		_, err := s.store.Create(s.ctx, item.Fields{Name: "Copy", SerialNumber: "SN-DUP"})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeDuplicateSerial))
		s.Equal(before, s.store.List())
	})

	s.Run("invalid fields never reach the backing store", func() {
		_, err := s.store.Create(s.ctx, item.Fields{SerialNumber: "SN-NO-NAME"})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
		s.Empty(s.store.List())
	})
}

func (s *RegistrySuite) TestLoad() {
	seeded, err := s.backend.Insert(s.ctx, "user-1", item.Fields{Name: "Seeded", SerialNumber: "SN-SEED", Status: item.StatusSafe})
	s.Require().NoError(err)
	_, err = s.backend.Insert(s.ctx, "user-2", item.Fields{Name: "Foreign", SerialNumber: "SN-OTHER", Status: item.StatusSafe})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Load(s.ctx))

	items := s.store.List()
	s.Require().Len(items, 1)
	s.Equal(seeded.ID, items[0].ID)
}

func (s *RegistrySuite) TestUpdateAndRemove() {
	s.Run("update replaces the cached item in place", func() {
		first := s.create("First", "SN-U1")
		second := s.create("Second", "SN-U2")

		name := "First, renamed"
		updated, err := s.store.Update(s.ctx, first.ID, item.Patch{Name: &name})
		s.Require().NoError(err)
		s.Equal("First, renamed", updated.Name)

		items := s.store.List()
		s.Require().Len(items, 2)
		s.Equal(second.ID, items[0].ID)
		s.Equal("First, renamed", items[1].Name)
	})

	s.Run("empty update is rejected", func() {
		created := s.create("Untouched", "SN-U3")
		_, err := s.store.Update(s.ctx, created.ID, item.Patch{})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeBadRequest))
	})

	s.Run("update of an unknown item is not found", func() {
		name := "x"
		_, err := s.store.Update(s.ctx, uuid.New(), item.Patch{Name: &name})
		s.Require().Error(err)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("remove drops the item from cache and store", func() {
		created := s.create("Doomed", "SN-DOOM")
		s.Require().NoError(s.store.Remove(s.ctx, created.ID))

		_, found := s.store.GetBySerial("SN-DOOM")
		s.False(found)

		remaining, err := s.backend.ListByUser(s.ctx, "user-1")
		s.Require().NoError(err)
		for _, it := range remaining {
			s.NotEqual(created.ID, it.ID)
		}
	})
}

func (s *RegistrySuite) TestSetStatus() {
	created := s.create("Toggle", "SN-TOGGLE")
	s.Equal(item.StatusSafe, created.Status)

	updated, err := s.store.SetStatus(s.ctx, created.ID, item.StatusStolen)
	s.Require().NoError(err)
	s.Equal(item.StatusStolen, updated.Status)

	// Repeating the current status is accepted.
	again, err := s.store.SetStatus(s.ctx, created.ID, item.StatusStolen)
	s.Require().NoError(err)
	s.Equal(item.StatusStolen, again.Status)

	_, err = s.store.SetStatus(s.ctx, created.ID, item.Status("lost"))
	s.Require().Error(err)
	s.True(dErrors.Is(err, dErrors.CodeBadRequest))
}

func (s *RegistrySuite) TestGetBySerial() {
	created := s.create("Cased", "SN-MixedCase")

	found, ok := s.store.GetBySerial("sn-mixedcase")
	s.Require().True(ok)
	s.Equal(created.ID, found.ID)

	_, ok = s.store.GetBySerial("SN-Mixed")
	s.False(ok)
}

func (s *RegistrySuite) TestApply() {
	s.Run("insert event prepends an unseen item", func() {
		existing := s.create("Existing", "SN-A1")

		incoming := item.Item{ID: uuid.New(), Name: "From feed", SerialNumber: "SN-A2", Status: item.StatusSafe, UserID: "user-1"}
		s.store.Apply(feed.Event{Kind: feed.KindInserted, UserID: "user-1", Item: &incoming, ItemID: incoming.ID})

		items := s.store.List()
		s.Require().Len(items, 2)
		s.Equal(incoming.ID, items[0].ID)
		s.Equal(existing.ID, items[1].ID)
	})

	s.Run("insert echo of an own mutation is a no-op", func() {
		newest := s.create("Newest", "SN-B2")
		before := s.store.List()
		older := before[len(before)-1]

		echo := older
		s.store.Apply(feed.Event{Kind: feed.KindInserted, UserID: "user-1", Item: &echo, ItemID: echo.ID})

		items := s.store.List()
		s.Require().Equal(len(before), len(items))
		s.Equal(newest.ID, items[0].ID)
		s.Equal(older.ID, items[len(items)-1].ID)
	})

	s.Run("update event replaces in place, preserving order", func() {
		items := s.store.List()
		s.Require().NotEmpty(items)
		target := items[len(items)-1]
		target.Name = "Renamed by feed"

		s.store.Apply(feed.Event{Kind: feed.KindUpdated, UserID: "user-1", Item: &target, ItemID: target.ID})

		after := s.store.List()
		s.Require().Equal(len(items), len(after))
		s.Equal(items[0].ID, after[0].ID)
		s.Equal("Renamed by feed", after[len(after)-1].Name)
	})

	s.Run("update event for an unseen item prepends it", func() {
		unseen := item.Item{ID: uuid.New(), Name: "Unseen", SerialNumber: "SN-C1", Status: item.StatusStolen, UserID: "user-1"}
		before := len(s.store.List())

		s.store.Apply(feed.Event{Kind: feed.KindUpdated, UserID: "user-1", Item: &unseen, ItemID: unseen.ID})

		items := s.store.List()
		s.Require().Len(items, before+1)
		s.Equal(unseen.ID, items[0].ID)
	})

	s.Run("delete event removes the item and is idempotent", func() {
		items := s.store.List()
		s.Require().NotEmpty(items)
		victim := items[0]

		ev := feed.Event{Kind: feed.KindDeleted, UserID: "user-1", ItemID: victim.ID}
		s.store.Apply(ev)
		s.store.Apply(ev)

		for _, it := range s.store.List() {
			s.NotEqual(victim.ID, it.ID)
		}
	})

	s.Run("events for another user are ignored", func() {
		before := s.store.List()

		foreign := item.Item{ID: uuid.New(), Name: "Foreign", SerialNumber: "SN-F1", Status: item.StatusSafe, UserID: "user-2"}
		s.store.Apply(feed.Event{Kind: feed.KindInserted, UserID: "user-2", Item: &foreign, ItemID: foreign.ID})

		s.Equal(before, s.store.List())
	})
}

func (s *RegistrySuite) TestResync() {
	s.create("Cached", "SN-R1")

	// The backing store moves on while the feed is down.
	_, err := s.backend.Insert(s.ctx, "user-1", item.Fields{Name: "Missed", SerialNumber: "SN-R2", Status: item.StatusSafe})
	s.Require().NoError(err)

	s.store.Resync()

	items := s.store.List()
	s.Require().Len(items, 2)
	s.Equal("Missed", items[0].Name)
}
