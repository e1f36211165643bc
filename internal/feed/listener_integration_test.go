//go:build integration

package feed_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"catcher/internal/feed"
	"catcher/internal/item"
	"catcher/internal/item/store"
	"catcher/internal/platform/postgres"
	"catcher/pkg/testutil/containers"
)

// channelSubscriber exposes hub deliveries to the test goroutine.
type channelSubscriber struct {
	events  chan feed.Event
	resyncs chan struct{}
}

func newChannelSubscriber() *channelSubscriber {
	return &channelSubscriber{
		events:  make(chan feed.Event, 16),
		resyncs: make(chan struct{}, 16),
	}
}

func (c *channelSubscriber) Apply(ev feed.Event) { c.events <- ev }
func (c *channelSubscriber) Resync()             { c.resyncs <- struct{}{} }

type ListenerSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	hub      *feed.Hub
	cancel   context.CancelFunc
	ctx      context.Context
}

func TestListenerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ListenerSuite))
}

func (s *ListenerSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.Require().NoError(postgres.Migrate(s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
	s.hub = feed.NewHub()
	s.ctx = context.Background()

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	listener := feed.NewListener(s.postgres.DSN, s.hub, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	go func() { _ = listener.Run(runCtx) }()

	// Give LISTEN a moment to attach before the first mutation.
	time.Sleep(2 * time.Second)
}

func (s *ListenerSuite) TearDownSuite() {
	s.cancel()
	s.postgres.Terminate(s.T())
}

func (s *ListenerSuite) waitForEvent(sub *channelSubscriber) feed.Event {
	select {
	case ev := <-sub.events:
		return ev
	case <-time.After(10 * time.Second):
		s.FailNow("timed out waiting for feed event")
		return feed.Event{}
	}
}

func (s *ListenerSuite) TestRowMutationsReachTheMatchingUser() {
	sub := newChannelSubscriber()
	unsubscribe := s.hub.Subscribe("feed-user-1", sub)
	defer unsubscribe()

	other := newChannelSubscriber()
	unsubscribeOther := s.hub.Subscribe("feed-user-2", other)
	defer unsubscribeOther()

	created, err := s.store.Insert(s.ctx, "feed-user-1", item.Fields{
		Name: "Streamed", SerialNumber: "SN-FEED-" + s.T().Name(), Status: item.StatusSafe,
	})
	s.Require().NoError(err)

	ev := s.waitForEvent(sub)
	s.Equal(feed.KindInserted, ev.Kind)
	s.Equal("feed-user-1", ev.UserID)
	s.Require().NotNil(ev.Item)
	s.Equal(created.ID, ev.Item.ID)
	s.Equal(created.SerialNumber, ev.Item.SerialNumber)

	stolen := item.StatusStolen
	updated, err := s.store.Update(s.ctx, "feed-user-1", created.ID, item.Patch{Status: &stolen})
	s.Require().NoError(err)

	ev = s.waitForEvent(sub)
	s.Equal(feed.KindUpdated, ev.Kind)
	s.Require().NotNil(ev.Item)
	s.Equal(item.StatusStolen, ev.Item.Status)
	s.Equal(updated.ID, ev.Item.ID)

	s.Require().NoError(s.store.Delete(s.ctx, "feed-user-1", created.ID))

	ev = s.waitForEvent(sub)
	s.Equal(feed.KindDeleted, ev.Kind)
	s.Equal(created.ID, ev.ItemID)
	s.Nil(ev.Item)

	// The other user saw none of it.
	select {
	case ev := <-other.events:
		s.Failf("unexpected cross-user event", "%+v", ev)
	default:
	}
}
