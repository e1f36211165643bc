package feed

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
)

type DecodeEventSuite struct {
	suite.Suite
}

func TestDecodeEventSuite(t *testing.T) {
	suite.Run(t, new(DecodeEventSuite))
}

func (s *DecodeEventSuite) TestDecodesTriggerPayloads() {
	s.Run("insert carries the full row", func() {
		id := uuid.New()
		payload := []byte(`{
			"kind": "inserted",
			"user_id": "user-1",
			"item": {"id": "` + id.String() + `", "name": "Laptop", "serial_number": "SN-1", "status": "safe", "user_id": "user-1"}
		}`)

		ev, err := DecodeEvent(payload)
		s.Require().NoError(err)
		s.Equal(KindInserted, ev.Kind)
		s.Equal("user-1", ev.UserID)
		s.Require().NotNil(ev.Item)
		s.Equal(id, ev.Item.ID)
		s.Equal(id, ev.ItemID)
	})

	s.Run("delete carries only the row id", func() {
		id := uuid.New()
		payload := []byte(`{"kind": "deleted", "user_id": "user-1", "item_id": "` + id.String() + `"}`)

		ev, err := DecodeEvent(payload)
		s.Require().NoError(err)
		s.Equal(KindDeleted, ev.Kind)
		s.Nil(ev.Item)
		s.Equal(id, ev.ItemID)
	})
}

func (s *DecodeEventSuite) TestRejectsMalformedPayloads() {
	cases := []struct {
		name    string
		payload string
	}{
		{"not json", `{broken`},
		{"unknown kind", `{"kind": "truncated", "user_id": "u"}`},
		{"insert without item", `{"kind": "inserted", "user_id": "u"}`},
		{"update without item", `{"kind": "updated", "user_id": "u"}`},
		{"delete without item_id", `{"kind": "deleted", "user_id": "u"}`},
		{"missing user_id", `{"kind": "deleted", "item_id": "` + uuid.NewString() + `"}`},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			_, err := DecodeEvent([]byte(tc.payload))
			s.Require().Error(err)
		})
	}
}

// recordingSubscriber captures what the hub delivers.
type recordingSubscriber struct {
	events  []Event
	resyncs int
}

func (r *recordingSubscriber) Apply(ev Event) { r.events = append(r.events, ev) }
func (r *recordingSubscriber) Resync()        { r.resyncs++ }

type HubSuite struct {
	suite.Suite
	hub *Hub
}

func (s *HubSuite) SetupTest() {
	s.hub = NewHub()
}

func TestHubSuite(t *testing.T) {
	suite.Run(t, new(HubSuite))
}

func (s *HubSuite) TestDispatchRoutesByUser() {
	sub1 := &recordingSubscriber{}
	sub2 := &recordingSubscriber{}
	s.hub.Subscribe("user-1", sub1)
	s.hub.Subscribe("user-2", sub2)

	s.hub.Dispatch(Event{Kind: KindDeleted, UserID: "user-1", ItemID: uuid.New()})

	s.Len(sub1.events, 1)
	s.Empty(sub2.events)
}

func (s *HubSuite) TestDispatchWithNoSubscribersIsDropped() {
	s.NotPanics(func() {
		s.hub.Dispatch(Event{Kind: KindDeleted, UserID: "nobody", ItemID: uuid.New()})
	})
}

func (s *HubSuite) TestUnsubscribeStopsDelivery() {
	sub := &recordingSubscriber{}
	unsubscribe := s.hub.Subscribe("user-1", sub)
	s.Equal(1, s.hub.Subscribers("user-1"))

	unsubscribe()
	s.Equal(0, s.hub.Subscribers("user-1"))

	s.hub.Dispatch(Event{Kind: KindDeleted, UserID: "user-1", ItemID: uuid.New()})
	s.Empty(sub.events)
}

func (s *HubSuite) TestMultipleSubscribersPerUser() {
	a := &recordingSubscriber{}
	b := &recordingSubscriber{}
	s.hub.Subscribe("user-1", a)
	unsubscribeB := s.hub.Subscribe("user-1", b)

	s.hub.Dispatch(Event{Kind: KindDeleted, UserID: "user-1", ItemID: uuid.New()})
	s.Len(a.events, 1)
	s.Len(b.events, 1)

	unsubscribeB()
	s.hub.Dispatch(Event{Kind: KindDeleted, UserID: "user-1", ItemID: uuid.New()})
	s.Len(a.events, 2)
	s.Len(b.events, 1)
}

func (s *HubSuite) TestResyncAllReachesEverySubscriber() {
	a := &recordingSubscriber{}
	b := &recordingSubscriber{}
	s.hub.Subscribe("user-1", a)
	s.hub.Subscribe("user-2", b)

	s.hub.ResyncAll()

	s.Equal(1, a.resyncs)
	s.Equal(1, b.resyncs)
}
