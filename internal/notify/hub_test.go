package notify

import (
	"context"
	"testing"

	"caregiver-companion/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSink struct {
	views         int
	notifications int
}

func (s *countingSink) Render(models.View)         { s.views++ }
func (s *countingSink) Notify(models.Notification) { s.notifications++ }

func TestHub_DeliversToOwner(t *testing.T) {
	h := NewHub(4, zap.NewNop())
	alice, cancelAlice := h.Subscribe("alice")
	defer cancelAlice()
	bob, cancelBob := h.Subscribe("bob")
	defer cancelBob()

	h.Render(models.View{OwnerID: "alice", Pulse: 3})
	h.Notify(models.Notification{OwnerID: "alice", Kind: models.NotifyConnected})

	ev := <-alice
	require.Equal(t, EventView, ev.Type)
	assert.Equal(t, 3, ev.View.Pulse)
	ev = <-alice
	require.Equal(t, EventNotification, ev.Type)
	assert.Equal(t, models.NotifyConnected, ev.Notification.Kind)

	assert.Empty(t, bob)
}

func TestHub_SubscribeReplaysLatestView(t *testing.T) {
	h := NewHub(4, zap.NewNop())
	h.Render(models.View{OwnerID: "alice", Pulse: 7})

	events, cancel := h.Subscribe("alice")
	defer cancel()
	ev := <-events
	assert.Equal(t, 7, ev.View.Pulse)
	assert.Equal(t, 7, h.Latest().Pulse)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(1, zap.NewNop())
	events, cancel := h.Subscribe("alice")

	for i := 0; i < 10; i++ {
		h.Render(models.View{OwnerID: "alice", Pulse: i})
	}
	assert.Len(t, events, 1)

	cancel()
	cancel()
	_, open := <-events
	assert.True(t, open)
	_, open = <-events
	assert.False(t, open)
}

func TestHub_SinksAndAlerts(t *testing.T) {
	h := NewHub(4, zap.NewNop())
	sink := &countingSink{}
	h.AddSink(sink)
	events, cancel := h.Subscribe("alice")
	defer cancel()

	h.Render(models.View{OwnerID: "alice"})
	h.Notify(models.Notification{OwnerID: "alice"})
	require.NoError(t, h.PublishAlert(context.Background(), models.EmergencyAlert{ID: "a1", OwnerID: "alice"}))

	assert.Equal(t, 1, sink.views)
	assert.Equal(t, 1, sink.notifications)
	<-events
	<-events
	ev := <-events
	require.Equal(t, EventAlert, ev.Type)
	assert.Equal(t, "a1", ev.Alert.ID)
}

func TestHub_DropsEventsWithoutOwner(t *testing.T) {
	h := NewHub(4, zap.NewNop())
	sink := &countingSink{}
	h.AddSink(sink)
	alice, cancel := h.Subscribe("alice")
	defer cancel()

	h.Render(models.View{Pulse: 2})
	h.Notify(models.Notification{Kind: models.NotifyConnecting})
	require.NoError(t, h.PublishAlert(context.Background(), models.EmergencyAlert{ID: "a1"}))

	assert.Empty(t, alice)
	assert.Equal(t, 1, sink.views)
}
