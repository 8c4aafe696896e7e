package emergency

import (
	"context"
	"errors"
	"sync"
	"testing"

	"caregiver-companion/internal/database"
	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/metrics"
	"caregiver-companion/internal/models"
	"caregiver-companion/internal/notify"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticView models.View

func (v staticView) View() models.View { return models.View(v) }

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []models.Notification
}

func (r *recordingNotifier) Notify(n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

type fakePublisher struct {
	err    error
	alerts []models.EmergencyAlert
}

func (p *fakePublisher) PublishAlert(_ context.Context, a models.EmergencyAlert) error {
	if p.err != nil {
		return p.err
	}
	p.alerts = append(p.alerts, a)
	return nil
}

func newTestService(t *testing.T, view models.View) (*Service, *recordingNotifier, *metrics.Collector) {
	t.Helper()
	repo, err := database.NewRepository(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	notifier := &recordingNotifier{}
	collector := metrics.NewCollector("test")
	return NewService(repo, staticView(view), notifier, collector, zap.NewNop()), notifier, collector
}

func TestService_Send(t *testing.T) {
	view := models.View{OwnerID: "patient-1", Snapshot: models.SensorSnapshot{HeartRate: models.IntPtr(88)}}
	svc, notifier, collector := newTestService(t, view)
	ok := &fakePublisher{}
	svc.AddPublisher("kafka", &fakePublisher{err: errors.New("broker down")})
	svc.AddPublisher("mqtt", ok)
	ctx := context.Background()

	alert, err := svc.Send(ctx, "patient-1", AlertRequest{Message: "I fell", Location: "bathroom"})
	require.NoError(t, err)
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, models.AlertPending, alert.Status)
	assert.Equal(t, 88, *alert.Snapshot.HeartRate)

	require.Len(t, ok.alerts, 1)
	assert.Equal(t, alert.ID, ok.alerts[0].ID)
	require.Len(t, notifier.notifications, 1)
	assert.Equal(t, models.NotifyAlertSent, notifier.notifications[0].Kind)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Alerts.WithLabelValues("delivered")))

	list, err := svc.List(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bathroom", list[0].Location)
}

func TestService_SendUsesPlaceholderForOtherOwner(t *testing.T) {
	view := models.View{OwnerID: "someone-else", Snapshot: models.SensorSnapshot{HeartRate: models.IntPtr(88)}}
	svc, _, _ := newTestService(t, view)
	svc.AddPublisher("kafka", &fakePublisher{})

	alert, err := svc.Send(context.Background(), "patient-1", AlertRequest{Message: "help"})
	require.NoError(t, err)
	assert.Nil(t, alert.Snapshot.HeartRate)
}

func TestService_SendAllChannelsFail(t *testing.T) {
	svc, notifier, collector := newTestService(t, models.View{})
	svc.AddPublisher("webhook", &fakePublisher{err: errors.New("timeout")})
	ctx := context.Background()

	alert, err := svc.Send(ctx, "patient-1", AlertRequest{Message: "help"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.NotEmpty(t, alert.ID)
	assert.Empty(t, notifier.notifications)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Alerts.WithLabelValues("failed")))

	list, err := svc.List(ctx, "patient-1")
	require.NoError(t, err)
	assert.Len(t, list, 1, "undelivered alerts are still stored")
}

func TestService_EchoDoesNotCountAsDelivery(t *testing.T) {
	svc, notifier, collector := newTestService(t, models.View{})
	hub := notify.NewHub(4, zap.NewNop())
	events, cancel := hub.Subscribe("patient-1")
	defer cancel()
	svc.AddPublisher("webhook", &fakePublisher{err: errors.New("connection refused")})
	svc.AddEcho("websocket", hub)

	alert, err := svc.Send(context.Background(), "patient-1", AlertRequest{Message: "help"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Empty(t, notifier.notifications)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Alerts.WithLabelValues("failed")))

	require.Len(t, events, 1)
	ev := <-events
	require.Equal(t, notify.EventAlert, ev.Type)
	assert.Equal(t, alert.ID, ev.Alert.ID)
}

func TestService_SendWithoutCaregiverChannels(t *testing.T) {
	svc, notifier, _ := newTestService(t, models.View{})
	svc.AddEcho("websocket", notify.NewHub(4, zap.NewNop()))

	alert, err := svc.Send(context.Background(), "patient-1", AlertRequest{Message: "help"})
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.NotEmpty(t, alert.ID)
	assert.Empty(t, notifier.notifications)
}

func TestService_SendRequiresOwner(t *testing.T) {
	svc, _, _ := newTestService(t, models.View{})
	_, err := svc.Send(context.Background(), "", AlertRequest{Message: "help"})
	assert.ErrorIs(t, err, gateway.ErrNotAuthenticated)
	_, err = svc.List(context.Background(), "")
	assert.ErrorIs(t, err, gateway.ErrNotAuthenticated)
}

func TestService_Acknowledge(t *testing.T) {
	svc, notifier, _ := newTestService(t, models.View{})
	svc.AddPublisher("kafka", &fakePublisher{})
	ctx := context.Background()
	alert, err := svc.Send(ctx, "patient-1", AlertRequest{Message: "help"})
	require.NoError(t, err)

	svc.HandleAck(ctx, models.AlertAck{AlertID: alert.ID, By: "nurse-7"})
	svc.HandleAck(ctx, models.AlertAck{})

	list, err := svc.List(ctx, "patient-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.AlertAcknowledged, list[0].Status)
	assert.Equal(t, "nurse-7", list[0].AcknowledgedBy)

	last := notifier.notifications[len(notifier.notifications)-1]
	assert.Equal(t, models.NotifyAlertAcknowledge, last.Kind)
	assert.Equal(t, "patient-1", last.OwnerID)

	_, err = svc.Acknowledge(ctx, "missing", "nurse-7")
	assert.ErrorIs(t, err, database.ErrAlertNotFound)
}
