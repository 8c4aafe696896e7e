// Package emergency raises patient alerts, stores them and fans them out to
// caregivers over every configured channel.
package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caregiver-companion/internal/gateway"
	"caregiver-companion/internal/metrics"
	"caregiver-companion/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDeliveryFailed means the alert was stored but no caregiver channel
// accepted it, including when none is configured.
var ErrDeliveryFailed = errors.New("emergency alert could not be delivered")

type AlertStore interface {
	SaveAlert(ctx context.Context, a models.EmergencyAlert) error
	AcknowledgeAlert(ctx context.Context, id, by string, at time.Time) (models.EmergencyAlert, error)
	ListAlerts(ctx context.Context, ownerID string) ([]models.EmergencyAlert, error)
}

type Publisher interface {
	PublishAlert(ctx context.Context, alert models.EmergencyAlert) error
}

type ViewSource interface {
	View() models.View
}

type Notifier interface {
	Notify(n models.Notification)
}

type AlertRequest struct {
	Message  string `json:"message" validate:"required,max=500"`
	Location string `json:"location" validate:"max=200"`
}

type namedPublisher struct {
	name string
	pub  Publisher
}

type Service struct {
	store      AlertStore
	views      ViewSource
	notifier   Notifier
	metrics    *metrics.Collector
	logger     *zap.Logger
	publishers []namedPublisher
	echoes     []namedPublisher
	now        func() time.Time
}

func NewService(store AlertStore, views ViewSource, notifier Notifier, collector *metrics.Collector, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		views:    views,
		notifier: notifier,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
	}
}

// AddPublisher registers a caregiver delivery channel. Call before serving
// traffic. An alert counts as sent only when one of these accepts it.
func (s *Service) AddPublisher(name string, p Publisher) {
	s.publishers = append(s.publishers, namedPublisher{name: name, pub: p})
}

// AddEcho registers a channel that mirrors stored alerts back to the
// patient's own clients. Echo results never decide delivery.
func (s *Service) AddEcho(name string, p Publisher) {
	s.echoes = append(s.echoes, namedPublisher{name: name, pub: p})
}

// Send stores a new alert carrying the owner's current readings and
// delivers it. The stored alert is returned even when delivery fails.
func (s *Service) Send(ctx context.Context, ownerID string, req AlertRequest) (models.EmergencyAlert, error) {
	if ownerID == "" {
		return models.EmergencyAlert{}, gateway.ErrNotAuthenticated
	}

	snap := models.NewPlaceholderSnapshot()
	if v := s.views.View(); v.OwnerID == ownerID {
		snap = v.Snapshot
	}
	alert := models.EmergencyAlert{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Message:   req.Message,
		Location:  req.Location,
		Snapshot:  snap,
		Status:    models.AlertPending,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.SaveAlert(ctx, alert); err != nil {
		s.metrics.Alerts.WithLabelValues("store_error").Inc()
		return models.EmergencyAlert{}, fmt.Errorf("store alert: %w", err)
	}

	delivered := 0
	for _, p := range s.publishers {
		if err := p.pub.PublishAlert(ctx, alert); err != nil {
			s.logger.Warn("alert delivery failed",
				zap.String("channel", p.name),
				zap.String("alert_id", alert.ID),
				zap.Error(err))
			continue
		}
		delivered++
	}

	for _, e := range s.echoes {
		if err := e.pub.PublishAlert(ctx, alert); err != nil {
			s.logger.Debug("alert echo failed", zap.String("channel", e.name), zap.Error(err))
		}
	}

	if delivered == 0 {
		s.metrics.Alerts.WithLabelValues("failed").Inc()
		s.logger.Error("alert stored but not delivered",
			zap.String("alert_id", alert.ID),
			zap.String("owner_id", ownerID),
			zap.Int("channels", len(s.publishers)))
		return alert, ErrDeliveryFailed
	}

	s.metrics.Alerts.WithLabelValues("delivered").Inc()
	s.notifier.Notify(models.Notification{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Kind:        models.NotifyAlertSent,
		Level:       models.LevelWarning,
		Message:     "Emergency alert sent to caregivers",
		Dismissible: true,
		Time:        s.now(),
	})
	s.logger.Info("emergency alert sent",
		zap.String("alert_id", alert.ID),
		zap.String("owner_id", ownerID),
		zap.Int("channels", delivered))
	return alert, nil
}

func (s *Service) Acknowledge(ctx context.Context, alertID, by string) (models.EmergencyAlert, error) {
	alert, err := s.store.AcknowledgeAlert(ctx, alertID, by, s.now())
	if err != nil {
		return models.EmergencyAlert{}, err
	}
	message := "Emergency alert acknowledged"
	if by != "" {
		message = fmt.Sprintf("Emergency alert acknowledged by %s", by)
	}
	s.notifier.Notify(models.Notification{
		ID:          uuid.NewString(),
		OwnerID:     alert.OwnerID,
		Kind:        models.NotifyAlertAcknowledge,
		Level:       models.LevelInfo,
		Message:     message,
		Dismissible: true,
		Time:        s.now(),
	})
	s.logger.Info("emergency alert acknowledged", zap.String("alert_id", alertID), zap.String("by", by))
	return alert, nil
}

// HandleAck applies an acknowledgement received from a message bus.
func (s *Service) HandleAck(ctx context.Context, ack models.AlertAck) {
	if ack.AlertID == "" {
		s.logger.Warn("ignoring acknowledgement without alert id")
		return
	}
	if _, err := s.Acknowledge(ctx, ack.AlertID, ack.By); err != nil {
		s.logger.Warn("failed to acknowledge alert", zap.String("alert_id", ack.AlertID), zap.Error(err))
	}
}

// List returns the owner's alerts, newest first.
func (s *Service) List(ctx context.Context, ownerID string) ([]models.EmergencyAlert, error) {
	if ownerID == "" {
		return nil, gateway.ErrNotAuthenticated
	}
	return s.store.ListAlerts(ctx, ownerID)
}
