package handler

import (
	"context"
	"fmt"
	"time"

	"caregiver-companion/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// WebhookForwarder posts alerts to the caregiver endpoint with a bearer key.
type WebhookForwarder struct {
	httpClient *resty.Client
	url        string
	logger     *zap.Logger
}

func NewWebhookForwarder(url, apiKey string, logger *zap.Logger) *WebhookForwarder {
	client := resty.New().
		SetTimeout(15*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &WebhookForwarder{httpClient: client, url: url, logger: logger}
}

func (w *WebhookForwarder) PublishAlert(ctx context.Context, alert models.EmergencyAlert) error {
	resp, err := w.httpClient.R().
		SetContext(ctx).
		SetBody(alert).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("send alert to webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned non-success status: %s", resp.Status())
	}
	w.logger.Info("alert sent to webhook",
		zap.String("alert_id", alert.ID),
		zap.Int("status_code", resp.StatusCode()))
	return nil
}
