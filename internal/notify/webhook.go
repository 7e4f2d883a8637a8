package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/geotrack/geotrack-server/internal/config"
	"github.com/geotrack/geotrack-server/internal/models"
	"github.com/geotrack/geotrack-server/internal/storage"
)

// Notifier fans geofence alerts out to external consumers: a NATS subject
// for in-cluster listeners and an optional HTTP webhook. Delivery is
// best-effort; failures are logged and never block the ingest path.
type Notifier struct {
	nc         *nats.Conn
	store      storage.Store
	webhookURL string
	httpClient *http.Client
}

// NewNotifier creates an alert notifier. nc may be nil and webhook URL may
// be empty; whatever is configured gets used.
func NewNotifier(nc *nats.Conn, store storage.Store, cfg *config.WebhookConfig) *Notifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		nc:         nc,
		store:      store,
		webhookURL: cfg.URL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PublishAlert delivers one alert to all configured sinks
func (n *Notifier) PublishAlert(ctx context.Context, alert *models.GeofenceAlert) error {
	device, err := n.store.GetDevice(ctx, alert.DeviceID)
	if err != nil {
		return fmt.Errorf("get device: %w", err)
	}

	payload, err := json.Marshal(map[string]interface{}{
		"device_id":   device.ExternalID,
		"device_name": device.Name,
		"alert":       alert,
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	if n.nc != nil {
		subject := fmt.Sprintf("tracking.alerts.%s", device.ExternalID)
		if err := n.nc.Publish(subject, payload); err != nil {
			log.Error().Err(err).Str("subject", subject).Msg("Failed to publish alert to NATS")
		}
	}

	if n.webhookURL != "" {
		go n.forwardToWebhook(payload)
	}

	return nil
}

// forwardToWebhook posts the alert payload to the configured endpoint
func (n *Notifier) forwardToWebhook(payload []byte) {
	req, err := http.NewRequest(http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Msg("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", n.webhookURL).Msg("Webhook delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Warn().
			Int("status", resp.StatusCode).
			Str("url", n.webhookURL).
			Msg("Webhook returned non-success status")
		return
	}

	log.Debug().Str("url", n.webhookURL).Msg("Alert forwarded to webhook")
}
