package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/moviesync/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCycleFailureRate AlertType = "cycle_failure_rate"
	AlertCycleFailure     AlertType = "cycle_failure"
	AlertStaleCollection  AlertType = "stale_collection"
	AlertRefreshBacklog   AlertType = "refresh_backlog"
)

// minFinishedCycles is the sample size below which the failure rate is not
// evaluated.
const minFinishedCycles = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a Snapshot against configured thresholds and sends
// alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	var alerts []Alert
	now := snap.CollectedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	finished := snap.CyclesComplete + snap.CyclesFailed
	if finished >= minFinishedCycles && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertCycleFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Cycle failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.CyclesFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.CyclesFailed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	} else if snap.CyclesFailed > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertCycleFailure,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d collection cycle(s) failed in last %dh",
				snap.CyclesFailed, snap.LookbackHours,
			),
			Details: map[string]any{
				"failed_count": snap.CyclesFailed,
				"total_cycles": snap.CyclesTotal,
				"last_error":   snap.LastError,
			},
			Timestamp: now,
		})
	}

	// No completed cycle inside the window while movies are waiting.
	if snap.Movies.Total > 0 && snap.CyclesComplete == 0 && snap.CyclesRunning == 0 {
		details := map[string]any{"lookback_hours": snap.LookbackHours}
		if snap.LastSuccess != nil {
			details["last_success"] = snap.LastSuccess.Format(time.RFC3339)
		}
		alerts = append(alerts, Alert{
			Type:      AlertStaleCollection,
			Severity:  "high",
			Message:   fmt.Sprintf("No collection cycle completed in last %dh", snap.LookbackHours),
			Details:   details,
			Timestamp: now,
		})
	}

	if a.cfg.BacklogThreshold > 0 && int64(snap.Due) > a.cfg.BacklogThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRefreshBacklog,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d movies due for refresh exceeds threshold %d",
				snap.Due, a.cfg.BacklogThreshold,
			),
			Details: map[string]any{
				"due":             snap.Due,
				"threshold":       a.cfg.BacklogThreshold,
				"never_refreshed": snap.Movies.NeverRefreshed,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
