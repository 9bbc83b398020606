package alertsmanager

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/arkade-os/custodyd/internal/core/ports"
)

const (
	serviceName = "custodyd"

	severityInfo    = "info"
	severityWarning = "warning"

	maxRetries = 5
)

type Alert struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    time.Time         `json:"startsAt"`
}

type service struct {
	baseUrl    string
	httpClient *http.Client
	baseDelay  time.Duration
}

func NewService(alertManagerURL string) ports.Alerts {
	return &service{
		baseUrl: alertManagerURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseDelay: 100 * time.Millisecond,
	}
}

func (s *service) Publish(ctx context.Context, topic ports.Topic, message any) error {
	labels := map[string]string{
		"alertname": string(topic),
		"service":   serviceName,
		"severity":  severityInfo,
	}

	desc := ""
	annotations := map[string]string{}
	switch topic {
	case ports.VaultShortfall:
		annotations["firing_title"] = "⚠️ Vault Shortfall"
		m, ok := message.(ports.VaultShortfallAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatVaultShortfallAlert(m)
		labels["severity"] = severityWarning
		labels["subject"] = m.Subject
		labels["custodian_id"] = m.CustodianId
	case ports.AuctionStarted:
		annotations["firing_title"] = "🔨 Auction Started"
		m, ok := message.(ports.AuctionStartedAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatAuctionStartedAlert(m)
		labels["offer_id"] = m.OfferId
	case ports.AuctionFinished:
		annotations["firing_title"] = "🎯 Auction Finished"
		m, ok := message.(ports.AuctionFinishedAlert)
		if !ok {
			return fmt.Errorf("invalid message type: %T", message)
		}
		desc = formatAuctionFinishedAlert(m)
		labels["offer_id"] = m.OfferId
	default:
		annotations["firing_title"] = fmt.Sprintf("🔔 %s", topic)
		desc = formatGenericAlert(map[string]any{"event": message})
	}

	annotations["description"] = desc
	alert := Alert{
		Labels:      labels,
		Annotations: annotations,
		StartsAt:    time.Now(),
	}

	if err := s.sendAlert(ctx, alert); err != nil {
		return fmt.Errorf("failed to send alert to AlertManager: %w", err)
	}

	return nil
}

func (s *service) sendAlert(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal([]Alert{alert})
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	for attempt := range maxRetries {
		req, err := http.NewRequestWithContext(ctx, "POST", s.baseUrl, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			if attempt < maxRetries-1 {
				if err := s.backoff(ctx, attempt); err != nil {
					return err
				}
				continue
			}
			return fmt.Errorf("failed to send alert after %d attempts: %w", maxRetries, err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		// Only server errors are worth retrying.
		if resp.StatusCode >= 500 && attempt < maxRetries-1 {
			if err := s.backoff(ctx, attempt); err != nil {
				return err
			}
			continue
		}

		return fmt.Errorf(
			"failed to send alert to AlertManager with status %d after %d attempts",
			resp.StatusCode, attempt+1,
		)
	}

	return fmt.Errorf("failed to send alert after %d attempts", maxRetries)
}

// backoff waits 100ms, 200ms, 400ms... unless ctx is done first.
func (s *service) backoff(ctx context.Context, attempt int) error {
	delay := s.baseDelay * time.Duration(1<<uint(attempt))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func formatVaultShortfallAlert(data ports.VaultShortfallAlert) string {
	lines := []string{
		fmt.Sprintf("*Vault:* `%s`", data.Subject),
		fmt.Sprintf("*Custodian:* `%s`", data.CustodianId),
		"\n*Release:*",
		fmt.Sprintf("• Paid out: %d", data.Payoff),
		fmt.Sprintf("• Periods covered: %d/%d", data.CoveredPeriods, data.ElapsedPeriods),
		fmt.Sprintf("• Remaining balance: %d", data.Balance),
	}
	return strings.Join(lines, "\n")
}

func formatAuctionStartedAlert(data ports.AuctionStartedAlert) string {
	lines := []string{
		fmt.Sprintf("*Offer:* `%s`", data.OfferId),
		fmt.Sprintf("• Round: %d", data.Round),
		fmt.Sprintf("• Fractions on sale: %d", data.Fractions),
		fmt.Sprintf("• Started at: %s", data.StartedAt),
		fmt.Sprintf("• Ends at: %s", data.EndsAt),
	}
	return strings.Join(lines, "\n")
}

func formatAuctionFinishedAlert(data ports.AuctionFinishedAlert) string {
	lines := []string{
		fmt.Sprintf("*Offer:* `%s`", data.OfferId),
		fmt.Sprintf("• Round: %d", data.Round),
		fmt.Sprintf("• Winner: %s", data.Winner),
		fmt.Sprintf("• Winning bid: %d", data.Amount),
		fmt.Sprintf("• Fractions: %d", data.Fractions),
	}
	if data.Restarted {
		lines = append(lines, "\nPer-item balance still below the liquidation threshold, "+
			"a new round was started.")
	}
	return strings.Join(lines, "\n")
}

func formatGenericAlert(data map[string]any) string {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("• %s: %v", key, data[key]))
	}
	return strings.Join(lines, "\n")
}
