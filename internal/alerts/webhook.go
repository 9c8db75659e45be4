package alerts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// deliveryAttempts bounds how often one webhook is tried for one alert event.
const deliveryAttempts = 3

// errPermanent marks a delivery the receiver rejected; retrying cannot help.
var errPermanent = errors.New("rejected by receiver")

// deliver sends webhook notifications for a to all configured targets.
// Errors are logged but do not affect the caller.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body = httpPayload(a)
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		err := e.postWithRetry(url, a.ID+":"+a.State, body)

		if err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"err", err,
			)
		} else {
			slog.Debug("alerts: webhook delivered",
				"type", wh.Type,
				"rule", a.RuleName,
				"state", a.State,
			)
		}
	}
}

func slackPayload(a *Alert) []byte {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s (%s)", stateLabel(a), a.Message, a.ResultName),
	})
	return body
}

func teamsPayload(a *Alert) []byte {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    a.RuleName,
		"title":      fmt.Sprintf("thermocert Alert: %s", a.RuleName),
		"text":       a.Message,
		"sections": []map[string]interface{}{{
			"facts": []map[string]string{
				{"name": "Test", "value": a.ResultName},
				{"name": "Result ID", "value": a.ResultID},
				{"name": "State", "value": a.State},
			},
		}},
	}
	body, _ := json.Marshal(payload)
	return body
}

func httpPayload(a *Alert) []byte {
	body, _ := json.Marshal(map[string]interface{}{"alert": a})
	return body
}

// postWithRetry posts body up to deliveryAttempts times, doubling the wait
// between attempts. Network errors, 429 and 5xx are retried; any other 4xx is
// final. key is sent as Idempotency-Key so receivers can drop duplicates.
func (e *Engine) postWithRetry(url, key string, body []byte) error {
	wait := e.retryBackoff
	var err error
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		err = e.post(url, key, body)
		if err == nil || errors.Is(err, errPermanent) {
			return err
		}
		if attempt < deliveryAttempts {
			slog.Debug("alerts: webhook attempt failed, retrying",
				"attempt", attempt,
				"wait", wait,
				"err", err,
			)
			time.Sleep(wait)
			wait *= 2
		}
	}
	return fmt.Errorf("after %d attempts: %w", deliveryAttempts, err)
}

func (e *Engine) post(url, key string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w: %w", errPermanent, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("webhook returned HTTP %d: %w", resp.StatusCode, errPermanent)
	}
	return nil
}

func stateLabel(a *Alert) string {
	if a.State == StateResolved {
		return "[RESOLVED]"
	}
	return severityLabel(a.Severity)
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
