package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
)

// Provider delivers a rendered message over one channel.
type Provider interface {
	Send(ctx context.Context, message, recipient string) error
}

var ErrProviderFailure = errors.New("provider failure")

// webhookClient carries no timeout of its own; the dispatcher bounds each attempt.
var webhookClient = &http.Client{}

// NewProvider builds the transport named by kind for a channel. Webhook
// settings come from NOTIFY_<CHANNEL>_WEBHOOK_URL and NOTIFY_<CHANNEL>_WEBHOOK_TOKEN.
func NewProvider(kind, channel string, logger *log.Logger) Provider {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "stub", "log":
		return logProvider{channel: channel, logger: logger}
	case "noop":
		return noopProvider{}
	case "fail":
		return failProvider{}
	case "webhook":
		prefix := "NOTIFY_" + strings.ToUpper(channel)
		url := os.Getenv(prefix + "_WEBHOOK_URL")
		if url == "" {
			return logProvider{channel: channel, logger: logger}
		}
		return webhookProvider{channel: channel, url: url, token: os.Getenv(prefix + "_WEBHOOK_TOKEN")}
	default:
		if strings.HasPrefix(kind, "http://") || strings.HasPrefix(kind, "https://") {
			return webhookProvider{channel: channel, url: kind}
		}
		return logProvider{channel: channel, logger: logger}
	}
}

type logProvider struct {
	channel string
	logger  *log.Logger
}

func (p logProvider) Send(ctx context.Context, message, recipient string) error {
	if p.logger != nil {
		p.logger.Printf("notify deliver channel=%s recipient=%s message=%q", p.channel, maskRecipient(recipient), message)
	}
	return nil
}

type noopProvider struct{}

func (noopProvider) Send(ctx context.Context, message, recipient string) error {
	return nil
}

type failProvider struct{}

func (failProvider) Send(ctx context.Context, message, recipient string) error {
	return ErrProviderFailure
}

type webhookProvider struct {
	channel string
	url     string
	token   string
}

func (p webhookProvider) Send(ctx context.Context, message, recipient string) error {
	body, err := json.Marshal(map[string]string{
		"channel":   p.channel,
		"recipient": recipient,
		"message":   message,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	resp, err := webhookClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s webhook returned %d", ErrProviderFailure, p.channel, resp.StatusCode)
	}
	return nil
}

// maskRecipient keeps the last four characters of a contact for logs.
func maskRecipient(recipient string) string {
	if len(recipient) <= 4 {
		return strings.Repeat("*", len(recipient))
	}
	return strings.Repeat("*", len(recipient)-4) + recipient[len(recipient)-4:]
}
