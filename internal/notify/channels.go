// File: internal/notify/channels.go
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/checkin-cli/internal/config"
)

// DefaultPushPlusEndpoint is the public PushPlus send API.
const DefaultPushPlusEndpoint = "https://www.pushplus.plus/send"

const channelTimeout = 10 * time.Second

// ChannelsFromConfig assembles the channel list from configuration. An empty
// list is valid; the dispatcher then only logs to the console.
func ChannelsFromConfig(cfg config.NotifyConfig, client *http.Client) []Channel {
	if client == nil {
		client = &http.Client{Timeout: channelTimeout}
	}
	var channels []Channel
	if cfg.PushPlusToken != "" {
		channels = append(channels, &PushPlus{Token: cfg.PushPlusToken, Endpoint: DefaultPushPlusEndpoint, Client: client})
	}
	if cfg.BarkURL != "" {
		channels = append(channels, &Bark{URL: cfg.BarkURL, Client: client})
	}
	for _, u := range cfg.WebhookURLs {
		if u != "" {
			channels = append(channels, &Webhook{URL: u, Client: client})
		}
	}
	return channels
}

// postJSON sends a JSON payload and verifies the response status.
func postJSON(ctx context.Context, client *http.Client, url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected HTTP %d", resp.StatusCode)
	}
	return nil
}

// PushPlus delivers through pushplus.plus, rendering the event as HTML.
type PushPlus struct {
	Token    string
	Endpoint string
	Client   *http.Client
}

func (p *PushPlus) Name() string { return "pushplus" }

func (p *PushPlus) Send(ctx context.Context, ev Event) error {
	payload := map[string]string{
		"token":    p.Token,
		"title":    ev.Title,
		"content":  ev.FormatHTML(),
		"template": "html",
	}
	return postJSON(ctx, p.Client, p.Endpoint, payload)
}

// Bark delivers through a Bark server; the configured URL carries the device
// key.
type Bark struct {
	URL    string
	Client *http.Client
}

func (b *Bark) Name() string { return "bark" }

func (b *Bark) Send(ctx context.Context, ev Event) error {
	payload := map[string]string{
		"title": ev.Title,
		"body":  ev.FormatText(),
	}
	return postJSON(ctx, b.Client, b.URL, payload)
}

// Webhook posts the raw event as JSON to an arbitrary endpoint.
type Webhook struct {
	URL    string
	Client *http.Client
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, ev Event) error {
	return postJSON(ctx, w.Client, w.URL, ev)
}
