// Package notifier posts an aggregation run summary to a Discord webhook.
// It is optional wiring: an empty webhook URL turns every call into a no-op.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/dealhawk/gamedeals-aggregator/internal/aggregator"
)

const colorRunSummary = 3447003 // #3498DB

type Client struct {
	webhookURL string
	client     *http.Client
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []discordEmbedField `json:"fields,omitempty"`
}

// NotifyRun posts one summary embed for a completed run.
func (c *Client) NotifyRun(ctx context.Context, summary aggregator.RunSummary) error {
	if c.webhookURL == "" {
		return nil
	}

	names := make([]string, 0, len(summary.SourceCounts))
	for name := range summary.SourceCounts {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]discordEmbedField, 0, len(names)+2)
	for _, name := range names {
		fields = append(fields, discordEmbedField{
			Name:   name,
			Value:  fmt.Sprintf("%d deals", summary.SourceCounts[name]),
			Inline: true,
		})
	}
	fields = append(fields,
		discordEmbedField{Name: "Merged", Value: fmt.Sprintf("%d", summary.Merged), Inline: true},
		discordEmbedField{Name: "Persisted", Value: fmt.Sprintf("%d", summary.Kept), Inline: true},
	)

	payload := discordWebhookPayload{
		Embeds: []discordEmbed{{
			Title:       "Deal aggregation run complete",
			Description: "Batch `" + summary.BatchID + "`",
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Color:       colorRunSummary,
			Fields:      fields,
		}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
