package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/Fulfillment/app/models"
)

// SignalChannel sends through a signal-cli REST API instance (/v2/send).
type SignalChannel struct {
	APIURL     string
	Number     string
	HTTPClient *http.Client
}

func NewSignalChannel(apiURL, number string) *SignalChannel {
	return &SignalChannel{
		APIURL:     strings.TrimRight(strings.TrimSpace(apiURL), "/"),
		Number:     strings.TrimSpace(number),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *SignalChannel) Name() string { return models.ChannelSignal }

func (c *SignalChannel) IsConfigured() bool {
	return c.APIURL != "" && c.Number != ""
}

func (c *SignalChannel) Send(ctx context.Context, phone string, msg Message) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	payload, err := json.Marshal(map[string]interface{}{
		"message":    msg.Subject + "\n\n" + msg.Body,
		"number":     c.Number,
		"recipients": []string{phone},
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+"/v2/send", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("signal request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("signal send failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
