package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuelReschke/Fulfillment/app/models"
)

// TelegramChannel posts messages through the Bot API sendMessage method.
type TelegramChannel struct {
	BaseURL    string
	BotToken   string
	HTTPClient *http.Client
}

func NewTelegramChannel(baseURL, botToken string) *TelegramChannel {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = "https://api.telegram.org"
	}
	return &TelegramChannel{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		BotToken:   strings.TrimSpace(botToken),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *TelegramChannel) Name() string { return models.ChannelTelegram }

func (c *TelegramChannel) IsConfigured() bool {
	return c.BotToken != ""
}

func (c *TelegramChannel) Send(ctx context.Context, chatID string, msg Message) error {
	if !c.IsConfigured() {
		return ErrNotConfigured
	}
	text := fmt.Sprintf("<b>%s</b>\n\n%s", html.EscapeString(msg.Subject), html.EscapeString(msg.Body))
	payload, err := json.Marshal(map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.BaseURL, c.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram sendMessage failed: status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && !parsed.OK {
		return fmt.Errorf("telegram sendMessage rejected: %s", parsed.Description)
	}
	return nil
}
