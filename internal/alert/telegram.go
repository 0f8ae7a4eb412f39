package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/sandwich-bot/internal/config"
)

const telegramAPI = "https://api.telegram.org"

// Notifier is told about bundles accepted by a relay
type Notifier interface {
	Notify(ctx context.Context, blockNumber uint64, txHash common.Hash, bundleID string) error
}

// New returns a Telegram notifier when alerting is enabled, otherwise a no-op
func New(cfg config.AlertConfig) Notifier {
	if !cfg.Enabled || cfg.TelegramToken == "" || cfg.TelegramChatID == "" {
		return Nop{}
	}
	return NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
}

// Nop discards every notification
type Nop struct{}

func (Nop) Notify(context.Context, uint64, common.Hash, string) error { return nil }

// Telegram posts messages to a chat through the Bot API
type Telegram struct {
	baseURL    string
	token      string
	chatID     string
	httpClient *http.Client
}

type telegramMessage struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

// NewTelegram creates a Telegram notifier
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		baseURL: telegramAPI,
		token:   token,
		chatID:  chatID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify sends the bundle-sent message
func (t *Telegram) Notify(ctx context.Context, blockNumber uint64, txHash common.Hash, bundleID string) error {
	return t.Send(ctx, BundleSentMessage(blockNumber, txHash, bundleID))
}

// BundleSentMessage formats the alert text for an accepted bundle
func BundleSentMessage(blockNumber uint64, txHash common.Hash, bundleID string) string {
	return fmt.Sprintf("[Block #%d] Bundle sent: %s\n-Eigenphi: https://eigenphi.io/mev/eigentx/%s\n-Bundle hash: %s",
		blockNumber, txHash.Hex(), txHash.Hex(), bundleID)
}

// Send posts text to the configured chat
func (t *Telegram) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(telegramMessage{
		ChatID:                t.chatID,
		Text:                  text,
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	var tgResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tgResp); err != nil {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}
	if !tgResp.OK {
		return fmt.Errorf("telegram API error: %s", tgResp.Description)
	}

	return nil
}
