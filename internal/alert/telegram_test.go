package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devlongs/sandwich-bot/internal/config"
)

func TestNewPicksImplementation(t *testing.T) {
	if _, ok := New(config.AlertConfig{}).(Nop); !ok {
		t.Error("disabled alerting should be a no-op")
	}
	if _, ok := New(config.AlertConfig{Enabled: true}).(Nop); !ok {
		t.Error("alerting without credentials should be a no-op")
	}
	cfg := config.AlertConfig{Enabled: true, TelegramToken: "t", TelegramChatID: "1"}
	if _, ok := New(cfg).(*Telegram); !ok {
		t.Error("enabled alerting should use Telegram")
	}
}

func TestBundleSentMessage(t *testing.T) {
	tx := common.HexToHash("0xabc")
	msg := BundleSentMessage(17_000_000, tx, "0xdef")
	if !strings.HasPrefix(msg, "[Block #17000000] Bundle sent: "+tx.Hex()) {
		t.Errorf("unexpected message %q", msg)
	}
	if !strings.Contains(msg, "eigenphi.io/mev/eigentx/"+tx.Hex()) || !strings.Contains(msg, "0xdef") {
		t.Errorf("message missing links: %q", msg)
	}
}

func TestTelegramSend(t *testing.T) {
	var got telegramMessage
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("secret", "42")
	tg.baseURL = srv.URL

	if err := tg.Notify(context.Background(), 1, common.Hash{}, "0x01"); err != nil {
		t.Fatal(err)
	}
	if path != "/botsecret/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if got.ChatID != "42" || !strings.Contains(got.Text, "[Block #1]") {
		t.Errorf("payload = %+v", got)
	}
}

func TestTelegramSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	tg := NewTelegram("secret", "42")
	tg.baseURL = srv.URL

	err := tg.Send(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected API error, got %v", err)
	}
}
