package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"flatwatch-go/pkg/logger"
)

// TelegramConfig parameterizes the Bot API client. BaseURL exists so tests
// can point the notifier at a local server.
type TelegramConfig struct {
	BotToken string
	ChatIDs  []string
	BaseURL  string
	Timeout  time.Duration
}

// TelegramNotifier posts each message to every configured chat via the Bot
// API sendMessage method, one HTTP call per chat, no batching.
type TelegramNotifier struct {
	config TelegramConfig
	client *fasthttp.Client
	log    *logger.Logger
}

func NewTelegramNotifier(config TelegramConfig) (*TelegramNotifier, error) {
	if config.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if len(config.ChatIDs) == 0 {
		return nil, fmt.Errorf("at least one telegram chat id is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.telegram.org"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	client := &fasthttp.Client{
		ReadTimeout:         config.Timeout,
		WriteTimeout:        config.Timeout,
		MaxConnsPerHost:     4,
		MaxIdleConnDuration: 90 * time.Second,
	}

	return &TelegramNotifier{
		config: config,
		client: client,
		log: logger.GetLogger().WithComponent("telegram").
			WithField("bot", logger.MaskToken(config.BotToken)),
	}, nil
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Send delivers the message to every chat in order. A failed chat is logged
// and skipped; the error reports how many destinations missed the message.
func (tn *TelegramNotifier) Send(ctx context.Context, text string) error {
	failed := 0
	for _, chatID := range tn.config.ChatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := tn.sendTo(chatID, text); err != nil {
			tn.log.WithError(err).WithField("chat_id", chatID).Error("Delivery failed")
			failed++
			continue
		}
		tn.log.WithField("chat_id", chatID).Debug("Message delivered")
	}

	if failed > 0 {
		return fmt.Errorf("failed to deliver to %d out of %d destinations",
			failed, len(tn.config.ChatIDs))
	}
	return nil
}

func (tn *TelegramNotifier) sendTo(chatID, text string) error {
	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(fmt.Sprintf("%s/bot%s/sendMessage", tn.config.BaseURL, tn.config.BotToken))
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := tn.client.DoTimeout(req, resp, tn.config.Timeout); err != nil {
		return fmt.Errorf("request failed: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return fmt.Errorf("API returned status %d with unreadable body", resp.StatusCode())
	}
	if !apiResp.OK {
		return fmt.Errorf("API rejected message: %s", apiResp.Description)
	}
	return nil
}
