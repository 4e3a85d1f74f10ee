package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"zac/internal/config"
	"zac/internal/domain"

	tgbot "github.com/go-telegram/bot"
)

// TelegramSink posts the rendered report to one chat.
type TelegramSink struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSink creates a Bot API sink; setup errors surface on Deliver.
// Params: telegram report config.
// Returns: initialized sink.
func NewTelegramSink(cfg config.TelegramReport) *TelegramSink {
	sink := &TelegramSink{chatID: normalizeChatID(cfg.ChatID)}
	if strings.TrimSpace(cfg.BotToken) == "" {
		sink.initErr = errors.New("telegram bot token is required")
		return sink
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sink.initErr = errors.New("telegram chat_id is required")
		return sink
	}

	options := []tgbot.Option{
		tgbot.WithSkipGetMe(),
		tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")),
	}
	client, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		sink.initErr = fmt.Errorf("init telegram bot: %w", err)
		return sink
	}
	sink.client = client
	return sink
}

// Name returns the sink key.
func (s *TelegramSink) Name() string {
	return "telegram"
}

// Deliver sends the rendered text as a plain message.
func (s *TelegramSink) Deliver(ctx context.Context, _ domain.RunReport, text string) error {
	if s.initErr != nil {
		return s.initErr
	}
	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: s.chatID,
		Text:   text,
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// normalizeChatID keeps numeric chat ids numeric and channel usernames as strings.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
