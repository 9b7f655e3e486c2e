package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"

	"alertengine/internal/domain"
	"alertengine/internal/permanent"
)

// WebhookSender posts the notification payload to a configured HTTP endpoint.
// Params: endpoint URL, timeout, and optional static headers.
// Returns: webhook channel sender.
type WebhookSender struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhookSender creates the webhook sender.
// Params: endpoint URL, timeout seconds, and static headers.
// Returns: initialized sender.
func NewWebhookSender(url string, timeoutSec int, headers map[string]string) *WebhookSender {
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &WebhookSender{
		url:     strings.TrimSpace(url),
		headers: headers,
		client:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
	}
}

// Channel returns sender channel kind.
// Params: none.
// Returns: static webhook channel key.
func (s *WebhookSender) Channel() domain.Channel {
	return domain.ChannelWebhook
}

// webhookPayload is the outbound webhook document shape.
type webhookPayload struct {
	ID         string                       `json:"id"`
	RuleID     string                       `json:"rule_id"`
	Severity   string                       `json:"severity"`
	Title      string                       `json:"title"`
	Message    string                       `json:"message"`
	Recipients []string                     `json:"recipients,omitempty"`
	Context    map[string]domain.TypedValue `json:"context,omitempty"`
	Metadata   map[string]string            `json:"metadata,omitempty"`
	CreatedAt  time.Time                    `json:"created_at"`
}

// Send posts one delivery as JSON to the webhook endpoint.
// Params: context and delivery payload.
// Returns: transport error; 4xx responses are marked permanent.
func (s *WebhookSender) Send(ctx context.Context, delivery Delivery) error {
	if s.url == "" {
		return permanent.Mark(errors.New("webhook url is not configured"))
	}
	notification := delivery.Notification
	body, err := json.Marshal(webhookPayload{
		ID:         notification.ID,
		RuleID:     notification.RuleID,
		Severity:   string(notification.Severity),
		Title:      notification.Title,
		Message:    notification.Message,
		Recipients: delivery.Action.Recipients,
		Context:    notification.Context,
		Metadata:   notification.Metadata,
		CreatedAt:  notification.CreatedAt,
	})
	if err != nil {
		return permanent.Mark(fmt.Errorf("encode webhook payload: %w", err))
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return permanent.Mark(fmt.Errorf("build webhook request: %w", err))
	}
	request.Header.Set("Content-Type", "application/json")
	for key, value := range s.headers {
		request.Header.Set(key, value)
	}

	response, err := s.client.Do(request)
	if err != nil {
		return fmt.Errorf("webhook send: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, response.Body)
		_ = response.Body.Close()
	}()
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	if response.StatusCode >= 400 && response.StatusCode < 500 {
		return permanent.Mark(fmt.Errorf("webhook status=%d", response.StatusCode))
	}
	return fmt.Errorf("webhook status=%d", response.StatusCode)
}

// ChatSender posts chat notifications through the Telegram Bot API.
// Params: bot token, chat id, and API base URL.
// Returns: chat channel sender.
type ChatSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewChatSender creates the chat sender.
// Params: bot token, chat id, and API base URL (empty uses the public API).
// Returns: initialized sender; init errors surface on first Send.
func NewChatSender(botToken, chatID, apiBase string) *ChatSender {
	sender := &ChatSender{chatID: normalizeChatID(chatID)}

	if strings.TrimSpace(botToken) == "" {
		sender.initErr = permanent.Mark(errors.New("chat bot token is required"))
		return sender
	}
	if strings.TrimSpace(chatID) == "" {
		sender.initErr = permanent.Mark(errors.New("chat chat_id is required"))
		return sender
	}

	options := []tgbot.Option{tgbot.WithSkipGetMe()}
	if strings.TrimSpace(apiBase) != "" {
		options = append(options, tgbot.WithServerURL(strings.TrimRight(apiBase, "/")))
	}
	botClient, err := tgbot.New(botToken, options...)
	if err != nil {
		sender.initErr = permanent.Mark(fmt.Errorf("init chat bot: %w", err))
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns sender channel kind.
// Params: none.
// Returns: static chat channel key.
func (s *ChatSender) Channel() domain.Channel {
	return domain.ChannelChat
}

// Send posts one delivery as a chat message.
// Params: context and delivery payload.
// Returns: transport or HTTP error.
func (s *ChatSender) Send(ctx context.Context, delivery Delivery) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.client == nil {
		return permanent.Mark(errors.New("chat client is not initialized"))
	}

	notification := delivery.Notification
	text := "<b>" + html.EscapeString(notification.Title) + "</b>\n" + html.EscapeString(notification.Message)
	sent, err := s.client.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
	if err != nil {
		return fmt.Errorf("chat send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("chat send returned empty message id")
	}
	return nil
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
// Params: configured chat ID value.
// Returns: chat id union value for the bot API.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}

// LogSender acknowledges deliveries by logging them. It backs channels
// that have no transport wired in the current deployment (sms, teams_chat,
// in_app, push, voice_call) so rule actions on those channels still
// complete the pipeline.
// Params: channel kind and logger.
// Returns: always-successful sender.
type LogSender struct {
	channel domain.Channel
	logger  *slog.Logger
}

// NewLogSender creates a logging sender for one channel.
// Params: channel kind and logger.
// Returns: initialized sender.
func NewLogSender(channel domain.Channel, logger *slog.Logger) *LogSender {
	return &LogSender{channel: channel, logger: logger}
}

// Channel returns sender channel kind.
// Params: none.
// Returns: configured channel key.
func (s *LogSender) Channel() domain.Channel {
	return s.channel
}

// Send logs one delivery and reports success.
// Params: context and delivery payload.
// Returns: always nil.
func (s *LogSender) Send(_ context.Context, delivery Delivery) error {
	s.logger.Info("notification delivered",
		"channel", string(s.channel),
		"notification_id", delivery.Notification.ID,
		"severity", string(delivery.Notification.Severity),
		"title", delivery.Notification.Title,
		"recipients", strings.Join(delivery.Action.Recipients, ","))
	return nil
}
