package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chat-automation/internal/domain"
	"chat-automation/internal/infra/metrics"
)

// BotAPI покрывает часть tgbotapi.BotAPI, через которую отправляются сообщения.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TelegramSession работает поверх токена Telegram-бота. chatID должен быть числовым идентификатором чата.
type TelegramSession struct {
	name string
	bot  BotAPI
	wait func(ctx context.Context, d time.Duration) error
}

var _ domain.Session = (*TelegramSession)(nil)

// NewTelegramSession создаёт сессию для уже авторизованного бота.
func NewTelegramSession(name string, bot BotAPI) *TelegramSession {
	return &TelegramSession{name: name, bot: bot, wait: waitCtx}
}

// ConnectTelegram авторизует бота по токену.
func ConnectTelegram(name, token string) (*TelegramSession, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram session %s: %w", name, err)
	}
	return NewTelegramSession(name, bot), nil
}

func waitCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ConnectionStatus всегда connected: Bot API не держит соединения.
func (s *TelegramSession) ConnectionStatus() string { return domain.ConnectionConnected }

func (s *TelegramSession) SendText(ctx context.Context, chatID, text string, typingDelay time.Duration) (domain.SendResult, error) {
	id, res, ok := parseChatID(chatID)
	if !ok {
		return res, nil
	}
	if err := s.typing(ctx, id, tgbotapi.ChatTyping, typingDelay); err != nil {
		return domain.SendResult{}, err
	}
	parts := splitText(text, telegramMessageLimit)
	if len(parts) == 0 {
		return domain.SendResult{Message: "empty message"}, nil
	}
	for _, part := range parts {
		if err := s.send(tgbotapi.NewMessage(id, part), "send_text"); err != nil {
			return domain.SendResult{}, err
		}
	}
	return domain.SendResult{Success: true}, nil
}

func (s *TelegramSession) SendImage(ctx context.Context, chatID, url, caption string, typingDelay time.Duration) (domain.SendResult, error) {
	id, res, ok := parseChatID(chatID)
	if !ok {
		return res, nil
	}
	if err := s.typing(ctx, id, tgbotapi.ChatUploadPhoto, typingDelay); err != nil {
		return domain.SendResult{}, err
	}
	photo := tgbotapi.NewPhoto(id, tgbotapi.FileURL(url))
	photo.Caption = caption
	if err := s.send(photo, "send_image"); err != nil {
		return domain.SendResult{}, err
	}
	return domain.SendResult{Success: true}, nil
}

// SendDocument отправляет файл по ссылке. Имя и тип Telegram определяет сам по загруженному файлу.
func (s *TelegramSession) SendDocument(ctx context.Context, chatID, url, _, _ string, typingDelay time.Duration) (domain.SendResult, error) {
	id, res, ok := parseChatID(chatID)
	if !ok {
		return res, nil
	}
	if err := s.typing(ctx, id, tgbotapi.ChatUploadDocument, typingDelay); err != nil {
		return domain.SendResult{}, err
	}
	if err := s.send(tgbotapi.NewDocument(id, tgbotapi.FileURL(url)), "send_document"); err != nil {
		return domain.SendResult{}, err
	}
	return domain.SendResult{Success: true}, nil
}

func parseChatID(raw string) (int64, domain.SendResult, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, domain.SendResult{Message: fmt.Sprintf("invalid telegram chat id %q", raw)}, false
	}
	return id, domain.SendResult{}, true
}

func (s *TelegramSession) typing(ctx context.Context, chatID int64, action string, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	start := time.Now()
	_, err := s.bot.Request(tgbotapi.NewChatAction(chatID, action))
	metrics.ObserveNetworkRequest("telegram", "chat_action", s.name, start, err)
	// индикатор набора не обязателен для доставки
	return s.wait(ctx, delay)
}

func (s *TelegramSession) send(c tgbotapi.Chattable, operation string) error {
	start := time.Now()
	_, err := s.bot.Send(c)
	metrics.ObserveNetworkRequest("telegram", operation, s.name, start, err)
	return err
}
