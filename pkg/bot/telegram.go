package bot

import (
	"context"
	"fmt"
	"log/slog"

	"antalyabus/pkg/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const updateTimeout = 60

// Telegram connects a Handler to the Telegram Bot API by long polling.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

func NewTelegram(token string, debug bool, logger *slog.Logger) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = debug

	logger.Info("Authorized on Telegram", "bot_username", api.Self.UserName)
	return &Telegram{api: api, logger: logger}, nil
}

// RegisterCommands publishes the command list shown in Telegram clients.
func (t *Telegram) RegisterCommands() error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: CommandStart, Description: "Say hello"},
		tgbotapi.BotCommand{Command: CommandHelp, Description: "How to find and track buses"},
		tgbotapi.BotCommand{Command: CommandStop, Description: "Stop tracking buses"},
	)
	if _, err := t.api.Request(cfg); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	return nil
}

// Send delivers text to chatID. Failures are logged and counted, not returned.
func (t *Telegram) Send(ctx context.Context, chatID int64, text string) {
	_, err := t.api.Send(tgbotapi.NewMessage(chatID, text))
	metrics.RecordMessageSent(ctx, err)
	if err != nil {
		t.logger.Error("Error occurred while sending message", "chat_id", chatID, "error", err)
	}
}

// Run feeds text messages to h until ctx is cancelled.
func (t *Telegram) Run(ctx context.Context, h *Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout

	updates := t.api.GetUpdatesChan(u)
	t.logger.Info("Bot is running and waiting for updates")

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			t.logger.Info("Stopped receiving updates")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if msg, ok := toMessage(update); ok {
				h.Handle(ctx, msg)
			}
		}
	}
}

func toMessage(update tgbotapi.Update) (Message, bool) {
	m := update.Message
	if m == nil || m.Text == "" || m.Chat == nil {
		return Message{}, false
	}

	firstName := m.Chat.FirstName
	if firstName == "" && m.From != nil {
		firstName = m.From.FirstName
	}
	return Message{
		ChatID:    m.Chat.ID,
		FirstName: firstName,
		Text:      m.Text,
	}, true
}
