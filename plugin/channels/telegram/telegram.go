// Package telegram implements the Telegram Bot channel over long polling.
package telegram

import (
	"context"
	"log/slog"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/flowchat-io/flowchat/plugin/channels"
)

const updateTimeoutSeconds = 30

// Config holds configuration for the Telegram channel.
type Config struct {
	BotToken string
}

// Channel implements channels.Channel for the Telegram Bot API.
type Channel struct {
	bot     *tgbotapi.BotAPI
	handler channels.Handler
}

var _ channels.Channel = (*Channel)(nil)

func NewChannel(config *Config, handler channels.Handler) (*Channel, error) {
	if config.BotToken == "" {
		return nil, errors.New("telegram: bot token required")
	}
	if handler == nil {
		return nil, errors.New("telegram: handler required")
	}
	bot, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		return nil, errors.Wrap(err, "telegram: failed to create bot")
	}
	return &Channel{bot: bot, handler: handler}, nil
}

func (t *Channel) Name() channels.Platform {
	return channels.PlatformTelegram
}

// Run long-polls updates and dispatches each text message to the handler.
// Updates are handled sequentially; the dialog service serializes turns per
// user anyway.
func (t *Channel) Run(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = updateTimeoutSeconds
	updates := t.bot.GetUpdatesChan(updateConfig)
	slog.Info("telegram: channel started", "bot", t.bot.Self.UserName)

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			t.handleUpdate(ctx, update.Message)
		}
	}
}

func (t *Channel) handleUpdate(ctx context.Context, msg *tgbotapi.Message) {
	userID := strconv.FormatInt(msg.From.ID, 10)
	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	userName := msg.From.UserName
	if userName == "" {
		userName = msg.From.FirstName
	}

	text, titles, err := t.handler.HandleMessage(ctx, userID, userName, msg.Text)
	if err != nil {
		slog.Warn("telegram: failed to handle message", "user_id", userID, "error", err)
		return
	}

	if len(titles) > 0 {
		err = t.SendOptions(ctx, chatID, text, titles)
	} else {
		err = t.SendText(ctx, chatID, text)
	}
	if err != nil {
		slog.Warn("telegram: failed to send reply", "user_id", userID, "error", err)
	}
}

func (t *Channel) SendText(_ context.Context, chatID string, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "telegram: invalid chat id %q", chatID)
	}
	reply := tgbotapi.NewMessage(id, text)
	// Replying with plain text also dismisses any previous option keyboard.
	reply.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	if _, err := t.bot.Send(reply); err != nil {
		return errors.Wrap(err, "telegram: failed to send message")
	}
	return nil
}

// SendOptions renders the option titles as a one-column reply keyboard so a
// tap sends the title back verbatim.
func (t *Channel) SendOptions(_ context.Context, chatID string, text string, titles []string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "telegram: invalid chat id %q", chatID)
	}

	rows := make([][]tgbotapi.KeyboardButton, 0, len(titles))
	for _, title := range titles {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(title)))
	}
	keyboard := tgbotapi.NewOneTimeReplyKeyboard(rows...)

	reply := tgbotapi.NewMessage(id, text)
	reply.ReplyMarkup = keyboard
	if _, err := t.bot.Send(reply); err != nil {
		return errors.Wrap(err, "telegram: failed to send options")
	}
	return nil
}

// SendImage sends a photo by URL; Telegram fetches the file itself.
func (t *Channel) SendImage(_ context.Context, chatID string, url string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "telegram: invalid chat id %q", chatID)
	}
	photo := tgbotapi.NewPhoto(id, tgbotapi.FileURL(url))
	if _, err := t.bot.Send(photo); err != nil {
		return errors.Wrap(err, "telegram: failed to send image")
	}
	return nil
}

func (t *Channel) Close() error {
	t.bot.StopReceivingUpdates()
	return nil
}
