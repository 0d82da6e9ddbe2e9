package bot

import (
	"context"
	"errors"
	"fmt"
	"html"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"aninotify/internal/appcopy"
	"aninotify/internal/db"
	"aninotify/internal/logger"
	"aninotify/internal/settings"
)

type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Settings interface {
	Snapshot(ctx context.Context) settings.Snapshot
}

type Store interface {
	RedeemPairingCode(ctx context.Context, code string, chatID int64) (db.User, error)
	UnlinkTelegramChat(ctx context.Context, chatID int64) (int64, error)
}

// Bot links Telegram chats to users through pairing codes. Episode delivery
// itself goes through notify.Telegram.
type Bot struct {
	api      API
	store    Store
	settings Settings
	log      zerolog.Logger
}

func New(api API, store Store, settings Settings) *Bot {
	return &Bot{
		api:      api,
		store:    store,
		settings: settings,
		log:      logger.With("bot"),
	}
}

// editsAllowed reports whether users may change their account, which linking
// and unlinking a chat both do.
func (b *Bot) editsAllowed(ctx context.Context, chatID int64) bool {
	if b.settings.Snapshot(ctx).AllowEdit {
		return true
	}
	b.sendHTML(chatID, appcopy.Copy.Prompts.EditsDisabled)
	return false
}

// Run polls for updates until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	c := appcopy.Copy.Commands
	commands := []tgbotapi.BotCommand{
		{Command: c.Start, Description: c.StartDesc},
		{Command: c.Help, Description: c.HelpDesc},
		{Command: c.Stop, Description: c.StopDesc},
	}
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		b.log.Warn().Err(err).Msg("Failed to set bot commands")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat == nil {
		return
	}
	chatID := message.Chat.ID

	switch message.Command() {
	case appcopy.Copy.Commands.Start:
		b.sendHTML(chatID, appcopy.Copy.Info.Welcome)
		return
	case appcopy.Copy.Commands.Help:
		b.sendHTML(chatID, appcopy.Copy.Info.HelpText)
		return
	case appcopy.Copy.Commands.Stop:
		b.handleStop(ctx, chatID)
		return
	}

	if code, ok := parsePairingCode(message.Text); ok {
		b.handlePairingCode(ctx, message, code)
		return
	}
	b.sendHTML(chatID, appcopy.Copy.Prompts.UnknownMessage)
}

func (b *Bot) handlePairingCode(ctx context.Context, message *tgbotapi.Message, code string) {
	chatID := message.Chat.ID
	if message.From == nil || chatID != message.From.ID || chatID <= 0 {
		b.sendHTML(chatID, appcopy.Copy.Prompts.PairingPrivateOnly)
		return
	}
	if !b.editsAllowed(ctx, chatID) {
		return
	}

	user, err := b.store.RedeemPairingCode(ctx, code, chatID)
	switch {
	case errors.Is(err, db.ErrPairingInvalid):
		b.sendHTML(chatID, appcopy.Copy.Prompts.PairingInvalid)
		return
	case err != nil:
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to redeem pairing code")
		b.sendHTML(chatID, appcopy.Copy.Prompts.PairingFailed)
		return
	}

	b.log.Info().Str("user", user.Username).Int64("chat_id", chatID).Msg("Linked Telegram chat")
	b.sendHTML(chatID, fmt.Sprintf(appcopy.Copy.Prompts.PairingSuccess, html.EscapeString(user.Username)))
}

func (b *Bot) handleStop(ctx context.Context, chatID int64) {
	if !b.editsAllowed(ctx, chatID) {
		return
	}
	n, err := b.store.UnlinkTelegramChat(ctx, chatID)
	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to unlink chat")
		b.sendHTML(chatID, appcopy.Copy.Prompts.PairingFailed)
		return
	}
	if n == 0 {
		b.sendHTML(chatID, appcopy.Copy.Info.NothingLinked)
		return
	}
	b.sendHTML(chatID, appcopy.Copy.Info.Unlinked)
}

func (b *Bot) sendHTML(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}
