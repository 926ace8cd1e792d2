// Package telegram notifies users of new messages through a Telegram bot
// while they have no live connection.
package telegram

import (
	"context"
	"log"
	"unicode/utf8"

	"chatline/backend/internal/localization"
	"chatline/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// previewLength caps the message body quoted in a notification.
const previewLength = 200

// Bot is the part of *tgbotapi.BotAPI the notifier uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// UserStore resolves recipients and senders.
type UserStore interface {
	GetUser(ctx context.Context, userID uint) (*models.User, error)
}

// Notifier sends offline notifications to users that linked a Telegram chat.
type Notifier struct {
	bot       Bot
	store     UserStore
	localizer *localization.Localizer
}

// NewBot connects to the Bot API with the given token.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	log.Printf("INFO: Telegram: authorized on account %s", bot.Self.UserName)
	return bot, nil
}

func NewNotifier(bot Bot, store UserStore, localizer *localization.Localizer) *Notifier {
	return &Notifier{
		bot:       bot,
		store:     store,
		localizer: localizer,
	}
}

// NotifyOffline sends "<sender>: <body>" to every recipient with a linked
// chat. Failures are logged per recipient.
func (n *Notifier) NotifyOffline(ctx context.Context, msg *models.Message, recipients []uint) {
	sender := msg.SenderName
	if sender == "" {
		if u, err := n.store.GetUser(ctx, msg.SenderID); err == nil {
			sender = u.FullName
		}
	}
	body := preview(msg.Body)

	for _, id := range recipients {
		user, err := n.store.GetUser(ctx, id)
		if err != nil {
			log.Printf("WARNING: Telegram: cannot load recipient %d: %v", id, err)
			continue
		}
		if user.TelegramChatID == nil {
			continue
		}

		text := n.localizer.Format(user.Language, "offline_message", sender, body)
		if _, err := n.bot.Send(tgbotapi.NewMessage(*user.TelegramChatID, text)); err != nil {
			log.Printf("WARNING: Telegram: failed to notify user %d: %v", id, err)
		}
	}
}

// Listen answers bot commands until ctx is done. /start replies with the
// chat id an operator needs to link the account.
func (n *Notifier) Listen(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := n.bot.GetUpdatesChan(u)
	defer n.bot.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			n.handleCommand(update.Message)
		}
	}
}

func (n *Notifier) handleCommand(msg *tgbotapi.Message) {
	lang := localization.DefaultLanguage
	if msg.From != nil && msg.From.LanguageCode != "" {
		lang = msg.From.LanguageCode
	}

	var text string
	switch msg.Command() {
	case "start":
		text = n.localizer.Format(lang, "start_reply", msg.Chat.ID)
	default:
		text = n.localizer.GetString(lang, "unknown_command")
	}

	if _, err := n.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, text)); err != nil {
		log.Printf("WARNING: Telegram: failed to answer chat %d: %v", msg.Chat.ID, err)
	}
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewLength {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLength]) + "…"
}
