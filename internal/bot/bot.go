package bot

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ndmitry/grabit/internal/config"
)

var urlRe = regexp.MustCompile(`https?://\S+`)

// Bot is the Telegram update loop. Link messages go to the dispatcher,
// everything else addressed to the bot goes to the chat handler.
type Bot struct {
	api        *tgbotapi.BotAPI
	dispatcher *Dispatcher
	chat       *ChatHandler
	username   string
}

func New(api *tgbotapi.BotAPI, dispatcher *Dispatcher, chat *ChatHandler) *Bot {
	username := config.BotUsername
	if username == "" {
		username = api.Self.UserName
	}
	return &Bot{
		api:        api,
		dispatcher: dispatcher,
		chat:       chat,
		username:   username,
	}
}

// Run consumes updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)

	log.Printf("[Bot] @%s listening", b.username)

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

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(msg)
		return
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	urls := urlRe.FindAllString(text, -1)
	if len(urls) > 0 {
		for _, url := range urls {
			b.dispatcher.Submit(Request{
				ChatID:    msg.Chat.ID,
				UserID:    msg.From.ID,
				MessageID: msg.MessageID,
				URL:       url,
			})
		}
		return
	}

	if !b.addressedToMe(msg) || !b.chat.Enabled() {
		return
	}

	// A mention with nothing to act on (sticker, bare @, photo with no
	// caption) still deserves an answer.
	stripped := b.stripMention(text)
	if stripped == "" {
		go b.chat.Help(msg.Chat.ID, msg.MessageID)
		return
	}

	replyText := ""
	if msg.ReplyToMessage != nil {
		replyText = msg.ReplyToMessage.Text
	}
	sender := msg.From.UserName
	if sender == "" {
		sender = msg.From.FirstName
	}
	go b.chat.Handle(ctx, Incoming{
		ChatID:    msg.Chat.ID,
		UserID:    msg.From.ID,
		MessageID: msg.MessageID,
		Sender:    sender,
		Text:      stripped,
		ReplyText: replyText,
		Sent:      msg.Time(),
	})
}

func (b *Bot) handleCommand(msg *tgbotapi.Message) {
	switch msg.Command() {
	case "cancel":
		go func() {
			n := b.dispatcher.Registry().CancelUser(msg.From.ID)
			text := "Nothing to cancel."
			if n > 0 {
				text = fmt.Sprintf("Cancelled %d download(s).", n)
			}
			if err := b.chat.msgr.SendText(msg.Chat.ID, msg.MessageID, text); err != nil {
				log.Printf("[Bot] cancel reply failed: %v", err)
			}
		}()
	}
}

// addressedToMe gates chat replies. Private chats always qualify; in
// groups the message must mention the bot or reply to one of its
// messages.
func (b *Bot) addressedToMe(msg *tgbotapi.Message) bool {
	if msg.Chat.IsPrivate() {
		return true
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil &&
		msg.ReplyToMessage.From.UserName == b.username {
		return true
	}
	for _, entity := range msg.Entities {
		if entity.Type != "mention" {
			continue
		}
		mention := extractEntity(msg.Text, entity)
		if strings.EqualFold(mention, "@"+b.username) {
			return true
		}
	}
	return false
}

func (b *Bot) stripMention(text string) string {
	cleaned := strings.ReplaceAll(text, "@"+b.username, "")
	return strings.TrimSpace(cleaned)
}

// extractEntity slices an entity out of the message text. Entity
// offsets are in UTF-16 code units.
func extractEntity(text string, entity tgbotapi.MessageEntity) string {
	units := utf16.Encode([]rune(text))
	start := entity.Offset
	end := entity.Offset + entity.Length
	if start < 0 || end > len(units) {
		return ""
	}
	return string(utf16.Decode(units[start:end]))
}
