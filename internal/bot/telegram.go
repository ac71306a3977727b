package bot

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ndmitry/grabit/internal/media"
	"github.com/ndmitry/grabit/internal/util"
)

// TelegramMessenger implements Messenger over the Bot API.
type TelegramMessenger struct {
	api *tgbotapi.BotAPI
}

func NewTelegramMessenger(api *tgbotapi.BotAPI) *TelegramMessenger {
	return &TelegramMessenger{api: api}
}

func (m *TelegramMessenger) SendStatus(chatID int64, replyTo int, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	sent, err := m.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (m *TelegramMessenger) EditStatus(chatID int64, messageID int, text string) {
	if messageID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := m.api.Send(edit); err != nil {
		log.Printf("[Telegram] edit status failed: %v", err)
	}
}

func (m *TelegramMessenger) DeleteStatus(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := m.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		log.Printf("[Telegram] delete status failed: %v", err)
	}
}

func (m *TelegramMessenger) SendMediaGroup(chatID int64, items []media.Item) error {
	if len(items) == 0 {
		return nil
	}
	// A group of one is sent as a plain message; Telegram rejects
	// single-entry albums.
	if len(items) == 1 {
		return m.sendSingle(chatID, items[0])
	}

	group := make([]interface{}, 0, len(items))
	for i, it := range items {
		file := tgbotapi.FileBytes{Name: itemFilename(it, i), Bytes: it.Data}
		switch it.Type {
		case media.Photo:
			photo := tgbotapi.NewInputMediaPhoto(file)
			photo.Caption = it.Caption
			group = append(group, photo)
		default:
			video := tgbotapi.NewInputMediaVideo(file)
			video.Caption = it.Caption
			group = append(group, video)
		}
	}
	_, err := m.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, group))
	return err
}

func (m *TelegramMessenger) sendSingle(chatID int64, it media.Item) error {
	file := tgbotapi.FileBytes{Name: itemFilename(it, 0), Bytes: it.Data}
	switch it.Type {
	case media.Photo:
		msg := tgbotapi.NewPhoto(chatID, file)
		msg.Caption = it.Caption
		_, err := m.api.Send(msg)
		return err
	default:
		msg := tgbotapi.NewVideo(chatID, file)
		msg.Caption = it.Caption
		msg.SupportsStreaming = true
		_, err := m.api.Send(msg)
		return err
	}
}

func (m *TelegramMessenger) SendAudio(chatID int64, it media.Item) error {
	msg := tgbotapi.NewAudio(chatID, tgbotapi.FileBytes{Name: itemFilename(it, 0), Bytes: it.Data})
	msg.Caption = it.Caption
	_, err := m.api.Send(msg)
	return err
}

func (m *TelegramMessenger) SendText(chatID int64, replyTo int, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	_, err := m.api.Send(msg)
	return err
}

func (m *TelegramMessenger) SendTyping(chatID int64) {
	if _, err := m.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		log.Printf("[Telegram] typing action failed: %v", err)
	}
}

func itemFilename(it media.Item, i int) string {
	if name := util.SanitizeFilename(it.Caption); name != "" {
		switch it.Type {
		case media.Photo:
			return name + ".jpg"
		case media.Audio:
			return name + ".mp3"
		default:
			return name + ".mp4"
		}
	}
	switch it.Type {
	case media.Photo:
		return fmt.Sprintf("photo_%d.jpg", i)
	case media.Audio:
		return fmt.Sprintf("audio_%d.mp3", i)
	default:
		return fmt.Sprintf("video_%d.mp4", i)
	}
}
