package bot

import (
	"context"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBot() *Bot {
	return &Bot{username: "grabit_bot"}
}

func TestURLExtraction(t *testing.T) {
	urls := urlRe.FindAllString("check this https://vt.tiktok.com/ZS8x/ and https://youtu.be/abc123", -1)
	require.Len(t, urls, 2)
	assert.Equal(t, "https://vt.tiktok.com/ZS8x/", urls[0])
	assert.Equal(t, "https://youtu.be/abc123", urls[1])

	assert.Empty(t, urlRe.FindAllString("no links here", -1))
}

func TestAddressedToMeInPrivateChat(t *testing.T) {
	b := testBot()
	msg := &tgbotapi.Message{
		Chat: &tgbotapi.Chat{Type: "private"},
		Text: "hello",
	}
	assert.True(t, b.addressedToMe(msg))
}

func TestAddressedToMeInGroupRequiresMention(t *testing.T) {
	b := testBot()

	plain := &tgbotapi.Message{
		Chat: &tgbotapi.Chat{Type: "group"},
		Text: "just chatting",
	}
	assert.False(t, b.addressedToMe(plain))

	mentioned := &tgbotapi.Message{
		Chat: &tgbotapi.Chat{Type: "group"},
		Text: "@grabit_bot what's up",
		Entities: []tgbotapi.MessageEntity{
			{Type: "mention", Offset: 0, Length: 11},
		},
	}
	assert.True(t, b.addressedToMe(mentioned))

	otherBot := &tgbotapi.Message{
		Chat: &tgbotapi.Chat{Type: "group"},
		Text: "@other_bot hi",
		Entities: []tgbotapi.MessageEntity{
			{Type: "mention", Offset: 0, Length: 10},
		},
	}
	assert.False(t, b.addressedToMe(otherBot))
}

func TestAddressedToMeViaReply(t *testing.T) {
	b := testBot()
	msg := &tgbotapi.Message{
		Chat: &tgbotapi.Chat{Type: "supergroup"},
		Text: "and then?",
		ReplyToMessage: &tgbotapi.Message{
			From: &tgbotapi.User{UserName: "grabit_bot"},
		},
	}
	assert.True(t, b.addressedToMe(msg))
}

func TestStripMention(t *testing.T) {
	b := testBot()
	assert.Equal(t, "what's up", b.stripMention("@grabit_bot what's up"))
	assert.Equal(t, "no mention", b.stripMention("no mention"))
}

func TestEmptyMentionGetsHelpReply(t *testing.T) {
	msgr := newFakeMessenger()
	b := testBot()
	b.chat = NewChatHandler(chatClientFor(t, "http://127.0.0.1:0"), msgr)

	b.handleMessage(context.Background(), &tgbotapi.Message{
		From: &tgbotapi.User{ID: 1},
		Chat: &tgbotapi.Chat{Type: "private"},
		Text: "",
	})

	require.Eventually(t, func() bool {
		return msgr.lastText() == helpReply
	}, time.Second, 10*time.Millisecond)
}

func commandMessage(userID int64, text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: 1, Type: "private"},
		Text: text,
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(text)},
		},
	}
}

func TestCancelCommandWithNothingRunning(t *testing.T) {
	msgr := newFakeMessenger()
	b := testBot()
	b.dispatcher = &Dispatcher{reg: NewRegistry(2, 2)}
	b.chat = NewChatHandler(chatClientFor(t, "http://127.0.0.1:0"), msgr)

	b.handleMessage(context.Background(), commandMessage(9, "/cancel"))

	require.Eventually(t, func() bool {
		return msgr.lastText() == "Nothing to cancel."
	}, time.Second, 10*time.Millisecond)
}

func TestCancelCommandStopsOwnDownloads(t *testing.T) {
	msgr := newFakeMessenger()
	b := testBot()
	reg := NewRegistry(2, 2)
	b.dispatcher = &Dispatcher{reg: reg}
	b.chat = NewChatHandler(chatClientFor(t, "http://127.0.0.1:0"), msgr)

	ctx, cancel := context.WithCancel(context.Background())
	task := &Task{ID: "t1", UserID: 9, stage: "fetching", cancel: cancel}
	reg.track(task)
	go func() {
		<-ctx.Done()
		reg.untrack(task)
	}()

	b.handleMessage(context.Background(), commandMessage(9, "/cancel"))

	require.Eventually(t, func() bool {
		return msgr.lastText() == "Cancelled 1 download(s)."
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, reg.ActiveCount())
}

func TestExtractEntityHandlesWideRunes(t *testing.T) {
	// Emoji ahead of the mention shifts UTF-16 offsets by two units.
	text := "👋👋 @grabit_bot hi"
	got := extractEntity(text, tgbotapi.MessageEntity{Type: "mention", Offset: 5, Length: 11})
	assert.Equal(t, "@grabit_bot", got)
}
