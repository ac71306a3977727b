package bot

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ndmitry/grabit/internal/alerts"
	"github.com/ndmitry/grabit/internal/assistant"
	"github.com/ndmitry/grabit/internal/config"
)

// ChatMessenger is the slice of the Telegram API the chat handler
// needs. Narrow for the same reason as Messenger.
type ChatMessenger interface {
	SendText(chatID int64, replyTo int, text string) error
	SendTyping(chatID int64)
}

const (
	helpReply    = "Hmm? Send me a link or ask me something."
	busyReply    = "Can't think right now, try me later."
	replyExcerpt = 200
)

// Incoming is one message the chat handler should answer.
type Incoming struct {
	ChatID    int64
	UserID    int64
	MessageID int
	Sender    string
	Text      string
	ReplyText string
	Sent      time.Time
}

// ChatHandler answers non-link mentions with the assistant. History is
// kept per chat so follow-up questions have context, and a per-user
// lock serializes requests so one user cannot interleave replies.
type ChatHandler struct {
	client *assistant.Client
	msgr   ChatMessenger

	mu        sync.Mutex
	history   map[int64][]assistant.Turn
	userLocks map[int64]*sync.Mutex
}

func NewChatHandler(client *assistant.Client, msgr ChatMessenger) *ChatHandler {
	return &ChatHandler{
		client:    client,
		msgr:      msgr,
		history:   make(map[int64][]assistant.Turn),
		userLocks: make(map[int64]*sync.Mutex),
	}
}

func (h *ChatHandler) Enabled() bool {
	return h.client.Enabled()
}

func (h *ChatHandler) userLock(userID int64) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		h.userLocks[userID] = lock
	}
	return lock
}

// Help answers a mention that carries nothing to act on.
func (h *ChatHandler) Help(chatID int64, messageID int) {
	if err := h.msgr.SendText(chatID, messageID, helpReply); err != nil {
		log.Printf("[Chat] send help failed: %v", err)
	}
}

// Handle produces one assistant reply. Blocks until sent; callers run
// it on its own goroutine.
func (h *ChatHandler) Handle(ctx context.Context, in Incoming) {
	lock := h.userLock(in.UserID)
	lock.Lock()
	defer lock.Unlock()

	done := make(chan struct{})
	go h.typeUntil(ctx, in.ChatID, done)
	defer close(done)

	turns := h.appendTurn(in.ChatID, assistant.Turn{Role: assistant.RoleUser, Content: frameTurn(in)})

	reply, err := h.client.Complete(ctx, turns)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[Chat] completion failed: %v", err)
		alerts.ChatProvidersDown(err)
		h.msgr.SendText(in.ChatID, in.MessageID, busyReply)
		return
	}

	h.appendTurn(in.ChatID, assistant.Turn{Role: assistant.RoleAssistant, Content: reply})
	if err := h.msgr.SendText(in.ChatID, in.MessageID, reply); err != nil {
		log.Printf("[Chat] send reply failed: %v", err)
	}
}

// frameTurn renders a message as the model sees it: timestamp and
// speaker up front, plus an excerpt of the quoted message when the
// user replied to one.
func frameTurn(in Incoming) string {
	sender := in.Sender
	if sender == "" {
		sender = "user"
	}
	framed := fmt.Sprintf("[%s] %s: %s", in.Sent.Format("2006-01-02 15:04"), sender, in.Text)
	if in.ReplyText != "" {
		quoted := in.ReplyText
		if len(quoted) > replyExcerpt {
			quoted = quoted[:replyExcerpt] + "..."
		}
		framed = fmt.Sprintf("%s (in reply to: %s)", framed, quoted)
	}
	return framed
}

// appendTurn records a turn and returns a copy of the chat's trimmed
// history window.
func (h *ChatHandler) appendTurn(chatID int64, turn assistant.Turn) []assistant.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()

	turns := append(h.history[chatID], turn)
	if max := config.ChatMaxHistory * 2; max > 0 && len(turns) > max {
		turns = turns[len(turns)-max:]
	}
	h.history[chatID] = turns

	out := make([]assistant.Turn, len(turns))
	copy(out, turns)
	return out
}

// typeUntil keeps the typing indicator alive while a completion is in
// flight. Telegram drops the indicator after a few seconds, so it is
// re-sent on a ticker.
func (h *ChatHandler) typeUntil(ctx context.Context, chatID int64, done <-chan struct{}) {
	h.msgr.SendTyping(chatID)
	ticker := time.NewTicker(4 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.msgr.SendTyping(chatID)
		}
	}
}
