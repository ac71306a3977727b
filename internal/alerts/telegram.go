package alerts

import (
	"fmt"
	"log"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ndmitry/grabit/internal/config"
)

// Operational alerts go to the admin chat. Each category carries its
// own cooldown so a flapping failure does not spam the admin.

var (
	mu                sync.Mutex
	api               *tgbotapi.BotAPI
	categoryCooldowns = make(map[string]time.Time)
)

func Init(botAPI *tgbotapi.BotAPI) {
	mu.Lock()
	api = botAPI
	mu.Unlock()
}

func send(category string, cooldown time.Duration, text string) {
	mu.Lock()
	bot := api
	now := time.Now()
	if bot == nil || config.AdminChatID == 0 {
		mu.Unlock()
		return
	}
	if cooldown > 0 {
		if last, ok := categoryCooldowns[category]; ok && now.Sub(last) < cooldown {
			mu.Unlock()
			return
		}
	}
	categoryCooldowns[category] = now
	mu.Unlock()

	go func() {
		msg := tgbotapi.NewMessage(config.AdminChatID, text)
		if _, err := bot.Send(msg); err != nil {
			log.Printf("[Alerts] send failed: %v", err)
		}
	}()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func BotStarted() {
	send("lifecycle", 0, fmt.Sprintf("🟢 grabit %s started", config.Version))
}

func BotStopping() {
	send("lifecycle", 0, "🔴 grabit stopping")
}

func DownloadFailed(source, url string, err error) {
	send("download:"+source, 5*time.Minute,
		fmt.Sprintf("⚠️ %s download failed\n%s\n%s", source, url, truncate(err.Error(), 500)))
}

func CompressionFailed(url string, err error) {
	send("compression", 5*time.Minute,
		fmt.Sprintf("⚠️ compression failed\n%s\n%s", url, truncate(err.Error(), 500)))
}

func CookieIssue(details string) {
	send("cookies", 30*time.Minute, "🍪 "+details)
}

func LowDiskSpace(availGB float64) {
	send("disk", 15*time.Minute,
		fmt.Sprintf("💾 low disk space: %.1fGB available", availGB))
}

func ChatProvidersDown(err error) {
	send("chat", 15*time.Minute,
		fmt.Sprintf("💬 all chat endpoints failing\n%s", truncate(err.Error(), 500)))
}
