package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"

	"github.com/ndmitry/grabit/internal/alerts"
	"github.com/ndmitry/grabit/internal/assistant"
	"github.com/ndmitry/grabit/internal/bot"
	"github.com/ndmitry/grabit/internal/config"
	"github.com/ndmitry/grabit/internal/fetch"
	"github.com/ndmitry/grabit/internal/server"
	"github.com/ndmitry/grabit/internal/transcode"
	"github.com/ndmitry/grabit/internal/util"
	"github.com/ndmitry/grabit/internal/workspace"
)

func main() {
	godotenv.Load()
	config.Load()

	if config.BotToken == "" {
		log.Fatal("BOT_TOKEN is required")
	}

	util.CheckDependencies()

	ws := workspace.NewManager(config.TempDir)
	ws.DestroyAll()

	api, err := tgbotapi.NewBotAPI(config.BotToken)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	alerts.Init(api)

	engine := transcode.NewEngine(config.FFmpegConcurrency)
	policy := transcode.NewPolicy(transcode.LimitsFromConfig(), engine, ws)

	fetchers := []fetch.Fetcher{
		fetch.NewTikTok(),
		fetch.NewYouTube(ws),
		fetch.NewCoub(ws),
		fetch.NewInstagram(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := bot.NewRegistry(config.MaxConcurrentDownloads, config.MaxDownloadsPerUser)
	msgr := bot.NewTelegramMessenger(api)
	dispatcher := bot.NewDispatcher(ctx, registry, fetchers, policy, ws, msgr)
	chat := bot.NewChatHandler(assistant.NewClient(), msgr)

	b := bot.New(api, dispatcher, chat)

	srv := server.New(registry, ws)
	go func() {
		log.Printf("[Server] listening on :%s", config.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	go b.Run(ctx)
	alerts.BotStarted()
	fmt.Println("Bot is running. Press Ctrl+C to stop.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	alerts.BotStopping()
	cancel()
	registry.CancelAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	ws.DestroyAll()
	fmt.Println("Stopped.")
}
