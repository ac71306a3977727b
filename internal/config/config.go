package config

import (
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

var Version = "dev"

var (
	Port    string
	EnvMode string

	BotToken    string
	BotUsername string
	AdminChatID int64

	TempDir string

	MaxConcurrentDownloads int
	MaxDownloadsPerUser    int
	DownloadTimeout        time.Duration
	FFmpegConcurrency      int

	DefaultCompressThresholdMB float64
	MaxTelegramSizeMB          float64
	MaxCompressSizeMB          float64

	ProxyHost       string
	ProxyPort       string
	ProxyUserPrefix string
	ProxyPassword   string
	ProxyCount      int

	CookiesFile string
	YTProxy     string

	ChatAPIURLs      []string
	ChatAPIKey       string
	ChatModel        string
	ChatSystemPrompt string
	ChatMaxHistory   int
	ChatTimeout      time.Duration
)

const (
	DiskSpaceMinGB      = 2
	MaxURLLength        = 2048
	MaxShortDurationSec = 60
	RateLimitWindow     = 60 * time.Second
	RateLimitMax        = 60
)

// Profile is one named bundle of encoder parameters for a compression pass.
type Profile struct {
	CRF          int
	Scale        int
	Preset       string
	AudioBitrate int
}

var (
	DefaultProfile    Profile
	FirstPassProfile  Profile
	SecondPassProfile Profile
)

func Load() {
	Port = envOrDefault("PORT", "3001")
	EnvMode = envOrDefault("ENV_MODE", "development")

	BotToken = os.Getenv("BOT_TOKEN")
	BotUsername = os.Getenv("BOT_USERNAME")
	AdminChatID = envInt64("ADMIN_CHAT_ID", 0)

	TempDir = envOrDefault("TEMP_DIR", "/var/tmp/grabit")

	MaxConcurrentDownloads = envInt("MAX_CONCURRENT_DOWNLOADS", 4)
	MaxDownloadsPerUser = envInt("MAX_DOWNLOADS_PER_USER", 2)
	DownloadTimeout = time.Duration(envInt("DOWNLOAD_TIMEOUT", 90)) * time.Second

	cpus := runtime.NumCPU()
	if cpus > 8 {
		cpus = 8
	}
	FFmpegConcurrency = envInt("FFMPEG_CONCURRENCY", cpus)
	if FFmpegConcurrency < 1 {
		FFmpegConcurrency = 1
	}

	DefaultCompressThresholdMB = envFloat("DEFAULT_COMPRESS_THRESHOLD_MB", 10)
	MaxTelegramSizeMB = envFloat("MAX_TELEGRAM_SIZE_MB", 45)
	MaxCompressSizeMB = envFloat("MAX_COMPRESS_SIZE_MB", 200)

	DefaultProfile = Profile{
		CRF:          envInt("DEFAULT_CRF", 28),
		Scale:        envInt("DEFAULT_SCALE", 1280),
		Preset:       envOrDefault("DEFAULT_PRESET", "veryfast"),
		AudioBitrate: envInt("DEFAULT_AUDIO_KBPS", 128),
	}
	FirstPassProfile = Profile{
		CRF:          envInt("FIRST_PASS_CRF", 30),
		Scale:        envInt("FIRST_PASS_SCALE", 960),
		Preset:       envOrDefault("FIRST_PASS_PRESET", "fast"),
		AudioBitrate: envInt("FIRST_PASS_AUDIO_KBPS", 96),
	}
	SecondPassProfile = Profile{
		CRF:          envInt("SECOND_PASS_CRF", 34),
		Scale:        envInt("SECOND_PASS_SCALE", 640),
		Preset:       envOrDefault("SECOND_PASS_PRESET", "fast"),
		AudioBitrate: envInt("SECOND_PASS_AUDIO_KBPS", 64),
	}

	ProxyHost = os.Getenv("PROXY_HOST")
	ProxyPort = envOrDefault("PROXY_PORT", "80")
	ProxyUserPrefix = os.Getenv("PROXY_USER_PREFIX")
	ProxyPassword = os.Getenv("PROXY_PASSWORD")
	ProxyCount = envInt("PROXY_COUNT", 0)

	CookiesFile = envOrDefault("COOKIES_FILE", "cookies.txt")
	YTProxy = os.Getenv("YT_PROXY")

	ChatAPIURLs = splitList(os.Getenv("CHAT_API_URLS"))
	ChatAPIKey = os.Getenv("CHAT_API_KEY")
	ChatModel = envOrDefault("CHAT_MODEL", "gpt-4o-mini")
	ChatSystemPrompt = envOrDefault("CHAT_SYSTEM_PROMPT",
		"You are a helpful, slightly sarcastic group chat assistant. Keep answers short.")
	ChatMaxHistory = envInt("CHAT_MAX_HISTORY", 10)
	ChatTimeout = time.Duration(envInt("CHAT_TIMEOUT", 60)) * time.Second

	if BotToken == "" {
		log.Println("[WARN] BOT_TOKEN not set, bot will fail to start")
	}
	if len(ChatAPIURLs) == 0 {
		log.Println("[WARN] CHAT_API_URLS not set, chat replies disabled")
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
