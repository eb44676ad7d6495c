package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config contém as configurações da aplicação
type Config struct {
	TelegramBotToken     string
	TelegramChatID       int64
	CheckIntervalMinutes int
	CheckInterval        time.Duration
	DatabasePath         string
	SitesConfigPath      string

	// Scraping
	UserAgent         string
	RequestTimeout    time.Duration
	MaxFetchAttempts  int
	ScrapeConcurrency int
	ScrapeBatchDelay  time.Duration

	// Monitoramento
	MonitorBatchSize     int
	MonitorBatchDelay    time.Duration
	MonitorWarmupDelay   time.Duration
	HistoryRetentionDays int
	NotifyCooldown       time.Duration
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Load carrega as configurações das variáveis de ambiente
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN não configurado")
	}

	cfg := &Config{
		TelegramBotToken:     token,
		CheckIntervalMinutes: 30,
		DatabasePath:         "./products.db",
		SitesConfigPath:      os.Getenv("SITES_CONFIG_PATH"),
		UserAgent:            defaultUserAgent,
		RequestTimeout:       30 * time.Second,
		MaxFetchAttempts:     3,
		ScrapeConcurrency:    3,
		ScrapeBatchDelay:     2 * time.Second,
		MonitorBatchSize:     5,
		MonitorBatchDelay:    3 * time.Second,
		MonitorWarmupDelay:   10 * time.Second,
		HistoryRetentionDays: 90,
		NotifyCooldown:       6 * time.Hour,
	}

	// Chat ID é opcional (usado para restringir comandos e como destino padrão)
	if chatIDStr := os.Getenv("TELEGRAM_CHAT_ID"); chatIDStr != "" {
		if chatID, err := strconv.ParseInt(chatIDStr, 10, 64); err == nil {
			cfg.TelegramChatID = chatID
		}
	}

	if path := os.Getenv("DATABASE_PATH"); path != "" {
		cfg.DatabasePath = path
	}

	if ua := os.Getenv("SCRAPER_USER_AGENT"); ua != "" {
		cfg.UserAgent = ua
	}

	cfg.CheckIntervalMinutes = envInt("CHECK_INTERVAL_MINUTES", cfg.CheckIntervalMinutes)
	cfg.CheckInterval = time.Duration(cfg.CheckIntervalMinutes) * time.Minute

	cfg.MaxFetchAttempts = envInt("MAX_FETCH_ATTEMPTS", cfg.MaxFetchAttempts)
	cfg.ScrapeConcurrency = envInt("SCRAPE_CONCURRENCY", cfg.ScrapeConcurrency)
	cfg.MonitorBatchSize = envInt("MONITOR_BATCH_SIZE", cfg.MonitorBatchSize)
	cfg.HistoryRetentionDays = envInt("HISTORY_RETENTION_DAYS", cfg.HistoryRetentionDays)

	if secs := envInt("REQUEST_TIMEOUT_SECONDS", 0); secs > 0 {
		cfg.RequestTimeout = time.Duration(secs) * time.Second
	}
	if secs := envInt("MONITOR_BATCH_DELAY_SECONDS", 0); secs > 0 {
		cfg.MonitorBatchDelay = time.Duration(secs) * time.Second
	}
	if hours := envInt("NOTIFY_COOLDOWN_HOURS", 0); hours > 0 {
		cfg.NotifyCooldown = time.Duration(hours) * time.Hour
	}

	return cfg, nil
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
