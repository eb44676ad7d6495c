package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yuribraga17/bot-fiscal-preco/config"
	"github.com/yuribraga17/bot-fiscal-preco/internal/bot"
	"github.com/yuribraga17/bot-fiscal-preco/internal/database"
	"github.com/yuribraga17/bot-fiscal-preco/internal/monitor"
	"github.com/yuribraga17/bot-fiscal-preco/internal/notifier"
	"github.com/yuribraga17/bot-fiscal-preco/internal/scraper"
)

func main() {
	// Carregar variáveis de ambiente
	if err := godotenv.Load(); err != nil {
		log.Println("Arquivo .env não encontrado, usando variáveis de ambiente do sistema")
	}

	// Carregar configurações
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Erro ao carregar configurações: %v", err)
	}

	// Inicializar banco de dados
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Erro ao inicializar banco de dados: %v", err)
	}
	defer db.Close()

	// Inicializar bot do Telegram
	telegramBot, err := bot.Init(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalf("Erro ao inicializar bot do Telegram: %v", err)
	}

	// Montar o scraper com as configurações de sites
	sites := scraper.NewSiteRegistry()
	if cfg.SitesConfigPath != "" {
		if err := sites.LoadFile(cfg.SitesConfigPath); err != nil {
			log.Printf("Erro ao carregar configurações de sites: %v", err)
		}
	}
	fetcher := scraper.NewFetcher(cfg.RequestTimeout, cfg.UserAgent, cfg.MaxFetchAttempts)
	scr := scraper.New(fetcher, sites)

	// Notificador com cooldown por produto e tipo
	notif := notifier.New(telegramBot, cfg.TelegramChatID, cfg.NotifyCooldown)

	// Criar e iniciar o monitor
	mon := monitor.New(db, scr, notif, monitor.Config{
		Interval:      cfg.CheckInterval,
		WarmupDelay:   cfg.MonitorWarmupDelay,
		BatchSize:     cfg.MonitorBatchSize,
		BatchDelay:    cfg.MonitorBatchDelay,
		RetentionDays: cfg.HistoryRetentionDays,
	})
	mon.Start()

	// Comandos do bot em background
	handler := bot.NewHandler(telegramBot, db, mon, scr, cfg.TelegramChatID)
	go handler.Run()

	// Aguardar sinal de interrupção
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Encerrando bot...")
	mon.Stop()
}
