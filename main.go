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

	"remindline/internal/bot"
	"remindline/internal/config"
	"remindline/internal/line"
	"remindline/internal/store"
	"remindline/internal/twilio"
)

func main() {
	logger := log.New(os.Stdout, "[remindline] ", log.LstdFlags|log.Lshortfile)
	cfg := config.Load()

	if cfg.ChannelSecret == "" || cfg.ChannelToken == "" {
		logger.Fatal("LINE_CHANNEL_SECRET and LINE_CHANNEL_ACCESS_TOKEN must be set")
	}

	st, err := newStore(cfg, logger)
	if err != nil {
		logger.Fatalf("store init failed: %v", err)
	}

	lineClient, err := line.New(cfg.ChannelSecret, cfg.ChannelToken)
	if err != nil {
		logger.Fatalf("line client init failed: %v", err)
	}

	notifier, err := newNotifier(cfg, lineClient)
	if err != nil {
		logger.Fatalf("notifier init failed: %v", err)
	}

	reminderBot := bot.New(cfg, st, lineClient, notifier, logger)
	if err := reminderBot.StartScheduler(); err != nil {
		logger.Fatalf("scheduler start: %v", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           reminderBot.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(server, reminderBot, logger)
}

// newStore picks the row store: the spreadsheet when one is configured,
// otherwise the database fallback.
func newStore(cfg *config.Config, logger *log.Logger) (store.RowStore, error) {
	if cfg.SpreadsheetID != "" {
		return store.NewSheets(context.Background(), cfg.SpreadsheetID, cfg.SheetName, cfg.CredentialsFile)
	}
	logger.Printf("no spreadsheet configured, using database store")
	return store.NewDatabase(cfg.DatabaseURL)
}

func newNotifier(cfg *config.Config, lineClient *line.Client) (bot.Notifier, error) {
	switch cfg.Gateway {
	case "", "line":
		return lineClient, nil
	case "whatsapp":
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
			return nil, fmt.Errorf("GATEWAY=whatsapp requires TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN")
		}
		return twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber), nil
	default:
		return nil, fmt.Errorf("unknown GATEWAY %q", cfg.Gateway)
	}
}

func waitForShutdown(server *http.Server, reminderBot *bot.Bot, logger *log.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}
	reminderBot.StopScheduler()
}
