package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nutriplan/internal/api"
	"nutriplan/internal/api/middleware"
	"nutriplan/internal/app"
	"nutriplan/internal/config"
	"nutriplan/internal/telegram"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireAPI(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. Open the database and connect the model clients
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Printf("Warning: failed to close application: %v", err)
		}
	}()

	if err := application.EnsureIngredients(ctx); err != nil {
		log.Fatalf("Failed to prepare ingredient catalog: %v", err)
	}

	// 3. HTTP API
	server := api.NewServer(application, middleware.NewTokenService(cfg.APIJWTSecret))

	// 4. Telegram Bot (optional)
	if cfg.TelegramBotToken != "" {
		bot, err := telegram.NewBot(cfg, application)
		if err != nil {
			log.Fatalf("Failed to initialize Telegram Bot: %v", err)
		}
		server.Post(api.WebhookPath, adaptor.HTTPHandler(bot))
	} else {
		log.Printf("Warning: TELEGRAM_BOT_TOKEN not set, Telegram bot disabled")
	}

	// 5. Start Server with Graceful Shutdown
	go func() {
		log.Printf("Server listening on port %s", cfg.Port)
		if err := server.Listen(":" + cfg.Port); err != nil {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
