package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"timeplus_app/internal/config"
	"timeplus_app/internal/services"
)

func main() {
	phone := flag.String("phone", "", "Phone number (e.g. +55 11 98765-4321)")
	msg := flag.String("msg", "Mensagem de teste do TimePlus", "Message body")
	flag.Parse()

	cfg := config.Load()
	logger := services.NewLogger(cfg.App)
	defer logger.Sync()

	if *phone == "" {
		logger.Fatal("Please provide a phone number using -phone flag")
	}

	chatID := services.NormalizeChatID(*phone)
	logger.Info("Sending message", zap.String("chatId", chatID), zap.String("session", cfg.Waha.Session))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := services.NewWahaService(cfg.Waha).SendMessage(ctx, chatID, *msg); err != nil {
		logger.Fatal("Failed to send message", zap.Error(err))
	}

	logger.Info("Message sent successfully!")
}
