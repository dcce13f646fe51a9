// Package main: точка входа HTTP API CoFish.
// Загружает конфигурацию, инициализирует приложение и запускает.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"cofish.app/core/internal/app"
	"cofish.app/core/internal/config"
)

func main() {
	setupLogging()

	log.Info("=== CoFish запускается ===")

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}
	if err := cfg.ValidateServe(); err != nil {
		log.WithError(err).Fatal("Конфигурация не подходит для запуска API")
	}

	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}

	// SIGINT/SIGTERM отменяют контекст, сервер завершается сам
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.Close()

	if err := application.Scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить планировщик")
	}
	defer application.Scheduler.Stop()

	server := application.Server()
	log.WithField("addr", cfg.HTTPAddr).Info("=== CoFish готов к работе ===")

	if err := server.Start(ctx); err != nil {
		log.WithError(err).Error("HTTP сервер остановился с ошибкой")
	}

	log.Info("=== CoFish остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
