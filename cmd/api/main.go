package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/database"
	"github.com/argus-sec/argus/internal/logger"
	"github.com/argus-sec/argus/internal/server"
	"github.com/argus-sec/argus/internal/services"
	"github.com/argus-sec/argus/internal/version"
)

const (
	eventRetention  = 90 * 24 * time.Hour
	banAuditHorizon = 180 * 24 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Log to both stdout and a rotated file.
	logDir := filepath.Join(filepath.Dir(cfg.DatabasePath), "logs")
	_ = os.MkdirAll(logDir, 0o755)
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "argus.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	logger.Init(cfg.IsDevelopment(), io.MultiWriter(os.Stdout, rotator))

	logger.Log().Infof("starting %s %s", version.Name, version.Full())

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Log().WithError(err).Fatal("open database")
	}

	srv, err := server.New(db, cfg)
	if err != nil {
		logger.Log().WithError(err).Fatal("build server")
	}

	// Nightly maintenance: drop resolved events past retention and
	// expired ban rows past the audit horizon.
	events := services.NewEventService(db)
	bans := services.NewBanService(db)
	scheduler := cron.New()
	_, err = scheduler.AddFunc("15 3 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, err := events.PurgeResolved(ctx, eventRetention); err != nil {
			logger.Alert().WithError(err).Warn("event purge failed")
		} else if n > 0 {
			logger.Log().WithField("removed", n).Info("purged resolved security events")
		}
		if n, err := bans.PurgeExpired(ctx, banAuditHorizon); err != nil {
			logger.Alert().WithError(err).Warn("ban purge failed")
		} else if n > 0 {
			logger.Log().WithField("removed", n).Info("purged expired ban rows")
		}
	})
	if err != nil {
		logger.Log().WithError(err).Fatal("schedule maintenance")
	}
	scheduler.Start()
	defer scheduler.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log().Infof("listening on :%s", cfg.HTTPPort)
	if err := srv.Run(ctx); err != nil {
		logger.Log().WithError(err).Fatal("server error")
	}
}
