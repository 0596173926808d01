package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/database"
	"github.com/argus-sec/argus/internal/models"
	"github.com/argus-sec/argus/internal/services"
)

// Seeds the admin account, default settings and the statically configured
// blocked/trusted address lists. Safe to run repeatedly.
func main() {
	email := flag.String("email", "admin@example.com", "admin account email")
	password := flag.String("password", "", "admin account password (required)")
	name := flag.String("name", "Administrator", "admin display name")
	flag.Parse()

	if *password == "" {
		log.Println("usage: seed -email <email> -password <password>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Setting{},
		&models.BlockedIP{},
		&models.TrustedIP{},
		&models.SecurityEvent{},
		&models.RateLimitAudit{},
	); err != nil {
		log.Fatalf("auto migrate: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var count int64
	db.Model(&models.User{}).Where("email = ?", *email).Count(&count)
	if count == 0 {
		authService := services.NewAuthService(db, cfg, nil)
		if _, err := authService.CreateUser(ctx, *email, *password, *name, "admin"); err != nil {
			log.Fatalf("create admin: %v", err)
		}
		log.Printf("created admin account %s", *email)
	} else {
		log.Printf("admin account %s already exists", *email)
	}

	settings := services.NewSettingsService(db)
	if err := settings.Set(ctx, services.SettingGatewayEnabled, "true"); err != nil {
		log.Fatalf("seed settings: %v", err)
	}

	bans := services.NewBanService(db)
	if err := bans.SeedStatic(ctx, cfg.Gateway.StaticBlockedIPs); err != nil {
		log.Fatalf("seed blocked addresses: %v", err)
	}
	trust := services.NewTrustService(db)
	if err := trust.SeedStatic(ctx, cfg.Gateway.StaticTrustedIPs); err != nil {
		log.Fatalf("seed trusted addresses: %v", err)
	}

	log.Println("seed complete")
}
