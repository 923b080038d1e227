package main

import (
	"flag"
	"log"
	"os"

	"go-inventory-ledger/internal/config"
	"go-inventory-ledger/internal/repository"
	"go-inventory-ledger/pkg/database"
	"go-inventory-ledger/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// reset-password sets a user's password directly in the database and signs
// out their existing sessions. Meant for recovering the bootstrap admin.
func main() {
	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "account to reset")
	password := flag.String("password", "", "new password (at least 6 characters)")
	flag.Parse()

	if *email == "" || len(*password) < 6 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, _, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog, err := logger.New(cfg.Logger.Level, "console")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.Connect(database.Options{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN})
	if err != nil {
		zlog.Fatal("database", zap.Error(err))
	}

	users := repository.NewUserRepo(db)
	user, err := users.FindByEmail(*email)
	if err != nil {
		zlog.Fatal("user not found", zap.String("email", *email), zap.Error(err))
	}
	if err := user.SetPassword(*password); err != nil {
		zlog.Fatal("hash password", zap.Error(err))
	}
	if err := users.UpdatePassword(user.ID, user.Password); err != nil {
		zlog.Fatal("update password", zap.Error(err))
	}
	if err := users.UpdateTokenVersion(user.ID, uuid.New().String()); err != nil {
		zlog.Fatal("revoke sessions", zap.Error(err))
	}

	zlog.Info("password reset", zap.String("email", *email))
}
