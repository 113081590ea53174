package main

import (
	"context"
	"flag"
	"log"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/NordCoder/Gatekeeper/internal/obs"
	"github.com/NordCoder/Gatekeeper/migrations"
)

func main() {
	cmd := flag.String("cmd", "up", "goose command: up, down, status, version")
	flag.Parse()

	l, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "gatekeeper/migrator"})
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	dbURL := os.Getenv("DB_DSN")
	if dbURL == "" {
		l.Fatal("DB_DSN is empty")
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		l.Fatal("set dialect", zap.Error(err))
	}
	db, err := goose.OpenDBWithDriver("pgx", dbURL)
	if err != nil {
		l.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	if err := goose.RunContext(context.Background(), *cmd, db, "."); err != nil {
		l.Fatal("migrate", zap.String("cmd", *cmd), zap.Error(err))
	}
	l.Info("migrations done", zap.String("cmd", *cmd))
}
