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
)

func main() {
	if err := validateAuthConfig(); err != nil {
		log.Fatalf("Invalid auth configuration: %v", err)
	}

	cfg := loadServerConfig("config.json")
	gameCfg := loadGameConfig(cfg.GameConfigPath)

	log.Println("=================================")
	log.Println(cfg.ServerName)
	log.Println("Status: STARTED")
	log.Println("=================================")

	store, err := openStore(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	for _, seed := range cfg.Staff {
		if seed.ID == 0 || seed.Name == "" || seed.Code == "" {
			continue
		}
		if err := store.UpsertStaff(context.Background(), seed.ID, seed.Name, seed.Code); err != nil {
			log.Printf("Failed to seed staff %d: %v", seed.ID, err)
		}
	}

	boards := newLeaderboard()
	defer boards.close()

	engine := NewEngine(gameCfg, nil)
	boss := gameCfg.BossOrDefault()
	log.Printf("RPG config: %d enemies, %d shop items, boss %q (Lv %d)",
		len(gameCfg.Enemies), len(gameCfg.ShopItems), boss.Name, boss.Level)

	server := NewServer(cfg, engine, store, boards, newLogFeed())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ListenPort),
		Handler: server.routes(),
	}

	go func() {
		log.Printf("GameServer listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start GameServer: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("GameServer shut down cleanly")
}
