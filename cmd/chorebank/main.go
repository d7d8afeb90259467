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

	"github.com/hearthside/chorebank/internal/backup"
	"github.com/hearthside/chorebank/internal/database"
	"github.com/hearthside/chorebank/internal/logging"
	"github.com/hearthside/chorebank/internal/server"
)

func main() {
	port := os.Getenv("CHOREBANK_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("CHOREBANK_DB_PATH")
	if dbPath == "" {
		dbPath = "chorebank.db"
	}

	logger := logging.Setup("chorebank", os.Getenv("CHOREBANK_LOG_LEVEL"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv := server.New(db, logger)

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("CHOREBANK_S3_ENDPOINT"),
			Bucket:    os.Getenv("CHOREBANK_S3_BUCKET"),
			Region:    os.Getenv("CHOREBANK_S3_REGION"),
			AccessKey: os.Getenv("CHOREBANK_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("CHOREBANK_S3_SECRET_KEY"),
		},
		DBPath: dbPath,
	}
	backupMgr := backup.NewManager(backupCfg, db, logger.With("component", "backup"))
	backupMgr.Start(context.Background())
	defer backupMgr.Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Chorebank running at http://localhost:%s\n", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
