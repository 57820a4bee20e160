package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"volare/internal/server"
)

func main() {
	srv := server.New()
	srv.RegisterFiberRoutes()

	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 8080
	}

	go func() {
		if err := srv.Listen(fmt.Sprintf(":%d", port)); err != nil {
			log.Fatalf("[API] Server error: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("[API] Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("[API] Fiber shutdown error: %v", err)
	}
	if err := srv.Shutdown(); err != nil {
		log.Printf("[API] Cleanup error: %v", err)
	}

	log.Println("[API] Server stopped")
}
