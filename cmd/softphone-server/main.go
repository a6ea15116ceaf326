/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Command softphone-server runs the backend API: account auth, signaling
// configuration storage, and call statistics ingestion.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tejzpr/softphone-go/server"
)

func main() {
	cfg := server.DefaultConfig()
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flag.StringVar(&cfg.DatabasePath, "db", cfg.DatabasePath, "SQLite database path (\":memory:\" for ephemeral)")
	secret := flag.String("jwt-secret", os.Getenv("SOFTPHONE_JWT_SECRET"), "JWT signing secret (or SOFTPHONE_JWT_SECRET)")
	flag.Parse()

	cfg.JWTSecret = *secret
	if cfg.JWTSecret == "" {
		log.Fatal("a JWT secret is required: pass -jwt-secret or set SOFTPHONE_JWT_SECRET")
	}

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigCh:
		log.Printf("received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}
}
