package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"scenes/internal/app"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx, os.Args[1:], os.Stdout); err != nil {
		if app.IsHelp(err) {
			os.Exit(2)
		}
		log.Fatalf("scenes: %v", err)
	}
}
