// Package main runs the linkpage command-line client.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	linkpagecmd "github.com/louisbranch/linkpage/internal/cmd/linkpage"
)

func main() {
	cfg, err := linkpagecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[LINKPAGE] ")
	logger, err := linkpagecmd.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := linkpagecmd.Run(ctx, cfg, os.Stdout, logger); err != nil {
		log.Fatalf("%s: %v", cfg.Command, err)
	}
}
