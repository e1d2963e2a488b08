// Package main runs an interactive fabula story session.
//
// It reads config from flags/env, loads the stories, and plays on the
// terminal until the player quits.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	fabulacmd "github.com/louisbranch/fabula/internal/cmd/fabula"
)

func main() {
	cfg, err := fabulacmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[fabula] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fabulacmd.Run(ctx, cfg); err != nil {
		log.Fatalf("session failed: %v", err)
	}
}
