package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fail2ban-exporter/internal/config"
	"fail2ban-exporter/internal/logging"
	"fail2ban-exporter/internal/node"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	log.WithFields(logrus.Fields{
		"version": config.Version,
		"socket":  cfg.SocketURI,
		"listen":  cfg.ListenAddr(),
	}).Info("Starting fail2ban exporter")

	n, err := node.NewNode(cfg, log)
	if err != nil {
		log.Fatalf("Failed to create node: %v", err)
	}

	if err := n.Start(ctx); err != nil {
		log.Fatalf("Failed to start node: %v", err)
	}

	// Wait for shutdown signal
	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Shutting down...")

	if err := n.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}
}
