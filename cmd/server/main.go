package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"

	"chat-relay/admin"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/relay"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component together and blocks until a termination
// signal arrives. Returning the error to main keeps all defers running
// before the process exits.
func run() error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	repository := repositories.NewMessageRepository(db, log)
	defer func() { _ = repository.Close() }()

	stats := observability.NewStats(log)
	hub := relay.NewHub(repository, stats, log)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	sessionCfg := relay.Config{
		MaxPayload:       config.MaxPayloadBytes,
		QueueCapacity:    config.SessionQueueCapacity,
		HandshakeTimeout: config.HandshakeTimeout,
		WriteTimeout:     config.WriteTimeout,
		MaxNicknameLen:   config.MaxNicknameLength,
	}
	acceptor := relay.NewAcceptor(listener, hub, sessionCfg, log, stats)

	adminService := admin.NewService(repository, log)
	debugAddress := fmt.Sprintf("%s:%d", config.Host, config.DebugPort)
	debugServer := internal.NewDebugServer(debugAddress, adminService, hub, stats, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Relay listening", "address", address, "debug_address", debugAddress)
	workers.NewSupervisor(log).Add(acceptor, debugServer).Run(ctx)

	log.Info("Program stopped cleanly")
	return nil
}
