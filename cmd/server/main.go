package main

import (
	"chat-relay/auth"
	"chat-relay/infrastructure/gateway"
	"chat-relay/infrastructure/grpc/api"
	"chat-relay/infrastructure/grpc/server"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes give a meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run owns every resource so that the deferred cleanups execute before
// the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig(".env")
	if err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()
	debug := logger.Enabled(ctx, slog.LevelDebug)
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 2. Storage (BadgerDB) and search index (Bluge)
	db, err := badger.Open(buildBadgerOpts(config, debug))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	monitoring := observability.NewMonitoringManager(logger)
	if debug {
		debugServer := internal.NewDebugServer(logger, db, internal.RecordMapper,
			func() any { return monitoring.GetLatest() }, repositories.Prefixes)
		srv := debugServer.Start(config.DebugPort)
		defer func() { _ = srv.Close() }()
	}

	var index *search.Index
	if config.BlugeFilepath != "" {
		blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
		}
		defer func() {
			logger.Info("Closing Bluge...")
			_ = blugeWriter.Close()
		}()
		index = search.NewIndex(blugeWriter, logger)
	}

	// 3. Repositories & Services
	policy := repositories.RetryPolicy{
		MaxAttempts: uint64(config.RetryMaxAttempts),
		BaseDelay:   config.RetryBaseDelay,
	}
	accountRepository := repositories.NewAccountRepository(db, logger, policy)
	sessionRepository := repositories.NewSessionRepository(db, logger, policy)
	messageRepository := repositories.NewMessageRepository(db, logger, policy)
	conversationRepository := repositories.NewConversationRepository(db)

	sup := workers.NewSupervisor(logger, config.RestartInterval)
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(logger, sup, registry, monitoring, config.BufferSize, config.SinkTimeout)

	chatOptions := []services.ChatOption{}
	if index != nil {
		watermarks := repositories.NewSearchWatermarkRepository(db, logger, policy)
		searchSink := sink.NewSearchSink(index, messageRepository, watermarks, logger,
			config.SearchBatchSize, config.SearchFlushInterval)
		orchestrator.RegisterSinks(searchSink)
		orchestrator.AddWorkers(searchSink)
		chatOptions = append(chatOptions, services.WithSearchIndex(index))
	}
	if config.ModerationEnabled {
		moderator, err := moderation.NewDefaultModerator(charReplacement, logger)
		if err != nil {
			return exitConfig, err
		}
		chatOptions = append(chatOptions, services.WithCensor(moderator))
	}

	tokenizer := auth.NewTokenizer(config.JWTSecret, config.AuthTokenDuration)
	authenticator := auth.NewAuthenticator(tokenizer, sessionRepository, api.PublicMethods()...)
	accountService, err := services.NewAccountService(logger, accountRepository, sessionRepository, tokenizer,
		auth.DefaultPasswordParams, services.WithStreamCloser(authenticator.Streams()))
	if err != nil {
		return exitRuntime, err
	}
	chatService := services.NewChatService(logger, messageRepository, conversationRepository, accountRepository,
		orchestrator, monitoring, services.ChatConfig{
			MaxContentLength:     config.MaxContentLength,
			ConnectionBufferSize: config.ConnectionBufferSize,
			SearchLimit:          config.SearchLimit,
		}, chatOptions...)

	orchestrator.AddWorkers(workers.NewHealthMonitoringWorker(
		logger, monitoring, registry, orchestrator, chatService.InFlight, config.MetricInterval))

	// 4. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 3)

	// 5. Fan-out and supervised workers, stopped after the servers
	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)
		if err := orchestrator.Start(context.Background()); err != nil {
			errChan <- fmt.Errorf("orchestrator error: %w", err)
		}
	}()

	// 6. gRPC Server
	grpcAddress := net.JoinHostPort(config.Host, fmt.Sprint(config.GrpcPort))
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := server.New(logger, authenticator, accountService, chatService)
	go func() {
		logger.Info("Starting gRPC server", "address", grpcAddress, "at", time.Now().UTC())
		for serviceName := range grpcServer.GetServiceInfo() {
			logger.Debug("gRPC exposed services", "name", serviceName)
		}
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	// 7. HTTP and WebSocket gateway
	httpServer := &http.Server{
		Addr: net.JoinHostPort(config.Host, fmt.Sprint(config.HTTPPort)),
		Handler: gateway.NewRouter(logger, authenticator, accountService, chatService, gateway.Config{
			PingInterval:         config.WSPingInterval,
			ConnectionBufferSize: config.ConnectionBufferSize,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("Starting HTTP gateway", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP gateway error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		code = exitRuntime
	}

	// 9. Graceful Shutdown: streams end with the signal context, the
	// servers drain, then the fan-out queue, then the workers stop and
	// the search sink flushes what it buffered.
	logger.Info("Shutting down gracefully...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP gateway shutdown", "error", err)
	}
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("gRPC streams still open, forcing stop")
		grpcServer.Stop()
	}
	if err := orchestrator.Drain(shutdownCtx); err != nil {
		logger.Warn("Fan-out drain", "error", err)
	}
	orchestrator.Stop()
	select {
	case <-orchestratorDone:
	case <-shutdownCtx.Done():
		logger.Warn("Workers still running at shutdown deadline")
	}
	logger.Info("Program stopped cleanly")
	return code, runErr
}

func buildBadgerOpts(config internal.Config, debug bool) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)
	if debug {
		return options.WithLoggingLevel(badger.DEBUG)
	}
	return options.WithLoggingLevel(badger.WARNING)
}
