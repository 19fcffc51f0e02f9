package main

import (
	"chat-relay/infrastructure/grpc/api"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	env "github.com/Netflix/go-env"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:50051"`
	Token         string `env:"CHAT_TOKEN"`
	LogLevel      string `env:"LOG_LEVEL,default=WARN"`
}

func main() {
	code, err := run(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatctl: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string) (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	cmd, err := parseCommand(args)
	if err != nil {
		fmt.Fprint(os.Stderr, usage)
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpc.NewClient(config.ServerAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Debug("Closing connection...")
		_ = conn.Close()
	}()

	if config.Token != "" {
		ctx = api.WithToken(ctx, config.Token)
	}
	c := &cli{
		out:      os.Stdout,
		prompt:   terminalPrompt{in: os.Stdin, out: os.Stderr},
		auth:     api.NewAuthServiceClient(conn),
		accounts: api.NewAccountServiceClient(conn),
		chat:     api.NewChatServiceClient(conn),
	}
	if err := c.execute(ctx, cmd); err != nil {
		if ctx.Err() != nil {
			return exitOK, nil
		}
		return exitRuntime, err
	}
	return exitOK, nil
}
