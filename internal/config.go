package internal

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,default=2s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=30s"`
	AuthTokenDuration    time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	Host                 string        `env:"HOST,default=0.0.0.0"`
	GrpcPort             int           `env:"GRPC_PORT,default=50051"`
	HTTPPort             int           `env:"HTTP_PORT,default=8080"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=4096"`
	RetryMaxAttempts     int           `env:"RETRY_MAX_ATTEMPTS,default=5"`
	RetryBaseDelay       time.Duration `env:"RETRY_BASE_DELAY,default=5ms"`
	ModerationEnabled    bool          `env:"MODERATION_ENABLED,default=false"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	WSPingInterval       time.Duration `env:"WS_PING_INTERVAL,default=30s"`
	SearchLimit          int           `env:"SEARCH_LIMIT,default=50"`
	SearchBatchSize      int           `env:"SEARCH_BATCH_SIZE,default=100"`
	SearchFlushInterval  time.Duration `env:"SEARCH_FLUSH_INTERVAL,default=500ms"`
}

// LoadConfig reads the optional dotenv files into the environment, then
// the environment into Config. Variables already set win over the files.
func LoadConfig(dotenvFiles ...string) (Config, error) {
	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}
	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	switch {
	case c.BufferSize <= 0:
		return fmt.Errorf("BUFFER_SIZE must be positive, got %d", c.BufferSize)
	case c.ConnectionBufferSize <= 0:
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	case c.MaxContentLength <= 0:
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	case c.RetryMaxAttempts <= 0:
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	case len(c.JWTSecret) < 32:
		return fmt.Errorf("JWT_SECRET must hold at least 32 characters")
	}
	_, err := CharacterRune(c.CharReplacement)
	return err
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
