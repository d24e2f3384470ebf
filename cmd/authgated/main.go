// Command authgated runs the authentication service: SQLite for
// users, Redis for sessions and verification tokens, JSON over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	authgate "github.com/hexlattice/authgate"
	"github.com/hexlattice/authgate/httpapi"
	"github.com/hexlattice/authgate/mailer"
	"github.com/hexlattice/authgate/userstore"
)

type serviceConfig struct {
	ListenAddr     string        `env:"LISTEN_ADDR" envDefault:":8080"`
	DatabasePath   string        `env:"DATABASE_PATH" envDefault:"authgate.db"`
	RedisAddr      string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"168h"`
	SlidingExpiry  bool          `env:"SESSION_SLIDING" envDefault:"false"`
	CookieSecure   bool          `env:"COOKIE_SECURE" envDefault:"true"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`

	Argon2Memory      uint32 `env:"ARGON2_MEMORY_KB" envDefault:"65536"`
	Argon2Time        uint32 `env:"ARGON2_TIME" envDefault:"3"`
	Argon2Parallelism uint8  `env:"ARGON2_PARALLELISM" envDefault:"2"`
	MinPasswordLength int    `env:"MIN_PASSWORD_LENGTH" envDefault:"10"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	PublicURL    string `env:"PUBLIC_URL"`
}

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := env.ParseAs[serviceConfig]()
	if err != nil {
		logger.Fatal().Err(err).Msg("parse environment")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service failed")
	}
}

func run(cfg serviceConfig, logger zerolog.Logger) error {
	users, err := userstore.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer users.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	engineConfig := authgate.DefaultConfig()
	engineConfig.Session.TTL = cfg.SessionTTL
	engineConfig.Session.SlidingExpiration = cfg.SlidingExpiry
	engineConfig.Password.Memory = cfg.Argon2Memory
	engineConfig.Password.Time = cfg.Argon2Time
	engineConfig.Password.Parallelism = cfg.Argon2Parallelism
	engineConfig.Password.MinLength = cfg.MinPasswordLength

	var sender authgate.TokenSender = mailer.Noop{}
	if cfg.SMTPHost != "" {
		sender, err = mailer.New(mailer.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			BaseURL:  cfg.PublicURL,
		})
		if err != nil {
			return err
		}
		logger.Info().Str("host", cfg.SMTPHost).Msg("smtp sender enabled")
	} else {
		logger.Warn().Msg("no SMTP_HOST configured, token mail is discarded")
	}

	engine, err := authgate.New().
		WithConfig(engineConfig).
		WithRedis(redisClient).
		WithUserStore(users).
		WithTokenSender(sender).
		WithAuditSink(authgate.NewJSONWriterSink(os.Stdout)).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	api := httpapi.NewServer(engine, httpapi.Config{
		CookieSecure:   cfg.CookieSecure,
		AllowedOrigins: cfg.AllowedOrigins,
	}, logger)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("listening")
		errc <- server.ListenAndServe()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
