package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/acri-st/post/pkg/post/config"
)

// EnvConfig holds the environment-variable driven configuration for the
// standalone post server.
type EnvConfig struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	DatabaseURL string `env:"DATABASE_URL" env-default:""`

	ModerationServiceURL   string `env:"MODERATION_SERVICE_URL" env-default:""`
	AssetServiceURL        string `env:"ASSET_SERVICE_URL" env-default:""`
	AuthServiceURL         string `env:"AUTH_SERVICE_URL" env-default:""`
	NotificationServiceURL string `env:"NOTIFICATION_SERVICE_URL" env-default:""`

	ModerationMaxAttempts    int           `env:"MODERATION_MAX_ATTEMPTS" env-default:"3"`
	ModerationInitialBackoff time.Duration `env:"MODERATION_INITIAL_BACKOFF" env-default:"500ms"`
	ModerationSweepThreshold time.Duration `env:"MODERATION_SWEEP_THRESHOLD" env-default:"10m"`
	ModerationSweepInterval  time.Duration `env:"MODERATION_SWEEP_INTERVAL" env-default:"1m"`
}

func loadServerConfig(logger *slog.Logger) (*config.ServerConfig, *EnvConfig, error) {
	var env EnvConfig
	if err := cleanenv.ReadEnv(&env); err != nil {
		return nil, nil, fmt.Errorf("read environment: %w", err)
	}

	cfg, err := config.Load(
		config.WithPort(env.Port),
		config.WithEnvironment(env.Environment),
		config.WithDatabase(env.DatabaseURL),
		config.WithServiceEndpoints(env.ModerationServiceURL, env.AssetServiceURL, env.AuthServiceURL, env.NotificationServiceURL),
		config.WithModerationPolicy(env.ModerationMaxAttempts, env.ModerationInitialBackoff, env.ModerationSweepThreshold),
		config.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	return cfg, &env, nil
}
