// Package config assembles a post.Service from declarative configuration:
// repository selection, sibling-service endpoints and the moderation retry
// policy. Environment parsing lives in the executable (cmd/server); this
// package only validates and builds.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acri-st/post/pkg/post"
	"github.com/acri-st/post/pkg/post/integration"
	"github.com/acri-st/post/pkg/post/moderation"
	"github.com/acri-st/post/pkg/post/repo/memory"
	repopg "github.com/acri-st/post/pkg/post/repo/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:                     "8080",
		Environment:              "development",
		DatabaseType:             "memory",
		ServiceCallTimeout:       10 * time.Second,
		ModerationMaxAttempts:    3,
		ModerationInitialBackoff: 500 * time.Millisecond,
		ModerationSweepThreshold: 10 * time.Minute,
	}
}

// ServerConfig represents server configuration for the post service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"

	// Sibling service endpoints. An empty URL selects the built-in
	// development fallback (allow-all / accept-all / no-op).
	ModerationServiceURL   string
	AssetServiceURL        string
	AuthServiceURL         string
	NotificationServiceURL string

	// Cross-service call timeout
	ServiceCallTimeout time.Duration

	// Moderation dispatch retry policy
	ModerationMaxAttempts    int
	ModerationInitialBackoff time.Duration
	ModerationSweepThreshold time.Duration

	Logger *slog.Logger
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if c.ModerationMaxAttempts < 1 {
		return errors.New("moderation_max_attempts must be at least 1")
	}

	if c.Environment == "production" && c.ModerationServiceURL == "" {
		return errors.New("moderation_service_url is required in production")
	}

	return nil
}

// Options

// WithPort sets the HTTP port.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the runtime environment.
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		c.Environment = env
		return nil
	}
}

// WithDatabase selects the repository backend. An empty or "memory" URL
// selects the in-memory repository; a postgres URL selects pgx.
func WithDatabase(databaseURL string) Option {
	return func(c *ServerConfig) error {
		if databaseURL == "" || databaseURL == "memory" {
			c.DatabaseType = "memory"
			c.DatabaseURL = ""
			return nil
		}
		c.DatabaseType = "postgres"
		c.DatabaseURL = databaseURL
		return nil
	}
}

// WithServiceEndpoints sets the sibling service base URLs. Empty strings keep
// the development fallbacks.
func WithServiceEndpoints(moderationURL, assetURL, authURL, notificationURL string) Option {
	return func(c *ServerConfig) error {
		c.ModerationServiceURL = moderationURL
		c.AssetServiceURL = assetURL
		c.AuthServiceURL = authURL
		c.NotificationServiceURL = notificationURL
		return nil
	}
}

// WithModerationPolicy sets the dispatch retry policy and sweep threshold.
func WithModerationPolicy(maxAttempts int, initialBackoff, sweepThreshold time.Duration) Option {
	return func(c *ServerConfig) error {
		if maxAttempts > 0 {
			c.ModerationMaxAttempts = maxAttempts
		}
		if initialBackoff > 0 {
			c.ModerationInitialBackoff = initialBackoff
		}
		if sweepThreshold > 0 {
			c.ModerationSweepThreshold = sweepThreshold
		}
		return nil
	}
}

// WithLogger sets the logger handed to the service and gateway.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ServerConfig) error {
		c.Logger = logger
		return nil
	}
}

// BuildRepository creates the configured repository backend.
func (c *ServerConfig) BuildRepository(ctx context.Context) (post.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			return nil, fmt.Errorf("failed to ping postgres: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", c.DatabaseType)
	}
}

// BuildService assembles the full service: repository, moderation gateway
// and the sibling-service adapters.
func (c *ServerConfig) BuildService(ctx context.Context) (post.Service, error) {
	repo, err := c.BuildRepository(ctx)
	if err != nil {
		return nil, err
	}
	return c.BuildServiceWithRepository(repo)
}

// BuildServiceWithRepository assembles the service around an existing
// repository, which lets callers share one repository between the service
// and auxiliary jobs.
func (c *ServerConfig) BuildServiceWithRepository(repo post.Repository) (post.Service, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var client post.ModerationClient
	if c.ModerationServiceURL != "" {
		client = integration.NewHTTPModerationClient(c.ModerationServiceURL, c.ServiceCallTimeout)
	} else {
		client = post.NewAcceptAllModerationClient()
	}

	gateway, err := moderation.NewGateway(repo, client,
		moderation.WithLogger(logger),
		moderation.WithMaxAttempts(c.ModerationMaxAttempts),
	)
	if err != nil {
		return nil, err
	}

	options := []post.Option{
		post.WithRepository(repo),
		post.WithModerationGateway(gateway),
		post.WithLogger(logger),
		post.WithDispatchRetryPolicy(c.ModerationMaxAttempts, c.ModerationInitialBackoff),
		post.WithSweepThreshold(c.ModerationSweepThreshold),
	}

	if c.AssetServiceURL != "" {
		options = append(options, post.WithAssetService(
			integration.NewHTTPAssetService(c.AssetServiceURL, c.ServiceCallTimeout)))
	} else {
		options = append(options, post.WithAssetService(post.NewStaticAssetService()))
	}

	if c.AuthServiceURL != "" {
		options = append(options, post.WithAuthorizer(
			integration.NewHTTPAuthorizer(c.AuthServiceURL, c.ServiceCallTimeout)))
	}

	if c.NotificationServiceURL != "" {
		options = append(options, post.WithEventSink(
			integration.NewHTTPEventSink(c.NotificationServiceURL, c.ServiceCallTimeout, logger)))
	} else {
		options = append(options, post.WithEventSink(post.NewNoopEventSink()))
	}

	return post.New(options...)
}
