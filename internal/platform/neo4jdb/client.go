// Package neo4jdb owns the bolt driver lifecycle. Everything above it goes
// through the graph store; this package only dials, verifies, and closes.
package neo4jdb

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/envutil"
	"github.com/ryandmonk/knowledge-graph-brain/internal/platform/logger"
)

// Client is one verified driver instance shared by every graph component.
// An empty Database selects the server's default database.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

type config struct {
	URI            string
	User           string
	Password       string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    int
}

func configFromEnv() config {
	cfg := config{
		URI:            envutil.Str("NEO4J_URI", "bolt://localhost:7687"),
		User:           envutil.Str("NEO4J_USER", "neo4j"),
		Password:       envutil.Str("NEO4J_PASSWORD", ""),
		Database:       envutil.Str("NEO4J_DATABASE", ""),
		ConnectTimeout: envutil.Duration("NEO4J_CONNECT_TIMEOUT", 10*time.Second),
		MaxPoolSize:    envutil.Int("NEO4J_MAX_POOL_SIZE", 50),
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.MaxPoolSize < 1 {
		cfg.MaxPoolSize = 1
	}
	return cfg
}

// NewFromEnv dials the store configured by NEO4J_* variables and fails fast
// when it is unreachable: a knowledge-graph server with no graph behind it
// has nothing to serve.
func NewFromEnv(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	cfg := configFromEnv()

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.ConnectTimeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	clientLog := log.With("client", "Neo4jDB")
	clientLog.Info("graph store connected", "uri", cfg.URI, "database", cfg.Database, "max_pool_size", cfg.MaxPoolSize)

	return &Client{
		Driver:   driver,
		Database: cfg.Database,
		log:      clientLog,
	}, nil
}

// Close is idempotent; the client is unusable afterwards.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	c.log.Info("graph store connection closed")
	return err
}
