// Package postgres reads dm+d swap facts, Drug Tariff prices, practices and
// prescribing from PostgreSQL. Every query goes through a circuit breaker so
// that a database outage fails requests fast instead of piling them up.
package postgres

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/giygas/ppu-savings/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sony/gobreaker"
)

// DB is the subset of *pgxpool.Pool the client uses
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
}

// Config describes the database connection
type Config struct {
	URL          string
	SwapsSQLPath string
	MaxConns     int32
}

// Client runs the service's queries
type Client struct {
	db       DB
	pool     *pgxpool.Pool
	breaker  *gobreaker.CircuitBreaker
	swapsSQL string
}

// Connect opens a pool, checks it, and loads the swaps query from disk
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	swapsSQL, err := os.ReadFile(cfg.SwapsSQLPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read swaps query: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	logging.Info("Connected to database", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)

	client := NewClient(pool, string(swapsSQL), DefaultBreakerConfig("postgres"))
	client.pool = pool
	return client, nil
}

// NewClient wraps an existing connection
func NewClient(db DB, swapsSQL string, breaker BreakerConfig) *Client {
	return &Client{
		db:       db,
		breaker:  newBreaker(breaker),
		swapsSQL: swapsSQL,
	}
}

// Ping checks the database through the breaker
func (c *Client) Ping(ctx context.Context) error {
	_, err := execute(c.breaker, func() (struct{}, error) {
		return struct{}{}, c.db.Ping(ctx)
	})
	return err
}

// BreakerState reports the circuit breaker state ("closed", "half-open" or
// "open")
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

// Close releases the pool if the client opened it
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}

// FreshnessMarker returns the highest dm+d price record id. It changes every
// time new drug data is imported.
func (c *Client) FreshnessMarker(ctx context.Context) (int64, error) {
	return execute(c.breaker, func() (int64, error) {
		var marker int64
		if err := c.db.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM dmd_priceinfo`).Scan(&marker); err != nil {
			return 0, fmt.Errorf("failed to read freshness marker: %w", err)
		}
		return marker, nil
	})
}
