package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"pushlytics/api/config"
	"pushlytics/api/logging"
)

type ClickHouseClient struct {
	Conn clickhouse.Conn
}

func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig) (*ClickHouseClient, error) {
	options := &clickhouse.Options{
		Addr: []string{cfg.Addr()},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		ClientInfo: clickhouse.ClientInfo{
			Products: []struct {
				Name    string
				Version string
			}{{Name: "pushlytics-api", Version: "1.0.0"}},
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:  cfg.DialTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse via Native TCP: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logging.Info().
		Str("addr", cfg.Addr()).
		Str("database", cfg.Database).
		Int("max_open_conns", cfg.MaxOpenConns).
		Msg("connected to ClickHouse")
	return &ClickHouseClient{Conn: conn}, nil
}

func (c *ClickHouseClient) Close() {
	if c.Conn == nil {
		return
	}
	if err := c.Conn.Close(); err != nil {
		logging.Error().Err(err).Msg("error closing ClickHouse connection")
		return
	}
	logging.Info().Msg("ClickHouse connection closed")
}
