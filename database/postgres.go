package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"pushlytics/api/config"
	"pushlytics/api/logging"
)

type DBClient struct {
	DB *sql.DB
}

func NewPostgresDB(ctx context.Context, cfg config.PostgresConfig) (*DBClient, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("error opening database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database (ping failed): %w", err)
	}

	logging.Info().Int("max_open_conns", cfg.MaxOpenConns).Msg("connected to PostgreSQL")
	return &DBClient{DB: db}, nil
}

func (c *DBClient) Close() {
	if c.DB == nil {
		return
	}
	if err := c.DB.Close(); err != nil {
		logging.Error().Err(err).Msg("error closing PostgreSQL connection")
		return
	}
	logging.Info().Msg("PostgreSQL connection closed")
}
