package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"pushlytics/api/logging"
	"pushlytics/api/models"
)

// invalid_text_representation: a malformed uuid in the id parameter.
const pqInvalidTextRepresentation = "22P02"

// FunnelStore reads funnel definitions from Postgres. Definitions are owned by
// the CRUD surface; the analytics engine only reads them.
type FunnelStore struct {
	db *sql.DB
}

func NewFunnelStore(db *sql.DB) *FunnelStore {
	return &FunnelStore{db: db}
}

// GetFunnel returns the normalized definition, or ErrFunnelNotFound when the id
// is unknown, malformed or owned by another organization.
func (s *FunnelStore) GetFunnel(ctx context.Context, orgID, funnelID string) (*models.FunnelDefinition, error) {
	def := &models.FunnelDefinition{}
	var (
		steps  []byte
		policy sql.NullString
	)
	query := `
		SELECT id, org_id, name, window_hours, window_policy, steps, created_at, updated_at
		FROM funnels
		WHERE id = $1 AND org_id = $2;
	`
	err := s.db.QueryRowContext(ctx, query, funnelID, orgID).Scan(
		&def.ID,
		&def.OrgID,
		&def.Name,
		&def.WindowHours,
		&policy,
		&steps,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFunnelNotFound
		}
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqInvalidTextRepresentation {
			return nil, ErrFunnelNotFound
		}
		return nil, fmt.Errorf("failed to get funnel %s: %w", funnelID, err)
	}

	if err := json.Unmarshal(steps, &def.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps of funnel %s: %w", funnelID, err)
	}
	def.WindowPolicy = models.WindowPolicy(policy.String)
	if err := def.Normalize(); err != nil {
		return nil, err
	}
	return def, nil
}

// SaveFunnel upserts a definition. Only the seed tool writes through here.
func (s *FunnelStore) SaveFunnel(ctx context.Context, def models.FunnelDefinition) error {
	if err := def.Normalize(); err != nil {
		return err
	}
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode funnel steps: %w", err)
	}
	query := `
		INSERT INTO funnels (id, org_id, name, window_hours, window_policy, steps)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			window_hours = EXCLUDED.window_hours,
			window_policy = EXCLUDED.window_policy,
			steps = EXCLUDED.steps,
			updated_at = now();
	`
	if _, err := s.db.ExecContext(ctx, query,
		def.ID, def.OrgID, def.Name, def.WindowHours, string(def.WindowPolicy), string(steps),
	); err != nil {
		return fmt.Errorf("failed to save funnel %s: %w", def.ID, err)
	}
	logging.Info().Str("funnel_id", def.ID).Str("org_id", def.OrgID).Msg("funnel saved")
	return nil
}
