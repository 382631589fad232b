package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"pushlytics/api/database"
	"pushlytics/api/logging"
	"pushlytics/api/models"
)

// PostgresStore is the row-oriented event backend, used when the columnar
// backend fails.
type PostgresStore struct {
	db      *sql.DB
	dialect PostgresDialect
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Name() string { return s.dialect.Name() }

func (s *PostgresStore) ScanSteps(ctx context.Context, scan StepScan) ([]StepRow, error) {
	q, err := BuildStepScan(s.dialect, scan)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query funnel steps: %w", err)
	}
	return collectStepRows(rows)
}

func (s *PostgresStore) FirstEntries(ctx context.Context, scan EntryScan) ([]FirstSeen, error) {
	q, err := BuildEntryScan(s.dialect, scan)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort entries: %w", err)
	}
	return collectFirstSeen(rows)
}

func (s *PostgresStore) ScanActivity(ctx context.Context, scan ActivityScan) ([]ActivityRow, error) {
	q, err := BuildActivityScan(s.dialect, scan)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort activity: %w", err)
	}
	defer rows.Close()

	var results []ActivityRow
	for rows.Next() {
		var (
			row   ActivityRow
			value sql.NullString
		)
		if err := rows.Scan(&row.UserID, &row.Timestamp, &value); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		if value.Valid {
			v := value.String
			row.Value = &v
		}
		row.Timestamp = row.Timestamp.UTC()
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during activity scan: %w", err)
	}
	return results, nil
}

// InsertEvents writes events in one transaction so a partial batch never lands.
func (s *PostgresStore) InsertEvents(ctx context.Context, events []models.Event) (err error) {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Error().Err(rbErr).Msg("failed to roll back event insert")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO events ("+strings.Join(database.EventColumns, ", ")+") "+
		"VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9)")
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		props, mErr := json.Marshal(nonNilProperties(event.Properties))
		if mErr != nil {
			return fmt.Errorf("failed to encode properties of event %s: %w", event.EventID, mErr)
		}
		if _, err = stmt.ExecContext(ctx,
			event.EventID,
			event.OrgID,
			event.SiteID,
			event.EventType,
			event.EventName,
			event.UserID,
			event.SessionID,
			string(props),
			event.Timestamp.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert event %s: %w", event.EventID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event insert: %w", err)
	}

	logging.Info().Int("events", len(events)).Str("backend", s.Name()).Msg("inserted events")
	return nil
}

// nonNilProperties drops null values so both backends agree on "absent".
func nonNilProperties(props map[string]any) map[string]any {
	out := make(map[string]any, len(props))
	for k, v := range props {
		if v != nil {
			out[k] = v
		}
	}
	return out
}
