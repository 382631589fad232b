// api/store/analytics_store.go
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/goccy/go-json"

	"pushlytics/api/database"
	"pushlytics/api/logging"
	"pushlytics/api/models"
)

// clickhouseConn is the subset of driver.Conn the store uses.
type clickhouseConn interface {
	Query(ctx context.Context, query string, args ...any) (driver.Rows, error)
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

// ClickHouseStore is the columnar event backend, used first for every analysis.
type ClickHouseStore struct {
	conn    clickhouseConn
	dialect ClickHouseDialect
}

func NewClickHouseStore(chClient *database.ClickHouseClient) *ClickHouseStore {
	return &ClickHouseStore{conn: chClient.Conn}
}

func (s *ClickHouseStore) Name() string { return s.dialect.Name() }

func (s *ClickHouseStore) ScanSteps(ctx context.Context, scan StepScan) ([]StepRow, error) {
	q, err := BuildStepScan(s.dialect, scan)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query funnel steps: %w", err)
	}
	return collectStepRows(rows)
}

func (s *ClickHouseStore) FirstEntries(ctx context.Context, scan EntryScan) ([]FirstSeen, error) {
	q, err := BuildEntryScan(s.dialect, scan)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort entries: %w", err)
	}
	return collectFirstSeen(rows)
}

func (s *ClickHouseStore) ScanActivity(ctx context.Context, scan ActivityScan) ([]ActivityRow, error) {
	q, err := BuildActivityScan(s.dialect, scan)
	if err != nil {
		return nil, err
	}
	rows, err := s.conn.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cohort activity: %w", err)
	}
	defer rows.Close()

	var results []ActivityRow
	for rows.Next() {
		var row ActivityRow
		if err := rows.Scan(&row.UserID, &row.Timestamp, &row.Value); err != nil {
			return nil, fmt.Errorf("failed to scan activity row: %w", err)
		}
		row.Timestamp = row.Timestamp.UTC()
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row error during activity scan: %w", err)
	}
	return results, nil
}

// InsertEvents appends events in a single native batch. It backs the seed tool;
// production ingestion happens outside this service.
func (s *ClickHouseStore) InsertEvents(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO events ("+strings.Join(database.EventColumns, ", ")+")")
	if err != nil {
		return fmt.Errorf("failed to prepare batch insert: %w", err)
	}

	for _, event := range events {
		err := batch.Append(
			event.EventID,
			event.OrgID,
			event.SiteID,
			event.EventType,
			event.EventName,
			event.UserID,
			event.SessionID,
			flattenProperties(event.Properties),
			event.Timestamp.UTC(),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append event %s to batch: %w", event.EventID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	logging.Info().Int("events", len(events)).Str("backend", s.Name()).Msg("inserted events")
	return nil
}

// flattenProperties converts decoded properties to the Map(String, String) column
// form. Null values are dropped.
func flattenProperties(props map[string]any) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		if text, ok := storedText(v); ok {
			out[k] = text
		}
	}
	return out
}

// storedText is the text a backend holds for a property value: scalars in their
// text form and composite values as JSON.
func storedText(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	if text, ok := models.PropertyText(v); ok {
		return text, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(raw), true
}
