// Command seed writes sample funnel definitions and a synthetic event history
// for one organization, so the analytics endpoints have something to chew on.
//
//	go run ./cmd/seed --org demo-org --users 500 --days 30
package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pushlytics/api/config"
	"pushlytics/api/database"
	"pushlytics/api/logging"
	"pushlytics/api/models"
	"pushlytics/api/store"
)

const insertBatchSize = 1000

type seedOptions struct {
	orgID string
	users int
	days  int
	seed  uint64
}

func main() {
	var opts seedOptions
	root := &cobra.Command{
		Use:   "seed",
		Short: "Seed sample funnels and events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	root.Flags().StringVar(&opts.orgID, "org", "demo-org", "organization to seed")
	root.Flags().IntVar(&opts.users, "users", 500, "number of synthetic users")
	root.Flags().IntVar(&opts.days, "days", 30, "days of history ending today")
	root.Flags().Uint64Var(&opts.seed, "seed", 42, "random seed")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts seedOptions) error {
	if opts.users < 1 || opts.days < 1 {
		return fmt.Errorf("users and days must be positive")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: "console"})

	pgClient, err := database.NewPostgresDB(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pgClient.Close()
	if err := database.EnsurePostgresSchema(ctx, pgClient.DB); err != nil {
		return err
	}

	writers := []store.EventWriter{store.NewPostgresStore(pgClient.DB)}
	if cfg.ClickHouse.Enabled {
		chClient, err := database.NewClickHouseDB(ctx, cfg.ClickHouse)
		if err != nil {
			return err
		}
		defer chClient.Close()
		if err := database.EnsureClickHouseSchema(ctx, chClient.Conn); err != nil {
			return err
		}
		writers = append(writers, store.NewClickHouseStore(chClient))
	}

	funnels := store.NewFunnelStore(pgClient.DB)
	for _, def := range sampleFunnels(opts.orgID) {
		if err := funnels.SaveFunnel(ctx, def); err != nil {
			return err
		}
	}

	end := time.Now().UTC().Truncate(time.Hour)
	events := generateEvents(opts, end.AddDate(0, 0, -opts.days), end)
	for _, w := range writers {
		for start := 0; start < len(events); start += insertBatchSize {
			batch := events[start:min(start+insertBatchSize, len(events))]
			if err := w.InsertEvents(ctx, batch); err != nil {
				return err
			}
		}
	}

	logging.Info().
		Str("org_id", opts.orgID).
		Int("events", len(events)).
		Int("backends", len(writers)).
		Msg("seed complete")
	return nil
}

// sampleFunnels returns definitions with ids derived from the org, so reseeding
// updates them in place.
func sampleFunnels(orgID string) []models.FunnelDefinition {
	id := func(name string) string {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(orgID+"/"+name)).String()
	}
	return []models.FunnelDefinition{
		{
			ID:          id("signup"),
			OrgID:       orgID,
			Name:        "Landing to purchase",
			WindowHours: 72,
			Steps: []models.FunnelStep{
				{Order: 1, Name: "Landing", EventMatcher: models.EventMatcher{EventType: "page_view", EventName: "landing"}},
				{Order: 2, Name: "Signup", EventMatcher: models.EventMatcher{EventName: "signup"}},
				{Order: 3, Name: "Purchase", EventMatcher: models.EventMatcher{EventName: "purchase"}},
			},
		},
		{
			ID:           id("high-value"),
			OrgID:        orgID,
			Name:         "Signup to large order",
			WindowHours:  24 * 14,
			WindowPolicy: models.WindowFromFirstStep,
			Steps: []models.FunnelStep{
				{Order: 1, EventMatcher: models.EventMatcher{EventName: "signup"}},
				{Order: 2, EventMatcher: models.EventMatcher{
					EventName: "purchase",
					Filters:   []models.PropertyFilter{{Key: "amount", Operator: models.OpGreater, Value: "100"}},
				}},
			},
		},
	}
}

// generateEvents builds a deterministic history: every user lands, most sign
// up, and some purchase one or more times afterwards.
func generateEvents(opts seedOptions, from, to time.Time) []models.Event {
	rng := rand.New(rand.NewPCG(opts.seed, opts.seed^0x9e3779b97f4a7c15))
	span := to.Sub(from)

	var out []models.Event
	emit := func(userID, typ, name string, at time.Time, props map[string]any) {
		if at.After(to) {
			return
		}
		out = append(out, models.Event{
			EventID:    uuid.New().String(),
			OrgID:      opts.orgID,
			SiteID:     "web",
			EventType:  typ,
			EventName:  name,
			UserID:     userID,
			SessionID:  fmt.Sprintf("%s-s%d", userID, at.Unix()/3600),
			Properties: props,
			Timestamp:  at,
		})
	}

	for i := range opts.users {
		userID := fmt.Sprintf("user-%04d", i)
		at := from.Add(time.Duration(rng.Int64N(int64(span))))
		emit(userID, "page_view", "landing", at, map[string]any{"path": "/"})

		if rng.Float64() > 0.6 {
			continue
		}
		at = at.Add(time.Duration(rng.IntN(120)) * time.Minute)
		emit(userID, "track", "signup", at, nil)

		for rng.Float64() < 0.45 {
			at = at.Add(time.Duration(1+rng.IntN(96)) * time.Hour)
			amount := float64(500+rng.IntN(20000)) / 100
			emit(userID, "track", "purchase", at, map[string]any{"amount": amount, "currency": "USD"})
		}
	}
	return out
}
