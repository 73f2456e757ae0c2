// Seed tool: creates a few demo members with heroes, teams and currency
// so the API can be exercised against a fresh database.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/runraids/server/internal/config"
	"github.com/runraids/server/internal/data"
	"github.com/runraids/server/internal/persist"
	"github.com/runraids/server/internal/roster"
	"github.com/runraids/server/internal/scripting"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := "config/server.toml"
	if p := os.Getenv("RUNRAIDS_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := persist.NewDB(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()

	if err := persist.RunMigrations(ctx, db.Pool); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	heroTable, err := data.LoadHeroTable(filepath.Join(cfg.Data.YamlDir, "hero_list.yaml"))
	if err != nil {
		return fmt.Errorf("load hero table: %w", err)
	}

	engine, err := scripting.NewEngine(cfg.Data.ScriptsDir, log)
	if err != nil {
		return fmt.Errorf("lua engine: %w", err)
	}
	defer engine.Close()

	rosterRepo := persist.NewRosterRepo(db)
	pullRepo := persist.NewPullRepo(db)
	rosterSvc := roster.NewService(rosterRepo, heroTable, engine, log)

	demo := []struct {
		name  string
		email string
	}{
		{"alice", "alice@example.com"},
		{"bob", "bob@example.com"},
		{"carol", "carol@example.com"},
	}

	heroIDs := heroTable.IDs()
	for i, d := range demo {
		m, err := rosterSvc.Register(ctx, d.name, d.email, "password")
		if err != nil {
			return fmt.Errorf("register %s: %w", d.name, err)
		}

		// HQ building so the level cap opens up past the default.
		if _, err := db.Pool.Exec(ctx,
			`INSERT INTO player_buildings (member_id, kind, level) VALUES ($1, 'hq', $2)
			 ON CONFLICT (member_id, kind) DO NOTHING`,
			m.ID, i+1,
		); err != nil {
			return fmt.Errorf("seed hq: %w", err)
		}

		// First few hero templates, full HP at the derived level.
		granted := 0
		for _, heroID := range heroIDs {
			if granted >= 4 {
				break
			}
			tmpl := heroTable.Get(heroID)
			hp := engine.ScaledStat(tmpl.BaseHP, engine.LevelFromExp(0))
			var playerHeroID int64
			if err := db.Pool.QueryRow(ctx,
				`INSERT INTO player_heroes (member_id, hero_id, current_hp, experience)
				 VALUES ($1, $2, $3, 0) RETURNING id`,
				m.ID, heroID, hp,
			).Scan(&playerHeroID); err != nil {
				return fmt.Errorf("seed hero: %w", err)
			}
			if _, err := rosterSvc.AddToTeam(ctx, m.ID, playerHeroID); err != nil {
				return fmt.Errorf("seed team: %w", err)
			}
			granted++
		}

		if err := pullRepo.GrantBalance(ctx, m.ID, "gold", 1000); err != nil {
			return fmt.Errorf("seed gold: %w", err)
		}
		log.Info("seeded member", zap.Int64("member_id", m.ID), zap.String("name", d.name))
	}

	log.Info("seed complete", zap.Int("members", len(demo)))
	return nil
}
