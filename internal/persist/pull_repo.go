package persist

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/runraids/server/internal/pull"
)

// PullRepo implements pull.Store on PostgreSQL. Each pull runs inside a
// single transaction; LockBalance takes a FOR UPDATE row lock so
// concurrent pulls against one wallet serialize at the database.
type PullRepo struct {
	db *DB
}

func NewPullRepo(db *DB) *PullRepo {
	return &PullRepo{db: db}
}

func (r *PullRepo) WithTx(ctx context.Context, fn func(tx pull.Tx) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pullTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pullTx struct {
	tx pgx.Tx
}

// LockBalance upserts the balance row at zero first so a member who has
// never held the resource still gets a lockable row, then locks it.
func (t *pullTx) LockBalance(ctx context.Context, memberID int64, resource string) (int64, error) {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO player_resources (member_id, resource, amount)
		 VALUES ($1, $2, 0)
		 ON CONFLICT (member_id, resource) DO NOTHING`,
		memberID, resource,
	)
	if err != nil {
		return 0, err
	}
	var amount int64
	err = t.tx.QueryRow(ctx,
		`SELECT amount FROM player_resources
		 WHERE member_id = $1 AND resource = $2
		 FOR UPDATE`,
		memberID, resource,
	).Scan(&amount)
	return amount, err
}

func (t *pullTx) AdjustBalance(ctx context.Context, memberID int64, resource string, delta int64) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO player_resources (member_id, resource, amount)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (member_id, resource) DO UPDATE
		 SET amount = player_resources.amount + EXCLUDED.amount`,
		memberID, resource, delta,
	)
	return err
}

func (t *pullTx) HeroOwned(ctx context.Context, memberID, heroID int64) (bool, error) {
	var owned bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM player_heroes WHERE member_id = $1 AND hero_id = $2)`,
		memberID, heroID,
	).Scan(&owned)
	return owned, err
}

func (t *pullTx) CreateHero(ctx context.Context, memberID, heroID int64, currentHP int32) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO player_heroes (member_id, hero_id, current_hp, experience)
		 VALUES ($1, $2, $3, 0) RETURNING id`,
		memberID, heroID, currentHP,
	).Scan(&id)
	return id, err
}

func (t *pullTx) InsertPullLog(ctx context.Context, rec *pull.LogRecord) error {
	rewards := rec.Rewards
	if rewards == nil {
		rewards = []pull.GrantedItem{}
	}
	raw, err := json.Marshal(rewards)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx,
		`INSERT INTO pull_logs (id, member_id, banner_id, cost_resource, cost_amount,
			tier, outcome, hero_id, rewards, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		rec.ID, rec.MemberID, rec.BannerID, rec.CostResource, rec.CostAmount,
		rec.Tier, rec.Outcome, rec.HeroID, raw, rec.CreatedAt,
	)
	return err
}

// Balance reads a member's current amount outside any pull transaction.
func (r *PullRepo) Balance(ctx context.Context, memberID int64, resource string) (int64, error) {
	var amount int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT amount FROM player_resources WHERE member_id = $1 AND resource = $2`,
		memberID, resource,
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return amount, err
}

// GrantBalance credits a member outside a pull. Used by the seed tool.
func (r *PullRepo) GrantBalance(ctx context.Context, memberID int64, resource string, amount int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO player_resources (member_id, resource, amount)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (member_id, resource) DO UPDATE
		 SET amount = player_resources.amount + EXCLUDED.amount`,
		memberID, resource, amount,
	)
	return err
}
