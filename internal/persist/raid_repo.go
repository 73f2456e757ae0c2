package persist

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/runraids/server/internal/raid"
)

// RaidRepo implements raid.Store on PostgreSQL. The raid service holds a
// per-room mutex around every call sequence, so no statement here needs
// its own transaction.
type RaidRepo struct {
	db *DB
}

func NewRaidRepo(db *DB) *RaidRepo {
	return &RaidRepo{db: db}
}

const roomColumns = `id, name, owner_id, raid_id, enemy_id, state, wave_index,
	closed, max_players, random_seed, created_at, expires_at, last_tick_at`

func scanRoom(row pgx.Row) (*raid.Room, error) {
	r := &raid.Room{}
	err := row.Scan(
		&r.ID, &r.Name, &r.OwnerID, &r.RaidID, &r.EnemyID, &r.State, &r.WaveIndex,
		&r.Closed, &r.MaxPlayers, &r.RandomSeed, &r.CreatedAt, &r.ExpiresAt, &r.LastTickAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RaidRepo) CreateRoom(ctx context.Context, room *raid.Room) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO raid_rooms (name, owner_id, raid_id, enemy_id, state, wave_index,
			closed, max_players, random_seed, created_at, expires_at, last_tick_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12) RETURNING id`,
		room.Name, room.OwnerID, room.RaidID, room.EnemyID, room.State, room.WaveIndex,
		room.Closed, room.MaxPlayers, room.RandomSeed, room.CreatedAt, room.ExpiresAt, room.LastTickAt,
	).Scan(&room.ID)
}

func (r *RaidRepo) RoomByID(ctx context.Context, id int64) (*raid.Room, error) {
	return scanRoom(r.db.Pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM raid_rooms WHERE id = $1`, id,
	))
}

func (r *RaidRepo) SaveRoom(ctx context.Context, room *raid.Room) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE raid_rooms SET state = $1, wave_index = $2, closed = $3,
			expires_at = $4, last_tick_at = $5
		 WHERE id = $6`,
		room.State, room.WaveIndex, room.Closed,
		room.ExpiresAt, room.LastTickAt, room.ID,
	)
	return err
}

func (r *RaidRepo) OldestWaitingRoom(ctx context.Context, raidID int64) (*raid.Room, error) {
	return scanRoom(r.db.Pool.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM raid_rooms rr
		 WHERE rr.raid_id = $1 AND rr.state = 'waiting'
		   AND (SELECT COUNT(*) FROM raid_participants rp WHERE rp.room_id = rr.id) < rr.max_players
		 ORDER BY rr.created_at
		 LIMIT 1`, raidID,
	))
}

func (r *RaidRepo) Participants(ctx context.Context, roomID int64) ([]*raid.Participant, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, room_id, member_id, alive, ready, color
		 FROM raid_participants WHERE room_id = $1 ORDER BY id`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*raid.Participant
	for rows.Next() {
		p := &raid.Participant{}
		if err := rows.Scan(&p.ID, &p.RoomID, &p.MemberID, &p.Alive, &p.Ready, &p.Color); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func (r *RaidRepo) ParticipantByMember(ctx context.Context, roomID, memberID int64) (*raid.Participant, error) {
	p := &raid.Participant{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, room_id, member_id, alive, ready, color
		 FROM raid_participants WHERE room_id = $1 AND member_id = $2`, roomID, memberID,
	).Scan(&p.ID, &p.RoomID, &p.MemberID, &p.Alive, &p.Ready, &p.Color)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *RaidRepo) AddParticipant(ctx context.Context, p *raid.Participant) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO raid_participants (room_id, member_id, alive, ready, color)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		p.RoomID, p.MemberID, p.Alive, p.Ready, p.Color,
	).Scan(&p.ID)
}

func (r *RaidRepo) SaveParticipant(ctx context.Context, p *raid.Participant) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE raid_participants SET alive = $1, ready = $2 WHERE id = $3`,
		p.Alive, p.Ready, p.ID,
	)
	return err
}

func (r *RaidRepo) Enemies(ctx context.Context, roomID int64) ([]*raid.EnemyUnit, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, room_id, enemy_id, current_hp, max_hp, speed, alive
		 FROM raid_enemies WHERE room_id = $1 ORDER BY id`, roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*raid.EnemyUnit
	for rows.Next() {
		e := &raid.EnemyUnit{}
		if err := rows.Scan(&e.ID, &e.RoomID, &e.EnemyID, &e.CurrentHP, &e.MaxHP, &e.Speed, &e.Alive); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (r *RaidRepo) DeleteEnemies(ctx context.Context, roomID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM raid_enemies WHERE room_id = $1`, roomID,
	)
	return err
}

func (r *RaidRepo) AddEnemy(ctx context.Context, e *raid.EnemyUnit) error {
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO raid_enemies (room_id, enemy_id, current_hp, max_hp, speed, alive)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		e.RoomID, e.EnemyID, e.CurrentHP, e.MaxHP, e.Speed, e.Alive,
	).Scan(&e.ID)
}

func (r *RaidRepo) SaveEnemy(ctx context.Context, e *raid.EnemyUnit) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE raid_enemies SET current_hp = $1, alive = $2 WHERE id = $3`,
		e.CurrentHP, e.Alive, e.ID,
	)
	return err
}

func (r *RaidRepo) ReplaceTurns(ctx context.Context, roomID int64, turns []*raid.Turn) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM raid_turns WHERE room_id = $1`, roomID); err != nil {
		return err
	}
	for _, t := range turns {
		err := tx.QueryRow(ctx,
			`INSERT INTO raid_turns (room_id, turn_index, actor_type, hero_id, member_id, enemy_id, resolved)
			 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			t.RoomID, t.Index, t.Actor.Type, t.Actor.HeroID, t.Actor.MemberID, t.Actor.EnemyID, t.Resolved,
		).Scan(&t.ID)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (r *RaidRepo) CurrentTurn(ctx context.Context, roomID int64) (*raid.Turn, error) {
	t := &raid.Turn{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, room_id, turn_index, actor_type, hero_id, member_id, enemy_id, resolved
		 FROM raid_turns WHERE room_id = $1 AND NOT resolved
		 ORDER BY turn_index LIMIT 1`, roomID,
	).Scan(&t.ID, &t.RoomID, &t.Index, &t.Actor.Type, &t.Actor.HeroID, &t.Actor.MemberID, &t.Actor.EnemyID, &t.Resolved)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *RaidRepo) SaveTurn(ctx context.Context, t *raid.Turn) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE raid_turns SET resolved = $1 WHERE id = $2`, t.Resolved, t.ID,
	)
	return err
}

func (r *RaidRepo) AppendLog(ctx context.Context, e *raid.LogEntry) error {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO raid_decision_log (room_id, turn_index, member_id, actor, action, payload, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		e.RoomID, e.TurnIndex, e.MemberID, e.Actor, e.Action, raw, e.CreatedAt,
	).Scan(&e.ID)
}

func (r *RaidRepo) RecentLogs(ctx context.Context, roomID int64, limit int) ([]*raid.LogEntry, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, room_id, turn_index, member_id, actor, action, payload, created_at
		 FROM (
			SELECT * FROM raid_decision_log WHERE room_id = $1 ORDER BY id DESC LIMIT $2
		 ) recent
		 ORDER BY id`, roomID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*raid.LogEntry
	for rows.Next() {
		e := &raid.LogEntry{}
		var raw []byte
		if err := rows.Scan(&e.ID, &e.RoomID, &e.TurnIndex, &e.MemberID, &e.Actor, &e.Action, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.Payload); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
