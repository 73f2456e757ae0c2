package persist

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/runraids/server/internal/roster"
)

// RosterRepo implements roster.Store on PostgreSQL.
type RosterRepo struct {
	db *DB
}

func NewRosterRepo(db *DB) *RosterRepo {
	return &RosterRepo{db: db}
}

func (r *RosterRepo) CreateMember(ctx context.Context, name, email, passwordHash string) (*roster.Member, error) {
	m := &roster.Member{Name: name, Email: email}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO members (name, email, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		name, email, passwordHash,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *RosterRepo) MemberByID(ctx context.Context, id int64) (*roster.Member, error) {
	m := &roster.Member{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, name, email, created_at FROM members WHERE id = $1`, id,
	).Scan(&m.ID, &m.Name, &m.Email, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *RosterRepo) HeroesByMember(ctx context.Context, memberID int64) ([]*roster.PlayerHero, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, member_id, hero_id, current_hp, experience
		 FROM player_heroes WHERE member_id = $1 ORDER BY id`, memberID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*roster.PlayerHero
	for rows.Next() {
		ph := &roster.PlayerHero{}
		if err := rows.Scan(&ph.ID, &ph.MemberID, &ph.HeroID, &ph.CurrentHP, &ph.Experience); err != nil {
			return nil, err
		}
		result = append(result, ph)
	}
	return result, rows.Err()
}

func (r *RosterRepo) HeroByID(ctx context.Context, id int64) (*roster.PlayerHero, error) {
	ph := &roster.PlayerHero{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, member_id, hero_id, current_hp, experience
		 FROM player_heroes WHERE id = $1`, id,
	).Scan(&ph.ID, &ph.MemberID, &ph.HeroID, &ph.CurrentHP, &ph.Experience)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ph, nil
}

func (r *RosterRepo) SaveHeroHP(ctx context.Context, id int64, hp int32) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE player_heroes SET current_hp = $1 WHERE id = $2`, hp, id,
	)
	return err
}

func (r *RosterRepo) HQLevel(ctx context.Context, memberID int64) (int, error) {
	var level int
	err := r.db.Pool.QueryRow(ctx,
		`SELECT level FROM player_buildings WHERE member_id = $1 AND kind = 'hq'`, memberID,
	).Scan(&level)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return level, err
}

func (r *RosterRepo) ActiveTeam(ctx context.Context, memberID int64) (*roster.Team, error) {
	t := &roster.Team{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, owner_id, name, active FROM teams WHERE owner_id = $1 AND active`, memberID,
	).Scan(&t.ID, &t.OwnerID, &t.Name, &t.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *RosterRepo) TeamByID(ctx context.Context, id int64) (*roster.Team, error) {
	t := &roster.Team{}
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, owner_id, name, active FROM teams WHERE id = $1`, id,
	).Scan(&t.ID, &t.OwnerID, &t.Name, &t.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *RosterRepo) CreateTeam(ctx context.Context, ownerID int64, name string, active bool) (*roster.Team, error) {
	t := &roster.Team{OwnerID: ownerID, Name: name, Active: active}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO teams (owner_id, name, active) VALUES ($1, $2, $3) RETURNING id`,
		ownerID, name, active,
	).Scan(&t.ID)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *RosterRepo) SetTeamActive(ctx context.Context, teamID int64, active bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE teams SET active = $1 WHERE id = $2`, active, teamID,
	)
	return err
}

func (r *RosterRepo) TeamSlots(ctx context.Context, teamID int64) ([]*roster.TeamSlot, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT id, team_id, player_hero_id, position
		 FROM team_slots WHERE team_id = $1 ORDER BY position`, teamID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*roster.TeamSlot
	for rows.Next() {
		s := &roster.TeamSlot{}
		if err := rows.Scan(&s.ID, &s.TeamID, &s.PlayerHeroID, &s.Position); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *RosterRepo) AddTeamSlot(ctx context.Context, teamID, playerHeroID int64, position int) (*roster.TeamSlot, error) {
	s := &roster.TeamSlot{TeamID: teamID, PlayerHeroID: playerHeroID, Position: position}
	err := r.db.Pool.QueryRow(ctx,
		`INSERT INTO team_slots (team_id, player_hero_id, position)
		 VALUES ($1, $2, $3) RETURNING id`,
		teamID, playerHeroID, position,
	).Scan(&s.ID)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *RosterRepo) RemoveTeamSlot(ctx context.Context, teamID, playerHeroID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM team_slots WHERE team_id = $1 AND player_hero_id = $2`,
		teamID, playerHeroID,
	)
	return err
}
