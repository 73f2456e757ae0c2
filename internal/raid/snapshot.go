package raid

import (
	"context"
	"errors"
	"time"

	"github.com/runraids/server/internal/roster"
)

// Snapshot is the full client view of one room. Serving it always runs
// the room's tick first, so the view a poller gets is never staler than
// its own request.
type Snapshot struct {
	RoomID     int64      `json:"room_id"`
	Name       string     `json:"name"`
	OwnerID    int64      `json:"owner_id"`
	State      string     `json:"state"`
	Closed     bool       `json:"closed"`
	MaxPlayers int        `json:"max_players"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`

	Raid *RaidView `json:"raid,omitempty"`

	Participants []ParticipantView `json:"participants"`
	Enemies      []EnemyView       `json:"enemies"`
	CurrentTurn  *TurnView         `json:"current_turn,omitempty"`
	Logs         []LogView         `json:"logs"`
}

type RaidView struct {
	RaidID     int64  `json:"raid_id"`
	Name       string `json:"name"`
	Difficulty int    `json:"difficulty"`
	WaveNumber int    `json:"wave_number"`
	WaveName   string `json:"wave_name"`
	TotalWaves int    `json:"total_waves"`
}

type ParticipantView struct {
	MemberID int64      `json:"member_id"`
	Name     string     `json:"name"`
	Alive    bool       `json:"alive"`
	Color    int        `json:"color"`
	Heroes   []HeroView `json:"heroes"`
}

type HeroView struct {
	PlayerHeroID int64  `json:"player_hero_id"`
	Name         string `json:"name"`
	Level        int    `json:"level"`
	CurrentHP    int32  `json:"current_hp"`
	MaxHP        int32  `json:"max_hp"`
	Speed        int32  `json:"speed"`
}

type EnemyView struct {
	ID        int64  `json:"id"`
	EnemyID   int64  `json:"enemy_id"`
	Name      string `json:"name"`
	CurrentHP int32  `json:"current_hp"`
	MaxHP     int32  `json:"max_hp"`
	Speed     int32  `json:"speed"`
	Alive     bool   `json:"alive"`
}

type TurnView struct {
	Index    int    `json:"index"`
	Actor    string `json:"actor"`
	HeroID   int64  `json:"hero_id,omitempty"`
	MemberID int64  `json:"member_id,omitempty"`
	EnemyID  int64  `json:"enemy_id,omitempty"`
}

type LogView struct {
	TurnIndex int            `json:"turn_index"`
	MemberID  int64          `json:"member_id,omitempty"`
	Actor     string         `json:"actor,omitempty"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// RoomSnapshot ticks the room and assembles the current view.
func (s *Service) RoomSnapshot(ctx context.Context, roomID int64) (*Snapshot, error) {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, ErrRoomNotFound
	}
	if err := s.tick(ctx, room); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		RoomID:     room.ID,
		Name:       room.Name,
		OwnerID:    room.OwnerID,
		State:      string(room.State),
		Closed:     room.Closed,
		MaxPlayers: room.MaxPlayers,
		CreatedAt:  room.CreatedAt,
		ExpiresAt:  room.ExpiresAt,
	}

	if room.RaidID != 0 {
		if def := s.raids.Get(room.RaidID); def != nil {
			rv := &RaidView{
				RaidID:     def.ID,
				Name:       def.Name,
				Difficulty: def.Difficulty,
				WaveNumber: room.WaveIndex + 1,
				TotalWaves: len(def.Waves),
			}
			if wave := def.Wave(room.WaveIndex + 1); wave != nil {
				rv.WaveName = wave.Name
			}
			snap.Raid = rv
		}
	}

	parts, err := s.store.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		pv := ParticipantView{
			MemberID: p.MemberID,
			Alive:    p.Alive,
			Color:    p.Color,
		}
		if m, err := s.roster.MemberByID(ctx, p.MemberID); err == nil && m != nil {
			pv.Name = m.Name
		}
		units, err := s.roster.TeamUnits(ctx, p.MemberID)
		if err != nil && !errors.Is(err, roster.ErrNoTeam) {
			return nil, err
		}
		for _, u := range units {
			pv.Heroes = append(pv.Heroes, HeroView{
				PlayerHeroID: u.PlayerHeroID,
				Name:         u.Name,
				Level:        u.Level,
				CurrentHP:    u.CurrentHP,
				MaxHP:        u.MaxHP,
				Speed:        u.Speed,
			})
		}
		snap.Participants = append(snap.Participants, pv)
	}

	enemies, err := s.store.Enemies(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	for _, e := range enemies {
		ev := EnemyView{
			ID:        e.ID,
			EnemyID:   e.EnemyID,
			CurrentHP: e.CurrentHP,
			MaxHP:     e.MaxHP,
			Speed:     e.Speed,
			Alive:     e.Alive,
		}
		if tmpl := s.enemies.Get(e.EnemyID); tmpl != nil {
			ev.Name = tmpl.Name
		}
		snap.Enemies = append(snap.Enemies, ev)
	}

	if turn, err := s.store.CurrentTurn(ctx, room.ID); err != nil {
		return nil, err
	} else if turn != nil {
		snap.CurrentTurn = &TurnView{
			Index:    turn.Index,
			Actor:    string(turn.Actor.Type),
			HeroID:   turn.Actor.HeroID,
			MemberID: turn.Actor.MemberID,
			EnemyID:  turn.Actor.EnemyID,
		}
	}

	logs, err := s.store.RecentLogs(ctx, room.ID, s.cfg.SnapshotLogSize)
	if err != nil {
		return nil, err
	}
	for _, e := range logs {
		snap.Logs = append(snap.Logs, LogView{
			TurnIndex: e.TurnIndex,
			MemberID:  e.MemberID,
			Actor:     e.Actor,
			Action:    e.Action,
			Payload:   e.Payload,
			CreatedAt: e.CreatedAt,
		})
	}
	return snap, nil
}
