package raid

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/runraids/server/internal/config"
	"github.com/runraids/server/internal/data"
	"github.com/runraids/server/internal/roster"
)

// Service owns every raid room. All reads and writes for one room go
// through a per-room mutex, so concurrent ticks can never double-spawn a
// wave or double-resolve a turn. Rooms are fully independent of each
// other. Progress is poll-driven: every external read or action runs the
// tick first; a room nobody observes stalls until its next observed tick,
// which is fine because expiry is evaluated inside the tick itself.
type Service struct {
	store   Store
	roster  Roster
	raids   *data.RaidTable
	enemies *data.EnemyTable
	calc    Formulas
	cfg     config.RaidConfig
	log     *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
	rngs  map[int64]*rand.Rand
	seed  func() int64 // seeds new rooms; injectable for tests
}

func NewService(store Store, ros Roster, raids *data.RaidTable, enemies *data.EnemyTable, calc Formulas, cfg config.RaidConfig, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		roster:  ros,
		raids:   raids,
		enemies: enemies,
		calc:    calc,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		locks:   make(map[int64]*sync.Mutex),
		rngs:    make(map[int64]*rand.Rand),
		seed:    func() int64 { return rand.Int63n(10_000) + 1 },
	}
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetSeeder overrides the room-seed source. Test hook.
func (s *Service) SetSeeder(seed func() int64) { s.seed = seed }

// roomLock returns the mutex serializing all work on one room.
func (s *Service) roomLock(roomID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[roomID] = l
	}
	return l
}

// rng returns the room's random source, seeded from its stored seed the
// first time. Deterministic per room per process.
func (s *Service) rng(room *Room) *rand.Rand {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rngs[room.ID]
	if !ok {
		r = rand.New(rand.NewSource(room.RandomSeed))
		s.rngs[room.ID] = r
	}
	return r
}

// releaseRoom drops the room's lock and RNG entries once the room is
// terminal, so a long-lived process does not accumulate them.
func (s *Service) releaseRoom(roomID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, roomID)
	delete(s.rngs, roomID)
}

// livingUnits returns the member's team with only living heroes kept.
func (s *Service) livingUnits(ctx context.Context, memberID int64) ([]*roster.HeroUnit, error) {
	units, err := s.roster.TeamUnits(ctx, memberID)
	if err != nil {
		return nil, err
	}
	alive := units[:0]
	for _, u := range units {
		if u.Alive() {
			alive = append(alive, u)
		}
	}
	return alive, nil
}

// checkTeam validates that the member can enter a raid: an active team
// with at least one living hero.
func (s *Service) checkTeam(ctx context.Context, memberID int64) error {
	units, err := s.roster.TeamUnits(ctx, memberID)
	if errors.Is(err, roster.ErrNoTeam) {
		return ErrNoTeam
	}
	if err != nil {
		return err
	}
	if len(units) == 0 {
		return ErrNoTeam
	}
	for _, u := range units {
		if u.Alive() {
			return nil
		}
	}
	return ErrAllHeroesDead
}

// JoinMatchmaking puts a member into the oldest waiting room for the raid
// definition, creating one if none has capacity. Re-joining a room the
// member is already in returns that room unchanged. Fills auto-start.
func (s *Service) JoinMatchmaking(ctx context.Context, memberID, raidID int64) (*Room, error) {
	def := s.raids.Get(raidID)
	if def == nil {
		return nil, ErrRaidNotFound
	}
	if err := s.checkTeam(ctx, memberID); err != nil {
		return nil, err
	}

	room, err := s.store.OldestWaitingRoom(ctx, raidID)
	if err != nil {
		return nil, err
	}
	if room != nil {
		joined, err := s.joinRoom(ctx, room, memberID)
		if err != nil {
			return nil, err
		}
		if joined {
			return room, nil
		}
		// The room filled or started between selection and lock; fall
		// through and open a fresh one.
	}

	room = &Room{
		Name:       fmt.Sprintf("%s party", def.Name),
		OwnerID:    memberID,
		RaidID:     raidID,
		State:      StateWaiting,
		MaxPlayers: def.MaxPlayers,
		RandomSeed: s.seed(),
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	if _, err := s.joinRoom(ctx, room, memberID); err != nil {
		return nil, err
	}
	return room, nil
}

// joinRoom adds the member under the room lock. The room is re-read
// after the lock is taken, so a join that raced a fill or a start sees
// the current state and reports the room as not joinable instead of
// overfilling it. Re-joining a room the member already occupies always
// succeeds.
func (s *Service) joinRoom(ctx context.Context, room *Room, memberID int64) (bool, error) {
	lock := s.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.store.RoomByID(ctx, room.ID)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}
	*room = *current

	existing, err := s.store.ParticipantByMember(ctx, room.ID, memberID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return true, nil
	}
	if room.State != StateWaiting {
		return false, nil
	}
	parts, err := s.store.Participants(ctx, room.ID)
	if err != nil {
		return false, err
	}
	if len(parts) >= room.MaxPlayers {
		return false, nil
	}

	p := &Participant{
		RoomID:   room.ID,
		MemberID: memberID,
		Alive:    true,
		Ready:    true,
		Color:    len(parts)%4 + 1,
	}
	if err := s.store.AddParticipant(ctx, p); err != nil {
		return false, err
	}
	s.appendLog(ctx, room, -1, memberID, "", ActionJoin, map[string]any{
		"member_id": memberID,
	})
	s.log.Info("member joined raid room",
		zap.Int64("room_id", room.ID),
		zap.Int64("member_id", memberID),
		zap.Int("players", len(parts)+1))

	if len(parts)+1 >= room.MaxPlayers {
		if err := s.startStructured(ctx, room); err != nil {
			return false, err
		}
	}
	return true, nil
}

// StartSoloRaid creates and immediately starts a single-player room for a
// raid definition.
func (s *Service) StartSoloRaid(ctx context.Context, memberID, raidID int64) (*Room, error) {
	def := s.raids.Get(raidID)
	if def == nil {
		return nil, ErrRaidNotFound
	}
	if err := s.checkTeam(ctx, memberID); err != nil {
		return nil, err
	}
	room := &Room{
		Name:       fmt.Sprintf("Solo: %s", def.Name),
		OwnerID:    memberID,
		RaidID:     raidID,
		State:      StateWaiting,
		MaxPlayers: 1,
		RandomSeed: s.seed(),
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	p := &Participant{RoomID: room.ID, MemberID: memberID, Alive: true, Ready: true, Color: 1}
	if err := s.store.AddParticipant(ctx, p); err != nil {
		return nil, err
	}
	lock := s.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.startStructured(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// StartSoloLegacy creates and starts a single-player room against one
// enemy template, without a raid definition (no waves, shorter expiry).
func (s *Service) StartSoloLegacy(ctx context.Context, memberID, enemyID int64) (*Room, error) {
	tmpl := s.enemies.Get(enemyID)
	if tmpl == nil {
		return nil, ErrEnemyNotFound
	}
	if err := s.checkTeam(ctx, memberID); err != nil {
		return nil, err
	}
	room := &Room{
		Name:       fmt.Sprintf("Solo: %s", tmpl.Name),
		OwnerID:    memberID,
		EnemyID:    enemyID,
		State:      StateWaiting,
		MaxPlayers: 1,
		RandomSeed: s.seed(),
		CreatedAt:  s.now(),
	}
	if err := s.store.CreateRoom(ctx, room); err != nil {
		return nil, err
	}
	p := &Participant{RoomID: room.ID, MemberID: memberID, Alive: true, Ready: true, Color: 1}
	if err := s.store.AddParticipant(ctx, p); err != nil {
		return nil, err
	}
	lock := s.roomLock(room.ID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.startLegacy(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// StartRoomManually starts a waiting or ready room on the owner's demand.
func (s *Service) StartRoomManually(ctx context.Context, memberID, roomID int64) error {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	if room.OwnerID != memberID {
		return ErrNotOwner
	}
	if room.State != StateWaiting && room.State != StateReady {
		return ErrRoomNotStartable
	}
	if room.RaidID != 0 {
		return s.startStructured(ctx, room)
	}
	return s.startLegacy(ctx, room)
}

// startStructured transitions a waiting/ready definition-backed room into
// in_progress: wave 1, first turn order, expiry clock.
func (s *Service) startStructured(ctx context.Context, room *Room) error {
	if room.State != StateWaiting && room.State != StateReady {
		return nil
	}
	room.WaveIndex = 0
	finished, err := s.spawnWave(ctx, room)
	if err != nil {
		return err
	}
	if finished {
		return nil // definition had no waves at all
	}
	if err := s.buildTurnOrder(ctx, room); err != nil {
		return err
	}
	room.State = StateInProgress
	room.Closed = false
	room.LastTickAt = s.now()
	expires := room.CreatedAt.Add(s.cfg.RaidExpiry)
	room.ExpiresAt = &expires
	if err := s.store.SaveRoom(ctx, room); err != nil {
		return err
	}
	s.appendLog(ctx, room, -1, 0, "", ActionStart, map[string]any{
		"raid_id":    room.RaidID,
		"wave_index": room.WaveIndex,
	})
	s.log.Info("raid started", zap.Int64("room_id", room.ID), zap.Int64("raid_id", room.RaidID))
	return nil
}

// startLegacy starts a single-enemy room: one instance straight from the
// template, no wave scaling.
func (s *Service) startLegacy(ctx context.Context, room *Room) error {
	if room.State != StateWaiting && room.State != StateReady {
		return nil
	}
	tmpl := s.enemies.Get(room.EnemyID)
	if tmpl == nil {
		return ErrEnemyNotFound
	}
	e := &EnemyUnit{
		RoomID:    room.ID,
		EnemyID:   tmpl.ID,
		CurrentHP: tmpl.BaseHP,
		MaxHP:     tmpl.BaseHP,
		Speed:     tmpl.Speed,
		Alive:     true,
	}
	if err := s.store.AddEnemy(ctx, e); err != nil {
		return err
	}
	if err := s.buildTurnOrder(ctx, room); err != nil {
		return err
	}
	room.State = StateInProgress
	room.Closed = false
	room.LastTickAt = s.now()
	expires := room.CreatedAt.Add(s.cfg.LegacyExpiry)
	room.ExpiresAt = &expires
	if err := s.store.SaveRoom(ctx, room); err != nil {
		return err
	}
	s.appendLog(ctx, room, -1, 0, "", ActionStart, map[string]any{"enemy_id": tmpl.ID})
	return nil
}

// ProcessTick advances the room by at most one state-appropriate step.
// Safe to call on every poll; repeated calls on a settled room are no-ops.
func (s *Service) ProcessTick(ctx context.Context, roomID int64) error {
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	room, err := s.store.RoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return ErrRoomNotFound
	}
	return s.tick(ctx, room)
}

func (s *Service) tick(ctx context.Context, room *Room) error {
	now := s.now()

	switch room.State {
	case StateWaiting:
		// Grace period for late joiners, then the room is ready.
		if now.Sub(room.CreatedAt) >= s.cfg.ReadyDelay {
			room.State = StateReady
			if err := s.store.SaveRoom(ctx, room); err != nil {
				return err
			}
			s.appendLog(ctx, room, -1, 0, "", ActionAutoReady, map[string]any{
				"seconds_waited": now.Sub(room.CreatedAt).Seconds(),
			})
		}
		return nil

	case StateReady:
		if now.Sub(room.CreatedAt) >= s.cfg.AutoStartDelay {
			var err error
			if room.RaidID != 0 {
				err = s.startStructured(ctx, room)
			} else {
				err = s.startLegacy(ctx, room)
			}
			if err != nil {
				return err
			}
			s.appendLog(ctx, room, -1, 0, "", ActionAutoStart, map[string]any{
				"seconds_waited": now.Sub(room.CreatedAt).Seconds(),
				"reason":         "auto_start_timeout",
			})
		}
		return nil

	case StateFinished:
		s.releaseRoom(room.ID)
		return nil
	}

	// in_progress from here on.
	if room.ExpiresAt != nil && !room.Closed && !now.Before(*room.ExpiresAt) {
		return s.forceClose(ctx, room)
	}

	parts, err := s.store.Participants(ctx, room.ID)
	if err != nil {
		return err
	}
	if !anyAlive(parts) {
		return s.finishRoom(ctx, room, WinnerEnemies)
	}

	if room.RaidID != 0 {
		enemies, err := s.store.Enemies(ctx, room.ID)
		if err != nil {
			return err
		}
		if !anyEnemyAlive(enemies) {
			return s.checkWaveCompletion(ctx, room)
		}
	}

	turn, err := s.store.CurrentTurn(ctx, room.ID)
	if err != nil {
		return err
	}
	if turn == nil {
		// Cycle exhausted: rebuild once, then try again.
		if err := s.buildTurnOrder(ctx, room); err != nil {
			return err
		}
		turn, err = s.store.CurrentTurn(ctx, room.ID)
		if err != nil || turn == nil {
			return err
		}
	}

	room.LastTickAt = now
	if err := s.store.SaveRoom(ctx, room); err != nil {
		return err
	}

	switch turn.Actor.Type {
	case ActorEnemy:
		return s.resolveEnemyTurn(ctx, room, turn)
	case ActorHero:
		// A dead scheduled hero is auto-skipped; a living one waits for
		// the player's decision. Hero turns never auto-resolve here.
		return s.maybeSkipDeadHero(ctx, room, turn)
	}
	return nil
}

// finishRoom marks the room finished and writes the single finish log.
func (s *Service) finishRoom(ctx context.Context, room *Room, winner string) error {
	room.State = StateFinished
	if err := s.store.SaveRoom(ctx, room); err != nil {
		return err
	}
	s.appendLog(ctx, room, -1, 0, "", ActionFinish, map[string]any{"winner": winner})
	s.log.Info("raid finished", zap.Int64("room_id", room.ID), zap.String("winner", winner))
	s.releaseRoom(room.ID)
	return nil
}

// forceClose is the timeout path: every living participant is marked dead
// and every one of their heroes' persisted HP is zeroed. Deliberately
// destructive; the closed flag makes repeated calls no-ops.
func (s *Service) forceClose(ctx context.Context, room *Room) error {
	if room.Closed {
		return nil
	}
	parts, err := s.store.Participants(ctx, room.ID)
	if err != nil {
		return err
	}
	var zeroed []int64
	for _, p := range parts {
		if p.Alive {
			p.Alive = false
			if err := s.store.SaveParticipant(ctx, p); err != nil {
				return err
			}
		}
		units, err := s.roster.TeamUnits(ctx, p.MemberID)
		if errors.Is(err, roster.ErrNoTeam) {
			continue
		}
		if err != nil {
			return err
		}
		for _, u := range units {
			if u.CurrentHP != 0 {
				if err := s.roster.SetHeroHP(ctx, u.PlayerHeroID, 0); err != nil {
					return err
				}
				zeroed = append(zeroed, u.PlayerHeroID)
			}
		}
	}
	room.Closed = true
	room.State = StateFinished
	if err := s.store.SaveRoom(ctx, room); err != nil {
		return err
	}
	s.appendLog(ctx, room, -1, 0, "", ActionFinish, map[string]any{
		"winner":        WinnerTimeout,
		"closed":        true,
		"zeroed_heroes": zeroed,
	})
	s.log.Warn("raid force-closed on timeout", zap.Int64("room_id", room.ID), zap.Int("zeroed_heroes", len(zeroed)))
	s.releaseRoom(room.ID)
	return nil
}

// appendLog writes a decision-log entry. Log failures never roll back the
// core mutation they describe; they are reported and dropped.
func (s *Service) appendLog(ctx context.Context, room *Room, turnIndex int, memberID int64, actor, action string, payload map[string]any) {
	e := &LogEntry{
		RoomID:    room.ID,
		TurnIndex: turnIndex,
		MemberID:  memberID,
		Actor:     actor,
		Action:    action,
		Payload:   payload,
		CreatedAt: s.now(),
	}
	if err := s.store.AppendLog(ctx, e); err != nil {
		s.log.Error("decision log write failed",
			zap.Int64("room_id", room.ID),
			zap.String("action", action),
			zap.Error(err))
	}
}

func anyAlive(parts []*Participant) bool {
	for _, p := range parts {
		if p.Alive {
			return true
		}
	}
	return false
}

func anyEnemyAlive(enemies []*EnemyUnit) bool {
	for _, e := range enemies {
		if e.Alive {
			return true
		}
	}
	return false
}
