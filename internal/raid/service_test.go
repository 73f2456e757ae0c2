package raid

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/runraids/server/internal/config"
	"github.com/runraids/server/internal/data"
	"github.com/runraids/server/internal/roster"
)

// fakeStore is an in-memory Store.
type fakeStore struct {
	nextID  int64
	rooms   []*Room
	parts   []*Participant
	enemies []*EnemyUnit
	turns   map[int64][]*Turn
	logs    []*LogEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{turns: make(map[int64][]*Turn)}
}

func (f *fakeStore) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeStore) CreateRoom(_ context.Context, room *Room) error {
	room.ID = f.id()
	f.rooms = append(f.rooms, room)
	return nil
}

func (f *fakeStore) RoomByID(_ context.Context, id int64) (*Room, error) {
	for _, r := range f.rooms {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SaveRoom(_ context.Context, room *Room) error { return nil }

func (f *fakeStore) OldestWaitingRoom(_ context.Context, raidID int64) (*Room, error) {
	for _, r := range f.rooms {
		if r.RaidID != raidID || r.State != StateWaiting {
			continue
		}
		count := 0
		for _, p := range f.parts {
			if p.RoomID == r.ID {
				count++
			}
		}
		if count < r.MaxPlayers {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) Participants(_ context.Context, roomID int64) ([]*Participant, error) {
	var out []*Participant
	for _, p := range f.parts {
		if p.RoomID == roomID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) ParticipantByMember(_ context.Context, roomID, memberID int64) (*Participant, error) {
	for _, p := range f.parts {
		if p.RoomID == roomID && p.MemberID == memberID {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AddParticipant(_ context.Context, p *Participant) error {
	p.ID = f.id()
	f.parts = append(f.parts, p)
	return nil
}

func (f *fakeStore) SaveParticipant(_ context.Context, p *Participant) error { return nil }

func (f *fakeStore) Enemies(_ context.Context, roomID int64) ([]*EnemyUnit, error) {
	var out []*EnemyUnit
	for _, e := range f.enemies {
		if e.RoomID == roomID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteEnemies(_ context.Context, roomID int64) error {
	kept := f.enemies[:0]
	for _, e := range f.enemies {
		if e.RoomID != roomID {
			kept = append(kept, e)
		}
	}
	f.enemies = kept
	return nil
}

func (f *fakeStore) AddEnemy(_ context.Context, e *EnemyUnit) error {
	e.ID = f.id()
	f.enemies = append(f.enemies, e)
	return nil
}

func (f *fakeStore) SaveEnemy(_ context.Context, e *EnemyUnit) error { return nil }

func (f *fakeStore) ReplaceTurns(_ context.Context, roomID int64, turns []*Turn) error {
	for _, t := range turns {
		t.ID = f.id()
	}
	f.turns[roomID] = turns
	return nil
}

func (f *fakeStore) CurrentTurn(_ context.Context, roomID int64) (*Turn, error) {
	for _, t := range f.turns[roomID] {
		if !t.Resolved {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SaveTurn(_ context.Context, t *Turn) error { return nil }

func (f *fakeStore) AppendLog(_ context.Context, e *LogEntry) error {
	e.ID = f.id()
	f.logs = append(f.logs, e)
	return nil
}

func (f *fakeStore) RecentLogs(_ context.Context, roomID int64, limit int) ([]*LogEntry, error) {
	var all []*LogEntry
	for _, e := range f.logs {
		if e.RoomID == roomID {
			all = append(all, e)
		}
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (f *fakeStore) logsByAction(roomID int64, action string) []*LogEntry {
	var out []*LogEntry
	for _, e := range f.logs {
		if e.RoomID == roomID && e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// fakeRoster serves hero units straight from memory.
type fakeRoster struct {
	units   map[int64][]*roster.HeroUnit
	members map[int64]*roster.Member
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{
		units:   make(map[int64][]*roster.HeroUnit),
		members: make(map[int64]*roster.Member),
	}
}

func (f *fakeRoster) TeamUnits(_ context.Context, memberID int64) ([]*roster.HeroUnit, error) {
	units, ok := f.units[memberID]
	if !ok {
		return nil, roster.ErrNoTeam
	}
	out := make([]*roster.HeroUnit, len(units))
	copy(out, units)
	return out, nil
}

func (f *fakeRoster) SetHeroHP(_ context.Context, playerHeroID int64, hp int32) error {
	for _, units := range f.units {
		for _, u := range units {
			if u.PlayerHeroID == playerHeroID {
				if hp < 0 {
					hp = 0
				}
				u.CurrentHP = hp
				return nil
			}
		}
	}
	return errors.New("no such hero")
}

func (f *fakeRoster) MemberByID(_ context.Context, id int64) (*roster.Member, error) {
	return f.members[id], nil
}

func (f *fakeRoster) addMember(memberID int64, units ...*roster.HeroUnit) {
	f.members[memberID] = &roster.Member{ID: memberID, Name: fmt.Sprintf("member-%d", memberID)}
	f.units[memberID] = units
}

// fixedCalc mirrors the production formulas deterministically.
type fixedCalc struct{}

func (fixedCalc) HeroAttackDamage(atkPhys, atkMag int32) int32 {
	dmg := (atkPhys + atkMag) * 4 / 10
	if dmg < 1 {
		dmg = 1
	}
	return dmg
}

func (fixedCalc) EnemyAttackDamage(attack int32, variance float64) int32 {
	dmg := int32(float64(attack) * variance)
	if dmg < 1 {
		dmg = 1
	}
	return dmg
}

func unit(playerHeroID, ownerID int64, hp, speed int32) *roster.HeroUnit {
	return &roster.HeroUnit{
		PlayerHeroID: playerHeroID,
		OwnerID:      ownerID,
		HeroID:       playerHeroID,
		Name:         fmt.Sprintf("hero-%d", playerHeroID),
		Level:        1,
		CurrentHP:    hp,
		MaxHP:        hp,
		AtkPhys:      12,
		AtkMag:       8,
		Speed:        speed,
	}
}

type fixture struct {
	svc    *Service
	store  *fakeStore
	roster *fakeRoster
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	enemies, err := data.LoadEnemyTable("../../data/yaml/enemy_list.yaml")
	if err != nil {
		t.Fatalf("load enemy table: %v", err)
	}
	raids, err := data.LoadRaidTable("../../data/yaml/raid_list.yaml", enemies)
	if err != nil {
		t.Fatalf("load raid table: %v", err)
	}

	store := newFakeStore()
	ros := newFakeRoster()
	svc := NewService(store, ros, raids, enemies, fixedCalc{}, config.Defaults().Raid, zap.NewNop())

	fx := &fixture{svc: svc, store: store, roster: ros, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc.SetClock(func() time.Time { return fx.now })
	svc.SetSeeder(func() int64 { return 42 })
	return fx
}

func (fx *fixture) advance(d time.Duration) { fx.now = fx.now.Add(d) }

func TestJoinValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if _, err := fx.svc.JoinMatchmaking(ctx, 1, 999); !errors.Is(err, ErrRaidNotFound) {
		t.Errorf("unknown raid: err = %v, want ErrRaidNotFound", err)
	}
	if _, err := fx.svc.JoinMatchmaking(ctx, 1, 1); !errors.Is(err, ErrNoTeam) {
		t.Errorf("no team: err = %v, want ErrNoTeam", err)
	}

	fx.roster.addMember(1, unit(10, 1, 0, 12)) // one hero, dead
	if _, err := fx.svc.JoinMatchmaking(ctx, 1, 1); !errors.Is(err, ErrAllHeroesDead) {
		t.Errorf("dead team: err = %v, want ErrAllHeroesDead", err)
	}
}

func TestJoinMatchmakingFillsAndStarts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	fx.roster.addMember(2, unit(20, 2, 200, 9))

	// Raid 2 caps at two players.
	room, err := fx.svc.JoinMatchmaking(ctx, 1, 2)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if room.State != StateWaiting {
		t.Fatalf("state = %s, want waiting", room.State)
	}

	// Re-joining is idempotent.
	again, err := fx.svc.JoinMatchmaking(ctx, 1, 2)
	if err != nil {
		t.Fatalf("re-join: %v", err)
	}
	if again.ID != room.ID {
		t.Fatalf("re-join created a new room")
	}
	parts, _ := fx.store.Participants(ctx, room.ID)
	if len(parts) != 1 {
		t.Fatalf("re-join duplicated participant: %d", len(parts))
	}

	// Second member fills the room, which auto-starts.
	room2, err := fx.svc.JoinMatchmaking(ctx, 2, 2)
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if room2.ID != room.ID {
		t.Fatalf("second member landed in a different room")
	}
	if room.State != StateInProgress {
		t.Errorf("state = %s, want in_progress after fill", room.State)
	}

	parts, _ = fx.store.Participants(ctx, room.ID)
	if len(parts) != 2 || parts[0].Color != 1 || parts[1].Color != 2 {
		t.Errorf("colors = %d,%d, want 1,2", parts[0].Color, parts[1].Color)
	}

	// Raid 2 wave 1: two Bog Shamans at modifier 1.1 -> hp 88, speed 7.
	enemies, _ := fx.store.Enemies(ctx, room.ID)
	if len(enemies) != 2 {
		t.Fatalf("got %d enemies, want 2", len(enemies))
	}
	for _, e := range enemies {
		if e.MaxHP != 88 || e.Speed != 7 {
			t.Errorf("enemy hp/speed = %d/%d, want 88/7", e.MaxHP, e.Speed)
		}
	}
}

func TestWaitingToReadyToAutoStart(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	room, err := fx.svc.JoinMatchmaking(ctx, 1, 1)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	// Before the grace period nothing happens.
	if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if room.State != StateWaiting {
		t.Fatalf("state = %s, want waiting", room.State)
	}

	fx.advance(5 * time.Second)
	if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if room.State != StateReady {
		t.Fatalf("state = %s, want ready after grace period", room.State)
	}
	if n := len(fx.store.logsByAction(room.ID, ActionAutoReady)); n != 1 {
		t.Errorf("auto_ready logs = %d, want 1", n)
	}

	fx.advance(235 * time.Second) // total 240s since creation
	if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if room.State != StateInProgress {
		t.Fatalf("state = %s, want in_progress after auto-start window", room.State)
	}
	if n := len(fx.store.logsByAction(room.ID, ActionAutoStart)); n != 1 {
		t.Errorf("auto_start logs = %d, want 1", n)
	}
}

func TestSoloLegacyFight(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Hero speed 12 beats the Mire Crawler's 10, so the hero acts first.
	// Hero damage is (12+8)*0.4 = 8 per attack; the crawler has 50 HP, so
	// seven attacks kill it.
	fx.roster.addMember(1, unit(10, 1, 500, 12))
	room, err := fx.svc.StartSoloLegacy(ctx, 1, 101)
	if err != nil {
		t.Fatalf("StartSoloLegacy: %v", err)
	}
	if room.State != StateInProgress {
		t.Fatalf("state = %s, want in_progress", room.State)
	}

	turn, _ := fx.store.CurrentTurn(ctx, room.ID)
	if turn == nil || turn.Actor.Type != ActorHero {
		t.Fatalf("first turn actor = %+v, want hero", turn)
	}

	attacks := 0
	for attacks < 7 {
		if err := fx.svc.SubmitDecision(ctx, 1, room.ID, 0); err != nil {
			t.Fatalf("attack %d: %v", attacks+1, err)
		}
		attacks++
		if room.State == StateFinished {
			break
		}
		// Two polls let the enemy act and the order rebuild.
		if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
			t.Fatal(err)
		}
		if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
			t.Fatal(err)
		}
	}

	if attacks != 7 {
		t.Fatalf("fight took %d attacks, want 7", attacks)
	}
	if room.State != StateFinished {
		t.Fatalf("state = %s, want finished", room.State)
	}

	enemies, _ := fx.store.Enemies(ctx, room.ID)
	if len(enemies) != 1 || enemies[0].CurrentHP != 0 || enemies[0].Alive {
		t.Errorf("enemy not dead: %+v", enemies[0])
	}

	finishes := fx.store.logsByAction(room.ID, ActionFinish)
	if len(finishes) != 1 {
		t.Fatalf("finish logs = %d, want exactly 1", len(finishes))
	}
	if finishes[0].Payload["winner"] != WinnerHeroes {
		t.Errorf("winner = %v, want heroes", finishes[0].Payload["winner"])
	}
	if n := len(fx.store.logsByAction(room.ID, ActionHeroAttack)); n != 7 {
		t.Errorf("hero_attack logs = %d, want 7", n)
	}

	// Enemy turns dealt bounded damage: attack 10, variance [0.8, 1.2].
	hero := fx.roster.units[1][0]
	taken := hero.MaxHP - hero.CurrentHP
	if taken < 6*8 || taken > 6*12 {
		t.Errorf("hero took %d damage over 6 enemy turns, want within [48, 72]", taken)
	}
}

func TestSubmitDecisionValidationLadder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	if err := fx.svc.SubmitDecision(ctx, 1, 999, 0); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("unknown room: err = %v, want ErrRoomNotFound", err)
	}

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	waiting, err := fx.svc.JoinMatchmaking(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.svc.SubmitDecision(ctx, 1, waiting.ID, 0); !errors.Is(err, ErrRaidNotInProgress) {
		t.Errorf("waiting room: err = %v, want ErrRaidNotInProgress", err)
	}

	room, err := fx.svc.StartSoloLegacy(ctx, 1, 101)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.svc.SubmitDecision(ctx, 2, room.ID, 0); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("outsider: err = %v, want ErrNotParticipant", err)
	}

	// Resolve the hero turn; the current turn becomes the enemy's.
	if err := fx.svc.SubmitDecision(ctx, 1, room.ID, 0); err != nil {
		t.Fatal(err)
	}
	if err := fx.svc.SubmitDecision(ctx, 1, room.ID, 0); !errors.Is(err, ErrNotHeroTurn) {
		t.Errorf("enemy turn: err = %v, want ErrNotHeroTurn", err)
	}
}

func TestSubmitDecisionWrongMemberAndDeadActor(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	fx.roster.addMember(2, unit(20, 2, 200, 9))
	room, err := fx.svc.JoinMatchmaking(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.JoinMatchmaking(ctx, 2, 2); err != nil {
		t.Fatal(err)
	}

	// Member 1's hero (speed 12) holds the first turn; member 2 may not act.
	if err := fx.svc.SubmitDecision(ctx, 2, room.ID, 0); !errors.Is(err, ErrWrongTurn) {
		t.Errorf("wrong member: err = %v, want ErrWrongTurn", err)
	}

	// The scheduled hero dying between turns surfaces as ErrActorDead.
	fx.roster.units[1][0].CurrentHP = 0
	if err := fx.svc.SubmitDecision(ctx, 1, room.ID, 0); !errors.Is(err, ErrActorDead) {
		t.Errorf("dead actor: err = %v, want ErrActorDead", err)
	}
}

func TestSubmitDecisionNoLivingEnemy(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	room, err := fx.svc.StartSoloLegacy(ctx, 1, 101)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range fx.store.enemies {
		e.Alive = false
		e.CurrentHP = 0
	}
	if err := fx.svc.SubmitDecision(ctx, 1, room.ID, 0); !errors.Is(err, ErrNoLivingEnemy) {
		t.Errorf("err = %v, want ErrNoLivingEnemy", err)
	}
}

func TestTurnOrderDescendingSpeedStable(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Two members with two heroes each; speeds chosen so heroes and
	// enemies interleave and a tie (9 vs the shaman-paced enemies) keeps
	// discovery order.
	fx.roster.addMember(1, unit(10, 1, 100, 12), unit(11, 1, 100, 3))
	fx.roster.addMember(2, unit(20, 2, 100, 9), unit(21, 2, 100, 5))

	room, err := fx.svc.JoinMatchmaking(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.JoinMatchmaking(ctx, 2, 2); err != nil {
		t.Fatal(err)
	}

	turns := fx.store.turns[room.ID]
	// Speeds: hero 12, hero 9, enemy 7, enemy 7, hero 5, hero 3.
	wantSpeeds := []struct {
		actorType ActorType
		heroID    int64
	}{
		{ActorHero, 10},
		{ActorHero, 20},
		{ActorEnemy, 0},
		{ActorEnemy, 0},
		{ActorHero, 21},
		{ActorHero, 11},
	}
	if len(turns) != len(wantSpeeds) {
		t.Fatalf("got %d turns, want %d", len(turns), len(wantSpeeds))
	}
	for i, want := range wantSpeeds {
		got := turns[i]
		if got.Actor.Type != want.actorType {
			t.Errorf("turn %d: actor type %s, want %s", i, got.Actor.Type, want.actorType)
		}
		if want.actorType == ActorHero && got.Actor.HeroID != want.heroID {
			t.Errorf("turn %d: hero %d, want %d", i, got.Actor.HeroID, want.heroID)
		}
		if got.Index != i {
			t.Errorf("turn %d: index %d", i, got.Index)
		}
	}
}

func TestWaveAdvanceAndFinish(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 500, 12))
	room, err := fx.svc.StartSoloRaid(ctx, 1, 2)
	if err != nil {
		t.Fatalf("StartSoloRaid: %v", err)
	}
	if room.WaveIndex != 0 {
		t.Fatalf("wave index = %d, want 0", room.WaveIndex)
	}

	// Clear wave 1 by force; the next tick advances to wave 2.
	for _, e := range fx.store.enemies {
		e.CurrentHP = 0
		e.Alive = false
	}
	if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if room.WaveIndex != 1 {
		t.Fatalf("wave index = %d, want 1", room.WaveIndex)
	}
	// Raid 2 wave 2: one Fen Colossus at modifier 1.5 -> hp 360, speed 6.
	enemies, _ := fx.store.Enemies(ctx, room.ID)
	if len(enemies) != 1 || enemies[0].MaxHP != 360 || enemies[0].Speed != 6 {
		t.Fatalf("wave 2 spawn wrong: %+v", enemies[0])
	}
	if n := len(fx.store.logsByAction(room.ID, ActionWaveStart)); n != 2 {
		t.Errorf("wave_start logs = %d, want 2", n)
	}

	// Clear the final wave; the raid finishes for the heroes.
	for _, e := range fx.store.enemies {
		e.CurrentHP = 0
		e.Alive = false
	}
	if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if room.State != StateFinished {
		t.Fatalf("state = %s, want finished", room.State)
	}
	finishes := fx.store.logsByAction(room.ID, ActionFinish)
	if len(finishes) != 1 || finishes[0].Payload["winner"] != WinnerHeroes {
		t.Fatalf("finish logs wrong: %+v", finishes)
	}
}

func TestExpiryForceCloseIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	room, err := fx.svc.StartSoloLegacy(ctx, 1, 101)
	if err != nil {
		t.Fatal(err)
	}

	// Legacy rooms expire 20 minutes after creation.
	fx.advance(21 * time.Minute)
	for i := 0; i < 3; i++ {
		if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
			t.Fatalf("poll %d: %v", i+1, err)
		}
	}

	if room.State != StateFinished || !room.Closed {
		t.Fatalf("room not closed: state=%s closed=%v", room.State, room.Closed)
	}
	finishes := fx.store.logsByAction(room.ID, ActionFinish)
	if len(finishes) != 1 {
		t.Fatalf("finish logs = %d, want exactly 1 across repeated polls", len(finishes))
	}
	if finishes[0].Payload["winner"] != WinnerTimeout {
		t.Errorf("winner = %v, want timeout", finishes[0].Payload["winner"])
	}

	// The punitive close zeroes persisted hero HP and kills the participant.
	if hp := fx.roster.units[1][0].CurrentHP; hp != 0 {
		t.Errorf("hero hp = %d, want 0 after force close", hp)
	}
	parts, _ := fx.store.Participants(ctx, room.ID)
	if parts[0].Alive {
		t.Error("participant still alive after force close")
	}
}

func TestStartRoomManually(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	fx.roster.addMember(2, unit(20, 2, 200, 9))
	room, err := fx.svc.JoinMatchmaking(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	if err := fx.svc.StartRoomManually(ctx, 2, room.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("non-owner: err = %v, want ErrNotOwner", err)
	}
	if err := fx.svc.StartRoomManually(ctx, 1, room.ID); err != nil {
		t.Fatalf("owner start: %v", err)
	}
	if room.State != StateInProgress {
		t.Fatalf("state = %s, want in_progress", room.State)
	}
	if err := fx.svc.StartRoomManually(ctx, 1, room.ID); !errors.Is(err, ErrRoomNotStartable) {
		t.Errorf("re-start: err = %v, want ErrRoomNotStartable", err)
	}
}

func TestEnemyTurnSkipsDeadEnemy(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	room, err := fx.svc.StartSoloLegacy(ctx, 1, 101)
	if err != nil {
		t.Fatal(err)
	}

	// Resolve the hero turn, then kill the enemy out of band. Its
	// scheduled turn resolves as a logged skip, not an attack.
	if err := fx.svc.SubmitDecision(ctx, 1, room.ID, 0); err != nil {
		t.Fatal(err)
	}
	for _, e := range fx.store.enemies {
		e.Alive = false
	}
	heroHP := fx.roster.units[1][0].CurrentHP
	if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if n := len(fx.store.logsByAction(room.ID, ActionSkipDeadEnemy)); n != 1 {
		t.Errorf("skip_dead_enemy logs = %d, want 1", n)
	}
	if fx.roster.units[1][0].CurrentHP != heroHP {
		t.Error("dead enemy still dealt damage")
	}
}

func TestDeadHeroTurnAutoSkips(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Speeds 12 and 3 bracket the Mire Crawler's 10, so the order is
	// hero 10, enemy, hero 11.
	fx.roster.addMember(1, unit(10, 1, 200, 12), unit(11, 1, 200, 3))
	room, err := fx.svc.StartSoloLegacy(ctx, 1, 101)
	if err != nil {
		t.Fatal(err)
	}

	// The fastest hero dies before its scheduled turn; the tick resolves
	// it as a logged skip instead of waiting for a decision.
	fx.roster.units[1][0].CurrentHP = 0
	if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
		t.Fatal(err)
	}

	skips := fx.store.logsByAction(room.ID, ActionSkipDead)
	if len(skips) != 1 {
		t.Fatalf("skip_dead logs = %d, want 1", len(skips))
	}
	if skips[0].Payload["hero_id"] != int64(10) {
		t.Errorf("skipped hero = %v, want 10", skips[0].Payload["hero_id"])
	}
	if !fx.store.turns[room.ID][0].Resolved {
		t.Error("dead hero's turn left unresolved")
	}
	turn, _ := fx.store.CurrentTurn(ctx, room.ID)
	if turn == nil || turn.Actor.Type != ActorEnemy {
		t.Fatalf("next turn = %+v, want enemy", turn)
	}

	// Play moves on: the enemy acts, then the surviving hero may.
	if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if err := fx.svc.SubmitDecision(ctx, 1, room.ID, 0); err != nil {
		t.Errorf("surviving hero decision: %v", err)
	}
}

// staleStore hands out a stale waiting-state snapshot once, standing in
// for a join that lost the race against the fill of the same room.
type staleStore struct {
	*fakeStore
	stale *Room
}

func (s *staleStore) OldestWaitingRoom(ctx context.Context, raidID int64) (*Room, error) {
	if s.stale != nil {
		r := s.stale
		s.stale = nil
		return r, nil
	}
	return s.fakeStore.OldestWaitingRoom(ctx, raidID)
}

func TestJoinSkipsRoomStartedAfterSelection(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	fx.roster.addMember(2, unit(20, 2, 200, 9))
	fx.roster.addMember(3, unit(30, 3, 200, 8))

	// Two members fill and start a raid-2 room.
	room, err := fx.svc.JoinMatchmaking(ctx, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fx.svc.JoinMatchmaking(ctx, 2, 2); err != nil {
		t.Fatal(err)
	}
	if room.State != StateInProgress {
		t.Fatalf("state = %s, want in_progress", room.State)
	}

	// The third member selected the room while it was still waiting.
	// Under the lock the join re-reads it, sees it started, and opens a
	// fresh room instead of squeezing in.
	snapshot := *room
	snapshot.State = StateWaiting
	fx.svc.store = &staleStore{fakeStore: fx.store, stale: &snapshot}

	other, err := fx.svc.JoinMatchmaking(ctx, 3, 2)
	if err != nil {
		t.Fatalf("third join: %v", err)
	}
	if other.ID == room.ID {
		t.Fatal("third member squeezed into the started room")
	}
	if other.State != StateWaiting {
		t.Errorf("new room state = %s, want waiting", other.State)
	}
	parts, _ := fx.store.Participants(ctx, room.ID)
	if len(parts) != 2 {
		t.Errorf("started room has %d participants, want 2", len(parts))
	}
	newParts, _ := fx.store.Participants(ctx, other.ID)
	if len(newParts) != 1 || newParts[0].MemberID != 3 {
		t.Errorf("new room participants = %+v, want member 3 only", newParts)
	}
}

func TestFinishedRoomReleasesLockAndRNG(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	room, err := fx.svc.StartSoloLegacy(ctx, 1, 101)
	if err != nil {
		t.Fatal(err)
	}
	fx.svc.mu.Lock()
	_, hasLock := fx.svc.locks[room.ID]
	fx.svc.mu.Unlock()
	if !hasLock {
		t.Fatal("running room has no lock entry")
	}

	// Expire the room; repeated polls must not leave entries behind.
	fx.advance(21 * time.Minute)
	for i := 0; i < 3; i++ {
		if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
			t.Fatalf("poll %d: %v", i+1, err)
		}
	}

	fx.svc.mu.Lock()
	_, hasLock = fx.svc.locks[room.ID]
	_, hasRNG := fx.svc.rngs[room.ID]
	fx.svc.mu.Unlock()
	if hasLock || hasRNG {
		t.Errorf("terminal room kept entries: lock=%v rng=%v", hasLock, hasRNG)
	}
}

func TestRoomSnapshot(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.roster.addMember(1, unit(10, 1, 200, 12))
	room, err := fx.svc.StartSoloRaid(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}

	snap, err := fx.svc.RoomSnapshot(ctx, room.ID)
	if err != nil {
		t.Fatalf("RoomSnapshot: %v", err)
	}
	if snap.State != string(StateInProgress) {
		t.Errorf("state = %s, want in_progress", snap.State)
	}
	if snap.Raid == nil || snap.Raid.WaveNumber != 1 || snap.Raid.TotalWaves != 3 {
		t.Errorf("raid view wrong: %+v", snap.Raid)
	}
	if len(snap.Participants) != 1 || snap.Participants[0].Name != "member-1" {
		t.Errorf("participants wrong: %+v", snap.Participants)
	}
	if len(snap.Enemies) != 3 { // Deep Fen wave 1: three Mire Crawlers
		t.Errorf("enemies = %d, want 3", len(snap.Enemies))
	}
	if snap.CurrentTurn == nil || snap.CurrentTurn.Actor != string(ActorHero) {
		t.Errorf("current turn wrong: %+v", snap.CurrentTurn)
	}
	if len(snap.Logs) == 0 {
		t.Error("snapshot carries no logs")
	}

	if _, err := fx.svc.RoomSnapshot(ctx, 999); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("unknown room: err = %v, want ErrRoomNotFound", err)
	}
}

func TestParticipantEliminationAndEnemyVictory(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// One fragile hero; the first enemy hit kills it (attack 10, variance
	// floor 0.8 -> at least 8 damage).
	fx.roster.addMember(1, unit(10, 1, 5, 12))
	room, err := fx.svc.StartSoloLegacy(ctx, 1, 101)
	if err != nil {
		t.Fatal(err)
	}
	if err := fx.svc.SubmitDecision(ctx, 1, room.ID, 0); err != nil {
		t.Fatal(err)
	}
	// Enemy turn: kills the hero, eliminates the participant, ends the raid.
	if err := fx.svc.ProcessTick(ctx, room.ID); err != nil {
		t.Fatal(err)
	}

	if n := len(fx.store.logsByAction(room.ID, ActionHeroKilled)); n != 1 {
		t.Errorf("hero_killed logs = %d, want 1", n)
	}
	if n := len(fx.store.logsByAction(room.ID, ActionEnemyAttack)); n != 0 {
		t.Errorf("enemy_attack logs = %d, want 0 on a killing blow", n)
	}
	if n := len(fx.store.logsByAction(room.ID, ActionEliminated)); n != 1 {
		t.Errorf("participant_eliminated logs = %d, want 1", n)
	}
	finishes := fx.store.logsByAction(room.ID, ActionFinish)
	if len(finishes) != 1 || finishes[0].Payload["winner"] != WinnerEnemies {
		t.Fatalf("finish wrong: %+v", finishes)
	}
}
