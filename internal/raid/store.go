package raid

import (
	"context"

	"github.com/runraids/server/internal/roster"
)

// Store is the persistence boundary for room state. The PostgreSQL
// implementation lives in internal/persist; tests use an in-memory fake.
// Writes for one room are serialized by the service's per-room lock, so
// implementations need no cross-row transaction here.
type Store interface {
	CreateRoom(ctx context.Context, room *Room) error
	RoomByID(ctx context.Context, id int64) (*Room, error)
	SaveRoom(ctx context.Context, room *Room) error
	// OldestWaitingRoom returns the oldest waiting room for the raid
	// definition that still has free capacity, or nil.
	OldestWaitingRoom(ctx context.Context, raidID int64) (*Room, error)

	Participants(ctx context.Context, roomID int64) ([]*Participant, error)
	ParticipantByMember(ctx context.Context, roomID, memberID int64) (*Participant, error)
	AddParticipant(ctx context.Context, p *Participant) error
	SaveParticipant(ctx context.Context, p *Participant) error

	Enemies(ctx context.Context, roomID int64) ([]*EnemyUnit, error)
	DeleteEnemies(ctx context.Context, roomID int64) error
	AddEnemy(ctx context.Context, e *EnemyUnit) error
	SaveEnemy(ctx context.Context, e *EnemyUnit) error

	// ReplaceTurns deletes every turn record of the room (resolved ones
	// included) and inserts the new set.
	ReplaceTurns(ctx context.Context, roomID int64, turns []*Turn) error
	// CurrentTurn returns the lowest-index unresolved turn, or nil.
	CurrentTurn(ctx context.Context, roomID int64) (*Turn, error)
	SaveTurn(ctx context.Context, t *Turn) error

	AppendLog(ctx context.Context, e *LogEntry) error
	// RecentLogs returns the newest `limit` entries in chronological order.
	RecentLogs(ctx context.Context, roomID int64, limit int) ([]*LogEntry, error)
}

// Roster is the slice of the roster service the engine needs: combat
// views of active teams and persisted hero HP writes.
type Roster interface {
	TeamUnits(ctx context.Context, memberID int64) ([]*roster.HeroUnit, error)
	SetHeroHP(ctx context.Context, playerHeroID int64, hp int32) error
	MemberByID(ctx context.Context, id int64) (*roster.Member, error)
}

// Formulas is the slice of the scripting engine the combat resolver needs.
type Formulas interface {
	HeroAttackDamage(atkPhys, atkMag int32) int32
	EnemyAttackDamage(attack int32, variance float64) int32
}
