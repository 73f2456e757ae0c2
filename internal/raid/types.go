package raid

import "time"

// RoomState is the lifecycle state of a raid room.
type RoomState string

const (
	StateWaiting    RoomState = "waiting"
	StateReady      RoomState = "ready"
	StateInProgress RoomState = "in_progress"
	StateFinished   RoomState = "finished"
)

// Winner values written to the finish log entry.
const (
	WinnerHeroes  = "heroes"
	WinnerEnemies = "enemies"
	WinnerTimeout = "timeout"
)

// Decision-log action types.
const (
	ActionJoin          = "join"
	ActionStart         = "start"
	ActionAutoReady     = "auto_ready"
	ActionAutoStart     = "auto_start"
	ActionWaveStart     = "wave_start"
	ActionHeroAttack    = "hero_attack"
	ActionEnemyAttack   = "enemy_attack"
	ActionHeroKilled    = "hero_killed"
	ActionEliminated    = "participant_eliminated"
	ActionSkipDead      = "skip_dead"
	ActionSkipDeadEnemy = "skip_dead_enemy"
	ActionFinish        = "finish"
)

// Room is one raid attempt. RaidID == 0 marks a legacy single-enemy room;
// those bypass the wave spawner and use the shorter expiry.
type Room struct {
	ID         int64
	Name       string
	OwnerID    int64
	RaidID     int64 // raid definition, 0 for legacy rooms
	EnemyID    int64 // legacy rooms: the chosen enemy template
	State      RoomState
	WaveIndex  int
	Closed     bool
	MaxPlayers int
	RandomSeed int64
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	LastTickAt time.Time
}

// Participant is a member's membership in one room. Alive flips to false
// only when every hero of the member's team has reached 0 HP.
type Participant struct {
	ID       int64
	RoomID   int64
	MemberID int64
	Alive    bool
	Ready    bool
	Color    int // display color 1..4, assigned by join order
}

// EnemyUnit is a live enemy instance in the current wave. Instances are
// discarded, never reused, when the wave clears.
type EnemyUnit struct {
	ID        int64
	RoomID    int64
	EnemyID   int64 // enemy template
	CurrentHP int32
	MaxHP     int32
	Speed     int32
	Alive     bool
}

// ActorType discriminates the turn actor union.
type ActorType string

const (
	ActorHero  ActorType = "hero"
	ActorEnemy ActorType = "enemy"
)

// ActorRef is a tagged reference to either a specific owned hero or an
// enemy instance, never both.
type ActorRef struct {
	Type     ActorType
	HeroID   int64 // player hero, set when Type == ActorHero
	MemberID int64 // owner of the hero, set when Type == ActorHero
	EnemyID  int64 // enemy instance, set when Type == ActorEnemy
}

// Turn is one slot in the room's current turn order. The whole unresolved
// set is replaced on every rebuild; history lives in the decision log.
type Turn struct {
	ID       int64
	RoomID   int64
	Index    int
	Actor    ActorRef
	Resolved bool
}

// LogEntry is one append-only decision-log record. TurnIndex is -1 for
// entries not tied to a turn; MemberID is 0 for system entries.
type LogEntry struct {
	ID        int64
	RoomID    int64
	TurnIndex int
	MemberID  int64
	Actor     string
	Action    string
	Payload   map[string]any
	CreatedAt time.Time
}
