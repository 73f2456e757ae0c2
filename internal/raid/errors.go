package raid

import "errors"

// Validation and not-found failures reported synchronously to the caller.
// None of them leave any state mutated.
var (
	ErrRaidNotFound      = errors.New("raid definition not found")
	ErrEnemyNotFound     = errors.New("enemy template not found")
	ErrRoomNotFound      = errors.New("room not found")
	ErrNoTeam            = errors.New("no active team available")
	ErrAllHeroesDead     = errors.New("all team heroes are dead")
	ErrNotOwner          = errors.New("only the room owner can start the raid")
	ErrRoomNotStartable  = errors.New("room is not in a startable state")
	ErrRaidNotInProgress = errors.New("raid is not in progress")
	ErrNotParticipant    = errors.New("member is not a participant of this room")
	ErrNotHeroTurn       = errors.New("current turn is not a hero turn")
	ErrWrongTurn         = errors.New("scheduled hero belongs to another member")
	ErrActorDead         = errors.New("scheduled hero is dead")
	ErrNoLivingEnemy     = errors.New("no living enemy to target")
)
