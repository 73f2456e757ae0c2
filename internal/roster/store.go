package roster

import "context"

// Store is the persistence boundary for roster data. The PostgreSQL
// implementation lives in internal/persist; tests use an in-memory fake.
type Store interface {
	CreateMember(ctx context.Context, name, email, passwordHash string) (*Member, error)
	MemberByID(ctx context.Context, id int64) (*Member, error)

	HeroesByMember(ctx context.Context, memberID int64) ([]*PlayerHero, error)
	HeroByID(ctx context.Context, id int64) (*PlayerHero, error)
	SaveHeroHP(ctx context.Context, id int64, hp int32) error

	// HQLevel returns the member's headquarters building level, 0 if the
	// member has none.
	HQLevel(ctx context.Context, memberID int64) (int, error)

	ActiveTeam(ctx context.Context, memberID int64) (*Team, error)
	TeamByID(ctx context.Context, id int64) (*Team, error)
	CreateTeam(ctx context.Context, ownerID int64, name string, active bool) (*Team, error)
	SetTeamActive(ctx context.Context, teamID int64, active bool) error
	TeamSlots(ctx context.Context, teamID int64) ([]*TeamSlot, error)
	AddTeamSlot(ctx context.Context, teamID, playerHeroID int64, position int) (*TeamSlot, error)
	RemoveTeamSlot(ctx context.Context, teamID, playerHeroID int64) error
}
