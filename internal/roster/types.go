package roster

import "time"

// Member is a player identity. Never deleted by the core.
type Member struct {
	ID        int64
	Name      string
	Email     string
	CreatedAt time.Time
}

// PlayerHero is one owned instance of a hero template. Level is derived
// from Experience on read, never stored. CurrentHP persists across raids.
type PlayerHero struct {
	ID         int64
	MemberID   int64
	HeroID     int64
	CurrentHP  int32
	Experience int64
}

// Team is an ordered set of up to 4 distinct-base-hero slots. At most one
// team per member is active at a time.
type Team struct {
	ID      int64
	OwnerID int64
	Name    string
	Active  bool
}

// TeamSlot binds one owned hero into a team at a position.
type TeamSlot struct {
	ID           int64
	TeamID       int64
	PlayerHeroID int64
	Position     int
}

// HeroUnit is the combat-facing view of one owned hero: stats scaled to
// the derived (and capped) level. The raid engine consumes these.
type HeroUnit struct {
	PlayerHeroID int64
	OwnerID      int64
	HeroID       int64
	Name         string
	Level        int
	CurrentHP    int32
	MaxHP        int32
	AtkPhys      int32
	AtkMag       int32
	Speed        int32
}

// Alive reports whether the unit can still act.
func (u *HeroUnit) Alive() bool {
	return u.CurrentHP > 0
}

const (
	// MaxTeamSlots is the hard cap on team size.
	MaxTeamSlots = 4
	// DefaultLevelCap applies to members without an HQ building.
	DefaultLevelCap = 10
)
