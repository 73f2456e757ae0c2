package roster

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/runraids/server/internal/data"
)

var (
	ErrMemberNotFound = errors.New("member not found")
	ErrHeroNotFound   = errors.New("hero not found")
	ErrTeamNotFound   = errors.New("team not found")
	ErrNoTeam         = errors.New("no active team")
	ErrTeamFull       = errors.New("team is full")
	ErrDuplicateHero  = errors.New("base hero already in team")
)

// Formulas is the slice of the scripting engine the roster needs.
type Formulas interface {
	LevelFromExp(exp int64) int
	ScaledStat(base int32, level int) int32
}

// Service owns member, hero and team operations, and derives combat stats
// from hero templates plus the formula engine.
type Service struct {
	store  Store
	heroes *data.HeroTable
	calc   Formulas
	log    *zap.Logger
}

func NewService(store Store, heroes *data.HeroTable, calc Formulas, log *zap.Logger) *Service {
	return &Service{store: store, heroes: heroes, calc: calc, log: log}
}

// Register creates a member with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Member, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	m, err := s.store.CreateMember(ctx, name, email, string(hash))
	if err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}
	s.log.Info("member registered", zap.Int64("member_id", m.ID), zap.String("name", m.Name))
	return m, nil
}

// MemberByID looks up a member. Nil result with nil error means unknown.
func (s *Service) MemberByID(ctx context.Context, id int64) (*Member, error) {
	return s.store.MemberByID(ctx, id)
}

// Heroes returns every hero the member owns.
func (s *Service) Heroes(ctx context.Context, memberID int64) ([]*PlayerHero, error) {
	return s.store.HeroesByMember(ctx, memberID)
}

// LevelCap is derived from the member's HQ building: level*5+5, or the
// default cap without one. Composed with LevelFromExp at the call site so
// level is never stored.
func (s *Service) LevelCap(ctx context.Context, memberID int64) (int, error) {
	hq, err := s.store.HQLevel(ctx, memberID)
	if err != nil {
		return 0, err
	}
	if hq <= 0 {
		return DefaultLevelCap, nil
	}
	return hq*5 + 5, nil
}

// Level derives the effective level of an owned hero.
func (s *Service) Level(ctx context.Context, ph *PlayerHero) (int, error) {
	cap, err := s.LevelCap(ctx, ph.MemberID)
	if err != nil {
		return 0, err
	}
	lvl := s.calc.LevelFromExp(ph.Experience)
	if lvl > cap {
		lvl = cap
	}
	return lvl, nil
}

// Unit builds the combat view of one owned hero.
func (s *Service) Unit(ctx context.Context, ph *PlayerHero) (*HeroUnit, error) {
	tmpl := s.heroes.Get(ph.HeroID)
	if tmpl == nil {
		return nil, fmt.Errorf("player hero %d: unknown hero template %d", ph.ID, ph.HeroID)
	}
	lvl, err := s.Level(ctx, ph)
	if err != nil {
		return nil, err
	}
	return &HeroUnit{
		PlayerHeroID: ph.ID,
		OwnerID:      ph.MemberID,
		HeroID:       ph.HeroID,
		Name:         tmpl.Name,
		Level:        lvl,
		CurrentHP:    ph.CurrentHP,
		MaxHP:        s.calc.ScaledStat(tmpl.BaseHP, lvl),
		AtkPhys:      s.calc.ScaledStat(tmpl.BaseAtkPhys, lvl),
		AtkMag:       s.calc.ScaledStat(tmpl.BaseAtkMag, lvl),
		Speed:        s.calc.ScaledStat(tmpl.BaseSpeed, lvl),
	}, nil
}

// TeamUnits returns the active team of a member as combat units in slot
// order. ErrNoTeam if the member has no active team.
func (s *Service) TeamUnits(ctx context.Context, memberID int64) ([]*HeroUnit, error) {
	team, err := s.store.ActiveTeam(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, ErrNoTeam
	}
	slots, err := s.store.TeamSlots(ctx, team.ID)
	if err != nil {
		return nil, err
	}
	units := make([]*HeroUnit, 0, len(slots))
	for _, slot := range slots {
		ph, err := s.store.HeroByID(ctx, slot.PlayerHeroID)
		if err != nil {
			return nil, err
		}
		if ph == nil {
			continue // slot references a removed hero; skip rather than fail the raid
		}
		u, err := s.Unit(ctx, ph)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return units, nil
}

// SetHeroHP persists a new current HP for an owned hero, floored at zero.
func (s *Service) SetHeroHP(ctx context.Context, playerHeroID int64, hp int32) error {
	if hp < 0 {
		hp = 0
	}
	return s.store.SaveHeroHP(ctx, playerHeroID, hp)
}

// CreateTeam returns the member's active team, creating one if absent.
func (s *Service) CreateTeam(ctx context.Context, memberID int64, name string) (*Team, error) {
	team, err := s.store.ActiveTeam(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if team != nil {
		return team, nil
	}
	if name == "" {
		name = "Team"
	}
	return s.store.CreateTeam(ctx, memberID, name, true)
}

// ActivateTeam makes the given team the member's single active team.
// The previous active team is deactivated first so the one-active-team
// invariant holds at every point.
func (s *Service) ActivateTeam(ctx context.Context, memberID, teamID int64) error {
	team, err := s.store.TeamByID(ctx, teamID)
	if err != nil {
		return err
	}
	if team == nil || team.OwnerID != memberID {
		return ErrTeamNotFound
	}
	if team.Active {
		return nil
	}
	current, err := s.store.ActiveTeam(ctx, memberID)
	if err != nil {
		return err
	}
	if current != nil {
		if err := s.store.SetTeamActive(ctx, current.ID, false); err != nil {
			return err
		}
	}
	return s.store.SetTeamActive(ctx, teamID, true)
}

// AddToTeam appends an owned hero to the member's active team.
func (s *Service) AddToTeam(ctx context.Context, memberID, playerHeroID int64) (*TeamSlot, error) {
	ph, err := s.store.HeroByID(ctx, playerHeroID)
	if err != nil {
		return nil, err
	}
	if ph == nil || ph.MemberID != memberID {
		return nil, ErrHeroNotFound
	}
	team, err := s.CreateTeam(ctx, memberID, "")
	if err != nil {
		return nil, err
	}
	slots, err := s.store.TeamSlots(ctx, team.ID)
	if err != nil {
		return nil, err
	}
	if len(slots) >= MaxTeamSlots {
		return nil, ErrTeamFull
	}
	maxPos := 0
	for _, slot := range slots {
		other, err := s.store.HeroByID(ctx, slot.PlayerHeroID)
		if err != nil {
			return nil, err
		}
		if other != nil && other.HeroID == ph.HeroID {
			return nil, ErrDuplicateHero
		}
		if slot.Position > maxPos {
			maxPos = slot.Position
		}
	}
	return s.store.AddTeamSlot(ctx, team.ID, playerHeroID, maxPos+1)
}

// RemoveFromTeam drops an owned hero from the member's active team.
// No-op if the member has no team or the hero is not slotted.
func (s *Service) RemoveFromTeam(ctx context.Context, memberID, playerHeroID int64) error {
	team, err := s.store.ActiveTeam(ctx, memberID)
	if err != nil {
		return err
	}
	if team == nil {
		return nil
	}
	return s.store.RemoveTeamSlot(ctx, team.ID, playerHeroID)
}

// HealHero sets one owned hero's HP to its scaled maximum.
func (s *Service) HealHero(ctx context.Context, memberID, playerHeroID int64) (*HeroUnit, error) {
	ph, err := s.store.HeroByID(ctx, playerHeroID)
	if err != nil {
		return nil, err
	}
	if ph == nil || ph.MemberID != memberID {
		return nil, ErrHeroNotFound
	}
	u, err := s.Unit(ctx, ph)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveHeroHP(ctx, ph.ID, u.MaxHP); err != nil {
		return nil, err
	}
	u.CurrentHP = u.MaxHP
	return u, nil
}

// HealAllHeroes heals every hero the member owns. Returns how many were
// actually below max and got healed.
func (s *Service) HealAllHeroes(ctx context.Context, memberID int64) (int, error) {
	heroes, err := s.store.HeroesByMember(ctx, memberID)
	if err != nil {
		return 0, err
	}
	healed := 0
	for _, ph := range heroes {
		u, err := s.Unit(ctx, ph)
		if err != nil {
			return healed, err
		}
		if ph.CurrentHP < u.MaxHP {
			if err := s.store.SaveHeroHP(ctx, ph.ID, u.MaxHP); err != nil {
				return healed, err
			}
			healed++
		}
	}
	return healed, nil
}
