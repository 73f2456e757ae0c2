package raid

import (
	"context"
	"sort"

	"github.com/runraids/server/internal/roster"
)

// turnEntry is one candidate slot while the order is being built.
type turnEntry struct {
	actor ActorRef
	speed int32
}

// buildTurnOrder recomputes the room's whole turn order: every living
// hero of every participant (each team member individually, scaled speed)
// plus every living enemy instance, sorted by descending speed. Ties keep
// discovery order (participants first, then enemies), so the result is
// deterministic for a fixed room composition. The previous turn set is
// dropped entirely; per-turn history stays in the decision log.
func (s *Service) buildTurnOrder(ctx context.Context, room *Room) error {
	parts, err := s.store.Participants(ctx, room.ID)
	if err != nil {
		return err
	}

	var entries []turnEntry
	for _, p := range parts {
		units, err := s.roster.TeamUnits(ctx, p.MemberID)
		if err != nil {
			if err == roster.ErrNoTeam {
				continue
			}
			return err
		}
		for _, u := range units {
			if !u.Alive() {
				continue
			}
			entries = append(entries, turnEntry{
				actor: ActorRef{Type: ActorHero, HeroID: u.PlayerHeroID, MemberID: p.MemberID},
				speed: u.Speed,
			})
		}
	}

	enemies, err := s.store.Enemies(ctx, room.ID)
	if err != nil {
		return err
	}
	for _, e := range enemies {
		if !e.Alive {
			continue
		}
		entries = append(entries, turnEntry{
			actor: ActorRef{Type: ActorEnemy, EnemyID: e.ID},
			speed: e.Speed,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].speed > entries[j].speed
	})

	turns := make([]*Turn, len(entries))
	for i, entry := range entries {
		turns[i] = &Turn{
			RoomID: room.ID,
			Index:  i,
			Actor:  entry.actor,
		}
	}
	return s.store.ReplaceTurns(ctx, room.ID, turns)
}
