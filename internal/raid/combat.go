package raid

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/runraids/server/internal/roster"
)

// livingTarget pairs a living hero with its participant row.
type livingTarget struct {
	participant *Participant
	unit        *roster.HeroUnit
}

// collectLivingTargets gathers every living hero across all participants'
// teams, in participant order. Any living hero is a valid enemy target,
// not just the nominal participant of the current turn.
func (s *Service) collectLivingTargets(ctx context.Context, room *Room) ([]livingTarget, error) {
	parts, err := s.store.Participants(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	var targets []livingTarget
	for _, p := range parts {
		units, err := s.roster.TeamUnits(ctx, p.MemberID)
		if errors.Is(err, roster.ErrNoTeam) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, u := range units {
			if u.Alive() {
				targets = append(targets, livingTarget{participant: p, unit: u})
			}
		}
	}
	return targets, nil
}

// resolveEnemyTurn executes one enemy turn: a dead enemy's turn resolves
// as a logged skip; a living one attacks a uniformly random living hero.
func (s *Service) resolveEnemyTurn(ctx context.Context, room *Room, turn *Turn) error {
	enemies, err := s.store.Enemies(ctx, room.ID)
	if err != nil {
		return err
	}
	var enemy *EnemyUnit
	for _, e := range enemies {
		if e.ID == turn.Actor.EnemyID {
			enemy = e
			break
		}
	}
	if enemy == nil || !enemy.Alive {
		turn.Resolved = true
		if err := s.store.SaveTurn(ctx, turn); err != nil {
			return err
		}
		s.appendLog(ctx, room, turn.Index, 0, "system", ActionSkipDeadEnemy, map[string]any{
			"reason":   "enemy_dead",
			"enemy_id": turn.Actor.EnemyID,
		})
		return nil
	}

	targets, err := s.collectLivingTargets(ctx, room)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return s.finishRoom(ctx, room, WinnerEnemies)
	}

	tmpl := s.enemies.Get(enemy.EnemyID)
	enemyName := "enemy"
	var attack int32 = 10
	if tmpl != nil {
		enemyName = tmpl.Name
		attack = tmpl.Attack
	}

	rng := s.rng(room)
	target := targets[rng.Intn(len(targets))]
	variance := 0.8 + rng.Float64()*0.4
	dmg := s.calc.EnemyAttackDamage(attack, variance)

	oldHP := target.unit.CurrentHP
	newHP := oldHP - dmg
	if newHP < 0 {
		newHP = 0
	}
	if err := s.roster.SetHeroHP(ctx, target.unit.PlayerHeroID, newHP); err != nil {
		return err
	}
	target.unit.CurrentHP = newHP

	// Kill and attack logs are mutually exclusive for one turn.
	if newHP == 0 {
		s.appendLog(ctx, room, turn.Index, 0, enemyName, ActionHeroKilled, map[string]any{
			"target_member_id": target.participant.MemberID,
			"target_hero":      target.unit.Name,
			"dmg":              dmg,
			"old_hp":           oldHP,
		})
		if err := s.eliminateIfWiped(ctx, room, turn, target.participant, enemyName); err != nil {
			return err
		}
	} else {
		s.appendLog(ctx, room, turn.Index, 0, enemyName, ActionEnemyAttack, map[string]any{
			"target_member_id": target.participant.MemberID,
			"target_hero":      target.unit.Name,
			"dmg":              dmg,
			"remaining_hp":     newHP,
		})
	}

	turn.Resolved = true
	if err := s.store.SaveTurn(ctx, turn); err != nil {
		return err
	}

	parts, err := s.store.Participants(ctx, room.ID)
	if err != nil {
		return err
	}
	if !anyAlive(parts) {
		return s.finishRoom(ctx, room, WinnerEnemies)
	}
	return nil
}

// eliminateIfWiped flips the participant to dead when its last living
// hero just fell.
func (s *Service) eliminateIfWiped(ctx context.Context, room *Room, turn *Turn, p *Participant, actor string) error {
	units, err := s.livingUnits(ctx, p.MemberID)
	if err != nil && !errors.Is(err, roster.ErrNoTeam) {
		return err
	}
	if len(units) > 0 || !p.Alive {
		return nil
	}
	p.Alive = false
	if err := s.store.SaveParticipant(ctx, p); err != nil {
		return err
	}
	s.appendLog(ctx, room, turn.Index, 0, actor, ActionEliminated, map[string]any{
		"member_id": p.MemberID,
		"reason":    "all_heroes_dead",
	})
	s.log.Info("participant eliminated", zap.Int64("room_id", room.ID), zap.Int64("member_id", p.MemberID))
	return nil
}

// maybeSkipDeadHero resolves a hero turn only when the scheduled hero is
// dead. A living hero's turn stays unresolved until the player acts;
// there is no decision timeout.
func (s *Service) maybeSkipDeadHero(ctx context.Context, room *Room, turn *Turn) error {
	units, err := s.roster.TeamUnits(ctx, turn.Actor.MemberID)
	if errors.Is(err, roster.ErrNoTeam) {
		units = nil
	} else if err != nil {
		return err
	}
	for _, u := range units {
		if u.PlayerHeroID == turn.Actor.HeroID && u.Alive() {
			return nil // waiting for the player's decision
		}
	}
	turn.Resolved = true
	if err := s.store.SaveTurn(ctx, turn); err != nil {
		return err
	}
	s.appendLog(ctx, room, turn.Index, turn.Actor.MemberID, "system", ActionSkipDead, map[string]any{
		"reason":  "hero_dead",
		"hero_id": turn.Actor.HeroID,
	})
	return nil
}

// SubmitDecision resolves the current hero turn with the acting player's
// chosen target. The validation ladder mutates nothing on failure.
func (s *Service) SubmitDecision(ctx context.Context, memberID, roomID, targetEnemyID int64) error {
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
	if room.State != StateInProgress {
		return ErrRaidNotInProgress
	}
	part, err := s.store.ParticipantByMember(ctx, roomID, memberID)
	if err != nil {
		return err
	}
	if part == nil {
		return ErrNotParticipant
	}
	turn, err := s.store.CurrentTurn(ctx, roomID)
	if err != nil {
		return err
	}
	if turn == nil || turn.Actor.Type != ActorHero {
		return ErrNotHeroTurn
	}
	if turn.Actor.MemberID != memberID {
		return ErrWrongTurn
	}

	units, err := s.roster.TeamUnits(ctx, memberID)
	if err != nil && !errors.Is(err, roster.ErrNoTeam) {
		return err
	}
	var attacker *roster.HeroUnit
	for _, u := range units {
		if u.PlayerHeroID == turn.Actor.HeroID {
			attacker = u
			break
		}
	}
	if attacker == nil || !attacker.Alive() {
		return ErrActorDead
	}

	enemies, err := s.store.Enemies(ctx, roomID)
	if err != nil {
		return err
	}
	var target *EnemyUnit
	for _, e := range enemies {
		if !e.Alive {
			continue
		}
		if targetEnemyID == 0 || e.ID == targetEnemyID {
			target = e
			break
		}
	}
	if target == nil {
		return ErrNoLivingEnemy
	}

	dmg := s.calc.HeroAttackDamage(attacker.AtkPhys, attacker.AtkMag)
	target.CurrentHP -= dmg
	if target.CurrentHP <= 0 {
		target.CurrentHP = 0
		target.Alive = false
	}
	if err := s.store.SaveEnemy(ctx, target); err != nil {
		return err
	}

	s.appendLog(ctx, room, turn.Index, memberID, attacker.Name, ActionHeroAttack, map[string]any{
		"enemy_id":           target.ID,
		"dmg":                dmg,
		"hero_id":            attacker.PlayerHeroID,
		"enemy_remaining_hp": target.CurrentHP,
	})

	turn.Resolved = true
	if err := s.store.SaveTurn(ctx, turn); err != nil {
		return err
	}

	if room.RaidID != 0 {
		return s.checkWaveCompletion(ctx, room)
	}
	remaining, err := s.store.Enemies(ctx, roomID)
	if err != nil {
		return err
	}
	if !anyEnemyAlive(remaining) {
		return s.finishRoom(ctx, room, WinnerHeroes)
	}
	return nil
}
