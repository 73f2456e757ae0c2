package raid

import "context"

// spawnWave materializes enemy instances for the wave at wave_index+1
// (wave numbers are 1-indexed). When no such wave exists the raid is
// complete: the room finishes with winner=heroes and spawnWave reports
// finished=true. Legacy rooms never reach this code.
func (s *Service) spawnWave(ctx context.Context, room *Room) (finished bool, err error) {
	def := s.raids.Get(room.RaidID)
	if def == nil {
		return false, ErrRaidNotFound
	}
	wave := def.Wave(room.WaveIndex + 1)
	if wave == nil {
		if err := s.finishRoom(ctx, room, WinnerHeroes); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := s.store.DeleteEnemies(ctx, room.ID); err != nil {
		return false, err
	}
	for _, placement := range wave.Placements {
		tmpl := s.enemies.Get(placement.EnemyID)
		if tmpl == nil {
			return false, ErrEnemyNotFound
		}
		hp := int32(float64(tmpl.BaseHP) * placement.LevelModifier)
		speed := int32(float64(tmpl.Speed) * placement.LevelModifier)
		for i := 0; i < placement.Quantity; i++ {
			e := &EnemyUnit{
				RoomID:    room.ID,
				EnemyID:   tmpl.ID,
				CurrentHP: hp,
				MaxHP:     hp,
				Speed:     speed,
				Alive:     true,
			}
			if err := s.store.AddEnemy(ctx, e); err != nil {
				return false, err
			}
		}
	}
	s.appendLog(ctx, room, -1, 0, "", ActionWaveStart, map[string]any{
		"wave_number": wave.Number,
		"wave_name":   wave.Name,
	})
	return false, nil
}

// checkWaveCompletion advances past a cleared wave: bump wave_index
// (it never decreases), spawn the next wave or finish, and rebuild the
// turn order for the fresh enemies.
func (s *Service) checkWaveCompletion(ctx context.Context, room *Room) error {
	if room.RaidID == 0 {
		return nil
	}
	enemies, err := s.store.Enemies(ctx, room.ID)
	if err != nil {
		return err
	}
	if anyEnemyAlive(enemies) {
		return nil
	}

	room.WaveIndex++
	if err := s.store.SaveRoom(ctx, room); err != nil {
		return err
	}

	finished, err := s.spawnWave(ctx, room)
	if err != nil {
		return err
	}
	if finished {
		return nil
	}
	return s.buildTurnOrder(ctx, room)
}
