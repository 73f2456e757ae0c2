package data

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// EnemyPlacement places N copies of one enemy template into a wave.
type EnemyPlacement struct {
	EnemyID       int64   `yaml:"enemy_id"`
	Quantity      int     `yaml:"quantity"`
	LevelModifier float64 `yaml:"level_modifier"`
}

// WaveInfo is one ordered stage of a raid. Wave numbers are 1-indexed.
type WaveInfo struct {
	Number     int              `yaml:"number"`
	Name       string           `yaml:"name"`
	Placements []EnemyPlacement `yaml:"placements"`
}

// RaidInfo is a raid definition: an ordered sequence of waves.
type RaidInfo struct {
	ID         int64      `yaml:"id"`
	Name       string     `yaml:"name"`
	Difficulty int        `yaml:"difficulty"`
	MaxPlayers int        `yaml:"max_players"`
	Waves      []WaveInfo `yaml:"waves"`
}

// Wave returns the wave with the given 1-indexed number, or nil past the end.
func (r *RaidInfo) Wave(number int) *WaveInfo {
	for i := range r.Waves {
		if r.Waves[i].Number == number {
			return &r.Waves[i]
		}
	}
	return nil
}

type raidListFile struct {
	Raids []RaidInfo `yaml:"raids"`
}

// RaidTable holds all raid definitions indexed by ID.
type RaidTable struct {
	raids map[int64]*RaidInfo
	ids   []int64
}

// Get returns the raid definition, or nil if unknown.
func (t *RaidTable) Get(id int64) *RaidInfo {
	return t.raids[id]
}

// IDs returns all raid IDs in file order.
func (t *RaidTable) IDs() []int64 {
	return t.ids
}

// Count returns the number of raid definitions.
func (t *RaidTable) Count() int {
	return len(t.raids)
}

// LoadRaidTable loads raid definitions from a YAML file and validates that
// every placement references a known enemy template.
func LoadRaidTable(path string, enemies *EnemyTable) (*RaidTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read raid_list: %w", err)
	}
	var f raidListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse raid_list: %w", err)
	}
	t := &RaidTable{raids: make(map[int64]*RaidInfo, len(f.Raids))}
	for i := range f.Raids {
		r := &f.Raids[i]
		if _, dup := t.raids[r.ID]; dup {
			return nil, fmt.Errorf("raid_list: duplicate raid id %d", r.ID)
		}
		if r.MaxPlayers <= 0 {
			r.MaxPlayers = 4
		}
		sort.Slice(r.Waves, func(a, b int) bool { return r.Waves[a].Number < r.Waves[b].Number })
		for wi := range r.Waves {
			w := &r.Waves[wi]
			if w.Number != wi+1 {
				return nil, fmt.Errorf("raid_list: raid %d wave numbers must be contiguous from 1, got %d at position %d", r.ID, w.Number, wi)
			}
			for _, p := range w.Placements {
				if enemies.Get(p.EnemyID) == nil {
					return nil, fmt.Errorf("raid_list: raid %d wave %d references unknown enemy %d", r.ID, w.Number, p.EnemyID)
				}
				if p.Quantity <= 0 {
					return nil, fmt.Errorf("raid_list: raid %d wave %d has non-positive quantity for enemy %d", r.ID, w.Number, p.EnemyID)
				}
			}
		}
		t.raids[r.ID] = r
		t.ids = append(t.ids, r.ID)
	}
	return t, nil
}
