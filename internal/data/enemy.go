package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnemyInfo is one enemy template. Wave placements reference these by ID
// and scale hp/speed by a per-wave level modifier at spawn time.
type EnemyInfo struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Level       int32  `yaml:"level"`
	BaseHP      int32  `yaml:"base_hp"`
	Attack      int32  `yaml:"attack"`
	Defense     int32  `yaml:"defense"`
	Speed       int32  `yaml:"speed"`
}

type enemyListFile struct {
	Enemies []EnemyInfo `yaml:"enemies"`
}

// EnemyTable holds all enemy templates indexed by ID.
type EnemyTable struct {
	enemies map[int64]*EnemyInfo
	ids     []int64
}

// Get returns the enemy template, or nil if unknown.
func (t *EnemyTable) Get(id int64) *EnemyInfo {
	return t.enemies[id]
}

// IDs returns all template IDs in file order.
func (t *EnemyTable) IDs() []int64 {
	return t.ids
}

// Count returns the number of enemy templates.
func (t *EnemyTable) Count() int {
	return len(t.enemies)
}

// LoadEnemyTable loads enemy templates from a YAML file.
func LoadEnemyTable(path string) (*EnemyTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read enemy_list: %w", err)
	}
	var f enemyListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse enemy_list: %w", err)
	}
	t := &EnemyTable{enemies: make(map[int64]*EnemyInfo, len(f.Enemies))}
	for i := range f.Enemies {
		e := &f.Enemies[i]
		if _, dup := t.enemies[e.ID]; dup {
			return nil, fmt.Errorf("enemy_list: duplicate enemy id %d", e.ID)
		}
		t.enemies[e.ID] = e
		t.ids = append(t.ids, e.ID)
	}
	return t, nil
}
