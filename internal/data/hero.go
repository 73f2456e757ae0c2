package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// HeroInfo is one hero template. Owned hero instances reference these by ID;
// live stats are scaled from the base values by the derived level.
type HeroInfo struct {
	ID          int64  `yaml:"id"`
	Name        string `yaml:"name"`
	Rarity      string `yaml:"rarity"` // common, rare, epic, legendary
	Description string `yaml:"description"`
	BaseHP      int32  `yaml:"base_hp"`
	BaseAtkPhys int32  `yaml:"base_atk_phys"`
	BaseAtkMag  int32  `yaml:"base_atk_mag"`
	BaseSpeed   int32  `yaml:"base_speed"`
}

type heroListFile struct {
	Heroes []HeroInfo `yaml:"heroes"`
}

// HeroTable holds all hero templates indexed by ID.
type HeroTable struct {
	heroes map[int64]*HeroInfo
	ids    []int64 // load order, for deterministic iteration
}

// Get returns the hero template, or nil if unknown.
func (t *HeroTable) Get(id int64) *HeroInfo {
	return t.heroes[id]
}

// IDs returns all template IDs in file order.
func (t *HeroTable) IDs() []int64 {
	return t.ids
}

// Count returns the number of hero templates.
func (t *HeroTable) Count() int {
	return len(t.heroes)
}

// LoadHeroTable loads hero templates from a YAML file.
func LoadHeroTable(path string) (*HeroTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hero_list: %w", err)
	}
	var f heroListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse hero_list: %w", err)
	}
	t := &HeroTable{heroes: make(map[int64]*HeroInfo, len(f.Heroes))}
	for i := range f.Heroes {
		h := &f.Heroes[i]
		if _, dup := t.heroes[h.ID]; dup {
			return nil, fmt.Errorf("hero_list: duplicate hero id %d", h.ID)
		}
		t.heroes[h.ID] = h
		t.ids = append(t.ids, h.ID)
	}
	return t, nil
}
