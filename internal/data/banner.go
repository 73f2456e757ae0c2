package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RewardItem is one resource range inside a reward option. The granted
// amount is rolled uniformly in [Min, Max] per pull.
type RewardItem struct {
	Resource string `yaml:"resource"`
	Min      int64  `yaml:"min"`
	Max      int64  `yaml:"max"`
}

// RewardOption is one alternate-reward bundle on a banner.
type RewardOption struct {
	Name  string       `yaml:"name"`
	Items []RewardItem `yaml:"items"`
}

// BannerInfo is one pull configuration. promo_rate + normal_rate <= 1.0;
// the remainder is the alternate-reward rate.
type BannerInfo struct {
	ID            int64          `yaml:"id"`
	Name          string         `yaml:"name"`
	Active        bool           `yaml:"active"`
	CostResource  string         `yaml:"cost_resource"`
	CostAmount    int64          `yaml:"cost_amount"`
	PromoRate     float64        `yaml:"promo_rate"`
	NormalRate    float64        `yaml:"normal_rate"`
	PromoPool     []int64        `yaml:"promo_pool"`  // hero template IDs
	NormalPool    []int64        `yaml:"normal_pool"` // hero template IDs
	RewardOptions []RewardOption `yaml:"reward_options"`
}

// OtherRate is the probability mass left for alternate rewards.
func (b *BannerInfo) OtherRate() float64 {
	r := 1.0 - (b.PromoRate + b.NormalRate)
	if r < 0 {
		return 0
	}
	return r
}

type bannerListFile struct {
	Banners []BannerInfo `yaml:"banners"`
}

// BannerTable holds all banner configurations indexed by ID.
type BannerTable struct {
	banners map[int64]*BannerInfo
	ids     []int64
}

// Get returns the banner, or nil if unknown.
func (t *BannerTable) Get(id int64) *BannerInfo {
	return t.banners[id]
}

// IDs returns all banner IDs in file order.
func (t *BannerTable) IDs() []int64 {
	return t.ids
}

// Count returns the number of banners.
func (t *BannerTable) Count() int {
	return len(t.banners)
}

// LoadBannerTable loads banner configurations from a YAML file. Rates and
// pool references are validated here so the pull path can trust them.
func LoadBannerTable(path string, heroes *HeroTable) (*BannerTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read banner_list: %w", err)
	}
	var f bannerListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse banner_list: %w", err)
	}
	t := &BannerTable{banners: make(map[int64]*BannerInfo, len(f.Banners))}
	for i := range f.Banners {
		b := &f.Banners[i]
		if _, dup := t.banners[b.ID]; dup {
			return nil, fmt.Errorf("banner_list: duplicate banner id %d", b.ID)
		}
		if err := validateBanner(b, heroes); err != nil {
			return nil, fmt.Errorf("banner_list: banner %d: %w", b.ID, err)
		}
		t.banners[b.ID] = b
		t.ids = append(t.ids, b.ID)
	}
	return t, nil
}

func validateBanner(b *BannerInfo, heroes *HeroTable) error {
	if b.PromoRate < 0 || b.NormalRate < 0 {
		return fmt.Errorf("negative rate")
	}
	if b.PromoRate+b.NormalRate > 1.0 {
		return fmt.Errorf("promo_rate+normal_rate = %.3f exceeds 1.0", b.PromoRate+b.NormalRate)
	}
	for _, id := range b.PromoPool {
		if heroes.Get(id) == nil {
			return fmt.Errorf("promo pool references unknown hero %d", id)
		}
	}
	for _, id := range b.NormalPool {
		if heroes.Get(id) == nil {
			return fmt.Errorf("normal pool references unknown hero %d", id)
		}
	}
	for _, opt := range b.RewardOptions {
		for _, it := range opt.Items {
			if it.Resource == "" {
				return fmt.Errorf("reward option %q has an item without a resource", opt.Name)
			}
			if it.Min < 0 || it.Max < it.Min {
				return fmt.Errorf("reward option %q has invalid range [%d,%d]", opt.Name, it.Min, it.Max)
			}
		}
	}
	return nil
}
