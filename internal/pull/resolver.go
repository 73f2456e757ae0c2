package pull

import (
	"math/rand"

	"github.com/runraids/server/internal/data"
)

// Tier is the probability band a single roll landed in.
type Tier string

const (
	TierPromo  Tier = "promo"
	TierNormal Tier = "normal"
	TierOther  Tier = "other"
)

// Roll is the raw outcome of one banner roll, before ownership checks
// and grants are applied.
type Roll struct {
	Tier   Tier
	HeroID int64              // set for promo/normal rolls
	Option *data.RewardOption // set for other rolls, nil when the banner has none
}

// RollOnce resolves one roll against a banner. Band selection uses a
// single uniform sample against [0, promo) / [promo, promo+normal) /
// the remainder. An empty pool falls through to the next band, so a
// promo hit on a banner with no promo heroes degrades to a normal roll,
// and a banner with no hero pools at all always yields alternate
// rewards.
func RollOnce(b *data.BannerInfo, rng *rand.Rand) Roll {
	x := rng.Float64()
	if x < b.PromoRate && len(b.PromoPool) > 0 {
		return Roll{Tier: TierPromo, HeroID: b.PromoPool[rng.Intn(len(b.PromoPool))]}
	}
	if x < b.PromoRate+b.NormalRate && len(b.NormalPool) > 0 {
		return Roll{Tier: TierNormal, HeroID: b.NormalPool[rng.Intn(len(b.NormalPool))]}
	}
	if len(b.RewardOptions) > 0 {
		return Roll{Tier: TierOther, Option: &b.RewardOptions[rng.Intn(len(b.RewardOptions))]}
	}
	return Roll{Tier: TierOther}
}
