package pull

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/runraids/server/internal/config"
	"github.com/runraids/server/internal/data"
)

var (
	ErrBannerNotFound       = errors.New("banner not found")
	ErrBannerInactive       = errors.New("banner is not active")
	ErrInvalidCost          = errors.New("banner has an invalid cost")
	ErrInsufficientCurrency = errors.New("insufficient currency")
	ErrBatchTooLarge        = errors.New("pull count exceeds batch limit")
)

// Store opens the transaction one pull runs in. Everything inside the
// callback commits or rolls back as a unit.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional surface of one pull. LockBalance must hold a
// row lock on the balance until the transaction ends so concurrent
// pulls against the same wallet serialize.
type Tx interface {
	LockBalance(ctx context.Context, memberID int64, resource string) (int64, error)
	AdjustBalance(ctx context.Context, memberID int64, resource string, delta int64) error
	HeroOwned(ctx context.Context, memberID, heroID int64) (bool, error)
	CreateHero(ctx context.Context, memberID, heroID int64, currentHP int32) (int64, error)
	InsertPullLog(ctx context.Context, rec *LogRecord) error
}

// LogRecord is the immutable audit row written for every completed pull.
type LogRecord struct {
	ID           string
	MemberID     int64
	BannerID     int64
	CostResource string
	CostAmount   int64
	Tier         string
	Outcome      string
	HeroID       int64
	Rewards      []GrantedItem
	CreatedAt    time.Time
}

// Pull outcomes recorded in the log and returned to the caller.
const (
	OutcomeHero      = "hero"
	OutcomeDuplicate = "duplicate"
	OutcomeReward    = "reward"
	OutcomeNone      = "none"
)

// GrantedItem is one credited resource amount.
type GrantedItem struct {
	Resource string `json:"resource"`
	Amount   int64  `json:"amount"`
}

// Result is what one pull produced.
type Result struct {
	LogID    string        `json:"log_id"`
	BannerID int64         `json:"banner_id"`
	Tier     string        `json:"tier"`
	Outcome  string        `json:"outcome"`
	HeroID   int64         `json:"hero_id,omitempty"`
	HeroName string        `json:"hero_name,omitempty"`
	Rewards  []GrantedItem `json:"rewards,omitempty"`
	Balance  int64         `json:"balance"`
}

// Formulas is the slice of the scripting engine used to size a freshly
// granted hero's HP.
type Formulas interface {
	LevelFromExp(exp int64) int
	ScaledStat(base int32, level int) int32
}

// Service performs currency-gated pulls. Each pull is atomic: the debit,
// the grant and the log row commit together or not at all.
type Service struct {
	store   Store
	banners *data.BannerTable
	heroes  *data.HeroTable
	calc    Formulas
	cfg     config.PullConfig
	log     *zap.Logger
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewService(store Store, banners *data.BannerTable, heroes *data.HeroTable, calc Formulas, cfg config.PullConfig, log *zap.Logger) *Service {
	return &Service{
		store:   store,
		banners: banners,
		heroes:  heroes,
		calc:    calc,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand overrides the roll source. Test hook.
func (s *Service) SetRand(r *rand.Rand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = r
}

// SetClock overrides the time source. Test hook.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) roll(b *data.BannerInfo) Roll {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RollOnce(b, s.rng)
}

func (s *Service) rollAmount(min, max int64) int64 {
	if max <= min {
		return min
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return min + s.rng.Int63n(max-min+1)
}

// PerformPull runs one pull for the member on the banner. On any
// failure, the insufficient-currency check included, the member's
// balance and roster are untouched.
func (s *Service) PerformPull(ctx context.Context, memberID, bannerID int64) (*Result, error) {
	b := s.banners.Get(bannerID)
	if b == nil {
		return nil, ErrBannerNotFound
	}
	if !b.Active {
		return nil, ErrBannerInactive
	}
	if b.CostAmount <= 0 || b.CostResource == "" {
		return nil, ErrInvalidCost
	}

	var res *Result
	err := s.store.WithTx(ctx, func(tx Tx) error {
		balance, err := tx.LockBalance(ctx, memberID, b.CostResource)
		if err != nil {
			return err
		}
		if balance < b.CostAmount {
			return ErrInsufficientCurrency
		}
		if err := tx.AdjustBalance(ctx, memberID, b.CostResource, -b.CostAmount); err != nil {
			return err
		}
		remaining := balance - b.CostAmount

		roll := s.roll(b)
		rec := &LogRecord{
			ID:           uuid.NewString(),
			MemberID:     memberID,
			BannerID:     b.ID,
			CostResource: b.CostResource,
			CostAmount:   b.CostAmount,
			Tier:         string(roll.Tier),
			CreatedAt:    s.now(),
		}
		res = &Result{
			LogID:    rec.ID,
			BannerID: b.ID,
			Tier:     string(roll.Tier),
			Balance:  remaining,
		}

		if roll.HeroID != 0 {
			tmpl := s.heroes.Get(roll.HeroID)
			if tmpl == nil {
				return ErrBannerNotFound // validated at load time; unreachable in practice
			}
			owned, err := tx.HeroOwned(ctx, memberID, roll.HeroID)
			if err != nil {
				return err
			}
			rec.HeroID = roll.HeroID
			res.HeroID = roll.HeroID
			res.HeroName = tmpl.Name
			if owned {
				// Duplicates grant nothing beyond the log row.
				// TODO: convert duplicates into hero experience.
				rec.Outcome = OutcomeDuplicate
				res.Outcome = OutcomeDuplicate
			} else {
				hp := s.calc.ScaledStat(tmpl.BaseHP, s.calc.LevelFromExp(0))
				if _, err := tx.CreateHero(ctx, memberID, roll.HeroID, hp); err != nil {
					return err
				}
				rec.Outcome = OutcomeHero
				res.Outcome = OutcomeHero
			}
		} else if roll.Option != nil {
			rec.Outcome = OutcomeReward
			res.Outcome = OutcomeReward
			for _, it := range roll.Option.Items {
				amount := s.rollAmount(it.Min, it.Max)
				if amount <= 0 {
					continue
				}
				if err := tx.AdjustBalance(ctx, memberID, it.Resource, amount); err != nil {
					return err
				}
				granted := GrantedItem{Resource: it.Resource, Amount: amount}
				rec.Rewards = append(rec.Rewards, granted)
				res.Rewards = append(res.Rewards, granted)
				if it.Resource == b.CostResource {
					res.Balance += amount
				}
			}
		} else {
			// No pool and no reward option caught the roll. The debit
			// and the audit row still stand.
			rec.Outcome = OutcomeNone
			res.Outcome = OutcomeNone
		}
		return tx.InsertPullLog(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("pull performed",
		zap.Int64("member_id", memberID),
		zap.Int64("banner_id", bannerID),
		zap.String("outcome", res.Outcome))
	return res, nil
}

// PerformPullMulti runs up to the configured batch limit of pulls
// sequentially. Each pull is its own transaction; on failure the
// earlier results stay committed and are returned with the error.
func (s *Service) PerformPullMulti(ctx context.Context, memberID, bannerID int64, count int) ([]*Result, error) {
	if count <= 0 {
		count = 1
	}
	if count > s.cfg.MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	results := make([]*Result, 0, count)
	for i := 0; i < count; i++ {
		res, err := s.PerformPull(ctx, memberID, bannerID)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}
