package engine

import (
	"fmt"

	"github.com/fadai88/grid-trading-crypto/internal/model"

	"github.com/shopspring/decimal"
)

func level(idx int, buyPct, sellPct, allocation float64) model.LadderLevel {
	return model.LadderLevel{
		Index:      idx,
		BuyPct:     decimal.NewFromFloat(buyPct),
		SellPct:    decimal.NewFromFloat(sellPct),
		Allocation: decimal.NewFromFloat(allocation),
	}
}

// NewPresetConfig builds one of the canonical ladder configurations.
// Level 0 is the most conservative tier: the shallowest pullback and the
// smallest allocation; deeper levels demand bigger pullbacks and commit
// more capital.
func NewPresetConfig(name string) (LadderConfig, error) {
	switch name {
	case "conservative":
		return LadderConfig{
			Levels: []model.LadderLevel{
				level(0, 0.04, 0.03, 1000),
				level(1, 0.08, 0.04, 2000),
				level(2, 0.12, 0.05, 3000),
			},
			SeedMode:       SeedIndependent,
			BarMode:        BarClose,
			ReanchorSource: ReanchorWatermark,
		}, nil
	case "aggressive":
		return LadderConfig{
			Levels: []model.LadderLevel{
				level(0, 0.02, 0.02, 1000),
				level(1, 0.04, 0.03, 2000),
				level(2, 0.06, 0.04, 3000),
				level(3, 0.08, 0.05, 4000),
			},
			SeedMode:       SeedCascade,
			BarMode:        BarHighLow,
			ReanchorSource: ReanchorClose,
		}, nil
	default:
		return LadderConfig{}, fmt.Errorf("unknown ladder preset: %s", name)
	}
}
