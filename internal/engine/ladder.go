package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/fadai88/grid-trading-crypto/internal/model"

	"github.com/shopspring/decimal"
)

// SeedMode controls how the initial ladder of buy quotes is anchored.
type SeedMode string

const (
	// SeedIndependent quotes every level off the first bar's close.
	SeedIndependent SeedMode = "independent"
	// SeedCascade chains each level's quote off the previous level's quote.
	SeedCascade SeedMode = "cascade"
)

// BarMode selects which bar prices drive the trigger checks.
type BarMode string

const (
	// BarClose uses only the close price for sell and buy triggers.
	BarClose BarMode = "close"
	// BarHighLow checks sells against the bar high and buys against the bar low.
	BarHighLow BarMode = "high_low"
)

// ReanchorSource selects the anchor for the level-0 re-quote after a
// watermark raise.
type ReanchorSource string

const (
	ReanchorWatermark ReanchorSource = "watermark"
	ReanchorClose     ReanchorSource = "close"
)

// DefaultReanchorThreshold is applied when the config leaves the
// watermark threshold unset.
var DefaultReanchorThreshold = decimal.NewFromFloat(0.02)

var one = decimal.NewFromInt(1)

// LadderConfig 网格引擎配置, 构造时整体校验
type LadderConfig struct {
	Levels            []model.LadderLevel `json:"levels"`
	InitialCash       decimal.Decimal     `json:"initial_cash"`       // 零值表示各层级资金之和
	ReanchorThreshold decimal.Decimal     `json:"reanchor_threshold"` // 高水位上移阈值, 零值取 0.02
	SeedMode          SeedMode            `json:"seed_mode"`
	BarMode           BarMode             `json:"bar_mode"`
	ReanchorSource    ReanchorSource      `json:"reanchor_source"`
}

// Validate rejects malformed ladders before any bar is processed.
func (c LadderConfig) Validate() error {
	if len(c.Levels) == 0 {
		return errors.New("ladder needs at least one level")
	}
	for i, lvl := range c.Levels {
		if lvl.Index != i {
			return fmt.Errorf("level %d has index %d, levels must be contiguous from 0", i, lvl.Index)
		}
		if !lvl.BuyPct.IsPositive() || lvl.BuyPct.GreaterThanOrEqual(one) {
			return fmt.Errorf("level %d: buy_pct must be in (0, 1), got %s", i, lvl.BuyPct)
		}
		if !lvl.SellPct.IsPositive() {
			return fmt.Errorf("level %d: sell_pct must be positive, got %s", i, lvl.SellPct)
		}
		if !lvl.Allocation.IsPositive() {
			return fmt.Errorf("level %d: allocation must be positive, got %s", i, lvl.Allocation)
		}
		if !lvl.NextBuyPct.IsZero() && (lvl.NextBuyPct.IsNegative() || lvl.NextBuyPct.GreaterThanOrEqual(one)) {
			return fmt.Errorf("level %d: next_buy_pct must be in (0, 1) when set, got %s", i, lvl.NextBuyPct)
		}
	}
	if c.InitialCash.IsNegative() {
		return fmt.Errorf("initial cash must not be negative, got %s", c.InitialCash)
	}
	if c.ReanchorThreshold.IsNegative() {
		return fmt.Errorf("reanchor threshold must not be negative, got %s", c.ReanchorThreshold)
	}
	switch c.SeedMode {
	case "", SeedIndependent, SeedCascade:
	default:
		return fmt.Errorf("unknown seed mode: %s", c.SeedMode)
	}
	switch c.BarMode {
	case "", BarClose, BarHighLow:
	default:
		return fmt.Errorf("unknown bar mode: %s", c.BarMode)
	}
	switch c.ReanchorSource {
	case "", ReanchorWatermark, ReanchorClose:
	default:
		return fmt.Errorf("unknown reanchor source: %s", c.ReanchorSource)
	}
	return nil
}

// LadderEngine simulates a tiered limit-order ladder against a candle
// series. It is strictly sequential: one mutator, one bar at a time, and
// the state (cash, positions, trade log) is consistent at every bar
// boundary, so a caller may stop feeding bars whenever it likes.
type LadderEngine struct {
	cfg         LadderConfig
	initialCash decimal.Decimal
	cash        decimal.Decimal
	positions   map[int]*model.LadderPosition
	pending     map[int]decimal.Decimal // level index -> limit price, at most one per level
	watermark   decimal.Decimal
	seeded      bool
	lastTime    time.Time
	trades      []model.LadderTrade
	equity      []model.EquitySample
}

func NewLadderEngine(cfg LadderConfig) (*LadderEngine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ladder config: %w", err)
	}
	if cfg.SeedMode == "" {
		cfg.SeedMode = SeedIndependent
	}
	if cfg.BarMode == "" {
		cfg.BarMode = BarClose
	}
	if cfg.ReanchorSource == "" {
		cfg.ReanchorSource = ReanchorWatermark
	}
	if cfg.ReanchorThreshold.IsZero() {
		cfg.ReanchorThreshold = DefaultReanchorThreshold
	}
	cash := cfg.InitialCash
	if cash.IsZero() {
		for _, lvl := range cfg.Levels {
			cash = cash.Add(lvl.Allocation)
		}
	}
	return &LadderEngine{
		cfg:         cfg,
		initialCash: cash,
		cash:        cash,
		positions:   make(map[int]*model.LadderPosition),
		pending:     make(map[int]decimal.Decimal),
		trades:      make([]model.LadderTrade, 0),
		equity:      make([]model.EquitySample, 0),
	}, nil
}

// Run feeds the whole candle series through the engine and returns the
// completed report. Metrics are left to the analytics package.
func (e *LadderEngine) Run(candles []model.KLine) (*model.LadderReport, error) {
	if len(candles) == 0 {
		return nil, errors.New("empty candle series")
	}
	for _, candle := range candles {
		if err := e.Step(candle); err != nil {
			return nil, err
		}
	}
	return e.Report(), nil
}

// Step advances the simulation by exactly one bar. The first bar seeds
// the ladder (watermark and one pending quote per level) and is then
// evaluated like any other bar.
func (e *LadderEngine) Step(candle model.KLine) error {
	if e.seeded && !candle.Timestamp.After(e.lastTime) {
		return fmt.Errorf("candles must be strictly time-ordered: got %s after %s",
			candle.Timestamp.Format(time.RFC3339), e.lastTime.Format(time.RFC3339))
	}
	if !e.seeded {
		if !candle.Close.IsPositive() {
			return fmt.Errorf("first close must be positive, got %s", candle.Close)
		}
		e.seed(candle.Close)
		e.seeded = true
	}

	high, low := e.barRange(candle)

	// Fixed sub-step order within a bar: watermark, sells, buys,
	// valuation. Sells never fund same-bar buys out of order, and a
	// quote placed during the buy pass waits for the next bar.
	e.updateWatermark(candle, high)
	e.evaluateSells(candle, high)
	e.evaluateBuys(candle, low)
	e.sample(candle)

	e.lastTime = candle.Timestamp
	return nil
}

// Report snapshots the run so far. The returned slices are copies, so
// reporting consumers cannot mutate engine state.
func (e *LadderEngine) Report() *model.LadderReport {
	report := &model.LadderReport{
		InitialCash: e.initialCash,
		FinalCash:   e.cash,
		FinalValue:  e.cash,
		Trades:      append([]model.LadderTrade(nil), e.trades...),
		Equity:      append([]model.EquitySample(nil), e.equity...),
	}
	if n := len(e.equity); n > 0 {
		report.FinalValue = e.equity[n-1].Value
	}
	return report
}

// Cash returns the current cash balance.
func (e *LadderEngine) Cash() decimal.Decimal {
	return e.cash
}

// seed sets the watermark to the reference price and places one pending
// buy quote per level according to the configured seed mode.
func (e *LadderEngine) seed(p0 decimal.Decimal) {
	e.watermark = p0
	anchor := p0
	for _, lvl := range e.cfg.Levels {
		quote := anchor.Mul(one.Sub(lvl.BuyPct))
		e.pending[lvl.Index] = quote
		if e.cfg.SeedMode == SeedCascade {
			anchor = quote
		}
	}
}

// barRange resolves the trigger prices for the configured bar mode.
func (e *LadderEngine) barRange(candle model.KLine) (high, low decimal.Decimal) {
	if e.cfg.BarMode == BarHighLow {
		return candle.High, candle.Low
	}
	return candle.Close, candle.Close
}

// updateWatermark raises the recent-high watermark when the bar trades
// more than the threshold above it, and re-quotes the level-0 buy so the
// lowest tier does not go stale in a strong uptrend.
func (e *LadderEngine) updateWatermark(candle model.KLine, high decimal.Decimal) {
	limit := e.watermark.Mul(one.Add(e.cfg.ReanchorThreshold))
	if high.LessThanOrEqual(limit) {
		return
	}
	e.watermark = high

	if _, quoted := e.pending[0]; !quoted {
		return
	}
	anchor := e.watermark
	if e.cfg.ReanchorSource == ReanchorClose {
		anchor = candle.Close
	}
	e.pending[0] = anchor.Mul(one.Sub(e.cfg.Levels[0].BuyPct))
}

// evaluateSells closes every position whose sell target is reached.
// Fills execute at the target price, not the touched bar price.
func (e *LadderEngine) evaluateSells(candle model.KLine, high decimal.Decimal) {
	for _, lvl := range e.cfg.Levels {
		pos, ok := e.positions[lvl.Index]
		if !ok || pos.SellTarget.GreaterThan(high) {
			continue
		}

		proceeds := pos.Size.Mul(pos.SellTarget)
		cost := pos.Size.Mul(pos.EntryPrice)
		e.cash = e.cash.Add(proceeds)
		delete(e.positions, lvl.Index)

		e.trades = append(e.trades, model.LadderTrade{
			Time:      candle.Timestamp,
			Level:     lvl.Index,
			Side:      "sell",
			Price:     pos.SellTarget,
			Size:      pos.Size,
			CashDelta: proceeds,
			Profit:    proceeds.Sub(cost),
		})

		// Put the freed level back to work: re-quote it off the
		// current close, unless a quote is already out for it.
		if _, quoted := e.pending[lvl.Index]; !quoted {
			e.pending[lvl.Index] = candle.Close.Mul(one.Sub(lvl.BuyPct))
		}
	}
}

// evaluateBuys fills every pending quote the bar's low crossed, cash
// permitting. The pass iterates a snapshot of the quotes that existed
// when it started, so a deeper quote chained off a fill cannot trigger
// again within the same bar.
func (e *LadderEngine) evaluateBuys(candle model.KLine, low decimal.Decimal) {
	quoted := make([]int, 0, len(e.pending))
	for _, lvl := range e.cfg.Levels {
		if _, ok := e.pending[lvl.Index]; ok {
			quoted = append(quoted, lvl.Index)
		}
	}

	for _, idx := range quoted {
		limitPrice := e.pending[idx]
		if limitPrice.LessThan(low) {
			continue
		}
		lvl := e.cfg.Levels[idx]
		if e.cash.LessThan(lvl.Allocation) {
			// Deferred, not canceled: the quote stays pending and is
			// re-evaluated on later bars.
			continue
		}

		size := lvl.Allocation.Div(limitPrice)
		cost := size.Mul(limitPrice)
		e.cash = e.cash.Sub(cost)
		delete(e.pending, idx)

		e.positions[idx] = &model.LadderPosition{
			Level:      idx,
			EntryPrice: limitPrice,
			Size:       size,
			SellTarget: limitPrice.Mul(one.Add(lvl.SellPct)),
			OpenedAt:   candle.Timestamp,
		}
		e.trades = append(e.trades, model.LadderTrade{
			Time:      candle.Timestamp,
			Level:     idx,
			Side:      "buy",
			Price:     limitPrice,
			Size:      size,
			CashDelta: cost.Neg(),
		})

		e.chainNext(idx, limitPrice)
	}
}

// chainNext places the next-deeper quote off a fill price. The highest
// level is terminal and never chains further.
func (e *LadderEngine) chainNext(idx int, fillPrice decimal.Decimal) {
	next := idx + 1
	if next >= len(e.cfg.Levels) {
		return
	}
	if _, ok := e.pending[next]; ok {
		return
	}
	if _, ok := e.positions[next]; ok {
		// Level already deployed, nothing to quote.
		return
	}
	pct := e.cfg.Levels[idx].NextBuyPct
	if pct.IsZero() {
		pct = e.cfg.Levels[next].BuyPct
	}
	e.pending[next] = fillPrice.Mul(one.Sub(pct))
}

// sample appends one equity point: cash plus open positions marked at
// the bar close, regardless of which prices drove the triggers.
func (e *LadderEngine) sample(candle model.KLine) {
	value := e.cash
	for _, pos := range e.positions {
		value = value.Add(pos.Size.Mul(candle.Close))
	}
	e.equity = append(e.equity, model.EquitySample{
		Time:          candle.Timestamp,
		Value:         value,
		Price:         candle.Close,
		Cash:          e.cash,
		OpenPositions: len(e.positions),
		PendingOrders: len(e.pending),
	})
}
