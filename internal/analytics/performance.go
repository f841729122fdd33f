package analytics

import (
	"math"
	"time"

	"github.com/fadai88/grid-trading-crypto/internal/model"

	"github.com/shopspring/decimal"
)

// Analyzer derives performance statistics from a completed equity curve
// and trade log. It is a pure computation: no state is kept between
// calls and the inputs are never mutated. Degenerate inputs (empty or
// single-sample curves, zero trades) yield zero-valued metrics instead
// of faults.
type Analyzer struct {
	RiskFreeRate   float64 // annual, subtracted pro-rata per bar
	PeriodsPerYear float64 // 365 for daily bars
}

// NewAnalyzer returns an analyzer for daily-bar data with no risk-free
// adjustment.
func NewAnalyzer() Analyzer {
	return Analyzer{PeriodsPerYear: 365}
}

func (a Analyzer) Compute(equity []model.EquitySample, initialCash decimal.Decimal, trades []model.LadderTrade) model.PerformanceMetrics {
	metrics := model.PerformanceMetrics{TotalTrades: len(trades)}
	a.tradeStats(trades, &metrics)

	if len(equity) == 0 {
		return metrics
	}

	initial, _ := initialCash.Float64()
	values := make([]float64, len(equity))
	for i, sample := range equity {
		values[i], _ = sample.Value.Float64()
	}
	final := values[len(values)-1]

	if initial > 0 {
		metrics.TotalReturn = (final - initial) / initial
	}

	// Compound annual growth over the elapsed span; for sub-year spans
	// annualization is undefined, fall back to the total return.
	metrics.AnnualizedReturn = metrics.TotalReturn
	years := equity[len(equity)-1].Time.Sub(equity[0].Time).Hours() / 24 / 365
	if years > 0 && initial > 0 && final > 0 {
		metrics.AnnualizedReturn = math.Pow(final/initial, 1/years) - 1
	}

	metrics.MaxDrawdown = maxDrawdown(values)
	metrics.LongestDrawdownDays = longestDrawdownDays(equity, values)
	metrics.SharpeRatio = a.sharpe(values)
	return metrics
}

// maxDrawdown is the worst decline from the running peak, as a negative
// fraction (0 for a curve that never dips).
func maxDrawdown(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	peak := values[0]
	worst := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}

// longestDrawdownDays is the longest span, in end-inclusive calendar
// days, during which value stays strictly below its prior running
// maximum. A drawdown still open at the last sample counts up to the
// last sample's date.
func longestDrawdownDays(equity []model.EquitySample, values []float64) int {
	peak := values[0]
	var start time.Time
	longest := 0
	for i, v := range values {
		if v >= peak {
			peak = v
			start = time.Time{}
			continue
		}
		if start.IsZero() {
			start = equity[i].Time
		}
		days := int(equity[i].Time.Sub(start).Hours()/24) + 1
		if days > longest {
			longest = days
		}
	}
	return longest
}

// sharpe is the mean over standard deviation of per-bar excess returns,
// scaled to annual. Zero when fewer than two samples or zero variance.
func (a Analyzer) sharpe(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	periods := a.PeriodsPerYear
	if periods <= 0 {
		periods = 365
	}
	perBarRiskFree := a.RiskFreeRate / periods

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/values[i-1]-perBarRiskFree)
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var sumSqDiff float64
	for _, r := range returns {
		diff := r - mean
		sumSqDiff += diff * diff
	}
	stdDev := math.Sqrt(sumSqDiff / float64(len(returns)))
	if stdDev == 0 {
		return 0
	}
	return mean / stdDev * math.Sqrt(periods)
}

// tradeStats fills win rate and profit factor from the sell-side trade
// log. No closed trades means zero win rate and a zero profit factor;
// closed trades with no losers means an infinite profit factor. Both
// are sentinels, not faults.
func (a Analyzer) tradeStats(trades []model.LadderTrade, metrics *model.PerformanceMetrics) {
	grossWin := decimal.Zero
	grossLoss := decimal.Zero
	closed := 0
	wins := 0
	for _, t := range trades {
		if t.Side != "sell" {
			continue
		}
		closed++
		if t.Profit.IsPositive() {
			wins++
			grossWin = grossWin.Add(t.Profit)
		} else if t.Profit.IsNegative() {
			grossLoss = grossLoss.Add(t.Profit.Abs())
		}
	}

	metrics.ClosedTrades = closed
	metrics.WinningTrades = wins
	if closed == 0 {
		return
	}
	metrics.WinRate = float64(wins) / float64(closed)

	if grossLoss.IsZero() {
		metrics.ProfitFactor = model.ProfitFactor(math.Inf(1))
		return
	}
	ratio, _ := grossWin.Div(grossLoss).Float64()
	metrics.ProfitFactor = model.ProfitFactor(ratio)
}
