package analytics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/fadai88/grid-trading-crypto/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func dailyCurve(t0 time.Time, values ...float64) []model.EquitySample {
	samples := make([]model.EquitySample, len(values))
	for i, v := range values {
		samples[i] = model.EquitySample{
			Time:  t0.AddDate(0, 0, i),
			Value: dec(v),
		}
	}
	return samples
}

func sellTrade(profit float64) model.LadderTrade {
	return model.LadderTrade{Side: "sell", Profit: dec(profit)}
}

func TestAnalyzer_MaxDrawdown(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	metrics := NewAnalyzer().Compute(dailyCurve(t0, 100, 90, 80, 95), dec(100), nil)

	// (80 - 100) / 100, and the drawdown is still open at the final
	// sample since 95 < 100: below the peak from day 1 through day 3.
	assert.InDelta(t, -0.20, metrics.MaxDrawdown, 1e-9)
	assert.Equal(t, 3, metrics.LongestDrawdownDays)
}

func TestAnalyzer_DrawdownRecovery(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	metrics := NewAnalyzer().Compute(dailyCurve(t0, 100, 95, 105, 90, 92, 94, 106), dec(100), nil)

	// Two drawdowns: one day under 100, then three days under 105.
	assert.Equal(t, 3, metrics.LongestDrawdownDays)
	assert.InDelta(t, (90.0-105.0)/105.0, metrics.MaxDrawdown, 1e-9)
}

func TestAnalyzer_TotalAndAnnualizedReturn(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	// Exactly two 365-day years: 100 -> 121 compounds at 10% a year.
	samples := []model.EquitySample{
		{Time: t0, Value: dec(100)},
		{Time: t0.Add(730 * 24 * time.Hour), Value: dec(121)},
	}
	metrics := NewAnalyzer().Compute(samples, dec(100), nil)
	assert.InDelta(t, 0.21, metrics.TotalReturn, 1e-9)
	assert.InDelta(t, 0.10, metrics.AnnualizedReturn, 1e-9)
}

func TestAnalyzer_ZeroTradesSentinels(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	metrics := NewAnalyzer().Compute(dailyCurve(t0, 100, 100, 100), dec(100), nil)

	assert.Equal(t, model.ProfitFactor(0), metrics.ProfitFactor)
	assert.Equal(t, 0.0, metrics.WinRate)
	assert.Equal(t, 0.0, metrics.SharpeRatio, "flat curve has zero variance")
	assert.Equal(t, 0.0, metrics.TotalReturn)
	assert.Equal(t, 0, metrics.ClosedTrades)
}

func TestAnalyzer_ProfitFactor(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := dailyCurve(t0, 100, 101)

	// No losing trades: infinite, as a sentinel rather than a fault.
	metrics := NewAnalyzer().Compute(curve, dec(100), []model.LadderTrade{
		{Side: "buy"},
		sellTrade(30.24),
	})
	assert.True(t, math.IsInf(float64(metrics.ProfitFactor), 1))
	assert.Equal(t, 1.0, metrics.WinRate)
	assert.Equal(t, 1, metrics.ClosedTrades)
	assert.Equal(t, 2, metrics.TotalTrades)

	// Mixed book: 50 gross win over 10 gross loss.
	metrics = NewAnalyzer().Compute(curve, dec(100), []model.LadderTrade{
		sellTrade(30), sellTrade(-10), sellTrade(20),
	})
	assert.InDelta(t, 5.0, float64(metrics.ProfitFactor), 1e-9)
	assert.InDelta(t, 2.0/3.0, metrics.WinRate, 1e-9)
	assert.Equal(t, 2, metrics.WinningTrades)
}

func TestAnalyzer_DegenerateCurves(t *testing.T) {
	metrics := NewAnalyzer().Compute(nil, dec(100), nil)
	assert.Equal(t, 0.0, metrics.TotalReturn)
	assert.Equal(t, 0.0, metrics.SharpeRatio)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	metrics = NewAnalyzer().Compute(dailyCurve(t0, 100), dec(100), nil)
	assert.Equal(t, 0.0, metrics.SharpeRatio, "single sample has no returns")
	assert.Equal(t, 0.0, metrics.MaxDrawdown)
	assert.Equal(t, 0, metrics.LongestDrawdownDays)
}

func TestAnalyzer_Sharpe(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	up := NewAnalyzer().Compute(dailyCurve(t0, 100, 102, 103, 106, 108), dec(100), nil)
	assert.Greater(t, up.SharpeRatio, 0.0)

	down := NewAnalyzer().Compute(dailyCurve(t0, 100, 98, 97, 94, 92), dec(100), nil)
	assert.Less(t, down.SharpeRatio, 0.0)

	// A positive risk-free rate shaves the excess return.
	withRF := Analyzer{RiskFreeRate: 0.05, PeriodsPerYear: 365}.
		Compute(dailyCurve(t0, 100, 102, 103, 106, 108), dec(100), nil)
	assert.Less(t, withRF.SharpeRatio, up.SharpeRatio)
}

func TestProfitFactor_JSON(t *testing.T) {
	data, err := json.Marshal(model.ProfitFactor(math.Inf(1)))
	assert.NoError(t, err)
	assert.Equal(t, `"inf"`, string(data))

	var pf model.ProfitFactor
	assert.NoError(t, json.Unmarshal(data, &pf))
	assert.True(t, math.IsInf(float64(pf), 1))

	data, err = json.Marshal(model.ProfitFactor(2.5))
	assert.NoError(t, err)
	assert.Equal(t, "2.5", string(data))
}
