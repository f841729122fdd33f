package model

import (
	"encoding/json"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// LadderLevel 网格层级的静态定义 (构造后不可变)
type LadderLevel struct {
	Index      int             `json:"index" db:"level_index"`
	BuyPct     decimal.Decimal `json:"buy_pct" db:"buy_pct"`         // 低于锚定价的触发跌幅
	SellPct    decimal.Decimal `json:"sell_pct" db:"sell_pct"`       // 高于成交价的止盈涨幅
	Allocation decimal.Decimal `json:"allocation" db:"allocation"`   // 该层级的固定资金
	NextBuyPct decimal.Decimal `json:"next_buy_pct,omitempty" db:"next_buy_pct"` // 可选: 链式挂单的独立跌幅, 零值表示沿用下一层级的 buy_pct
}

// LadderPosition 已成交的持仓, 创建后不可变, 卖出即销毁
type LadderPosition struct {
	Level      int             `json:"level"`
	EntryPrice decimal.Decimal `json:"entry_price"` // 按挂单限价成交, 不是当根K线的实际价格
	Size       decimal.Decimal `json:"size"`
	SellTarget decimal.Decimal `json:"sell_target"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// LadderTrade 成交流水, 只追加不改写
type LadderTrade struct {
	Time      time.Time       `json:"time"`
	Level     int             `json:"level"`
	Side      string          `json:"side"` // "buy", "sell"
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	CashDelta decimal.Decimal `json:"cash_delta"`       // 买入为负, 卖出为正
	Profit    decimal.Decimal `json:"profit,omitempty"` // 仅卖出: 已实现盈亏
}

// EquitySample 每根K线一个权益采样, 按时间严格递增
type EquitySample struct {
	Time          time.Time       `json:"time"`
	Value         decimal.Decimal `json:"value"` // cash + Σ size×close
	Price         decimal.Decimal `json:"price"`
	Cash          decimal.Decimal `json:"cash"`
	OpenPositions int             `json:"open_positions"`
	PendingOrders int             `json:"pending_orders"`
}

// ProfitFactor 盈亏比, +Inf 表示没有亏损交易 (哨兵值, 不是计算错误)
type ProfitFactor float64

func (p ProfitFactor) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(p), 1) {
		return []byte(`"inf"`), nil
	}
	return json.Marshal(float64(p))
}

func (p *ProfitFactor) UnmarshalJSON(data []byte) error {
	if string(data) == `"inf"` {
		*p = ProfitFactor(math.Inf(1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = ProfitFactor(f)
	return nil
}

// PerformanceMetrics 绩效指标
type PerformanceMetrics struct {
	TotalReturn         float64      `json:"total_return"`
	AnnualizedReturn    float64      `json:"annualized_return"`
	MaxDrawdown         float64      `json:"max_drawdown"` // 负数或零
	LongestDrawdownDays int          `json:"longest_drawdown_days"`
	SharpeRatio         float64      `json:"sharpe_ratio"`
	ProfitFactor        ProfitFactor `json:"profit_factor"`
	WinRate             float64      `json:"win_rate"`
	TotalTrades         int          `json:"total_trades"`  // 买卖合计
	ClosedTrades        int          `json:"closed_trades"` // 已平仓笔数
	WinningTrades       int          `json:"winning_trades"`
}

// LadderReport 网格回测结果报告
type LadderReport struct {
	Symbol      string             `json:"symbol,omitempty"`
	InitialCash decimal.Decimal    `json:"initial_cash"`
	FinalCash   decimal.Decimal    `json:"final_cash"`
	FinalValue  decimal.Decimal    `json:"final_value"`
	Trades      []LadderTrade      `json:"trades"`
	Equity      []EquitySample     `json:"equity"`
	Metrics     PerformanceMetrics `json:"metrics"`
}
