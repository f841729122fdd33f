package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BacktestRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_runs_total",
		Help: "Total number of ladder backtests executed",
	}, []string{"mode"})

	BacktestBars = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backtest_bars_processed_total",
		Help: "Total number of price bars fed through the ladder engine",
	}, []string{"symbol"})

	LadderFills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ladder_orders_filled_total",
		Help: "Total number of simulated ladder fills",
	}, []string{"side"})

	BacktestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "backtest_duration_seconds",
		Help: "Wall time of a single backtest run",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ws_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	DBInsertRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "db_insert_total",
		Help: "Total number of records inserted into DB",
	}, []string{"table"})

	TradeProcessRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trade_process_total",
		Help: "Total number of trades processed",
	}, []string{"symbol"})
)
