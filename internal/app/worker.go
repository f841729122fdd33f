package app

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fadai88/grid-trading-crypto/internal/connector"
	"github.com/fadai88/grid-trading-crypto/internal/infrastructure"
	"github.com/fadai88/grid-trading-crypto/internal/model"
	"github.com/fadai88/grid-trading-crypto/internal/storage"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NormalizeSymbol unifies different exchange symbol formats into a standard one (e.g. BTCUSDT)
func NormalizeSymbol(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

// startIngestionWorker streams live trades from the configured venue
// onto the bus; the kline processor turns them into the candle series
// that later backtests run against.
func (a *App) startIngestionWorker(ctx context.Context) {
	go func() {
		tradeChan := make(chan model.Trade, 1000)
		c := connector.NewBinanceConnector(a.Logger, a.Config.Symbol, a.Config.ExchangeURL)
		go c.Run(ctx, tradeChan)

		for {
			select {
			case <-ctx.Done():
				return
			case trade := <-tradeChan:
				trade.Symbol = NormalizeSymbol(trade.Symbol)

				subject := fmt.Sprintf("market.raw.%s.%s", trade.Exchange, trade.Symbol)
				data, err := json.Marshal(trade)
				if err != nil {
					a.Logger.Error("failed to marshal trade", zap.Error(err))
					continue
				}
				if _, err = a.JS.Publish(subject, data); err != nil {
					a.Logger.Error("failed to publish to NATS", zap.Error(err))
				}
				infrastructure.TradeProcessRate.WithLabelValues(trade.Symbol).Inc()
			}
		}
	}()
}

// startPersistenceService subscribes to the candle stream and hands the
// completed candles to the batch saver
func (a *App) startPersistenceService(klineSaver *storage.KlineSaver) {
	_, err := a.JS.Subscribe("market.kline.*.*", func(m *nats.Msg) {
		var kline model.KLine
		if err := json.Unmarshal(m.Data, &kline); err != nil {
			a.Logger.Error("failed to unmarshal kline", zap.Error(err))
			return
		}
		klineSaver.Add(kline)
		m.Ack()
	}, nats.Durable("kline_saver"), nats.ManualAck())
	if err != nil {
		a.Logger.Fatal("failed to subscribe to klines", zap.Error(err))
	}
}
