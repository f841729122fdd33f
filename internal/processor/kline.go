package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fadai88/grid-trading-crypto/internal/infrastructure"
	"github.com/fadai88/grid-trading-crypto/internal/model"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// KlineProcessor aggregates the raw trade stream into fixed-resolution
// candles, the series the ladder backtests later consume.
type KlineProcessor struct {
	js         nats.JetStreamContext
	logger     *zap.Logger
	resolution time.Duration
	candles    map[string]*model.KLine
	mu         sync.Mutex
}

func NewKlineProcessor(js nats.JetStreamContext, logger *zap.Logger, resolution time.Duration) *KlineProcessor {
	if resolution <= 0 {
		resolution = time.Minute
	}
	return &KlineProcessor{
		js:         js,
		logger:     logger,
		resolution: resolution,
		candles:    make(map[string]*model.KLine),
	}
}

func (p *KlineProcessor) Run(ctx context.Context) error {
	_, err := p.js.Subscribe("market.raw.*.*", func(msg *nats.Msg) {
		var trade model.Trade
		if err := json.Unmarshal(msg.Data, &trade); err != nil {
			p.logger.Error("failed to unmarshal trade in processor", zap.Error(err))
			return
		}
		infrastructure.TradeProcessRate.WithLabelValues(trade.Symbol).Inc()
		p.processTrade(trade)
		msg.Ack()
	}, nats.Durable("kline-processor"), nats.ManualAck())

	if err != nil {
		return err
	}

	go p.flushLoop(ctx)
	p.logger.Info("kline processor started", zap.Duration("resolution", p.resolution))
	return nil
}

func (p *KlineProcessor) processTrade(trade model.Trade) {
	p.mu.Lock()
	defer p.mu.Unlock()

	window := trade.Timestamp.Truncate(p.resolution)
	key := fmt.Sprintf("%s:%s:%s", trade.Exchange, trade.Symbol, window.Format(time.RFC3339))

	candle, ok := p.candles[key]
	if !ok {
		candle = &model.KLine{
			Symbol:    trade.Symbol,
			Exchange:  trade.Exchange,
			Period:    p.periodLabel(),
			Open:      trade.Price,
			High:      trade.Price,
			Low:       trade.Price,
			Close:     trade.Price,
			Volume:    trade.Amount,
			Timestamp: window,
		}
		p.candles[key] = candle
	} else {
		if trade.Price.GreaterThan(candle.High) {
			candle.High = trade.Price
		}
		if trade.Price.LessThan(candle.Low) {
			candle.Low = trade.Price
		}
		candle.Close = trade.Price
		candle.Volume = candle.Volume.Add(trade.Amount)
	}
}

func (p *KlineProcessor) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.flush()
		}
	}
}

// flush publishes every candle whose window has closed.
func (p *KlineProcessor) flush() {
	p.mu.Lock()
	now := time.Now().Truncate(p.resolution)
	toFlush := make([]*model.KLine, 0)

	for key, candle := range p.candles {
		if candle.Timestamp.Before(now) {
			toFlush = append(toFlush, candle)
			delete(p.candles, key)
		}
	}
	p.mu.Unlock()

	for _, candle := range toFlush {
		subject := fmt.Sprintf("market.kline.%s.%s", candle.Period, candle.Symbol)
		data, _ := json.Marshal(candle)
		if _, err := p.js.Publish(subject, data); err != nil {
			p.logger.Error("failed to publish kline", zap.Error(err))
		}
	}
}

func (p *KlineProcessor) periodLabel() string {
	switch p.resolution {
	case time.Minute:
		return "1m"
	case 5 * time.Minute:
		return "5m"
	case time.Hour:
		return "1h"
	case 24 * time.Hour:
		return "1d"
	default:
		return p.resolution.String()
	}
}
