package infrastructure

import (
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

func InitNATS(url string, logger *zap.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, err
	}

	js, err := nc.JetStream()
	if err != nil {
		return nil, nil, err
	}

	// One stream carries the raw trades, the aggregated candles, and the
	// finished backtest reports pushed to subscribed clients.
	streamCfg := &nats.StreamConfig{
		Name:     "MARKET",
		Subjects: []string{"market.raw.*.*", "market.kline.*.*", "backtest.report.*"},
	}
	if _, err = js.AddStream(streamCfg); err != nil {
		// If stream exists, we might need to update it
		if _, err = js.UpdateStream(streamCfg); err != nil {
			logger.Warn("failed to create or update stream", zap.Error(err))
		}
	}

	return nc, js, nil
}
