package storage

import (
	"context"
	"sync"
	"time"

	"github.com/fadai88/grid-trading-crypto/internal/infrastructure"
	"github.com/fadai88/grid-trading-crypto/internal/model"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// KlineSaver buffers candles off the bus and writes them in batches,
// either when the buffer fills or on the flush interval.
type KlineSaver struct {
	db        *pgxpool.Pool
	logger    *zap.Logger
	interval  time.Duration
	batchSize int

	mu     sync.Mutex
	buffer []model.KLine
}

func NewKlineSaver(db *pgxpool.Pool, logger *zap.Logger, interval time.Duration, batchSize int) *KlineSaver {
	return &KlineSaver{
		db:        db,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
		buffer:    make([]model.KLine, 0, batchSize),
	}
}

func (s *KlineSaver) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.flush(context.Background())
				return
			case <-ticker.C:
				s.flush(ctx)
			}
		}
	}()
}

func (s *KlineSaver) Add(k model.KLine) {
	s.mu.Lock()
	s.buffer = append(s.buffer, k)
	full := len(s.buffer) >= s.batchSize
	s.mu.Unlock()

	if full {
		s.flush(context.Background())
	}
}

func (s *KlineSaver) flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	pending := s.buffer
	s.buffer = make([]model.KLine, 0, s.batchSize)
	s.mu.Unlock()

	batch := &pgx.Batch{}
	for _, k := range pending {
		batch.Queue(`
			INSERT INTO klines (symbol, exchange, period, open, high, low, close, volume, time)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (symbol, exchange, period, time) DO NOTHING`,
			k.Symbol, k.Exchange, k.Period, k.Open, k.High, k.Low, k.Close, k.Volume, k.Timestamp)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()
	for range pending {
		if _, err := results.Exec(); err != nil {
			s.logger.Error("failed to insert kline batch", zap.Error(err))
			return
		}
	}
	infrastructure.DBInsertRate.WithLabelValues("klines").Add(float64(len(pending)))
}
