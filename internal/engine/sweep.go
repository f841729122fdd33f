package engine

import (
	"context"

	"github.com/fadai88/grid-trading-crypto/internal/model"

	"go.uber.org/zap"
)

// SweepJob is one ladder configuration to evaluate in a parameter sweep.
type SweepJob struct {
	ID     string
	Config LadderConfig
}

// SweepResult pairs a job with its report, or with the error that kept
// it from running.
type SweepResult struct {
	ID     string
	Report *model.LadderReport
	Err    error
}

// SweepPool runs many independent ladder configurations against a shared
// candle series. Each run stays strictly sequential; only whole runs are
// parallel.
type SweepPool struct {
	jobQueue    chan SweepJob
	results     chan SweepResult
	workerCount int
	candles     []model.KLine
	logger      *zap.Logger
}

func NewSweepPool(workerCount int, bufferSize int, candles []model.KLine, logger *zap.Logger) *SweepPool {
	return &SweepPool{
		jobQueue:    make(chan SweepJob, bufferSize),
		results:     make(chan SweepResult, bufferSize),
		workerCount: workerCount,
		candles:     candles,
		logger:      logger,
	}
}

func (p *SweepPool) Start(ctx context.Context) {
	for i := 0; i < p.workerCount; i++ {
		go p.worker(ctx, i)
	}
	p.logger.Info("started sweep pool",
		zap.Int("workers", p.workerCount),
		zap.Int("candles", len(p.candles)),
	)
}

// Submit queues one configuration. Returns false when the queue is full.
func (p *SweepPool) Submit(job SweepJob) bool {
	select {
	case p.jobQueue <- job:
		return true
	default:
		p.logger.Warn("sweep pool job queue full, dropping job", zap.String("job_id", job.ID))
		return false
	}
}

// Results delivers finished runs in completion order.
func (p *SweepPool) Results() <-chan SweepResult {
	return p.results
}

func (p *SweepPool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			p.run(ctx, id, job)
		}
	}
}

func (p *SweepPool) run(ctx context.Context, workerID int, job SweepJob) {
	result := SweepResult{ID: job.ID}

	eng, err := NewLadderEngine(job.Config)
	if err != nil {
		result.Err = err
	} else {
		result.Report, result.Err = eng.Run(p.candles)
	}

	if result.Err != nil {
		p.logger.Warn("sweep job failed",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID),
			zap.Error(result.Err),
		)
	} else {
		p.logger.Debug("sweep job finished",
			zap.Int("worker_id", workerID),
			zap.String("job_id", job.ID),
			zap.Int("trades", len(result.Report.Trades)),
		)
	}

	select {
	case p.results <- result:
	case <-ctx.Done():
	}
}
