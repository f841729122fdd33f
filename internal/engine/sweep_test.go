package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSweepPool_RunsJobs(t *testing.T) {
	logger := zap.NewNop()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := closeBars(t0, 700, 672, 695)

	pool := NewSweepPool(2, 10, candles, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	assert.True(t, pool.Submit(SweepJob{ID: "good", Config: LadderConfig{Levels: testLevels()}}))
	assert.True(t, pool.Submit(SweepJob{ID: "bad", Config: LadderConfig{}}))

	got := make(map[string]SweepResult)
	for i := 0; i < 2; i++ {
		select {
		case res := <-pool.Results():
			got[res.ID] = res
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for sweep results")
		}
	}

	assert.NoError(t, got["good"].Err)
	assert.Len(t, got["good"].Report.Trades, 2)
	assert.Error(t, got["bad"].Err, "empty ladder must fail validation")
}

func TestSweepPool_SubmitFullQueue(t *testing.T) {
	pool := NewSweepPool(1, 1, nil, zap.NewNop())
	// Not started: the single buffer slot fills, the second submit drops.
	assert.True(t, pool.Submit(SweepJob{ID: "first"}))
	assert.False(t, pool.Submit(SweepJob{ID: "second"}))
}

func TestNewPresetConfig(t *testing.T) {
	for _, name := range []string{"conservative", "aggressive"} {
		t.Run(name, func(t *testing.T) {
			cfg, err := NewPresetConfig(name)
			assert.NoError(t, err)
			assert.NoError(t, cfg.Validate())
		})
	}

	_, err := NewPresetConfig("yolo")
	assert.Error(t, err)
}
