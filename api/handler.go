package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fadai88/grid-trading-crypto/internal/analytics"
	"github.com/fadai88/grid-trading-crypto/internal/engine"
	"github.com/fadai88/grid-trading-crypto/internal/infrastructure"
	"github.com/fadai88/grid-trading-crypto/internal/model"
	"github.com/fadai88/grid-trading-crypto/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	db           *pgxpool.Pool
	js           nats.JetStreamContext
	logger       *zap.Logger
	loader       *engine.DataLoader
	reports      *storage.ReportStore
	analyzer     analytics.Analyzer
	sweepWorkers int
}

func NewHandler(db *pgxpool.Pool, js nats.JetStreamContext, logger *zap.Logger, analyzer analytics.Analyzer, sweepWorkers int) *Handler {
	if sweepWorkers <= 0 {
		sweepWorkers = 4
	}
	return &Handler{
		db:           db,
		js:           js,
		logger:       logger,
		loader:       engine.NewDataLoader(db),
		reports:      storage.NewReportStore(db, logger),
		analyzer:     analyzer,
		sweepWorkers: sweepWorkers,
	}
}

// Auth Handlers

func (h *Handler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
		return
	}

	var userID int64
	err = h.db.QueryRow(c.Request.Context(),
		"INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id",
		req.Email, string(hash)).Scan(&userID)

	if err != nil {
		h.logger.Error("failed to register user", zap.Error(err))
		c.JSON(http.StatusConflict, gin.H{"error": "email already exists"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "user created", "id": userID})
}

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var userID int64
	var hash string
	err := h.db.QueryRow(c.Request.Context(),
		"SELECT id, password_hash FROM users WHERE email = $1", req.Email).Scan(&userID, &hash)

	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := GenerateToken(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Data Handlers

func (h *Handler) GetHistoryKLines(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))
	period := c.DefaultQuery("period", "1m")

	rows, err := h.db.Query(c.Request.Context(),
		"SELECT symbol, exchange, open, high, low, close, volume, time FROM klines WHERE symbol = $1 AND period = $2 ORDER BY time DESC LIMIT 100",
		symbol, period)
	if err != nil {
		h.logger.Error("failed to query klines", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	defer rows.Close()

	klines := make([]model.KLine, 0)
	for rows.Next() {
		var k model.KLine
		if err := rows.Scan(&k.Symbol, &k.Exchange, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume, &k.Timestamp); err != nil {
			h.logger.Error("failed to scan kline", zap.Error(err))
			continue
		}
		k.Period = period
		klines = append(klines, k)
	}

	c.JSON(http.StatusOK, klines)
}

// Backtest Handlers

type backtestRequest struct {
	Symbol    string               `json:"symbol" binding:"required"`
	Period    string               `json:"period"`
	Preset    string               `json:"preset"`
	Ladder    *engine.LadderConfig `json:"ladder"`
	StartTime time.Time            `json:"start_time" binding:"required"`
	EndTime   time.Time            `json:"end_time" binding:"required"`
}

// resolveLadder picks the explicit ladder config over the named preset.
func resolveLadder(preset string, ladder *engine.LadderConfig) (engine.LadderConfig, error) {
	if ladder != nil {
		return *ladder, ladder.Validate()
	}
	if preset == "" {
		preset = "conservative"
	}
	return engine.NewPresetConfig(preset)
}

func (h *Handler) RunBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cfg, err := resolveLadder(req.Preset, req.Ladder)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	symbol := normalizeSymbol(req.Symbol)
	period := req.Period
	if period == "" {
		period = "1d"
	}

	candles, err := h.loader.LoadCandles(c.Request.Context(), symbol, req.StartTime, req.EndTime, period)
	if err != nil {
		h.logger.Error("failed to fetch history for backtest", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch data"})
		return
	}
	if len(candles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no candles for the requested range"})
		return
	}

	report, err := h.runLadder(cfg, candles, symbol)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reportID, err := randomID(8)
	if err == nil {
		h.persistAndPublish(c, reportID, report)
	}

	c.JSON(http.StatusOK, gin.H{"report_id": reportID, "report": report})
}

type sweepRequest struct {
	Symbol    string    `json:"symbol" binding:"required"`
	Period    string    `json:"period"`
	StartTime time.Time `json:"start_time" binding:"required"`
	EndTime   time.Time `json:"end_time" binding:"required"`
	Jobs      []struct {
		ID     string               `json:"id" binding:"required"`
		Preset string               `json:"preset"`
		Ladder *engine.LadderConfig `json:"ladder"`
	} `json:"jobs" binding:"required,min=1"`
}

type sweepResponse struct {
	ID      string                    `json:"id"`
	Error   string                    `json:"error,omitempty"`
	Metrics *model.PerformanceMetrics `json:"metrics,omitempty"`
	Final   string                    `json:"final_value,omitempty"`
}

// RunSweep evaluates several ladder configurations against one candle
// range in parallel. Each run is still sequential internally.
func (h *Handler) RunSweep(c *gin.Context) {
	var req sweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	period := req.Period
	if period == "" {
		period = "1d"
	}
	candles, err := h.loader.LoadCandles(c.Request.Context(), normalizeSymbol(req.Symbol), req.StartTime, req.EndTime, period)
	if err != nil {
		h.logger.Error("failed to fetch history for sweep", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch data"})
		return
	}
	if len(candles) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no candles for the requested range"})
		return
	}

	pool := engine.NewSweepPool(h.sweepWorkers, len(req.Jobs), candles, h.logger)
	pool.Start(c.Request.Context())

	submitted := 0
	for _, job := range req.Jobs {
		cfg, err := resolveLadder(job.Preset, job.Ladder)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "job " + job.ID + ": " + err.Error()})
			return
		}
		if pool.Submit(engine.SweepJob{ID: job.ID, Config: cfg}) {
			submitted++
		}
	}

	results := make(map[string]engine.SweepResult, submitted)
	for i := 0; i < submitted; i++ {
		select {
		case res := <-pool.Results():
			results[res.ID] = res
		case <-c.Request.Context().Done():
			c.JSON(http.StatusRequestTimeout, gin.H{"error": "sweep canceled"})
			return
		}
	}

	out := make([]sweepResponse, 0, len(req.Jobs))
	for _, job := range req.Jobs {
		res, ok := results[job.ID]
		if !ok {
			out = append(out, sweepResponse{ID: job.ID, Error: "dropped: queue full"})
			continue
		}
		if res.Err != nil {
			out = append(out, sweepResponse{ID: job.ID, Error: res.Err.Error()})
			continue
		}
		res.Report.Metrics = h.analyzer.Compute(res.Report.Equity, res.Report.InitialCash, res.Report.Trades)
		infrastructure.BacktestRuns.WithLabelValues("sweep").Inc()
		out = append(out, sweepResponse{
			ID:      job.ID,
			Metrics: &res.Report.Metrics,
			Final:   res.Report.FinalValue.String(),
		})
	}

	c.JSON(http.StatusOK, out)
}

func (h *Handler) ListReports(c *gin.Context) {
	reports, err := h.reports.Recent(c.Request.Context(), 50)
	if err != nil {
		h.logger.Error("failed to list reports", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, reports)
}

// runLadder executes one simulation and fills in the metrics and the
// run counters.
func (h *Handler) runLadder(cfg engine.LadderConfig, candles []model.KLine, symbol string) (*model.LadderReport, error) {
	eng, err := engine.NewLadderEngine(cfg)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	report, err := eng.Run(candles)
	if err != nil {
		return nil, err
	}
	infrastructure.BacktestDuration.Observe(time.Since(started).Seconds())

	report.Symbol = symbol
	report.Metrics = h.analyzer.Compute(report.Equity, report.InitialCash, report.Trades)

	mode := string(cfg.BarMode)
	if mode == "" {
		mode = string(engine.BarClose)
	}
	infrastructure.BacktestRuns.WithLabelValues(mode).Inc()
	infrastructure.BacktestBars.WithLabelValues(symbol).Add(float64(len(candles)))
	for _, trade := range report.Trades {
		infrastructure.LadderFills.WithLabelValues(trade.Side).Inc()
	}
	return report, nil
}

// persistAndPublish stores the report and pushes it onto the bus for
// websocket subscribers. Both are best-effort: the HTTP response still
// carries the report.
func (h *Handler) persistAndPublish(c *gin.Context, reportID string, report *model.LadderReport) {
	if h.reports != nil {
		if err := h.reports.Save(c.Request.Context(), reportID, report); err != nil {
			h.logger.Error("failed to persist backtest report", zap.Error(err))
		}
	}
	if h.js == nil {
		return
	}
	data, err := json.Marshal(gin.H{"report_id": reportID, "report": report})
	if err != nil {
		return
	}
	if _, err := h.js.Publish("backtest.report."+reportID, data); err != nil {
		h.logger.Error("failed to publish backtest report", zap.Error(err))
	}
}

func normalizeSymbol(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}
