package commands

import (
	"fmt"

	"github.com/wonny/arena/backend/internal/agent"
	"github.com/wonny/arena/backend/internal/contracts"
	"github.com/wonny/arena/backend/internal/ledger"
	"github.com/wonny/arena/backend/internal/marketdata"
	"github.com/wonny/arena/backend/internal/marketdata/stooq"
	"github.com/wonny/arena/backend/internal/simulation"
	"github.com/wonny/arena/backend/pkg/config"
	"github.com/wonny/arena/backend/pkg/database"
	"github.com/wonny/arena/backend/pkg/httputil"
	"github.com/wonny/arena/backend/pkg/logger"
	"github.com/wonny/arena/backend/pkg/redis"
)

// stack wires the full simulation engine. Every command builds one and
// closes it on exit.
// ⭐ SSOT: 의존성 조립은 이 파일에서만
type stack struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *database.DB
	Redis  *redis.Client

	Jobs   contracts.JobStore
	Days   contracts.ModelDayStore
	Ledger contracts.Ledger
	Prices *marketdata.Repository
	Worker *simulation.Worker
}

// newStack loads config and wires repositories, the downloader, the
// ledger and the worker. With stubAgent set, model ids resolve to the
// deterministic stub instead of LLM clients.
func newStack(stubAgent bool) (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	httpClient := httputil.New(log)
	if rdb.Enabled() {
		// 프로세스 여러 개가 떠도 벤더 예산은 공유됨
		httpClient = httpClient.WithRateLimiter(redis.NewRateLimiter(rdb, "stooq"), redis.RateLimitConfig{
			Key:    "download",
			Limit:  cfg.Stooq.RateLimit,
			Window: cfg.Stooq.RateWindow,
		})
	}

	priceRepo := marketdata.NewRepository(db.Pool)
	downloader := stooq.NewClient(cfg, log, httpClient, priceRepo)
	checker := marketdata.NewChecker(priceRepo, cfg.Sim.Symbols)
	preparer := marketdata.NewPreparer(checker, priceRepo, downloader, log)

	ledg := ledger.New(db.Pool, priceRepo)
	jobs := simulation.NewJobRepository(db.Pool)
	days := simulation.NewModelDayRepository(db.Pool)

	var agents simulation.AgentProvider
	if stubAgent {
		agents = agent.StubProvider{}
	} else {
		agents = agent.NewProvider(cfg, log)
	}

	worker := simulation.NewWorker(jobs, days, ledg, preparer, priceRepo, agents, cfg.Sim.Symbols, log)

	return &stack{
		Config: cfg,
		Logger: log,
		DB:     db,
		Redis:  rdb,
		Jobs:   jobs,
		Days:   days,
		Ledger: ledg,
		Prices: priceRepo,
		Worker: worker,
	}, nil
}

// Close releases database and redis connections.
func (s *stack) Close() {
	if s.Redis != nil {
		s.Redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
