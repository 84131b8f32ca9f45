package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/perpbot/goperp/exchange/client"
	"github.com/perpbot/goperp/internal/aggregator"
	"github.com/perpbot/goperp/internal/allocator"
	"github.com/perpbot/goperp/internal/domain"
	"github.com/perpbot/goperp/internal/execution"
	"github.com/perpbot/goperp/internal/metrics"
	"github.com/perpbot/goperp/internal/ports"
	"github.com/perpbot/goperp/internal/risk"
	"github.com/perpbot/goperp/internal/scheduler"
	"github.com/perpbot/goperp/internal/store"
	"github.com/perpbot/goperp/internal/strategies"
	"github.com/perpbot/goperp/internal/tracker"
	"github.com/perpbot/goperp/pkg/config"
	"github.com/perpbot/goperp/pkg/keyring"
	"github.com/perpbot/goperp/pkg/logger"
	"github.com/perpbot/goperp/pkg/persistence"
	"github.com/perpbot/goperp/pkg/ratelimit"
	"github.com/perpbot/goperp/pkg/secretstore"
	"github.com/perpbot/goperp/pkg/shutdown"
)

// resyncInterval 仓位对账节奏；tick 之外独立运行
const resyncInterval = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		OutputFile: cfg.Log.OutputFile,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAgeDays,
		Compress:   true,
	}); err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	logger.Infof("goperp 启动，network=%s universe=%v", cfg.Network.APIURL, cfg.Trading.Universe)

	signer, err := loadSigner(cfg)
	if err != nil {
		return fmt.Errorf("加载签名账户失败: %w", err)
	}
	logger.Infof("签名地址: %s", signer.Address)

	db, err := store.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("打开审计库失败: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Debug.ListenAddr != "" {
		if _, err := metrics.StartAsync(ctx, cfg.Debug.ListenAddr); err != nil {
			logger.Warnf("调试服务启动失败（继续运行）: %v", err)
		} else {
			logger.Infof("调试服务已监听 %s (/debug/vars, /debug/pprof)", cfg.Debug.ListenAddr)
		}
	}

	limiter := ratelimit.NewManager()
	info := client.NewInfoClient(cfg.Network.APIURL, limiter)

	assets, err := client.LoadAssetMap(ctx, info)
	if err != nil {
		return fmt.Errorf("加载标的映射失败: %w", err)
	}
	for _, sym := range cfg.Trading.Universe {
		if !assets.Has(sym) {
			return fmt.Errorf("标的 %s 不在交易所元数据里", sym)
		}
	}

	exchange := client.NewExchangeClient(
		cfg.Network.APIURL, limiter, signer, assets,
		cfg.Network.Mainnet, cfg.Network.VaultAddress, cfg.Trading.SlippagePct,
	)

	account := signer.Address
	if cfg.Network.VaultAddress != "" {
		account = cfg.Network.VaultAddress
	}
	book := tracker.New(info, account)
	if err := book.SyncFromExchange(ctx); err != nil {
		return fmt.Errorf("启动对账失败: %w", err)
	}
	logger.Infof("启动权益 %.2f，持仓 %d 个", book.Equity(), len(book.List()))

	stateStore := persistence.NewJSONFileService(cfg.Storage.StateDir).NewStore("risk", "bot", "state")
	riskMgr, err := risk.New(riskParams(cfg), book, stateStore, db, nil)
	if err != nil {
		return fmt.Errorf("初始化风控失败: %w", err)
	}

	alloc, err := allocator.New(allocator.EvenPlan(), db)
	if err != nil {
		return fmt.Errorf("初始化分配器失败: %w", err)
	}

	registry := ports.NewRegistry()
	if err := strategies.RegisterAll(registry, info); err != nil {
		return fmt.Errorf("注册策略失败: %w", err)
	}

	breaker := risk.NewCircuitBreaker(risk.CircuitBreakerConfig{
		MaxConsecutiveFailures: cfg.Risk.MaxConsecutiveOrderFailures,
		MaxDailyFailures:       cfg.Risk.MaxDailyOrderFailures,
	})
	orders := execution.NewManager(exchange, info, riskMgr, book, db, breaker, cfg.Trading.CapitalUtilization)
	agg := aggregator.New(cfg.Trading.Universe, registry, alloc, orders, book, info, db)

	sched := scheduler.New()
	sched.AddJob(scheduler.Job{
		Name:     "trading_tick",
		Interval: cfg.Trading.TickInterval,
		Run:      func(ctx context.Context) { agg.RunTick(ctx) },
	})
	sched.AddJob(scheduler.Job{
		Name:     "position_resync",
		Interval: resyncInterval,
		Run: func(ctx context.Context) {
			if err := book.SyncFromExchange(ctx); err != nil {
				logger.Warnf("仓位对账失败: %v", err)
				return
			}
			if err := db.ReplacePositions(ctx, positionsPtr(book)); err != nil {
				logger.Warnf("仓位快照落库失败: %v", err)
			}
		},
	})
	sched.AddJob(scheduler.Job{
		Name:     "risk_watch",
		Interval: time.Minute,
		Run: func(ctx context.Context) {
			riskMgr.RunContinuousChecks(ctx, book.Equity())
		},
	})
	sched.Start(ctx)

	shutdownMgr := shutdown.NewManager()
	shutdownMgr.OnShutdown("final_position_snapshot", func(ctx context.Context) {
		if err := book.SyncFromExchange(ctx); err == nil {
			_ = db.ReplacePositions(ctx, positionsPtr(book))
		}
	})

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Infof("收到信号 %s，开始退出", s)

	cancel()
	sched.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	shutdownMgr.Shutdown(shutdownCtx)
	logger.Info("退出完成")
	return nil
}

// loadSigner 开发环境可以用 PRIVATE_KEY 环境变量直接注入，
// 否则走加密存储。
func loadSigner(cfg *config.Config) (*keyring.Signer, error) {
	if raw := config.Env("PRIVATE_KEY", ""); raw != "" {
		return keyring.FromHex(raw)
	}

	key, err := secretstore.ParseKey(config.Env("SECRET_STORE_KEY", ""))
	if err != nil {
		return nil, fmt.Errorf("解析 SECRET_STORE_KEY 失败: %w", err)
	}
	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          cfg.Storage.SecretStorePath,
		EncryptionKey: key,
		ReadOnly:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("打开加密存储失败: %w", err)
	}
	defer ss.Close()

	return keyring.FromSecretStore(ss, cfg.Network.DerivationPath)
}

func riskParams(cfg *config.Config) domain.RiskParameters {
	p := domain.DefaultRiskParameters()
	p.DrawdownWarningPct = cfg.Risk.DrawdownWarningPct
	p.DrawdownCriticalPct = cfg.Risk.DrawdownCriticalPct
	p.DrawdownPausePct = cfg.Risk.DrawdownPausePct
	p.DailyLossPausePct = cfg.Risk.DailyLossPausePct
	p.TradeLossAlertPct = cfg.Risk.TradeLossAlertPct
	p.MaxExposurePct = cfg.Risk.MaxExposurePct
	p.PositionSizeScalar = cfg.Risk.PositionSizeScalar
	p.MaxLeverage = cfg.Risk.MaxLeverage
	p.UpdatedBy = "config"
	p.UpdatedAt = time.Now()
	return p
}

func positionsPtr(book *tracker.Tracker) []*domain.Position {
	list := book.List()
	out := make([]*domain.Position, 0, len(list))
	for i := range list {
		out = append(out, &list[i])
	}
	return out
}
