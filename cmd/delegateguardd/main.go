package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	osignal "os/signal"
	"path/filepath"
	"syscall"
	"time"

	"DelegateGuard/internal/api"
	"DelegateGuard/internal/config"
	"DelegateGuard/internal/monitor"
	"DelegateGuard/internal/observability/alerting"
	"DelegateGuard/internal/observability/metrics"
	"DelegateGuard/internal/policy"
	"DelegateGuard/internal/policy/rules"
	"DelegateGuard/internal/signal"
	"DelegateGuard/internal/state"
	"DelegateGuard/internal/storage/mysql"
	"DelegateGuard/pkg/logger"
)

// main 是 DelegateGuard 守护进程的入口。
func main() {
	ctx, stop := osignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("delegateguardd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("DELEGATEGUARD_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "delegateguard.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logCfg := logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}
	if cfg.Log.DecisionPath != "" {
		logCfg.Decision = logger.DecisionConfig{
			Enabled: true,
			Path:    cfg.Log.DecisionPath,
		}
	}
	if err := logger.Init(logCfg); err != nil {
		return err
	}
	defer logger.Sync()

	registry := rules.NewRegistry()
	compiler := policy.NewCompiler(registry)

	// 策略存储。
	var store policy.Store
	switch cfg.Storage.PolicyStore.Driver {
	case "", "memory":
		store = policy.NewMemoryStore(compiler)
	case "mysql":
		mysqlStore, err := policy.NewMySQLStore(cfg.Storage.PolicyStore.DSN, compiler)
		if err != nil {
			return err
		}
		store = mysqlStore
	default:
		return errors.New("不支持的策略存储驱动: " + cfg.Storage.PolicyStore.Driver)
	}
	defer store.Close()

	// 执行历史。
	retention := time.Duration(cfg.Storage.StateStore.RetentionHours) * time.Hour
	var tracker state.Tracker
	switch cfg.Storage.StateStore.Driver {
	case "", "memory":
		tracker = state.NewMemoryTracker(state.WithRetention(retention))
	case "redis":
		redisTracker, err := state.NewRedisTracker(state.RedisConfig{
			Address:   cfg.Storage.StateStore.RedisAddress,
			Password:  cfg.Storage.StateStore.RedisPassword,
			DB:        cfg.Storage.StateStore.RedisDB,
			KeyPrefix: cfg.Storage.StateStore.KeyPrefix,
			Retention: retention,
		})
		if err != nil {
			return err
		}
		tracker = redisTracker
	default:
		return errors.New("不支持的状态存储驱动: " + cfg.Storage.StateStore.Driver)
	}
	defer tracker.Close()

	// 告警外发渠道。
	var notifiers []alerting.Notifier
	if cfg.Alerts.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			Endpoint: cfg.Alerts.WebhookURL,
			Client:   &http.Client{Timeout: 10 * time.Second},
		})
	}
	if cfg.Alerts.RabbitMQURL != "" {
		queueNotifier, err := alerting.NewQueueNotifier(alerting.QueueConfig{
			URL:     cfg.Alerts.RabbitMQURL,
			Queue:   cfg.Alerts.RabbitMQQueue,
			Durable: true,
		})
		if err != nil {
			return err
		}
		defer queueNotifier.Close()
		notifiers = append(notifiers, queueNotifier)
	}

	mon := monitor.NewMonitor(
		monitor.WithWindow(time.Duration(cfg.Monitor.WindowSeconds)*time.Second),
		monitor.WithThresholds(cfg.Monitor.GlobalThreshold, cfg.Monitor.PrincipalThreshold),
		monitor.WithDispatcher(alerting.NewFanout(notifiers...)),
	)

	// 外部信号源。
	fetcherOpts := []signal.FetcherOption{
		signal.WithFetchTimeout(time.Duration(cfg.Signals.TimeoutSeconds) * time.Second),
	}
	rpcURL := cfg.Signals.RPCURL
	if cfg.Signals.ChainsPath != "" {
		chains, err := signal.LoadChainDefinitions(cfg.Signals.ChainsPath)
		if err != nil {
			return err
		}
		if resolved, err := chains.Resolve(cfg.Signals.Chain); err == nil && resolved.RPCURL != "" {
			rpcURL = resolved.RPCURL
		}
	}
	if rpcURL != "" {
		gasProvider, err := signal.NewEthGasProvider(ctx, cfg.Signals.Chain, rpcURL)
		if err != nil {
			return err
		}
		defer gasProvider.Close()
		fetcherOpts = append(fetcherOpts, signal.WithGasProvider(gasProvider))
	}
	if cfg.Signals.IndexerURL != "" {
		telemetryProvider, err := signal.NewIndexerTelemetryProvider(cfg.Signals.IndexerURL)
		if err != nil {
			return err
		}
		fetcherOpts = append(fetcherOpts, signal.WithTelemetryProvider(telemetryProvider))
	} else {
		// 没有外部索引器时退化为本地监控信号。
		fetcherOpts = append(fetcherOpts, signal.WithTelemetryProvider(monitor.NewProvider(mon)))
	}
	fetcher := signal.NewFetcher(fetcherOpts...)

	// 执行审计库。
	var execLog api.ExecutionLog
	if cfg.Storage.ExecutionLog.Enabled {
		sqlLog, err := mysql.NewSQLExecutionLog(ctx, mysql.Config{DSN: cfg.Storage.ExecutionLog.DSN})
		if err != nil {
			return err
		}
		defer sqlLog.Close()
		execLog = sqlLog
	}

	engine := policy.NewEngine(store, registry, fetcher, tracker)
	server := api.NewServer(cfg.Server.Address, engine, store, tracker, mon, execLog)

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务退出", slog.String("error", err.Error()))
			}
		}()
	}

	logger.L().Info("delegateguardd 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("policy_store", cfg.Storage.PolicyStore.Driver),
		slog.String("state_store", cfg.Storage.StateStore.Driver),
	)
	return server.Start(ctx)
}
