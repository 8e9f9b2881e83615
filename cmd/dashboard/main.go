package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"crypto-dashboard-go/internal/api"
	"crypto-dashboard-go/internal/breaker"
	"crypto-dashboard-go/internal/config"
	"crypto-dashboard-go/internal/history"
	"crypto-dashboard-go/internal/indicators"
	"crypto-dashboard-go/internal/logger"
	"crypto-dashboard-go/internal/metrics"
	"crypto-dashboard-go/internal/models"
	"crypto-dashboard-go/internal/persistence"
	"crypto-dashboard-go/internal/render"
	"crypto-dashboard-go/internal/scheduler"
	"crypto-dashboard-go/internal/store"
	"crypto-dashboard-go/internal/stream"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	flag.Parse()

	// 先用默认配置初始化日志，保证加载.env和配置文件阶段也有日志可看
	logger.InitLogger(models.LogConfig{Level: "info", Output: "console"})

	if err := godotenv.Load(); err != nil {
		logger.S().Info("未找到 .env 文件，将从系统环境变量中读取。")
	} else {
		logger.S().Info("成功从 .env 文件加载配置。")
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.S().Fatalf("无法加载配置文件: %v", err)
	}

	// 使用文件中的配置重新初始化日志
	logger.InitLogger(cfg.LogConfig)
	defer logger.S().Sync()

	run(cfg)
}

func run(cfg *models.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- 后端地址解析: 网络不可达时自动切换到备用地址 ---
	resolver, advance := newFailoverResolver(cfg)

	cb := breaker.New(breaker.DefaultThreshold, breaker.DefaultCooldown)
	client := api.NewClient(resolver, cfg.APIKey, cb)

	st := store.New(logger.S())

	// --- 热启动缓存 ---
	repo, err := persistence.NewBadgerRepository(cfg.DBPath)
	if err != nil {
		logger.S().Warnf("无法打开本地缓存 %s: %v，跳过热启动。", cfg.DBPath, err)
	} else {
		defer repo.Close()
		if view, err := repo.LoadView(); err != nil {
			logger.S().Warnf("读取热启动缓存失败: %v", err)
		} else if view != nil {
			st.ImportCache(view)
			logger.S().Infow("已从本地缓存恢复视图",
				"watchlist", len(view.Watchlist), "top_coins", len(view.TopCoins))
		}
	}

	// --- WebSocket推送 ---
	hub := stream.NewHub(logger.S())
	go hub.Run(ctx)
	st.OnChange(func() {
		state, source, age := st.Dashboard()
		hub.Broadcast(stream.TypeView, map[string]any{
			"dashboard": state,
			"source":    source,
			"age_ms":    age.Milliseconds(),
			"top_coins": st.TopCoins(),
			"positions": st.OpenPositions(),
		})
		metrics.ObserveWSClients(hub.ClientCount())
	})

	// --- 请求观察钩子: 指标上报、熔断器状态变化推送、网络不可达时切换后端 ---
	var breakerOpen atomic.Bool
	client.SetObserver(func(op string, err error) {
		metrics.ObserveRequest(op, err)
		metrics.ObserveBreaker(cb)
		state := cb.State()
		open := state == breaker.Open
		if breakerOpen.Swap(open) != open {
			hub.Broadcast(stream.TypeBreaker, map[string]any{
				"state":    state.String(),
				"failures": cb.Failures(),
			})
		}
		if apiErr, ok := models.AsAPIError(err); ok && apiErr.Kind == models.ErrNetworkUnavailable {
			advance()
		}
	})

	// --- 刷新调度器 ---
	schedCfg := scheduler.Config{
		FastInterval:           time.Duration(cfg.FastIntervalSec) * time.Second,
		SlowInterval:           time.Duration(cfg.SlowIntervalSec) * time.Second,
		FastStagger:            time.Duration(cfg.FastStaggerMs) * time.Millisecond,
		SlowStagger:            time.Duration(cfg.SlowStaggerMs) * time.Millisecond,
		FastBatch:              1,
		SlowBatch:              1,
		CapMultiplier:          cfg.BackoffCapMultiplier,
		SnapshotEverySlowTicks: cfg.SnapshotEverySlowTicks,
	}
	sched := scheduler.New(schedCfg, client, st, logger.S())

	// --- 初始加载: 快照先行渲染，权威全量随后在后台覆盖 ---
	bootstrap(ctx, client, st, sched)
	sched.Start(ctx)

	// --- /metrics 与 /ws 监听 ---
	if cfg.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/ws", hub.ServeWS)
		srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
		go func() {
			logger.S().Infof("监听 %s (/metrics, /ws)", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.S().Errorf("HTTP服务异常退出: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	// --- 周期任务: 订单刷新 / 终端渲染 / 缓存落盘 / 指标兜底 ---
	go refreshLoop(ctx, client, st, sched, hub)
	if cfg.RenderIntervalSec > 0 {
		go renderLoop(ctx, cfg, st, sched, cb)
	}
	if repo != nil {
		go persistLoop(ctx, st, repo)
	}
	go indicatorFallbackLoop(ctx, cfg, st)

	// --- 等待退出信号 ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.S().Info("收到退出信号，正在停止...")
	sched.Stop()
	cancel()
	if repo != nil {
		if err := repo.SaveView(st.ExportCache()); err != nil {
			logger.S().Warnf("退出时保存缓存失败: %v", err)
		}
	}
	logger.S().Info("仪表盘守护进程已停止。")
}

// newFailoverResolver 返回每次请求调用的地址解析函数和一个切换函数。
// 网络不可达时观察回调调用advance，轮转到下一个备用地址。
func newFailoverResolver(cfg *models.Config) (api.BaseURLResolver, func()) {
	urls := append([]string{cfg.BaseURL}, cfg.FallbackURLs...)
	var idx atomic.Int32
	resolver := func() string {
		return urls[int(idx.Load())%len(urls)]
	}
	advance := func() {
		if len(urls) < 2 {
			return
		}
		next := (idx.Add(1)) % int32(len(urls))
		logger.S().Warnf("后端不可达，切换到备用地址: %s", urls[next])
	}
	return resolver, advance
}

// bootstrap 做首轮数据加载。快照接口快但可能滞后，先拉回来立即可渲染；
// 权威全量状态很慢(最长3分钟)，放到后台取，成功后覆盖快照视图。
func bootstrap(ctx context.Context, client *api.Client, st *store.Store, sched *scheduler.Scheduler) {
	if items, err := client.FetchWatchlist(ctx); err == nil {
		st.SetWatchlist(items)
		sched.SetWatchlist(ctx, items)
	}

	if snap, err := client.FetchDashboardSnapshot(ctx); err == nil {
		st.ApplySnapshot(snap)
	}
	go func() {
		if full, err := client.FetchDashboardState(ctx); err == nil {
			st.ApplyFullState(full)
		}
	}()

	go func() {
		open, err1 := client.FetchOpenOrders(ctx)
		hist, err2 := client.FetchOrderHistory(ctx)
		if err1 == nil && err2 == nil {
			st.SetOrders(open, hist)
		}
	}()
}

// refreshLoop 以慢周期刷新调度器覆盖不到的数据：
// 订单、监视列表、告警比率、预期止盈。监视列表变化会同步推给调度器重算队列，
// 调度器的限速/退避状态随每轮推送给websocket订阅者。
func refreshLoop(ctx context.Context, client *api.Client, st *store.Store, sched *scheduler.Scheduler, hub *stream.Hub) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if items, err := client.FetchWatchlist(ctx); err == nil {
			st.SetWatchlist(items)
			sched.SetWatchlist(ctx, items)
		}
		open, err1 := client.FetchOpenOrders(ctx)
		hist, err2 := client.FetchOrderHistory(ctx)
		if err1 == nil && err2 == nil {
			st.SetOrders(open, hist)
		}
		if ratios, err := client.FetchAlertRatio(ctx); err == nil {
			st.SetAlertRatios(ratios)
		}
		if entries, err := client.FetchExpectedTakeProfit(ctx); err == nil {
			st.SetExpectedTakeProfit(entries)
		}
		if rows, err := client.FetchMonitoring(ctx, "status"); err == nil {
			st.SetMonitoring(rows)
		}
		go func() {
			if full, err := client.FetchDashboardState(ctx); err == nil {
				st.ApplyFullState(full)
			}
		}()

		status := sched.Snapshot()
		metrics.ObserveScheduler(status)
		hub.Broadcast(stream.TypeScheduler, map[string]any{
			"rate_limited":    status.RateLimited,
			"fast_backoff_ms": status.FastBackoff.Milliseconds(),
			"slow_backoff_ms": status.SlowBackoff.Milliseconds(),
			"active_jobs":     status.ActiveJobs,
		})
	}
}

// renderLoop 周期性地把聚合视图渲染成终端表格
func renderLoop(ctx context.Context, cfg *models.Config, st *store.Store, sched *scheduler.Scheduler, cb *breaker.CircuitBreaker) {
	r := render.New(st, sched, cb, os.Stdout)
	ticker := time.NewTicker(time.Duration(cfg.RenderIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Render()
		}
	}
}

// persistLoop 每分钟把可镜像的视图子集落到本地缓存
func persistLoop(ctx context.Context, st *store.Store, repo persistence.ViewRepository) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := repo.SaveView(st.ExportCache()); err != nil {
				logger.S().Warnf("保存热启动缓存失败: %v", err)
			}
		}
	}
}

// indicatorFallbackLoop 为后端尚未给出指标的交易对做本地兜底计算。
// 只填补当前为零的字段，后端一旦给出真实值就不再覆盖。
func indicatorFallbackLoop(ctx context.Context, cfg *models.Config, st *store.Store) {
	backfiller := history.NewBackfiller(cfg.HistoryDir, logger.S())
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, item := range st.Watchlist() {
			coin, ok := st.TopCoin(item.Symbol)
			if ok && coin.RSI != 0 {
				continue // 后端已给出指标
			}
			end := time.Now()
			klines, err := backfiller.Backfill(ctx, item.Symbol, "1h", end.Add(-7*24*time.Hour), end)
			if err != nil {
				logger.S().Debugf("K线回填失败 %s: %v", item.Symbol, err)
				continue
			}
			snap, computed := indicators.Compute(klines)
			if !computed {
				continue
			}
			// 只填补当前为零的字段，绝不覆盖后端已给出的值
			patch := models.TopCoin{InstrumentName: item.Symbol, RSI: snap.RSI}
			if coin.MAFast == 0 {
				patch.MAFast = snap.MAFast
			}
			if coin.MASlow == 0 {
				patch.MASlow = snap.MASlow
			}
			if coin.ATR == 0 {
				patch.ATR = snap.ATR
			}
			st.MergeTopCoins([]models.TopCoin{patch})
		}
	}
}
