package models

import "time"

// Config 结构体定义了仪表盘守护进程的所有配置参数
type Config struct {
	BaseURL      string   `json:"base_url"`                // 后端REST API基础地址
	FallbackURLs []string `json:"fallback_urls,omitempty"` // 备用地址，按顺序尝试 (每次请求时重新解析)
	APIKey       string   `json:"api_key,omitempty"`       // x-api-key, 通常由环境变量 DASHBOARD_API_KEY 覆盖

	DBPath     string `json:"db_path"`     // 本地热启动缓存 (badger) 路径
	ListenAddr string `json:"listen_addr"` // /metrics 和 /ws 监听地址, e.g. ":9480"
	HistoryDir string `json:"history_dir"` // K线回填数据目录

	FastIntervalSec        int `json:"fast_interval_sec"`         // 快队列目标周期 (默认15s)
	SlowIntervalSec        int `json:"slow_interval_sec"`         // 慢队列目标周期 (默认60s)
	FastStaggerMs          int `json:"fast_stagger_ms"`           // 快队列批次间隔 (默认1000ms)
	SlowStaggerMs          int `json:"slow_stagger_ms"`           // 慢队列批次间隔 (默认2000ms)
	BackoffCapMultiplier   int `json:"backoff_cap_multiplier"`    // 退避上限 = 倍数 × 目标周期 (默认4)
	SnapshotEverySlowTicks int `json:"snapshot_every_slow_ticks"` // 每N次慢刷新做一次全量快照 (默认3)
	RenderIntervalSec      int `json:"render_interval_sec"`       // 终端表格渲染周期 (0为关闭)

	LogConfig LogConfig `json:"log"` // 日志配置
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// 订单状态，与后端透传的交易所状态一致
const (
	StatusNew             = "NEW"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
)

// WatchlistItem 代表一个被跟踪的交易对及其配置与最近一次计算结果。
// 同一 symbol 在服务端可能存在多行，客户端通过规范项选择规则取唯一一条。
type WatchlistItem struct {
	ID                 int64   `json:"id"`
	Symbol             string  `json:"symbol"`
	Exchange           string  `json:"exchange"`
	TradeEnabled       bool    `json:"trade_enabled"`
	TradeAmount        float64 `json:"trade_amount"`
	MarginEnabled      bool    `json:"margin_enabled"`
	AlertEnabled       bool    `json:"alert_enabled"`
	BuyAlertEnabled    bool    `json:"buy_alert_enabled"`
	SellAlertEnabled   bool    `json:"sell_alert_enabled"`
	StopLossPercent    float64 `json:"stop_loss_percent,omitempty"`
	TakeProfitPercent  float64 `json:"take_profit_percent,omitempty"`
	StopLossPrice      float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice    float64 `json:"take_profit_price,omitempty"`
	MinPriceChangePerc float64 `json:"min_price_change_percent,omitempty"`
	IsDeleted          bool    `json:"is_deleted,omitempty"`

	// 最近一次后端计算的字段
	Price            float64   `json:"price,omitempty"`
	RSI              float64   `json:"rsi,omitempty"`
	MAFast           float64   `json:"ma_fast,omitempty"`
	MASlow           float64   `json:"ma_slow,omitempty"`
	ATR              float64   `json:"atr,omitempty"`
	ResistanceLevels []float64 `json:"resistance_levels,omitempty"`

	CreatedAt int64 `json:"created_at,omitempty"` // Unix毫秒
	UpdatedAt int64 `json:"updated_at,omitempty"` // Unix毫秒
}

// TopCoin 是每个交易工具的行情快照记录，以 instrument_name 为标识。
// 刷新时与旧快照逐字段合并：新值为0且旧值非0时视为"未知"，保留旧值。
type TopCoin struct {
	InstrumentName     string            `json:"instrument_name"`
	Price              float64           `json:"price"`
	Volume24h          float64           `json:"volume_24h"`
	PriceChangePercent float64           `json:"price_change_percent"`
	RSI                float64           `json:"rsi"`
	MAFast             float64           `json:"ma_fast"`
	MASlow             float64           `json:"ma_slow"`
	ATR                float64           `json:"atr"`
	VolumeRatio        float64           `json:"volume_ratio"`
	ResistanceLevels   []float64         `json:"resistance_levels,omitempty"`
	Decision           *StrategyDecision `json:"decision,omitempty"`
	UpdatedAt          int64             `json:"updated_at,omitempty"`
}

// StrategyDecision 是后端策略计算的结果。reasons 是各项条件是否满足的唯一权威来源，
// 本地指标重算只能用作展示兜底，绝不能覆盖它。
type StrategyDecision struct {
	Decision string          `json:"decision"` // BUY | SELL | WAIT
	Reasons  map[string]bool `json:"reasons,omitempty"`
	Summary  string          `json:"summary,omitempty"`
	Index    float64         `json:"index,omitempty"`
}

// Order 是后端透传的交易所订单。对客户端而言是不可变的，只能整体重新拉取。
type Order struct {
	OrderID       string  `json:"order_id"`
	ClientOrderID string  `json:"client_order_id,omitempty"`
	Symbol        string  `json:"symbol"`
	Side          Side    `json:"side"`
	Type          string  `json:"type"` // LIMIT, MARKET, TAKE_PROFIT, STOP_LOSS ...
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price"`
	Status        string  `json:"status"`
	LinkageRole   string  `json:"linkage_role,omitempty"` // ENTRY / TAKE_PROFIT / STOP_LOSS
	CreateTime    int64   `json:"create_time"`            // Unix毫秒
	UpdateTime    int64   `json:"update_time,omitempty"`  // Unix毫秒
}

// CreatedAt 返回订单创建时间
func (o *Order) CreatedAt() time.Time {
	return time.UnixMilli(o.CreateTime)
}

// OpenPosition 是派生视图：一个BUY单与共享 client_order_id 的SELL侧TP/SL子单的组合。
// 每次拉取统一挂单列表时重新派生，从不持久化。
type OpenPosition struct {
	Entry           Order   `json:"entry"`
	TakeProfit      *Order  `json:"take_profit,omitempty"`
	StopLoss        *Order  `json:"stop_loss,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`
	StopLossPrice   float64 `json:"stop_loss_price,omitempty"`
	ProjectedProfit float64 `json:"projected_profit"` // 到达TP价时的预计盈利
	ProjectedLoss   float64 `json:"projected_loss"`   // 到达SL价时的预计亏损
}

// Balance 定义了账户中特定资产的余额信息 (已归一化)
type Balance struct {
	Asset    string  `json:"asset"`
	Free     float64 `json:"free"`
	Locked   float64 `json:"locked"`
	USDValue float64 `json:"usd_value"`
}

// PortfolioAsset 是持仓资产的归一化形态
type PortfolioAsset struct {
	Asset    string  `json:"asset"`
	Amount   float64 `json:"amount"`
	USDValue float64 `json:"usd_value"`
}

// BotStatus 是后端交易机器人的运行状态
type BotStatus struct {
	Running     bool   `json:"running"`
	LiveTrading bool   `json:"live_trading"`
	Mode        string `json:"mode,omitempty"`
	LastError   string `json:"last_error,omitempty"`
}

// DashboardState 是聚合后的统一视图模型。snapshot 接口返回的是同一形态，
// 只是可能滞后，GeneratedAt 用于暴露陈旧度。
type DashboardState struct {
	Balances    []Balance        `json:"balances"`
	Assets      []PortfolioAsset `json:"assets"`
	Bot         BotStatus        `json:"bot"`
	TotalValue  float64          `json:"total_value"`
	GeneratedAt int64            `json:"generated_at,omitempty"` // Unix毫秒
}

// ExpectedTakeProfitEntry 是预期止盈报表中的一行
type ExpectedTakeProfitEntry struct {
	Symbol          string  `json:"symbol"`
	Quantity        float64 `json:"quantity"`
	EntryPrice      float64 `json:"entry_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	ExpectedProfit  float64 `json:"expected_profit"`
	CurrentPrice    float64 `json:"current_price,omitempty"`
}

// MonitoringStatus 是后端运维遥测 (/monitoring/*) 的归一化形态
type MonitoringStatus struct {
	Component string `json:"component"`
	Healthy   bool   `json:"healthy"`
	Message   string `json:"message,omitempty"`
	CheckedAt int64  `json:"checked_at,omitempty"`
}

// TPSLValues 是后端为快捷下单建议的止盈/止损价
type TPSLValues struct {
	Symbol          string  `json:"symbol"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	StopLossPrice   float64 `json:"stop_loss_price"`
}

// QuickOrderRequest 是 POST /orders/quick 的请求体
type QuickOrderRequest struct {
	Symbol          string  `json:"symbol"`
	Side            Side    `json:"side"`
	Amount          float64 `json:"amount"`
	ClientOrderID   string  `json:"client_order_id,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`
	StopLossPrice   float64 `json:"stop_loss_price,omitempty"`
}

// AlertRatio 是 /alert-ratio 返回的每交易对告警比率
type AlertRatio struct {
	Symbol string  `json:"symbol"`
	Ratio  float64 `json:"ratio"`
}

// StrategyConfig 是交易策略的全局配置 (GET/PUT /config)
type StrategyConfig struct {
	RSIBuyThreshold   float64 `json:"rsi_buy_threshold"`
	RSISellThreshold  float64 `json:"rsi_sell_threshold"`
	VolumeRatioMin    float64 `json:"volume_ratio_min"`
	MATrendRequired   bool    `json:"ma_trend_required"`
	DefaultTradeUSD   float64 `json:"default_trade_usd"`
	MaxOpenPositions  int     `json:"max_open_positions"`
	TakeProfitPercent float64 `json:"take_profit_percent"`
	StopLossPercent   float64 `json:"stop_loss_percent"`
}

// CoinConfig 是单个交易对的策略覆盖 (GET/PUT /coins/{symbol})
type CoinConfig struct {
	Symbol            string  `json:"symbol"`
	TradeUSD          float64 `json:"trade_usd,omitempty"`
	TakeProfitPercent float64 `json:"take_profit_percent,omitempty"`
	StopLossPercent   float64 `json:"stop_loss_percent,omitempty"`
}

// LiveStatus 是实盘/模拟开关的当前状态
type LiveStatus struct {
	Live      bool  `json:"live"`
	ChangedAt int64 `json:"changed_at,omitempty"`
}

// Kline 是本地指标兜底计算所用的K线
type Kline struct {
	OpenTime int64   `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}
