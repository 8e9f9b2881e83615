package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"crypto-dashboard-go/internal/models"
)

// 每个后端端点一个类型化访问函数。读取类访问器把错误连同空值一起返回，
// 调用方（渲染路径）可以安全地忽略错误继续渲染其余部分；
// 变更类访问器总是把错误抛给调用方，避免出现假的"已保存"确认。

// --- 自选列表 (watchlist) ---

// FetchWatchlist 拉取全部自选项 GET /dashboard
func (c *Client) FetchWatchlist(ctx context.Context) ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	err := c.request(ctx, OpWatchlist, "GET", "/dashboard", nil, nil, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// FetchWatchlistSymbol 拉取指定symbol的所有行 GET /dashboard/symbol/{symbol}
// 服务端同一symbol可能存在多行，规范项选择在store层完成。
func (c *Client) FetchWatchlistSymbol(ctx context.Context, symbol string) ([]models.WatchlistItem, error) {
	var items []models.WatchlistItem
	err := c.request(ctx, OpWatchlist, "GET", "/dashboard/symbol/"+url.PathEscape(symbol), nil, nil, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// CreateWatchlistItem 新建自选项 POST /dashboard
func (c *Client) CreateWatchlistItem(ctx context.Context, item *models.WatchlistItem) (*models.WatchlistItem, error) {
	var created models.WatchlistItem
	if err := c.request(ctx, OpWatchlistMutation, "POST", "/dashboard", nil, item, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// SaveWatchlistItem 保存自选项设置 PUT /dashboard/{id}
func (c *Client) SaveWatchlistItem(ctx context.Context, item *models.WatchlistItem) error {
	path := fmt.Sprintf("/dashboard/%d", item.ID)
	return c.request(ctx, OpWatchlistMutation, "PUT", path, nil, item, nil)
}

// DeleteWatchlistItem 删除自选项 DELETE /dashboard/{id}
func (c *Client) DeleteWatchlistItem(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/dashboard/%d", id)
	return c.request(ctx, OpWatchlistMutation, "DELETE", path, nil, nil, nil)
}

// --- 聚合仪表盘 ---

// FetchDashboardState 拉取权威全量状态 GET /dashboard/state。
// 同操作的旧请求会被取消，避免手动刷新与定时刷新互相覆盖。
func (c *Client) FetchDashboardState(ctx context.Context) (*models.DashboardState, error) {
	opCtx, cancel := c.beginExclusive(ctx, OpDashboardState)
	defer cancel()

	var state models.DashboardState
	if err := c.request(opCtx, OpDashboardState, "GET", "/dashboard/state", nil, nil, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// FetchDashboardSnapshot 拉取预聚合的快照 GET /dashboard/snapshot (可能滞后，但快)
func (c *Client) FetchDashboardSnapshot(ctx context.Context) (*models.DashboardState, error) {
	var snap models.DashboardState
	if err := c.request(ctx, OpDashboardSnapshot, "GET", "/dashboard/snapshot", nil, nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// --- 行情快照 ---

// FetchTopCoins 拉取行情快照 GET /market/top-coins-data。
// symbols 非空时只请求这些工具；同操作的旧请求会被取消。
func (c *Client) FetchTopCoins(ctx context.Context, symbols []string) ([]models.TopCoin, error) {
	opCtx, cancel := c.beginExclusive(ctx, OpTopCoins)
	defer cancel()

	query := url.Values{}
	if len(symbols) > 0 {
		query.Set("symbols", strings.Join(symbols, ","))
	}

	var coins []models.TopCoin
	if err := c.request(opCtx, OpTopCoins, "GET", "/market/top-coins-data", query, nil, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// AddCustomCoin 添加自定义币 POST /market/top-coins/custom
func (c *Client) AddCustomCoin(ctx context.Context, symbol string) error {
	body := map[string]string{"symbol": symbol}
	return c.request(ctx, OpCustomCoins, "POST", "/market/top-coins/custom", nil, body, nil)
}

// RemoveCustomCoin 移除自定义币 DELETE /market/top-coins/custom/{symbol}
func (c *Client) RemoveCustomCoin(ctx context.Context, symbol string) error {
	return c.request(ctx, OpCustomCoins, "DELETE", "/market/top-coins/custom/"+url.PathEscape(symbol), nil, nil, nil)
}

// --- 信号 (熔断保护) ---

// FetchSignals 拉取单symbol的技术信号 GET /signals。
// 熔断打开导致的短路在这里被有意当作非错误处理：解析为nil而不是向上传播，
// 信号缺失不应阻塞仪表盘其余部分的渲染。
func (c *Client) FetchSignals(ctx context.Context, symbol string) (*models.StrategyDecision, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var decision models.StrategyDecision
	err := c.request(ctx, OpSignals, "GET", "/signals", query, nil, &decision)
	if err != nil {
		if models.IsCircuitOpen(err) {
			return nil, nil
		}
		return nil, err
	}
	return &decision, nil
}

// FetchAlertRatio 拉取每交易对告警比率 GET /alert-ratio
func (c *Client) FetchAlertRatio(ctx context.Context) ([]models.AlertRatio, error) {
	var ratios []models.AlertRatio
	if err := c.request(ctx, OpAlertRatio, "GET", "/alert-ratio", nil, nil, &ratios); err != nil {
		return nil, err
	}
	return ratios, nil
}

// --- 订单 ---

// FetchOpenOrders 拉取统一挂单列表 GET /orders/open
func (c *Client) FetchOpenOrders(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := c.request(ctx, OpOrders, "GET", "/orders/open", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// FetchOrderHistory 拉取已执行订单 GET /orders/history
func (c *Client) FetchOrderHistory(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	if err := c.request(ctx, OpOrders, "GET", "/orders/history", nil, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// PlaceQuickOrder 快捷下单 POST /orders/quick。
// 未指定 client_order_id 时自动生成一个，失败必须向上抛出。
func (c *Client) PlaceQuickOrder(ctx context.Context, req *models.QuickOrderRequest) (*models.Order, error) {
	if req.Symbol == "" {
		return nil, errors.New("快捷下单缺少symbol")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("快捷下单数量必须为正数: %v", req.Amount)
	}
	if req.ClientOrderID == "" {
		req.ClientOrderID = c.nextClientOrderID()
	}

	var placed models.Order
	if err := c.request(ctx, OpOrderMutation, "POST", "/orders/quick", nil, req, &placed); err != nil {
		return nil, err
	}
	return &placed, nil
}

// FetchTPSLValues 拉取后端建议的止盈/止损价 GET /orders/tp-sl-values
func (c *Client) FetchTPSLValues(ctx context.Context, symbol string) (*models.TPSLValues, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var values models.TPSLValues
	if err := c.request(ctx, OpOrders, "GET", "/orders/tp-sl-values", query, nil, &values); err != nil {
		return nil, err
	}
	return &values, nil
}

// --- 告警开关 ---

type alertToggleBody struct {
	Enabled bool `json:"enabled"`
}

// SetAlert 切换总告警 PUT /watchlist/{symbol}/alert
func (c *Client) SetAlert(ctx context.Context, symbol string, enabled bool) error {
	path := "/watchlist/" + url.PathEscape(symbol) + "/alert"
	return c.request(ctx, OpAlertToggle, "PUT", path, nil, alertToggleBody{Enabled: enabled}, nil)
}

// SetBuyAlert 切换买入告警 PUT /watchlist/{symbol}/buy-alert
func (c *Client) SetBuyAlert(ctx context.Context, symbol string, enabled bool) error {
	path := "/watchlist/" + url.PathEscape(symbol) + "/buy-alert"
	return c.request(ctx, OpAlertToggle, "PUT", path, nil, alertToggleBody{Enabled: enabled}, nil)
}

// SetSellAlert 切换卖出告警 PUT /watchlist/{symbol}/sell-alert
func (c *Client) SetSellAlert(ctx context.Context, symbol string, enabled bool) error {
	path := "/watchlist/" + url.PathEscape(symbol) + "/sell-alert"
	return c.request(ctx, OpAlertToggle, "PUT", path, nil, alertToggleBody{Enabled: enabled}, nil)
}

// --- 策略配置 ---

// GetStrategyConfig 读取全局策略配置 GET /config
func (c *Client) GetStrategyConfig(ctx context.Context) (*models.StrategyConfig, error) {
	var cfg models.StrategyConfig
	if err := c.request(ctx, OpConfig, "GET", "/config", nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PutStrategyConfig 保存全局策略配置 PUT /config
func (c *Client) PutStrategyConfig(ctx context.Context, cfg *models.StrategyConfig) error {
	return c.request(ctx, OpConfig, "PUT", "/config", nil, cfg, nil)
}

// GetCoinConfig 读取单币策略覆盖 GET /coins/{symbol}
func (c *Client) GetCoinConfig(ctx context.Context, symbol string) (*models.CoinConfig, error) {
	var cfg models.CoinConfig
	if err := c.request(ctx, OpConfig, "GET", "/coins/"+url.PathEscape(symbol), nil, nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PutCoinConfig 保存单币策略覆盖 PUT /coins/{symbol}
func (c *Client) PutCoinConfig(ctx context.Context, cfg *models.CoinConfig) error {
	return c.request(ctx, OpConfig, "PUT", "/coins/"+url.PathEscape(cfg.Symbol), nil, cfg, nil)
}

// --- 实盘开关 ---

// ToggleLiveTrading 切换实盘/模拟 POST /trading/live-toggle
func (c *Client) ToggleLiveTrading(ctx context.Context, live bool) (*models.LiveStatus, error) {
	body := map[string]bool{"live": live}
	var status models.LiveStatus
	if err := c.request(ctx, OpTrading, "POST", "/trading/live-toggle", nil, body, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetLiveStatus 查询实盘开关状态 GET /trading/live-status
func (c *Client) GetLiveStatus(ctx context.Context) (*models.LiveStatus, error) {
	var status models.LiveStatus
	if err := c.request(ctx, OpTrading, "GET", "/trading/live-status", nil, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// --- 报表与运维 ---

// FetchExpectedTakeProfit 拉取预期止盈报表 GET /dashboard/expected-take-profit
func (c *Client) FetchExpectedTakeProfit(ctx context.Context) ([]models.ExpectedTakeProfitEntry, error) {
	var entries []models.ExpectedTakeProfitEntry
	if err := c.request(ctx, OpExpectedTP, "GET", "/dashboard/expected-take-profit", nil, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// FetchExpectedTakeProfitSymbol 拉取单symbol的预期止盈 GET /dashboard/expected-take-profit/{symbol}
func (c *Client) FetchExpectedTakeProfitSymbol(ctx context.Context, symbol string) (*models.ExpectedTakeProfitEntry, error) {
	var entry models.ExpectedTakeProfitEntry
	path := "/dashboard/expected-take-profit/" + url.PathEscape(symbol)
	if err := c.request(ctx, OpExpectedTP, "GET", path, nil, nil, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// FetchMonitoring 拉取运维遥测 GET /monitoring/{section}
func (c *Client) FetchMonitoring(ctx context.Context, section string) ([]models.MonitoringStatus, error) {
	var statuses []models.MonitoringStatus
	if err := c.request(ctx, OpMonitoring, "GET", "/monitoring/"+url.PathEscape(section), nil, nil, &statuses); err != nil {
		return nil, err
	}
	return statuses, nil
}
