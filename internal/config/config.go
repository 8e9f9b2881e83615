package config

import (
	"crypto-dashboard-go/internal/models"
	"encoding/json"
	"fmt"
	"os"
)

// LoadConfig 从指定路径加载JSON配置文件并解析到Config结构体中
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	config := &models.Config{}
	err = decoder.Decode(config)
	if err != nil {
		return nil, err
	}

	applyDefaults(config)
	if err := validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// applyDefaults 填充未设置的刷新参数
func applyDefaults(cfg *models.Config) {
	if cfg.FastIntervalSec == 0 {
		cfg.FastIntervalSec = 15
	}
	if cfg.SlowIntervalSec == 0 {
		cfg.SlowIntervalSec = 60
	}
	if cfg.FastStaggerMs == 0 {
		cfg.FastStaggerMs = 1000
	}
	if cfg.SlowStaggerMs == 0 {
		cfg.SlowStaggerMs = 2000
	}
	if cfg.BackoffCapMultiplier == 0 {
		cfg.BackoffCapMultiplier = 4
	}
	if cfg.SnapshotEverySlowTicks == 0 {
		cfg.SnapshotEverySlowTicks = 3
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "dashboard_cache"
	}
	if cfg.HistoryDir == "" {
		cfg.HistoryDir = "data"
	}
	// 环境变量优先于配置文件
	if key := os.Getenv("DASHBOARD_API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if url := os.Getenv("DASHBOARD_API_URL"); url != "" {
		cfg.BaseURL = url
	}
}

// validate 校验关键参数，避免带着非法的刷新周期启动
func validate(cfg *models.Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("base_url 不能为空 (也可通过 DASHBOARD_API_URL 设置)")
	}
	if cfg.FastIntervalSec <= 0 || cfg.SlowIntervalSec <= 0 {
		return fmt.Errorf("刷新周期必须为正数: fast=%d, slow=%d", cfg.FastIntervalSec, cfg.SlowIntervalSec)
	}
	if cfg.FastIntervalSec > cfg.SlowIntervalSec {
		return fmt.Errorf("快队列周期 (%ds) 不应大于慢队列周期 (%ds)", cfg.FastIntervalSec, cfg.SlowIntervalSec)
	}
	if cfg.BackoffCapMultiplier < 1 {
		return fmt.Errorf("backoff_cap_multiplier 至少为1, got %d", cfg.BackoffCapMultiplier)
	}
	if cfg.SnapshotEverySlowTicks < 1 {
		return fmt.Errorf("snapshot_every_slow_ticks 至少为1, got %d", cfg.SnapshotEverySlowTicks)
	}
	return nil
}
