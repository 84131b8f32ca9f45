package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config 机器人顶层配置
type Config struct {
	Network     NetworkConfig     `yaml:"network"`
	Trading     TradingConfig     `yaml:"trading"`
	Risk        RiskConfig        `yaml:"risk"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
	Debug       DebugConfig       `yaml:"debug"`
}

// NetworkConfig 网络/交易所接入配置
type NetworkConfig struct {
	// Mainnet true 表示主网（签名 source 标记 "a"），false 表示测试网（"b"）
	Mainnet bool `yaml:"mainnet"`
	// APIURL 交易所 REST 入口，为空时按 Mainnet 选默认地址
	APIURL string `yaml:"api_url"`
	// VaultAddress 可选的 vault 地址（代理交易）
	VaultAddress string `yaml:"vault_address"`
	// DerivationPath 助记词派生路径
	DerivationPath string `yaml:"derivation_path"`
}

// TradingConfig 交易主循环配置
type TradingConfig struct {
	// Universe 交易标的列表（如 ["BTC","ETH"]）
	Universe []string `yaml:"universe"`
	// TickInterval 聚合周期
	TickInterval time.Duration `yaml:"tick_interval"`
	// SlippagePct 市价单滑点（如 0.05 = 5%）
	SlippagePct float64 `yaml:"slippage_pct"`
	// CapitalUtilization 单笔可用资金比例
	CapitalUtilization float64 `yaml:"capital_utilization"`
}

// RiskConfig 风控阈值配置（作为 RiskParameters 的初始值）
type RiskConfig struct {
	DrawdownWarningPct  float64 `yaml:"drawdown_warning_pct"`  // 如 -10
	DrawdownCriticalPct float64 `yaml:"drawdown_critical_pct"` // 如 -15
	DrawdownPausePct    float64 `yaml:"drawdown_pause_pct"`    // 如 -20
	DailyLossPausePct   float64 `yaml:"daily_loss_pause_pct"`  // 如 -8
	TradeLossAlertPct   float64 `yaml:"trade_loss_alert_pct"`  // 如 -15
	MaxExposurePct      float64 `yaml:"max_exposure_pct"`      // 如 80
	PositionSizeScalar  float64 `yaml:"position_size_scalar"`
	MaxLeverage         int     `yaml:"max_leverage"`

	// 执行熔断：连续/当日下单失败上限，<=0 表示禁用
	MaxConsecutiveOrderFailures int64 `yaml:"max_consecutive_order_failures"`
	MaxDailyOrderFailures       int64 `yaml:"max_daily_order_failures"`
}

// StorageConfig 持久化配置
type StorageConfig struct {
	// DatabasePath sqlite 审计库路径
	DatabasePath string `yaml:"database_path"`
	// StateDir 风控状态 JSON 持久化目录
	StateDir string `yaml:"state_dir"`
	// SecretStorePath badger 密钥库路径
	SecretStorePath string `yaml:"secret_store_path"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	OutputFile string `yaml:"output_file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DebugConfig 进程观测入口（expvar + pprof）
type DebugConfig struct {
	// ListenAddr 调试服务监听地址，为空表示关闭。建议 127.0.0.1:6061。
	ListenAddr string `yaml:"listen_addr"`
}

// Load 加载配置：先读 .env（存在则加载），再读 yaml 文件，最后套默认值并校验。
func Load(path string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Network.APIURL == "" {
		if c.Network.Mainnet {
			c.Network.APIURL = "https://api.hyperliquid.xyz"
		} else {
			c.Network.APIURL = "https://api.hyperliquid-testnet.xyz"
		}
	}
	if c.Trading.TickInterval <= 0 {
		c.Trading.TickInterval = 3 * time.Minute
	}
	if c.Trading.SlippagePct <= 0 {
		c.Trading.SlippagePct = 0.05
	}
	if c.Trading.CapitalUtilization <= 0 || c.Trading.CapitalUtilization > 1 {
		c.Trading.CapitalUtilization = 0.5
	}
	if c.Risk.DrawdownWarningPct == 0 {
		c.Risk.DrawdownWarningPct = -10
	}
	if c.Risk.DrawdownCriticalPct == 0 {
		c.Risk.DrawdownCriticalPct = -15
	}
	if c.Risk.DrawdownPausePct == 0 {
		c.Risk.DrawdownPausePct = -20
	}
	if c.Risk.DailyLossPausePct == 0 {
		c.Risk.DailyLossPausePct = -8
	}
	if c.Risk.TradeLossAlertPct == 0 {
		c.Risk.TradeLossAlertPct = -15
	}
	if c.Risk.MaxExposurePct == 0 {
		c.Risk.MaxExposurePct = 80
	}
	if c.Risk.PositionSizeScalar == 0 {
		c.Risk.PositionSizeScalar = 1.0
	}
	if c.Risk.MaxLeverage <= 0 {
		c.Risk.MaxLeverage = 10
	}
	if c.Risk.MaxConsecutiveOrderFailures == 0 {
		c.Risk.MaxConsecutiveOrderFailures = 5
	}
	if c.Risk.MaxDailyOrderFailures == 0 {
		c.Risk.MaxDailyOrderFailures = 20
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "data/goperp.db"
	}
	if c.Storage.StateDir == "" {
		c.Storage.StateDir = "data/state"
	}
	if c.Storage.SecretStorePath == "" {
		c.Storage.SecretStorePath = "data/secrets"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 100
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 5
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if len(c.Trading.Universe) == 0 {
		return fmt.Errorf("trading.universe 不能为空")
	}
	for _, sym := range c.Trading.Universe {
		if strings.TrimSpace(sym) == "" {
			return fmt.Errorf("trading.universe 含有空白标的")
		}
	}
	if c.Trading.SlippagePct >= 1 {
		return fmt.Errorf("trading.slippage_pct 必须 < 1（%.2f 不合法）", c.Trading.SlippagePct)
	}
	if c.Risk.DrawdownPausePct >= c.Risk.DrawdownCriticalPct ||
		c.Risk.DrawdownCriticalPct >= c.Risk.DrawdownWarningPct {
		return fmt.Errorf("风控阈值必须满足 pause < critical < warning（均为负百分比）")
	}
	if c.Network.VaultAddress != "" && !strings.HasPrefix(strings.ToLower(c.Network.VaultAddress), "0x") {
		return fmt.Errorf("network.vault_address 必须是 0x 开头的地址")
	}
	return nil
}

// Env 读取环境变量（带默认值）
func Env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
