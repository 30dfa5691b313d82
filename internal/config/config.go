package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 DelegateGuard 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	Storage StorageConfig `json:"storage"`
	Signals SignalsConfig `json:"signals"`
	Monitor MonitorConfig `json:"monitor"`
	Alerts  AlertsConfig  `json:"alerts"`
	Log     LogConfig     `json:"log"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// StorageConfig 统一描述 MySQL、Redis 等后端的连接信息。
type StorageConfig struct {
	PolicyStore  PolicyStoreConfig  `json:"policy_store"`
	StateStore   StateStoreConfig   `json:"state_store"`
	ExecutionLog ExecutionLogConfig `json:"execution_log"`
}

// PolicyStoreConfig 选择策略文档的持久化后端。
type PolicyStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// StateStoreConfig 选择执行历史的存储后端。
type StateStoreConfig struct {
	Driver         string `json:"driver"`
	RedisAddress   string `json:"redis_address"`
	RedisPassword  string `json:"redis_password"`
	RedisDB        int    `json:"redis_db"`
	KeyPrefix      string `json:"key_prefix"`
	RetentionHours int    `json:"retention_hours"`
}

// ExecutionLogConfig 配置执行审计日志库。
type ExecutionLogConfig struct {
	Enabled bool   `json:"enabled"`
	DSN     string `json:"dsn"`
}

// SignalsConfig 配置外部信号源。
type SignalsConfig struct {
	RPCURL         string `json:"rpc_url"`
	IndexerURL     string `json:"indexer_url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	ChainsPath     string `json:"chains_path"`
	Chain          string `json:"chain"`
}

// MonitorConfig 配置异常行为监控。
type MonitorConfig struct {
	WindowSeconds      int `json:"window_seconds"`
	GlobalThreshold    int `json:"global_threshold"`
	PrincipalThreshold int `json:"principal_threshold"`
}

// AlertsConfig 配置告警外发渠道。
type AlertsConfig struct {
	WebhookURL    string `json:"webhook_url"`
	RabbitMQURL   string `json:"rabbitmq_url"`
	RabbitMQQueue string `json:"rabbitmq_queue"`
}

// LogConfig 配置结构化日志与决策审计日志。
type LogConfig struct {
	Level        string `json:"level"`
	Format       string `json:"format"`
	DecisionPath string `json:"decision_path"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.PolicyStore.Driver == "" {
		c.Storage.PolicyStore.Driver = "memory"
	}
	if c.Storage.StateStore.Driver == "" {
		c.Storage.StateStore.Driver = "memory"
	}
	if c.Storage.StateStore.KeyPrefix == "" {
		c.Storage.StateStore.KeyPrefix = "guard:"
	}
	if c.Storage.StateStore.RetentionHours <= 0 {
		c.Storage.StateStore.RetentionHours = 24
	}

	if c.Signals.TimeoutSeconds <= 0 {
		c.Signals.TimeoutSeconds = 3
	}
	if c.Signals.ChainsPath != "" && !filepath.IsAbs(c.Signals.ChainsPath) {
		c.Signals.ChainsPath = filepath.Join(baseDir, c.Signals.ChainsPath)
	}

	if c.Monitor.WindowSeconds <= 0 {
		c.Monitor.WindowSeconds = 3600
	}
	if c.Monitor.GlobalThreshold <= 0 {
		c.Monitor.GlobalThreshold = 10
	}
	if c.Monitor.PrincipalThreshold <= 0 {
		c.Monitor.PrincipalThreshold = 5
	}

	if c.Alerts.RabbitMQQueue == "" {
		c.Alerts.RabbitMQQueue = "delegateguard.alerts"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.DecisionPath != "" && !filepath.IsAbs(c.Log.DecisionPath) {
		c.Log.DecisionPath = filepath.Join(baseDir, c.Log.DecisionPath)
	}
}
