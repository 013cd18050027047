package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 探针配置
type Config struct {
	Path   string       `yaml:"-"` // 配置文件路径
	Server ServerConfig `yaml:"server"`
	Agent  AgentConfig  `yaml:"agent"`
}

// ServerConfig 服务端连接配置
type ServerConfig struct {
	URL            string `yaml:"url"`            // 服务端地址，如 http://example.com:5000
	TimeoutSeconds int    `yaml:"timeoutSeconds"` // 请求超时（秒）
}

// AgentConfig 探针本身的配置
type AgentConfig struct {
	DeviceName      string `yaml:"deviceName"`      // 设备名称（必填）
	IntervalSeconds int    `yaml:"intervalSeconds"` // 上报间隔（秒）
	DisablePing     bool   `yaml:"disablePing"`     // 关闭延迟探测
	LogLevel        string `yaml:"logLevel"`
	LogFile         string `yaml:"logFile"`
	LogMaxSize      int    `yaml:"logMaxSize"`
	LogMaxBackups   int    `yaml:"logMaxBackups"`
	LogMaxAge       int    `yaml:"logMaxAge"`
	LogCompress     bool   `yaml:"logCompress"`
}

// Load 加载探针配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.Path = path

	if cfg.Server.URL == "" {
		return nil, fmt.Errorf("服务端地址不能为空")
	}
	if cfg.Agent.DeviceName == "" {
		return nil, fmt.Errorf("设备名称不能为空")
	}
	if cfg.Server.TimeoutSeconds <= 0 {
		cfg.Server.TimeoutSeconds = 10
	}
	if cfg.Agent.IntervalSeconds <= 0 {
		cfg.Agent.IntervalSeconds = 10
	}
	return cfg, nil
}
