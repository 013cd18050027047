package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// AppConfig 应用配置
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Presence  PresenceConfig  `yaml:"presence"`
	Retention RetentionConfig `yaml:"retention"`
	GeoIP     GeoIPConfig     `yaml:"geoip"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig 服务端配置
type ServerConfig struct {
	Port int `yaml:"port"` // 监听端口，环境变量 PORT 优先
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite / postgres
	Path string `yaml:"path"` // sqlite 数据库文件路径
	DSN  string `yaml:"dsn"`  // postgres 连接串
}

// PresenceConfig 在线状态判定配置
type PresenceConfig struct {
	OfflineThresholdMinutes  int `yaml:"offlineThresholdMinutes"`  // 超过该时长未上报视为离线
	LoginGapMinutes          int `yaml:"loginGapMinutes"`          // 超过该间隔的心跳视为新登录
	HeartbeatIntervalSeconds int `yaml:"heartbeatIntervalSeconds"` // 客户端上报间隔，用于在线率计算
}

// RetentionConfig 数据保留配置
type RetentionConfig struct {
	Days              int  `yaml:"days"`              // 心跳事件保留天数
	IntervalHours     int  `yaml:"intervalHours"`     // 清理任务执行间隔（小时）
	PruneLoginSamples bool `yaml:"pruneLoginSamples"` // 是否按同样策略清理登录样本
}

// GeoIPConfig 地理位置查询配置
type GeoIPConfig struct {
	DBPath         string `yaml:"dbPath"`         // 本地 GeoLite2-City.mmdb 路径（可选）
	APIURL         string `yaml:"apiUrl"`         // HTTP 查询接口，%s 会被替换为 IP
	TimeoutSeconds int    `yaml:"timeoutSeconds"` // 查询超时（秒）
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"maxSize"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAge     int    `yaml:"maxAge"`
	Compress   bool   `yaml:"compress"`
}

// Default 返回默认配置
func Default() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port: 5000,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "pulse.db",
		},
		Presence: PresenceConfig{
			OfflineThresholdMinutes:  5,
			LoginGapMinutes:          10,
			HeartbeatIntervalSeconds: 60,
		},
		Retention: RetentionConfig{
			Days:          7,
			IntervalHours: 24,
		},
		GeoIP: GeoIPConfig{
			APIURL:         "http://ip-api.com/json/%s?fields=status,country,regionName,city,lat,lon,isp",
			TimeoutSeconds: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load 加载配置文件，文件不存在时使用默认配置
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("读取配置文件失败: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	// 环境变量 PORT 优先（部署平台约定）
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("环境变量 PORT 无效: %w", err)
		}
		cfg.Server.Port = p
	}

	return cfg, nil
}
