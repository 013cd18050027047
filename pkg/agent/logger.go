package agent

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dushixiang/pulse/pkg/agent/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger 初始化探针日志系统
func InitLogger(cfg *config.AgentConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var writer io.Writer
	// 配置了日志文件时使用 lumberjack 滚动
	if cfg.LogFile != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSize,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAge,
			Compress:   cfg.LogCompress,
		}
	} else {
		writer = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format("2006-01-02 15:04:05.000"))
			}
			return a
		},
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(writer, opts)))
}
