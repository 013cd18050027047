package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dushixiang/pulse/pkg/agent"
	"github.com/dushixiang/pulse/pkg/agent/config"
	"github.com/kardianos/service"
)

// program 实现 service.Interface
type program struct {
	cfg    *config.Config
	cancel context.CancelFunc
}

// Start 启动服务
func (p *program) Start(s service.Service) error {
	agent.InitLogger(&p.cfg.Agent)
	slog.Info("Pulse Agent 服务启动中...")

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	reporter := agent.NewReporter(p.cfg)
	go func() {
		if err := reporter.Start(ctx); err != nil {
			slog.Warn("探针运行出错", "error", err)
		}
	}()
	return nil
}

// Stop 停止服务
func (p *program) Stop(s service.Service) error {
	slog.Info("Pulse Agent 服务停止中...")
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// ServiceManager 服务管理器
type ServiceManager struct {
	cfg     *config.Config
	service service.Service
}

// NewServiceManager 创建服务管理器
func NewServiceManager(cfg *config.Config) (*ServiceManager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("获取可执行文件路径失败: %w", err)
	}

	svcConfig := &service.Config{
		Name:        "pulse-agent",
		DisplayName: "Pulse Agent",
		Description: "Pulse 心跳探针 - 定期向服务端上报设备在线状态",
		Arguments:   []string{"agent", "run", "--config", cfg.Path},
		Executable:  execPath,
		Option: service.KeyValue{
			// Linux systemd 配置
			"Restart":            "always",
			"RestartSec":         "10",
			"StartLimitInterval": "0",
			"KillMode":           "process",

			// Windows 配置
			"OnFailure":    "restart",
			"ResetPeriod":  86400,
			"RestartDelay": 10000,

			// 其他 Unix 系统 (upstart/launchd)
			"KeepAlive": true,
			"RunAtLoad": true,
		},
	}

	s, err := service.New(&program{cfg: cfg}, svcConfig)
	if err != nil {
		return nil, fmt.Errorf("创建服务失败: %w", err)
	}

	return &ServiceManager{
		cfg:     cfg,
		service: s,
	}, nil
}

// Install 安装服务
func (m *ServiceManager) Install() error {
	return m.service.Install()
}

// Uninstall 卸载服务（先停止）
func (m *ServiceManager) Uninstall() error {
	_ = m.service.Stop()
	return m.service.Uninstall()
}

// Start 启动服务
func (m *ServiceManager) Start() error {
	return m.service.Start()
}

// Stop 停止服务
func (m *ServiceManager) Stop() error {
	return m.service.Stop()
}

// Status 查看服务状态
func (m *ServiceManager) Status() (string, error) {
	status, err := m.service.Status()
	if err != nil {
		return "", err
	}

	switch status {
	case service.StatusRunning:
		return "运行中 (Running)", nil
	case service.StatusStopped:
		return "已停止 (Stopped)", nil
	default:
		return "未知 (Unknown)", nil
	}
}

// Run 运行服务（用于 agent run 命令）
func (m *ServiceManager) Run() error {
	if !service.Interactive() {
		// 在服务管理器控制下运行
		return m.service.Run()
	}

	// 交互模式（前台运行）
	agent.InitLogger(&m.cfg.Agent)
	slog.Info("配置加载成功",
		"server", m.cfg.Server.URL,
		"deviceName", m.cfg.Agent.DeviceName,
		"interval", m.cfg.Agent.IntervalSeconds)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	reporter := agent.NewReporter(m.cfg)
	go func() {
		if err := reporter.Start(ctx); err != nil {
			slog.Warn("探针运行出错", "error", err)
		}
	}()

	<-interrupt
	slog.Info("收到中断信号，正在关闭...")
	cancel()
	return nil
}
