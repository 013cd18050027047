package main

import (
	"fmt"
	"os"

	"github.com/dushixiang/pulse/internal/app"
	agentconfig "github.com/dushixiang/pulse/pkg/agent/config"
	agentservice "github.com/dushixiang/pulse/pkg/agent/service"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pulse",
		Short:        "设备心跳监控",
		SilenceUsage: true,
	}

	root.AddCommand(newServerCmd())
	root.AddCommand(newAgentCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	})

	return root
}

func newServerCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "server",
		Short: "启动服务端",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run(configPath)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "pulse.yaml", "配置文件路径")
	return cmd
}

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "心跳探针",
	}

	var configPath string
	cmd.PersistentFlags().StringVar(&configPath, "config", "agent.yaml", "配置文件路径")

	manager := func() (*agentservice.ServiceManager, error) {
		cfg, err := agentconfig.Load(configPath)
		if err != nil {
			return nil, err
		}
		return agentservice.NewServiceManager(cfg)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "前台运行探针",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			return m.Run()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "安装为系统服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			if err := m.Install(); err != nil {
				return err
			}
			fmt.Println("服务安装成功")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "卸载系统服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			if err := m.Uninstall(); err != nil {
				return err
			}
			fmt.Println("服务卸载成功")
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "启动系统服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			return m.Start()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "停止系统服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			return m.Stop()
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "查看服务状态",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager()
			if err != nil {
				return err
			}
			status, err := m.Status()
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		},
	})

	return cmd
}
