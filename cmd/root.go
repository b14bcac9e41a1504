package cmd

import (
	"fmt"
	"os"

	"LocalSpot/config"
	"LocalSpot/logger"
	"LocalSpot/server"

	"github.com/spf13/cobra"
)

// cfg 在 PersistentPreRunE 中加载，所有子命令共用
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "localspot",
	Short:        "LocalSpot streams your music folder to any browser.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置并初始化日志
		cfg = config.Load()
		return logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogFile,
			MaxSize:    cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAgeDays,
			Compress:   cfg.LogCompress,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cfg)
	},
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
