package cmd

import (
	"fmt"

	"LocalSpot/cache"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并进行基本读写操作。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.RedisEnabled() {
			return fmt.Errorf("未设置 REDIS_HOST，标签缓存未启用")
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		// 连接Redis
		client, err := cache.NewRedisClient(cfg)
		if err != nil {
			return err
		}
		defer client.Close()
		fmt.Fprintln(out, "Redis连接成功！")

		// 测试Redis基本操作
		if err := cache.CheckRedis(cmd.Context(), client); err != nil {
			return err
		}
		fmt.Fprintln(out, "Redis基本操作测试成功！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
