package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"AudioDeck/cache"
	"AudioDeck/config"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
)

var redisProject string

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功并进行基本读写；指定 --project 时打印该项目缓存的传输状态。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始测试Redis连接...")

		cfg := config.Load()
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer func() {
			if err := cache.CloseRedis(); err != nil {
				log.Printf("关闭Redis连接时发生错误: %v", err)
			}
		}()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fmt.Println("开始测试Redis基本操作...")
		if err := checkRedisReadWrite(ctx, cache.RedisClient); err != nil {
			log.Fatalf("Redis操作测试失败: %v", err)
		}
		fmt.Println("Redis基本操作测试成功！")

		if redisProject == "" {
			return
		}
		tc := cache.NewTransportCache(cache.RedisClient, 0)
		state, err := tc.GetState(ctx, redisProject)
		if err != nil {
			log.Fatalf("读取传输状态失败: %v", err)
		}
		if state == nil {
			fmt.Printf("项目 %s 没有缓存的传输状态\n", redisProject)
			return
		}
		fmt.Printf("项目 %s: token=%d playing=%v recording=%v paused=%v streamTime=%.3f\n",
			state.ProjectID, state.Token, state.Playing, state.Recording, state.Paused, state.StreamTime)
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().StringVar(&redisProject, "project", "", "打印指定项目的传输状态")
}

// checkRedisReadWrite 写入、读取并删除一个临时键
func checkRedisReadWrite(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	key := cache.StateKey("healthcheck")
	const want = "ok"
	if err := client.Set(ctx, key, want, time.Minute).Err(); err != nil {
		return fmt.Errorf("写入测试键失败: %w", err)
	}

	val, err := client.Get(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("读取测试键失败: %w", err)
	}
	if val != want {
		return fmt.Errorf("测试键的值不一致: got %s", val)
	}

	if err := client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("删除测试键失败: %w", err)
	}
	return nil
}
