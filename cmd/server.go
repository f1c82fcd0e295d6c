package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"AudioDeck/cache"
	"AudioDeck/config"
	"AudioDeck/core/project"
	"AudioDeck/core/transport"
	"AudioDeck/db"
	"AudioDeck/logger"
	"AudioDeck/repository"
	"AudioDeck/server"
	"AudioDeck/storage"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 AudioDeck 服务器",
	Long:  `启动 HTTP 服务器，提供项目传输控制 API、WebSocket 事件流和 Prometheus 指标`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(config.Load())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

// diskCaches 为每个项目创建录音缓存，退出时统一关闭
type diskCaches struct {
	dir    string
	mu     sync.Mutex
	caches []*storage.DiskCache
}

func (d *diskCaches) forProject(projectID string) transport.DiskCache {
	c := storage.NewDiskCache(d.dir, projectID)
	d.mu.Lock()
	d.caches = append(d.caches, c)
	d.mu.Unlock()
	return c
}

func (d *diskCaches) closeAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.caches {
		if err := c.Close(); err != nil {
			logger.Warn("关闭录音缓存失败", logger.ErrorField(err))
		}
	}
}

// runServer 连接可选的外部服务并启动 HTTP 服务，收到信号后退出
// MySQL、Redis、MinIO 不可用时只记录警告，对应功能关闭
func runServer(cfg *config.Config) error {
	if err := initLogger(cfg); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prefs := config.NewPreferences(cfg.Transport)
	if err := config.WatchPreferences(ctx, cfg.EnvFile, prefs); err != nil {
		logger.Warn("偏好设置热加载不可用", logger.String("path", cfg.EnvFile), logger.ErrorField(err))
	}

	transport.RegisterMetrics(prometheus.DefaultRegisterer)
	storage.RegisterMetrics(prometheus.DefaultRegisterer)

	hub := server.NewEventHub()
	caches := &diskCaches{dir: cfg.CacheDir}
	opts := project.Options{
		Prefs:      prefs,
		Publishers: []transport.StatePublisher{hub},
		Notifiers:  hub.NotifierFor,
		DiskCaches: caches.forProject,
	}

	// 撤销历史写入 MySQL
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Warn("MySQL 不可用，历史记录不会持久化", logger.ErrorField(err))
	} else {
		defer db.CloseGormDB()
		if err := db.AutoMigrateModels(); err != nil {
			logger.Warn("数据库迁移失败", logger.ErrorField(err))
		}
		opts.HistoryStore = repository.NewGormHistoryRepository(db.GormDB)
	}

	// 传输状态写入 Redis
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis 不可用，传输状态不会缓存", logger.ErrorField(err))
	} else {
		defer cache.CloseRedis()
		tc := cache.NewTransportCache(cache.RedisClient, 0)
		tc.Start(ctx)
		defer tc.Wait()
		opts.Publishers = append(opts.Publishers, tc)
	}

	// 自动保存快照上传到 MinIO
	if client, err := storage.NewMinioClient(ctx, cfg); err != nil {
		logger.Warn("MinIO 不可用，自动保存关闭", logger.ErrorField(err))
	} else {
		saves := storage.NewAutoSaveStore(client, cfg.MinioBucket, 0)
		saves.Start(ctx)
		defer saves.Wait()
		opts.AutoSaves = saves
	}

	registry := project.NewRegistry(ctx, opts)
	srv := server.New(cfg.ServerAddr, registry, hub, prometheus.DefaultGatherer)
	err := srv.Start(ctx)

	// 服务异常退出时也要停止所有项目
	stop()
	registry.Wait()
	caches.closeAll()
	return err
}
