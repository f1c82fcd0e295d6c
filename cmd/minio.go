package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"AudioDeck/config"
	"AudioDeck/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioStats     bool
	minioRecursive bool
	minioDelete    bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理MinIO存储桶中的自动保存快照，支持列出文件、查看统计信息、删除目录。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		client, err := storage.NewMinioClient(ctx, cfg)
		if err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		fmt.Println("MinIO连接成功！")

		if minioDelete {
			if minioPrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			fmt.Printf("\n删除目录: %s\n", minioPrefix)
			n, err := storage.DeletePrefix(ctx, client, cfg.MinioBucket, minioPrefix)
			if err != nil {
				log.Fatalf("删除目录失败: %v", err)
			}
			fmt.Printf("已删除 %d 个对象\n", n)
			return
		}

		objects, stats, err := storage.ListObjects(ctx, client, cfg.MinioBucket, minioPrefix, minioRecursive)
		if err != nil {
			log.Fatalf("列出文件失败: %v", err)
		}

		if !minioStats {
			fmt.Printf("\n列出存储桶中的文件 (前缀: %s)...\n", minioPrefix)
			for _, object := range objects {
				fmt.Printf("%-60s %10s  %s\n", object.Key, formatSize(object.Size),
					object.LastModified.Format("2006-01-02 15:04:05"))
			}
		}

		fmt.Printf("\n对象数: %d, 总大小: %s", stats.TotalObjects, formatSize(stats.TotalSize))
		if !stats.LastModified.IsZero() {
			fmt.Printf(", 最后修改: %s", stats.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println("\nMinIO操作完成！")
	},
}

// formatSize 格式化文件大小
func formatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "autosave/", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "只显示统计信息")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", true, "递归列出子目录")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定目录及其下的所有文件")

	minioCmd.Example = `  # 列出全部自动保存快照
  audiodeck minio

  # 只看某个项目
  audiodeck minio -p "autosave/<project-id>/"

  # 显示统计信息
  audiodeck minio -s

  # 删除某个项目的快照
  audiodeck minio -d -p "autosave/<project-id>/"`
}
