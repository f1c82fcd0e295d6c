package cmd

import (
	"fmt"

	"AudioDeck/config"
	"AudioDeck/db"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "数据库迁移",
	Long:  `连接 MySQL 并创建或更新撤销历史表。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if err := initLogger(cfg); err != nil {
			return err
		}
		fmt.Printf("数据库: %s:%s/%s\n", cfg.DBHost, cfg.DBPort, cfg.DBName)

		if err := db.ConnectGormDB(cfg); err != nil {
			return fmt.Errorf("无法连接到数据库: %w", err)
		}
		defer db.CloseGormDB()

		if err := db.AutoMigrateModels(); err != nil {
			return err
		}
		fmt.Println("迁移完成！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
