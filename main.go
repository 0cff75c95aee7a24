// @title EduCube 后端 API
// @version 1.0
// @description EduCube 在线学习平台的后端服务：课程目录、选课与学习进度、资源上传。

// @BasePath /api
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization

package main

import (
	"educube_backend/internal/app"
	"educube_backend/internal/config"
	"educube_backend/pkg/logger"
	"flag"
	"log"

	"go.uber.org/zap"
)

func main() {
	// 命令行参数
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	flag.Parse()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 设置迁移标志
	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly

	application, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer logger.Log.Sync()

	// 迁移完成后直接退出
	if *migrateOnly {
		logger.Log.Info("数据库迁移完成，退出程序")
		return
	}

	if err := application.Run(); err != nil {
		logger.Log.Fatal("Server error", zap.Error(err))
	}
}
