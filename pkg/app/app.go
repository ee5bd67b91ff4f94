package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"thingdrop/pkg/ingester"
	"thingdrop/pkg/logger"
	"thingdrop/pkg/meta"
	"thingdrop/pkg/server"
	"thingdrop/pkg/storage"
	"thingdrop/pkg/storage/cache"
	"thingdrop/pkg/storage/disk"
	"thingdrop/pkg/storage/s3"
	"thingdrop/pkg/transcode"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务, CLI 和 HTTP 服务共用
type App struct {
	Store      storage.Store
	Registry   meta.Registry
	Transcoder transcode.Transcoder
	Ingester   *ingester.Ingester

	// TempDir 是上传暂存和转码输出目录
	TempDir string

	db    *meta.DB
	redis *redis.Client
}

// NewApp 按 Viper 配置组装各层, 不关心具体是哪个命令在用
func NewApp(ctx context.Context) (*App, error) {
	a := &App{}
	if err := a.init(ctx); err != nil {
		// 组装中途失败时释放已打开的连接
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	var err error
	ttl := viper.GetDuration("cache.ttl")

	// 1. 缓存 (可选)
	if url := viper.GetString("cache.redis_url"); url != "" {
		a.redis, err = cache.Connect(ctx, cache.Config{RedisURL: url, TTL: ttl})
		if err != nil {
			return err
		}
	}

	// 2. 存储层
	store, tempDir, err := initStore(ctx)
	if err != nil {
		return err
	}
	if a.redis != nil {
		store = cache.NewCachedStore(store, a.redis, ttl)
	}
	a.Store = store
	a.TempDir = tempDir

	// 3. 元数据
	a.db, err = meta.NewDB(ctx, dbConfig())
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	var registry meta.Registry = meta.NewRepository(a.db)
	if a.redis != nil {
		registry = cache.NewCachedRegistry(registry, a.redis, ttl)
	}
	a.Registry = registry

	// 4. 转码与流水线
	a.Transcoder, err = transcode.NewFFmpeg(viper.GetString("transcode.ffmpeg"), tempDir, a.Store)
	if err != nil {
		return fmt.Errorf("failed to init transcoder: %w", err)
	}
	a.Ingester = ingester.NewIngester(a.Store, a.Registry, a.Transcoder, ingester.Options{
		TempDir:  tempDir,
		MaxBytes: viper.GetInt64("upload.max_bytes"),
	})

	logger.L.Debug("app initialized",
		"storage", viper.GetString("storage.type"),
		"database", viper.GetString("database.driver"),
		"cache", a.redis != nil,
	)
	return nil
}

// initStore 根据 storage.type 创建后端, 同时决定暂存目录
func initStore(ctx context.Context) (storage.Store, string, error) {
	tempDir := viper.GetString("storage.temp_dir")

	switch storeType := viper.GetString("storage.type"); storeType {
	case "disk", "":
		store, err := disk.NewAdapter(viper.GetString("storage.path"))
		if err != nil {
			return nil, "", fmt.Errorf("failed to init disk storage: %w", err)
		}
		// 与存储同盘, 转码产物可以直接 rename 进去
		if tempDir == "" {
			tempDir = store.TempDir()
		}
		return store, tempDir, nil

	case "s3":
		cfg := s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
		}
		if cfg.Bucket == "" {
			return nil, "", errors.New("storage.s3.bucket is required")
		}
		store, err := s3.NewAdapter(ctx, cfg)
		if err != nil {
			return nil, "", fmt.Errorf("failed to init s3 storage: %w", err)
		}
		if tempDir == "" {
			tempDir = filepath.Join(os.TempDir(), "thingdrop")
		}
		return store, tempDir, nil

	default:
		return nil, "", fmt.Errorf("unsupported storage type: %s", storeType)
	}
}

func dbConfig() meta.Config {
	return meta.Config{
		Driver:   viper.GetString("database.driver"),
		Path:     viper.GetString("database.path"),
		Host:     viper.GetString("database.host"),
		Port:     viper.GetInt("database.port"),
		User:     viper.GetString("database.user"),
		Password: viper.GetString("database.password"),
		DBName:   viper.GetString("database.name"),
		SSLMode:  viper.GetString("database.sslmode"),
	}
}

// ServerConfig 从 Viper 读取 HTTP 服务配置
func (a *App) ServerConfig() server.Config {
	return server.Config{
		Addr:            viper.GetString("server.addr"),
		CORSOrigins:     viper.GetStringSlice("server.cors_origins"),
		ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
		StaticDir:       viper.GetString("static.dir"),
		MaxUploadBytes:  viper.GetInt64("upload.max_bytes"),
	}
}

// NewServer 用 App 持有的组件创建 HTTP 服务
func (a *App) NewServer() (*server.Server, error) {
	return server.New(a.ServerConfig(), server.Deps{
		Store:    a.Store,
		Registry: a.Registry,
		Uploader: a.Ingester,
	})
}

// Close 释放数据库和 Redis 连接
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
	}
	return errors.Join(errs...)
}
