package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量前缀, 例如 DROP_STORAGE_PATH
const EnvPrefix = "DROP"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 0. 先加载 .env (不存在不算错, 已有的环境变量不会被覆盖)
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. 当前目录下的 .drop
		viper.AddConfigPath(".drop")
		// 3. 用户主目录下的 .drop
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".drop"))
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (DROP_DATABASE_HOST 等)
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 没找到配置文件时使用默认值和环境变量
		// 但如果是配置文件格式错，那就是错
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// 服务
	viper.SetDefault("server.addr", ":3000")
	viper.SetDefault("server.cors_origins", []string{})
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)

	// 存储默认值
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(".drop", "files"))
	viper.SetDefault("storage.temp_dir", "")
	viper.SetDefault("storage.s3.region", "us-east-1")

	// 缓存 (redis_url 为空时关闭)
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	// 数据库默认值
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", filepath.Join(".drop", "db.sqlite"))
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.name", "thingdrop")
	viper.SetDefault("database.sslmode", "disable")

	// 转码与上传
	viper.SetDefault("transcode.ffmpeg", "ffmpeg")
	viper.SetDefault("upload.max_bytes", int64(2<<30))

	viper.SetDefault("static.dir", "static")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}
