package commands

import (
	"context"
	"fmt"
	"os"

	"thingdrop/pkg/app"
	"thingdrop/pkg/config"
	"thingdrop/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	Drop *app.App
)

var rootCmd = &cobra.Command{
	Use:   "drop",
	Short: "thingdrop: a content-addressed drop box for images, audio, video and notes",
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// init 负责创建环境, 不需要 App
		if cmd.Name() == "init" {
			return nil
		}

		var err error
		Drop, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize thingdrop: %w\n(Did you run 'drop init'?)", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if Drop == nil {
			return nil
		}
		err := Drop.Close()
		Drop = nil
		return err
	},
	SilenceUsage: true,
}

// Execute 是入口
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.drop/config.yaml)")

	// 既可以在 yaml 里写，也可以用参数覆盖
	rootCmd.PersistentFlags().String("storage-path", "", "directory to store files")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	mustBind("storage.path", "storage-path")
	mustBind("log.level", "log-level")
}

func mustBind(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量, 然后初始化日志
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Fprintln(os.Stderr, "Config error:", err)
		os.Exit(1)
	}
	logger.Init(viper.GetString("log.level"), viper.GetString("log.format"))
}
