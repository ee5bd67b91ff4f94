package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"thingdrop/pkg/ignore"

	"github.com/spf13/cobra"
)

const defaultIgnore = `# 不会被 drop add 导入的路径 (gitignore 语法)
*.tmp
*.part
`

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a thingdrop data directory",
	Long:  `Create the .drop directory (file store and database location) in the current directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		dataDir := filepath.Join(wd, ".drop")

		if _, err := os.Stat(dataDir); err == nil {
			fmt.Fprintf(out, "⚠️  thingdrop already initialized in %s\n", dataDir)
			return nil
		}

		if err := os.MkdirAll(filepath.Join(dataDir, "files"), 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		ignorePath := filepath.Join(wd, ignore.FileName)
		if _, err := os.Stat(ignorePath); os.IsNotExist(err) {
			if err := os.WriteFile(ignorePath, []byte(defaultIgnore), 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", ignore.FileName, err)
			}
		}

		fmt.Fprintf(out, "✅ Initialized empty thingdrop in %s\n", dataDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
