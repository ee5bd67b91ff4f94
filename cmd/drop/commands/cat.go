package commands

import (
	"fmt"
	"io"

	"thingdrop/pkg/types"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat [name|digest]",
	Short: "Write a stored file to stdout",
	Long: `Look up a registered file by its stored name (for example <digest>.png), by
the name of its transcoded copy, or by its full content digest, and write the
bytes to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Drop == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		name := args[0]

		// 只输出已登记的文件: 完整摘要解析成存储名, 其他名字在登记表中确认
		if h := types.Hash(name); h.IsValid() {
			item, err := Drop.Registry.FindByDigest(ctx, h)
			if err != nil {
				return fmt.Errorf("cat failed: %w", err)
			}
			name = item.StoredName
		} else if _, err := Drop.Registry.FindByName(ctx, name); err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}

		rc, err := Drop.Store.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}
		defer rc.Close()

		// 二进制文件可以通过 > file 重定向
		_, err = io.Copy(cmd.OutOrStdout(), rc)
		return err
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
