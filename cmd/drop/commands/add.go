package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"thingdrop/pkg/ignore"
	"thingdrop/pkg/ingester"
	"thingdrop/pkg/meta"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var addJobs int

var addCmd = &cobra.Command{
	Use:   "add [path...]",
	Short: "Ingest files or directories",
	Long: `Walk the given paths and run every file through the ingestion pipeline.
Duplicates and unsupported files are reported and skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Drop == nil {
			return fmt.Errorf("app not initialized")
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()
		start := time.Now()

		wd, err := os.Getwd()
		if err != nil {
			return err
		}
		matcher, err := ignore.NewMatcher(wd)
		if err != nil {
			return fmt.Errorf("failed to load ignore rules: %w", err)
		}

		// 1. 收集文件
		var files []string
		for _, root := range args {
			err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if skip, err := ignored(matcher, wd, root, path); err != nil {
					return err
				} else if skip {
					if d.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}
				if d.Type().IsRegular() {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("walk failed: %w", err)
			}
		}

		// 2. 并发导入; 单个文件失败不影响其他文件
		var added, skipped, failed atomic.Int32
		var mu sync.Mutex // 保护 out

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(addJobs, 1))
		for _, path := range files {
			path := path // per-iteration copy (go directive < 1.22)
			g.Go(func() error {
				item, err := ingestFile(gctx, path)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					added.Add(1)
					fmt.Fprintf(out, "➕ %s -> %s\n", path, item.ServableName())
				case errors.Is(err, ingester.ErrDuplicate), errors.Is(err, ingester.ErrUnsupportedMediaType):
					skipped.Add(1)
					fmt.Fprintf(out, "⏭️  %s: %v\n", path, err)
				default:
					failed.Add(1)
					fmt.Fprintf(out, "❌ %s: %v\n", path, err)
				}
				return nil
			})
		}
		_ = g.Wait()

		fmt.Fprintf(out, "✅ Added %d, skipped %d, failed %d in %s\n",
			added.Load(), skipped.Load(), failed.Load(), time.Since(start).Round(time.Millisecond))
		if n := failed.Load(); n > 0 {
			return fmt.Errorf("%d files failed", n)
		}
		return nil
	},
}

// ignored 按相对路径匹配忽略规则。WalkDir 对相对参数返回相对路径,
// 所以先转成绝对路径; wd 之外的路径相对于它所在的参数根目录匹配
func ignored(matcher *ignore.Matcher, wd, root, path string) (bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false, err
	}
	rel, err := filepath.Rel(wd, abs)
	if err != nil || !filepath.IsLocal(rel) {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return false, err
		}
		if rel, err = filepath.Rel(absRoot, abs); err != nil {
			return false, err
		}
	}
	if rel == "." {
		return false, nil
	}
	return matcher.Matches(rel), nil
}

func ingestFile(ctx context.Context, path string) (*meta.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Drop.Ingester.Ingest(ctx, ingester.Upload{
		Filename: filepath.Base(path),
		Reader:   f,
	})
}

func init() {
	addCmd.Flags().IntVarP(&addJobs, "jobs", "j", 4, "number of files to ingest concurrently")
	rootCmd.AddCommand(addCmd)
}
