package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/app"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/config"
	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/logger"
)

func SweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete documents from the document store",
	}

	cmd.AddCommand(sweepOrphansCmd(), sweepOldCmd())
	return cmd
}

func sweepOrphansCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "orphans",
		Short: "Delete documents no image references",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				result := a.CleanupService.CleanupOrphanedFiles(ctx, days)
				if err := printJSON(result); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("orphan sweep failed: %s", result.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "older-than-days", 0, "only delete orphans created more than this many days ago (0 deletes all)")
	return cmd
}

func sweepOldCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "old",
		Short: "Delete documents older than a cutoff, referenced or not",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				result := a.CleanupService.CleanupOldFilesOnly(ctx, days)
				if err := printJSON(result); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("age sweep failed: %s", result.Error)
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&days, "older-than-days", 30, "delete documents created more than this many days ago")
	return cmd
}

// withApp opens both stores for a one-off command. The background sweeper
// is never started here.
func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg := config.Load()
	cfg.SweepInterval = 0
	logger.Init(cfg.AppName, cfg.IsDevelopment(), cfg.SentryDSN)
	defer logger.Flush()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(context.Background()) }()

	return fn(ctx, a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
