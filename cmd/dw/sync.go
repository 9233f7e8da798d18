package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vivek100/dashwizard/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Drain the operation queue and pull a fresh remote snapshot",
	Long: `Force a full sync now:

  1. Attempts every pending operation against the remote service
  2. Fetches the complete remote dashboard and template collections

Exits non-zero if the remote is unreachable; queued operations are never
dropped by a failed sync.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger("[sync] ")

		eng, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer eng.close()

		before := eng.mgr.QueueLength()
		fmt.Printf("%s Syncing (%d pending operations)...\n", ui.RenderAccent("🔄"), before)

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		start := time.Now()
		if err := eng.mgr.ForceSync(ctx); err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		remaining := eng.mgr.QueueLength()
		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Applied: %d\n", before-remaining)
		if remaining > 0 {
			fmt.Printf("   %s %d operations still pending (will retry)\n", ui.RenderWarn("⚠"), remaining)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
