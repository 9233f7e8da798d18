package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vivek100/dashwizard/internal/ui"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the pending operation queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending sync operations in FIFO order",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger("[queue] ")

		eng, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer eng.close()

		ops, err := eng.db.PendingOps(eng.scope)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			fmt.Printf("%s Queue is empty\n", ui.RenderPass("✓"))
			return nil
		}

		fmt.Printf("\n%d pending operations:\n\n", len(ops))
		for _, op := range ops {
			line := fmt.Sprintf("   #%-4d %-7s %s", op.Seq, op.Kind, op.TargetID)
			if op.Attempts > 0 {
				line += ui.RenderWarn(fmt.Sprintf("  (%d failed attempts)", op.Attempts))
			}
			fmt.Println(line)
		}
		fmt.Println()
		return nil
	},
}

var queueClearForce bool

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard all pending operations without attempting them",
	Long: `Discard every queued operation for the configured user scope.

This is a data-loss action: local edits that have not reached the remote
service will NEVER be synced. The local cache itself is untouched.
Requires --force.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !queueClearForce {
			return fmt.Errorf("refusing to discard pending operations without --force (unsynced local edits would be lost)")
		}

		logger := newLogger("[queue] ")

		eng, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer eng.close()

		n, err := eng.mgr.ClearQueue()
		if err != nil {
			return err
		}
		fmt.Printf("%s Discarded %d pending operations\n", ui.RenderWarn("⚠"), n)
		return nil
	},
}

func init() {
	queueClearCmd.Flags().BoolVar(&queueClearForce, "force", false, "confirm discarding unsynced local edits")
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueClearCmd)
	rootCmd.AddCommand(queueCmd)
}
