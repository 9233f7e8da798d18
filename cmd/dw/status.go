package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vivek100/dashwizard/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local cache and sync queue status",
	Long: `Display the current state of the local-first engine:

  - Cache file location and size
  - Dashboard and template counts for the configured user scope
  - Pending operation count
  - Last successful full sync`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger("[status] ")

		eng, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer eng.close()

		snap, err := eng.db.LoadSnapshot(eng.scope)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s DashWizard local cache\n\n", ui.RenderAccent("📊"))
		fmt.Printf("   Cache:      %s", eng.db.Path())
		if info, err := os.Stat(eng.db.Path()); err == nil {
			fmt.Printf(" (%d KB)", info.Size()/1024)
		}
		fmt.Println()

		scope := eng.scope
		if scope == "" {
			scope = "(anonymous)"
		}
		fmt.Printf("   Scope:      %s\n", scope)
		fmt.Printf("   Dashboards: %d\n", len(snap.Dashboards))
		fmt.Printf("   Templates:  %d\n", len(snap.Templates))

		pending := eng.mgr.QueueLength()
		if pending > 0 {
			fmt.Printf("   Pending:    %s\n", ui.RenderWarn(fmt.Sprintf("%d operations", pending)))
		} else {
			fmt.Printf("   Pending:    %s\n", ui.RenderPass("none"))
		}

		if last := eng.mgr.LastSyncTime(); !last.IsZero() {
			fmt.Printf("   Last sync:  %s\n", last.Local().Format("2006-01-02 15:04:05"))
		} else {
			fmt.Printf("   Last sync:  %s\n", ui.RenderDim("never"))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
