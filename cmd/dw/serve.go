package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vivek100/dashwizard/internal/events"
	"github.com/vivek100/dashwizard/internal/store"
	"github.com/vivek100/dashwizard/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine and the UI events server",
	Long: `Run the engine in the foreground:

  1. Loads the local cache and initializes the dashboard store
  2. Starts the background sync worker (queue draining, periodic pulls)
  3. Serves WebSocket events (status, queue length, sync completions)
     for UI clients on the configured port

Stops cleanly on SIGINT/SIGTERM; pending operations stay durably queued
for the next run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger("[dw] ")

		eng, err := openEngine(logger)
		if err != nil {
			return err
		}
		defer eng.close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		st := store.New(eng.db, eng.mgr, eng.scope, logger)
		if err := st.Initialize(ctx); err != nil {
			return err
		}
		defer st.Close()

		srv := events.NewServer(&events.Config{
			Port:   viper.GetInt("events.port"),
			Logger: logger,
		})
		srv.Attach(eng.mgr)
		if err := srv.Start(); err != nil {
			return err
		}
		defer srv.Stop()

		fmt.Printf("%s Engine running: %d dashboards, %d pending operations\n",
			ui.RenderPass("✓"), len(st.Dashboards()), st.PendingOperations())
		fmt.Printf("   Events: ws://%s/ws\n", srv.Addr())

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig

		fmt.Printf("\n%s Shutting down\n", ui.RenderAccent("→"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
