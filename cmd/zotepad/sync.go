package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aatrooox/zotepad/internal/client"
	"github.com/aatrooox/zotepad/internal/config"
	"github.com/aatrooox/zotepad/internal/logging"
	"github.com/aatrooox/zotepad/internal/store"
	zsync "github.com/aatrooox/zotepad/internal/sync"
	"github.com/aatrooox/zotepad/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync with the paired peer",
	Long: `Run one pull-merge-push round against the paired install.

Remote changes are pulled and merged first (last writer wins per row),
then local changes the peer has not seen are pushed back. Requires a
pairing; run 'zotepad pair' first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pairing, err := config.LoadPairing(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to load pairing: %w", err)
		}
		if pairing == nil {
			return fmt.Errorf("not paired; run 'zotepad pair' first")
		}

		logger := logging.New("sync", cfg)
		ctx := context.Background()

		st, err := store.Open(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer func() { _ = st.Close() }()

		if err := st.InitSchemaContext(ctx); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}

		maxVersion, err := st.GlobalMaxVersion(ctx)
		if err != nil {
			return fmt.Errorf("failed to read max version: %w", err)
		}
		alloc := zsync.NewAllocator(nil, maxVersion)

		cur, err := client.LoadCursor(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to load sync cursor: %w", err)
		}

		fmt.Println(ui.Info("Syncing with %s", pairing.PeerAddress))

		c := client.New(pairing.PeerAddress, pairing.Token, logger)
		result, err := c.Sync(ctx, st, alloc, cur)
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}

		if err := cur.Save(cfg.DataDir); err != nil {
			return fmt.Errorf("failed to save sync cursor: %w", err)
		}

		fmt.Println(ui.Success("Sync complete"))
		fmt.Println(ui.Dim(fmt.Sprintf("  pulled:  %d", result.Pulled)))
		fmt.Println(ui.Dim(fmt.Sprintf("  pushed:  %d", result.Pushed)))
		if result.Conflicts > 0 {
			fmt.Println(ui.Warn("resolved %d push conflict(s) by re-pulling", result.Conflicts))
		}
		fmt.Println(ui.Dim(fmt.Sprintf("  peer at version %d", result.ServerVersion)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
