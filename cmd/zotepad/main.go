// Command zotepad runs the LAN sync service for a ZotePad install:
// the protocol server, the peer client, pairing, and status tooling.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aatrooox/zotepad/internal/config"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "zotepad",
	Short:   "LAN sync service for ZotePad",
	Version: version,
	Long: `zotepad keeps two installs of the ZotePad note app in sync over the
local network. One install runs the sync server (zotepad serve); the
paired install pulls and pushes changes against it (zotepad sync).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("zotepad %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.zotepad/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
