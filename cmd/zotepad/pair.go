package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/aatrooox/zotepad/internal/client"
	"github.com/aatrooox/zotepad/internal/config"
	"github.com/aatrooox/zotepad/internal/logging"
	"github.com/aatrooox/zotepad/internal/ui"
)

var (
	pairAddress string
	pairToken   string
)

var pairCmd = &cobra.Command{
	Use:   "pair",
	Short: "Pair with another install",
	Long: `Record the peer this install syncs with.

Prompts for the peer's address and shared token, probes its /health
endpoint to confirm the address, and stores the pairing in
~/.zotepad/pairing.toml. Pass --address and --token to skip the
prompts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		address := pairAddress
		token := pairToken

		if address == "" {
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("Peer address").
						Description("e.g. http://192.168.1.20:54577").
						Value(&address),
					huh.NewInput().
						Title("Shared token").
						EchoMode(huh.EchoModePassword).
						Value(&token),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("pairing cancelled: %w", err)
			}
		}

		address = strings.TrimSpace(address)
		if address == "" {
			return fmt.Errorf("peer address is required")
		}
		if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
			address = "http://" + address
		}
		if token == "" {
			token = cfg.Token
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		probe := client.New(address, token, logging.Discard())
		health, err := probe.Health(ctx)
		if err != nil {
			return fmt.Errorf("peer unreachable at %s: %w", address, err)
		}

		pairing := &config.Pairing{
			PeerAddress: address,
			Token:       token,
			PairedAt:    time.Now().UTC().Format(time.RFC3339),
		}
		if err := config.SavePairing(cfg.DataDir, pairing); err != nil {
			return fmt.Errorf("failed to save pairing: %w", err)
		}

		fmt.Println(ui.Success("Paired with %s", address))
		fmt.Println(ui.Dim(fmt.Sprintf("  peer reports IP %s", health.ServerIP)))
		return nil
	},
}

var unpairCmd = &cobra.Command{
	Use:   "unpair",
	Short: "Remove the pairing",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.RemovePairing(cfg.DataDir); err != nil {
			return fmt.Errorf("failed to remove pairing: %w", err)
		}
		fmt.Println(ui.Success("Pairing removed"))
		return nil
	},
}

func init() {
	pairCmd.Flags().StringVar(&pairAddress, "address", "", "peer base URL (skips the prompt)")
	pairCmd.Flags().StringVar(&pairToken, "token", "", "shared token (defaults to this install's token)")
	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(unpairCmd)
}
