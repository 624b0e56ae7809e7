// ABOUTME: Minimal fake Studio plugin for E2E testing; connects over WebSocket and echoes commands.
// ABOUTME: Usage: fake-studio [--addr 127.0.0.1:44755] [--place-name "Test Place"] [--place-id 1]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/studio-gateway/internal/fakestudio"
	"github.com/2389/studio-gateway/internal/wire"
)

func main() {
	var (
		addr      string
		placeName string
		placeID   uint64
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:           "fake-studio",
		Short:         "Connect a scripted Roblox Studio stand-in to a gateway",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			return run(cmd.Context(), logger, addr, placeName, placeID)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:44755", "gateway address")
	cmd.Flags().StringVar(&placeName, "place-name", "Test Place", "place name to register with")
	cmd.Flags().Uint64Var(&placeID, "place-id", 1, "place id to register with")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every command")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, addr, placeName string, placeID uint64) error {
	s, err := fakestudio.Dial(ctx, fakestudio.Config{
		URL: "ws://" + addr + "/ws",
		Registration: wire.Registration{
			Type:         wire.TypeRegister,
			PlaceID:      placeID,
			PlaceName:    placeName,
			GameID:       placeID,
			JobID:        "fake-studio",
			PlaceVersion: 1,
			CreatorType:  "User",
		},
		Handler: fakestudio.Modes(fakestudio.Echo(placeName)),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	color.New(color.FgGreen).Print("  ✓ ")
	fmt.Printf("Registered %q as %s\n", placeName, s.ID())

	select {
	case <-ctx.Done():
		if err := s.Close(); err != nil {
			return fmt.Errorf("closing: %w", err)
		}
		return nil
	case <-s.Done():
		if err := s.Err(); err != nil {
			return err
		}
		color.New(color.FgYellow).Println("  gateway closed the connection")
		return nil
	}
}
