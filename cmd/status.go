package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waykeep/waykeep/internal/identity"
	"github.com/waykeep/waykeep/internal/store"
	"github.com/waykeep/waykeep/internal/wlr"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the connected displays and whether this set is saved",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	path, err := cfg.LayoutsPath()
	if err != nil {
		return err
	}

	st, err := store.Load(path)
	if err != nil {
		return fmt.Errorf("load layout store: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := wlr.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("start wayland session: %w", err)
	}
	defer sess.Close()

	heads, err := sess.Next(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Connected displays (%d):\n", len(heads))
	for _, h := range heads {
		state := "off"
		if h.Config.Enabled {
			state = fmt.Sprintf("%s at (%d,%d) scale %.2f %s",
				h.Config.Mode, h.Config.X, h.Config.Y, h.Config.Scale, h.Config.Transform)
		}
		model := h.Identity.Make + " " + h.Identity.Model
		fmt.Printf("  %-10s %-30s %s\n", h.Identity.Connector, model, state)
	}

	_, setID := identity.Resolve(heads)
	if _, ok := st.Get(setID); ok {
		fmt.Printf("\nThis display set is saved in %s\n", path)
	} else {
		fmt.Printf("\nThis display set has not been saved yet (store: %s, %d sets)\n", path, st.Len())
	}
	return nil
}
