package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waykeep/waykeep/internal/logger"
	"github.com/waykeep/waykeep/internal/reconcile"
	"github.com/waykeep/waykeep/internal/store"
	"github.com/waykeep/waykeep/internal/wlr"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the reconciliation daemon",
	Long: `Run the daemon: watch output changes, restore the saved layout when a known
display set appears, and save the current layout when you rearrange displays
or plug in a set waykeep has not seen before.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	path, err := cfg.LayoutsPath()
	if err != nil {
		return err
	}

	// A store that exists but cannot be read is fatal: operating without
	// the known state would overwrite the user's saved layouts.
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

	rec := reconcile.New(reconcile.Options{
		Store:        st,
		Session:      sess,
		ApplyCommand: cfg.ApplyCommand,
		Debounce:     cfg.Debounce(),
	})

	if cfg.WatchLayouts {
		if err := st.Watch(ctx, rec.MarkStoreChanged); err != nil {
			logger.Warn("store watching disabled", "error", err)
		}
	}

	logger.Info("waykeep running", "layouts", path, "saved_sets", st.Len())

	err = rec.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}
