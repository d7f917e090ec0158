package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/waykeep/waykeep/internal/display"
	"github.com/waykeep/waykeep/internal/identity"
	"github.com/waykeep/waykeep/internal/logger"
	"github.com/waykeep/waykeep/internal/store"
	"github.com/waykeep/waykeep/internal/wlr"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save the current layout and exit",
	Long: `Save the layout the compositor currently reports under the identity of the
connected display set, then exit. Useful to fix a broken saved layout or to
record one without leaving the daemon running.`,
	RunE: runSave,
}

func runSave(cmd *cobra.Command, args []string) error {
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

	_, setID := identity.Resolve(heads)
	st.Put(setID, display.Layout(heads))
	if err := st.Save(); err != nil {
		return fmt.Errorf("save layout store: %w", err)
	}

	logger.Info("layout saved", "heads", len(heads), "layouts", path)
	return nil
}
