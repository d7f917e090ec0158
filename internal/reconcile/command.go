package reconcile

import (
	"os/exec"

	"github.com/waykeep/waykeep/internal/logger"
)

// runShellCommand fires the apply-command and forgets it. The exit status
// is logged but never inspected; the command cannot influence
// reconciliation.
func runShellCommand(command string) {
	cmd := exec.Command("sh", "-c", command)
	if err := cmd.Start(); err != nil {
		logger.Error("could not start apply command", "command", command, "error", err)
		return
	}
	logger.Debug("apply command started", "command", command, "pid", cmd.Process.Pid)
	go func() {
		if err := cmd.Wait(); err != nil {
			logger.Warn("apply command exited with error", "command", command, "error", err)
			return
		}
		logger.Debug("apply command finished", "command", command)
	}()
}
