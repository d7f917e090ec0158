package cmd

import (
	"github.com/spf13/cobra"

	"github.com/waykeep/waykeep/internal/config"
	"github.com/waykeep/waykeep/internal/logger"
)

var (
	// Version is set during build
	Version = "0.1.0-dev"

	configPath  string
	layoutsPath string

	rootCmd = &cobra.Command{
		Use:   "waykeep",
		Short: "Waykeep - durable display layouts for wlroots compositors",
		Long: `Waykeep watches the connected displays through the wlr-output-management
protocol. When a display set it has seen before shows up, it re-applies the
layout you last used with that exact set; a set it has never seen is recorded
as-is. Arrange your displays with any tool you like - waykeep makes the
arrangement stick across hotplug and restart, with no config file to write.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&layoutsPath, "layouts", "", "Path to the layout store file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(statusCmd)
}

// setup loads config and applies flag overrides. Shared by all commands.
func setup() (*config.Config, error) {
	if configPath != "" {
		config.SetConfigPath(configPath)
	}
	if err := config.Init(); err != nil {
		return nil, err
	}
	cfg := config.Get()
	if layoutsPath != "" {
		cfg.Layouts = layoutsPath
	}
	if cfg.Logging.LogLevel != "" {
		logger.SetLevel(cfg.Logging.LogLevel)
	}
	return cfg, nil
}
