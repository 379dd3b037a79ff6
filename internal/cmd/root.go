package cmd

import (
	"fmt"
	"os"

	"github.com/hoppxi/wigo-brightness/internal/config"
	"github.com/hoppxi/wigo-brightness/internal/logging"
	"github.com/hoppxi/wigo-brightness/internal/manager"
	"github.com/spf13/cobra"
)

var Version = "0.1.0"

var (
	configPath   string
	backendFlag  string
	logLevelFlag string

	cfgManager *config.Manager
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:           "wigo-brightness",
	Version:       Version,
	Short:         "Read, set and watch the screen brightness",
	Long:          "wigo-brightness talks to gnome-settings-daemon over D-Bus, or to the kernel backlight when GNOME is not running",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "generate-config" || cmd.Name() == "help" {
			return nil
		}

		cfgManager = config.New(configPath)
		loaded, err := cfgManager.Load()
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("backend") {
			loaded.Backend = backendFlag
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Log.Level = logLevelFlag
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		if err := logging.Setup(loaded.Log.Level, loaded.Log.JSON); err != nil {
			return err
		}

		cfg = loaded
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func openSession() (*manager.Session, error) {
	return manager.DefaultConnector.OpenBackend(cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", config.BackendAuto, "brightness backend: auto, gnome or sysfs")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info", "log level")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(generateConfigCmd)
}
