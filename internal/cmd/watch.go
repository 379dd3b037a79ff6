package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hoppxi/wigo-brightness/internal/config"
	"github.com/hoppxi/wigo-brightness/internal/manager"
	"github.com/hoppxi/wigo-brightness/internal/watchers"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print brightness changes and forward them to eww",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		if !s.Backend.IsAvailable() {
			log.Warn().Str("backend", s.Backend.DescriptiveString()).Msg("backend not available, no changes will be reported")
		}

		out := cmd.OutOrStdout()
		watchCfg := func(c config.Config) config.WatchConfig {
			wc := c.Watch
			if cmd.Flags().Changed("notify") {
				wc.Notify, _ = cmd.Flags().GetBool("notify")
			}
			if cmd.Flags().Changed("eww-var") {
				wc.Eww.Variable, _ = cmd.Flags().GetString("eww-var")
			}
			return wc
		}

		watcher := watchers.NewBrightnessWatcher(s.Backend, watchers.SinksFromConfig(watchCfg(cfg), out)...)
		defer watcher.Close()

		cfgManager.Watch(func(c config.Config) {
			watcher.SetSinks(watchers.SinksFromConfig(watchCfg(c), out)...)
		})

		mgr := manager.NewAppManager()
		mgr.StartWatcher("brightness", watcher.Run)
		log.Info().Str("backend", s.Backend.DescriptiveString()).Msg("watching brightness")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("received shutdown signal, stopping")
		mgr.StopAll()
		return nil
	},
}

func init() {
	watchCmd.Flags().Bool("notify", false, "show a desktop notification on every change")
	watchCmd.Flags().String("eww-var", "", "eww variable to update with the brightness info")
}
