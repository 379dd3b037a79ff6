package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hoppxi/wigo-brightness/internal/config"
	"github.com/spf13/cobra"
)

var generateConfigCmd = &cobra.Command{
	Use:   "generate-config",
	Short: "Write a config file, asking for the main settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.New(configPath).Path()
		reader := bufio.NewReader(cmd.InOrStdin())
		out := cmd.OutOrStdout()
		useDefaults, _ := cmd.Flags().GetBool("defaults")
		force, _ := cmd.Flags().GetBool("force")

		if _, err := os.Stat(path); err == nil && !force {
			if useDefaults || !confirm(reader, out, path+" already exists. Overwrite?") {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}

		conf := config.Defaults()
		if !useDefaults {
			conf = promptConfig(reader, out, conf)
		}
		if err := conf.Validate(); err != nil {
			return err
		}

		if err := config.Generate(path, conf, true); err != nil {
			return err
		}
		fmt.Fprintln(out, "Config written to", path)
		return nil
	},
}

func init() {
	generateConfigCmd.Flags().Bool("defaults", false, "write the defaults without asking")
	generateConfigCmd.Flags().Bool("force", false, "overwrite an existing file")
}

func promptConfig(r *bufio.Reader, w io.Writer, conf config.Config) config.Config {
	conf.Backend = prompt(r, w, "Backend (auto, gnome, sysfs)", conf.Backend)
	conf.Sysfs.Path = prompt(r, w, "Backlight directory", conf.Sysfs.Path)
	conf.Watch.Eww.Variable = prompt(r, w, "eww variable for brightness info (empty to disable)", conf.Watch.Eww.Variable)
	conf.Watch.Eww.OSDVariable = prompt(r, w, "eww OSD variable (empty to disable)", conf.Watch.Eww.OSDVariable)
	conf.Watch.Notify = confirm(r, w, "Show a desktop notification on change?")
	return conf
}

func prompt(r *bufio.Reader, w io.Writer, label, defaultValue string) string {
	fmt.Fprintf(w, "%s [%s]: ", label, defaultValue)
	input, _ := r.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultValue
	}
	return input
}

func confirm(r *bufio.Reader, w io.Writer, message string) bool {
	fmt.Fprintf(w, "%s (y/N): ", message)
	input, _ := r.ReadString('\n')
	input = strings.ToLower(strings.TrimSpace(input))
	return input == "y" || input == "yes"
}
