package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which backend is used and whether it is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "backend:   %s\n", s.Backend.DescriptiveString())

		if !s.Backend.IsAvailable() {
			fmt.Fprintln(out, "available: no")
			return nil
		}
		fmt.Fprintln(out, "available: yes")

		level, err := s.Backend.Brightness()
		if err != nil {
			fmt.Fprintf(out, "level:     unknown (%v)\n", err)
			return nil
		}
		fmt.Fprintf(out, "level:     %d%%\n", level)
		return nil
	},
}
