package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/hoppxi/wigo-brightness/internal/watchers"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the current brightness",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		level, err := s.Backend.Brightness()
		if err != nil {
			return fmt.Errorf("failed to get brightness: %w", err)
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return json.NewEncoder(cmd.OutOrStdout()).Encode(watchers.BrightnessInfo{
				Level:   level,
				Backend: s.Backend.DescriptiveString(),
			})
		}
		fmt.Fprintln(cmd.OutOrStdout(), level)
		return nil
	},
}

func init() {
	getCmd.Flags().Bool("json", false, "print level and backend as JSON")
}
