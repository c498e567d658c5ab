package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Fail jobs stuck past the runtime ceiling",
	Long: `Trigger a reap sweep: every job still marked running past the
controller's maximum runtime is failed so its group can settle.

The controller runs this sweep on a timer already; the command exists
for forcing one by hand. It authenticates with the controller's internal
token, not a namespace API key.`,
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("Internal token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		result, err := client.Reap()
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		if result.Reaped == 0 {
			cmd.Println("No stale jobs found.")
			return
		}
		cmd.Printf("✓ Reaped %d stale job(s).\n", result.Reaped)
	},
}

func init() {
	rootCmd.AddCommand(reapCmd)
}
