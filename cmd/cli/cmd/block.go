package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var blockCmd = &cobra.Command{
	Use:   "block [assignment_id]",
	Short: "Block an assignment",
	Long: `Block an assignment on an external dependency. Pending jobs in the
assignment stop dispatching; jobs already running finish normally.

Example:
  batonctl block 7c9e... --reason "Waiting on schema sign-off"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")

		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		if reason == "" {
			cmd.Println("Error: --reason is required")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		result, err := client.BlockAssignment(args[0], reason)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Assignment %s blocked: %s\n", result.ID, reason)
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock [assignment_id]",
	Short: "Unblock an assignment",
	Long:  `Lift a block. The assignment resumes where it left off and its jobs become dispatchable again.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		result, err := client.UnblockAssignment(args[0])
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Assignment %s unblocked (now %s)\n", result.ID, result.Status)
	},
}

func init() {
	blockCmd.Flags().StringP("reason", "r", "", "Why the assignment is blocked (required)")

	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(unblockCmd)
}
