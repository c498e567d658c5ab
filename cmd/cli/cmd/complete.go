package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var completeCmd = &cobra.Command{
	Use:   "complete [assignment_id]",
	Short: "Mark an assignment complete",
	Long: `Mark an assignment complete. Completion is terminal: no further groups
can be chained and no pending jobs will dispatch. Unfinished jobs and
groups are left as they are for the record.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		result, err := client.CompleteAssignment(args[0])
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Assignment %s complete.\n", result.ID)
	},
}

func init() {
	rootCmd.AddCommand(completeCmd)
}
