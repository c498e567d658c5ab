package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var decideCmd = &cobra.Command{
	Use:   "decide [assignment_id] [decision]",
	Short: "Record a durable decision on an assignment",
	Long: `Append a decision to an assignment's durable record. Decisions ride
along in the prompt of every job dispatched afterwards - they are how an
operator steers an assignment without touching its north star.

Example:
  batonctl decide 7c9e... "Use the v2 ledger schema, not v1"`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		if args[1] == "" {
			cmd.Println("Error: decision text must not be empty")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		result, err := client.RecordDecision(args[0], args[1])
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Decision recorded on assignment %s\n", result.ID)
	},
}

func init() {
	rootCmd.AddCommand(decideCmd)
}
