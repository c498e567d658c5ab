package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"baton/pkg/api"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Open a new assignment",
	Long: `Open a new assignment: a long-running goal that job groups get chained onto.

The north star is the one-sentence goal every job in the assignment works
toward. It is immutable once set; record course corrections as decisions.

Example:
  batonctl create --north-star "Migrate the billing service to the new ledger"
  batonctl create --north-star "Fix flaky auth tests" --priority 10 --independent`,
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		northStar, _ := flags.GetString("north-star")
		independent, _ := flags.GetBool("independent")
		priority, _ := flags.GetInt("priority")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		if northStar == "" {
			cmd.Println("Error: --north-star is required")
			return
		}

		if priority < api.PriorityMin || priority > api.PriorityMax {
			cmd.Printf("Error: --priority must be between %d and %d\n", api.PriorityMin, api.PriorityMax)
			return
		}

		client := NewControlClient(url, token)
		req := api.CreateAssignmentRequest{
			NorthStar:   northStar,
			Independent: independent,
			Priority:    priority,
		}

		result, err := client.CreateAssignment(req)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Assignment created!\nID: %s\nNorth star: %s\n", result.ID, result.NorthStar)
	},
}

func init() {
	flags := createCmd.Flags()
	flags.StringP("north-star", "n", "", "Goal statement for the assignment (required)")
	flags.Bool("independent", false, "Let this assignment run alongside others instead of queueing sequentially")
	flags.Int("priority", api.PriorityNormal, "Scheduling priority, 0-100; lower is more urgent")

	rootCmd.AddCommand(createCmd)
}
