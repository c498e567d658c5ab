package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"baton/pkg/api"
)

var alignCmd = &cobra.Command{
	Use:   "align [assignment_id]",
	Short: "Apply a guardian verdict to a reporting group",
	Long: `Record a guardian verdict for one of the assignment's terminal
reporting groups. Each group takes exactly one verdict.

A misaligned verdict blocks the assignment in the same stroke, so no
further jobs dispatch until an operator intervenes.

Example:
  batonctl align 7c9e... --group 41af... --verdict aligned
  batonctl align 7c9e... --group 41af... --verdict misaligned --rationale "Drifted into refactoring the wrong service"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		groupID, _ := flags.GetString("group")
		verdict, _ := flags.GetString("verdict")
		rationale, _ := flags.GetString("rationale")

		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		if groupID == "" {
			cmd.Println("Error: --group is required")
			return
		}
		if verdict == "" {
			cmd.Println("Error: --verdict is required (aligned, uncertain, or misaligned)")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		result, err := client.ApplyAlignment(args[0], api.ApplyAlignmentRequest{
			GroupID:   groupID,
			Verdict:   verdict,
			Rationale: rationale,
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Verdict %s recorded for group %s\n", result.Status, shortID(result.GroupID))
		if verdict == "misaligned" {
			cmd.Println("Assignment is now blocked pending operator review.")
		}
	},
}

func init() {
	flags := alignCmd.Flags()
	flags.StringP("group", "g", "", "Reporting group the verdict applies to (required)")
	flags.StringP("verdict", "v", "", "aligned, uncertain, or misaligned (required)")
	flags.StringP("rationale", "r", "", "Why the guardian reached this verdict")

	rootCmd.AddCommand(alignCmd)
}
