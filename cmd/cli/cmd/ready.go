package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List jobs dispatchable right now",
	Long: `List every job a runner could claim this instant. The feed is
read-only: looking at it does not claim anything, so polling it twice
returns the same set.`,
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		jobs, err := client.ReadyJobs()
		if err != nil {
			cmd.Printf("Error fetching ready jobs: %s\n", err)
			os.Exit(1)
		}

		if len(jobs) == 0 {
			cmd.Println("No jobs ready.")
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "JOB ID\tTYPE\tHARNESS\tGROUP\tNORTH STAR")
		for _, item := range jobs {
			northStar := item.NorthStar
			if len(northStar) > 50 {
				northStar = northStar[:47] + "..."
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				item.Job.ID,
				item.Job.Type,
				item.Job.Harness,
				shortID(item.Job.GroupID),
				northStar,
			)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(readyCmd)
}
