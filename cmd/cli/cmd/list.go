package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List assignments in the namespace",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")

		client := NewControlClient(viper.GetString("url"), viper.GetString("token"))
		assignments, err := client.ListAssignments(status)
		if err != nil {
			cmd.Printf("Error fetching assignments: %s\n", err)
			os.Exit(1)
		}

		if len(assignments) == 0 {
			if status != "" {
				cmd.Printf("No assignments with status %q.\n", status)
			} else {
				cmd.Println("No assignments found.")
			}
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tALIGNMENT\tNORTH STAR")
		for _, a := range assignments {
			alignment := "-"
			if a.Alignment != nil {
				alignment = *a.Alignment
			}

			// Truncate long goals for the table view
			northStar := a.NorthStar
			if len(northStar) > 60 {
				northStar = northStar[:57] + "..."
			}

			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				a.ID,
				a.Status,
				a.Priority,
				alignment,
				northStar,
			)
		}
		w.Flush()
	},
}

func init() {
	listCmd.Flags().StringP("status", "s", "", "Filter by status (comma-separated: pending,active,blocked,complete)")

	rootCmd.AddCommand(listCmd)
}
