package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"baton/pkg/api"
)

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Inspect the guardian's evaluation queue",
	Long: `Work with the guardian: the monitor that reads each reporting group's
aggregated result and judges whether the assignment still tracks its
north star. Apply a judgement with 'batonctl align'.`,
}

var guardPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List reporting groups awaiting a verdict",
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		pending, err := client.PendingEvaluations()
		if err != nil {
			cmd.Printf("Error fetching pending evaluations: %s\n", err)
			os.Exit(1)
		}

		if len(pending) == 0 {
			cmd.Println("Nothing awaiting evaluation.")
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "GROUP\tASSIGNMENT\tNORTH STAR\tREPORT")
		for _, p := range pending {
			northStar := p.NorthStar
			if len(northStar) > 40 {
				northStar = northStar[:37] + "..."
			}
			report := firstLine(p.Report)
			if len(report) > 50 {
				report = report[:47] + "..."
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				shortID(p.GroupID),
				shortID(p.AssignmentID),
				northStar,
				report,
			)
		}
		w.Flush()
	},
}

var guardHistoryCmd = &cobra.Command{
	Use:   "history [assignment_id]",
	Short: "List the verdicts applied to an assignment",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		evals, err := client.ListEvaluations(args[0])
		if err != nil {
			cmd.Printf("Error fetching evaluations: %s\n", err)
			os.Exit(1)
		}

		if len(evals) == 0 {
			cmd.Println("No evaluations recorded.")
			return
		}

		// Print table
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "WHEN\tGROUP\tVERDICT\tRATIONALE")
		for _, e := range evals {
			rationale := e.Rationale
			if len(rationale) > 60 {
				rationale = rationale[:57] + "..."
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.CreatedAt.Format(time.RFC3339),
				shortID(e.GroupID),
				e.Status,
				rationale,
			)
		}
		w.Flush()
	},
}

var guardArmCmd = &cobra.Command{
	Use:   "arm [assignment_id]",
	Short: "Open a guardian-mode thread for an assignment",
	Long: `Open a chat thread in guardian mode, arming alignment monitoring
for the assignment. With --thread, an existing thread is switched into
guardian mode instead of opening a new one.

Example:
  batonctl guard arm 7c9e...
  batonctl guard arm --thread 41af...`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		threadID, _ := flags.GetString("thread")
		title, _ := flags.GetString("title")

		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		if threadID == "" && len(args) == 0 {
			cmd.Println("Error: an assignment_id argument or --thread is required")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)

		if threadID != "" {
			thread, err := client.SetThreadMode(threadID, api.SetThreadModeRequest{Mode: "guardian"})
			if err != nil {
				if apiErr, ok := err.(*APIError); ok {
					cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
				} else {
					cmd.Printf("Error: %v\n", err)
				}
				return
			}
			cmd.Printf("✓ Thread %s switched to guardian mode\n", shortID(thread.ID))
			return
		}

		assignmentID := args[0]
		thread, err := client.CreateThread(api.CreateThreadRequest{
			AssignmentID: &assignmentID,
			Mode:         "guardian",
			Title:        title,
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Guardian thread %s opened for assignment %s\n", shortID(thread.ID), shortID(assignmentID))
		cmd.Println("Reporting groups will now wait for a verdict. Apply one with 'batonctl align'.")
	},
}

func init() {
	flags := guardArmCmd.Flags()
	flags.String("thread", "", "Switch an existing thread to guardian mode instead of opening one")
	flags.String("title", "", "Title for the new thread")

	rootCmd.AddCommand(guardCmd)
	guardCmd.AddCommand(guardPendingCmd)
	guardCmd.AddCommand(guardHistoryCmd)
	guardCmd.AddCommand(guardArmCmd)
}
