package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"baton/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [assignment_id]",
	Short: "Show an assignment and its chain",
	Long: `Show an assignment's goal, lifecycle state, and the full chain of job
groups in link order. Add --jobs for a per-job breakdown with metrics.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		showJobs, _ := cmd.Flags().GetBool("jobs")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		client := NewControlClient(url, token)
		chain, err := client.GetChain(args[0])
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		printAssignment(cmd, chain.Assignment)
		printChain(cmd, chain.Groups)
		if showJobs {
			printJobs(cmd, chain.Groups)
		}
	},
}

func printAssignment(cmd *cobra.Command, a api.AssignmentResponse) {
	icon := statusIcon(a.Status)
	cmd.Printf("%s %sAssignment Details%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sID:%s          %s\n", colorDim, colorReset, a.ID)
	cmd.Printf("%sNorth star:%s  %s\n", colorDim, colorReset, a.NorthStar)
	cmd.Printf("%sStatus:%s      %s\n", colorDim, colorReset, colorizeStatus(a.Status))
	cmd.Printf("%sPriority:%s    %d\n", colorDim, colorReset, a.Priority)

	if a.Alignment != nil {
		cmd.Printf("%sAlignment:%s   %s\n", colorDim, colorReset, colorizeAlignment(*a.Alignment))
	}
	if a.BlockedReason != nil {
		cmd.Printf("%sBlocked:%s     %s%s%s\n", colorDim, colorReset, colorRed, *a.BlockedReason, colorReset)
	}
	if a.Independent {
		cmd.Printf("%sScheduling:%s  independent\n", colorDim, colorReset)
	}
	if a.Decisions != "" {
		cmd.Printf("%sDecisions:%s\n", colorDim, colorReset)
		for _, line := range strings.Split(strings.TrimRight(a.Decisions, "\n"), "\n") {
			cmd.Printf("  %s\n", line)
		}
	}
	cmd.Printf("%sCreated:%s     %s\n", colorDim, colorReset, formatTimeWithRelative(&a.CreatedAt))
}

func printChain(cmd *cobra.Command, groups []api.GroupResponse) {
	cmd.Println()
	if len(groups) == 0 {
		cmd.Println("No job groups chained yet.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"#", "GROUP", "STATUS", "JOBS", "RESULT"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "RESULT", WidthMax: 48, WidthMaxEnforcer: text.WrapSoft},
	})

	for i, g := range groups {
		lines := make([]string, 0, len(g.Jobs))
		for _, j := range g.Jobs {
			lines = append(lines, fmt.Sprintf("%s %s/%s", statusIcon(j.Status), j.Type, j.Harness))
		}

		result := ""
		if g.AggregatedResult != nil {
			result = firstLine(*g.AggregatedResult)
		}

		t.AppendRow(table.Row{
			i + 1,
			shortID(g.ID),
			colorizeStatus(g.Status),
			strings.Join(lines, "\n"),
			result,
		})
		t.AppendSeparator()
	}

	t.SetStyle(table.StyleLight)
	t.Render()
}

func printJobs(cmd *cobra.Command, groups []api.GroupResponse) {
	cmd.Println()
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"GROUP", "SEQ", "TYPE", "HARNESS", "STATUS", "TOKENS IN/OUT", "PROGRESS", "DURATION"})

	for _, g := range groups {
		for _, j := range g.Jobs {
			duration := "-"
			if j.StartedAt != nil && j.CompletedAt != nil {
				duration = formatDuration(j.CompletedAt.Sub(*j.StartedAt))
			}
			tokens := "-"
			if j.Metrics.InputTokens > 0 || j.Metrics.OutputTokens > 0 {
				tokens = fmt.Sprintf("%d/%d", j.Metrics.InputTokens, j.Metrics.OutputTokens)
			}
			progress := j.Metrics.Progress
			if progress == "" {
				progress = "-"
			}

			t.AppendRow(table.Row{
				shortID(g.ID),
				j.Seq,
				j.Type,
				j.Harness,
				colorizeStatus(j.Status),
				tokens,
				progress,
				duration,
			})
		}
	}

	t.SetStyle(table.StyleLight)
	t.Render()
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func statusIcon(status string) string {
	switch status {
	case "complete":
		return colorGreen + "✓" + colorReset
	case "failed":
		return colorRed + "✗" + colorReset
	case "running", "active":
		return colorYellow + "⏳" + colorReset
	case "pending":
		return colorCyan + "◯" + colorReset
	case "blocked":
		return colorRed + "■" + colorReset
	default:
		return "•"
	}
}

func colorizeStatus(status string) string {
	icon := statusIcon(status)
	switch status {
	case "complete":
		return icon + " " + colorGreen + status + colorReset
	case "failed":
		return icon + " " + colorRed + status + colorReset
	case "running", "active":
		return icon + " " + colorYellow + status + colorReset
	case "pending":
		return icon + " " + colorCyan + status + colorReset
	case "blocked":
		return icon + " " + colorRed + status + colorReset
	default:
		return status
	}
}

func colorizeAlignment(alignment string) string {
	switch alignment {
	case "aligned":
		return colorGreen + alignment + colorReset
	case "uncertain":
		return colorYellow + alignment + colorReset
	case "misaligned":
		return colorRed + alignment + colorReset
	default:
		return alignment
	}
}

// shortID trims a UUID down to its first segment for table display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 120 {
		s = s[:117] + "..."
	}
	return s
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	relative := relativeTime(*t)
	return fmt.Sprintf("%s %s(%s ago)%s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"), colorDim, relative, colorReset)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	} else if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func init() {
	statusCmd.Flags().Bool("jobs", false, "Show a per-job breakdown with metrics")

	rootCmd.AddCommand(statusCmd)
}
