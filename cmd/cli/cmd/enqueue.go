package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"baton/pkg/api"
)

// groupFile is the YAML shape accepted by --file.
type groupFile struct {
	Jobs []struct {
		Type    string `yaml:"type"`
		Harness string `yaml:"harness"`
		Context string `yaml:"context"`
		Prompt  string `yaml:"prompt"`
	} `yaml:"jobs"`
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue [assignment_id]",
	Short: "Chain a job group onto an assignment",
	Long: `Chain a new job group onto an assignment. Jobs inside a group run in
parallel; the group waits for every group chained before it.

Each --job takes "type" or "type:harness". With no harness named, the
controller's expansion policy fans the type out across its harness set.
For jobs that need a hand-written prompt or extra context, use --file
with a YAML job list instead.

Example:
  batonctl enqueue 7c9e... --job review
  batonctl enqueue 7c9e... --job implement:claude --job implement:codex
  batonctl enqueue 7c9e... --file groups.yaml
  batonctl enqueue 7c9e... --job uat --after 41af...

YAML file format:
  jobs:
    - type: review
      harness: claude
    - type: implement
      prompt: "Apply the review feedback to the parser"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		jobFlags, _ := flags.GetStringArray("job")
		file, _ := flags.GetString("file")
		after, _ := flags.GetString("after")

		url := viper.GetString("url")
		token := viper.GetString("token")

		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		if len(jobFlags) == 0 && file == "" {
			cmd.Println("Error: at least one --job or a --file is required")
			return
		}
		if len(jobFlags) > 0 && file != "" {
			cmd.Println("Error: --job and --file are mutually exclusive")
			return
		}

		var jobs []api.JobSpecRequest
		var err error
		if file != "" {
			jobs, err = jobsFromFile(file)
		} else {
			jobs, err = jobsFromFlags(jobFlags)
		}
		if err != nil {
			cmd.Printf("Error: %v\n", err)
			return
		}

		req := api.EnqueueGroupRequest{Jobs: jobs}
		if after != "" {
			req.AfterGroupID = &after
		}

		client := NewControlClient(url, token)
		result, err := client.EnqueueGroup(args[0], req)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Group enqueued!\nGroup ID: %s\nJobs:\n", result.GroupID)
		for _, j := range result.Jobs {
			cmd.Printf("  [%d] %s on %s (%s)\n", j.Seq, j.Type, j.Harness, j.ID)
		}
	},
}

// jobsFromFlags parses repeated --job "type" or "type:harness" values.
func jobsFromFlags(values []string) ([]api.JobSpecRequest, error) {
	jobs := make([]api.JobSpecRequest, 0, len(values))
	for _, v := range values {
		parts := strings.SplitN(v, ":", 2)
		if parts[0] == "" {
			return nil, fmt.Errorf("invalid --job %q, want \"type\" or \"type:harness\"", v)
		}
		spec := api.JobSpecRequest{Type: parts[0]}
		if len(parts) == 2 {
			if parts[1] == "" {
				return nil, fmt.Errorf("invalid --job %q, harness is empty", v)
			}
			spec.Harness = parts[1]
		}
		jobs = append(jobs, spec)
	}
	return jobs, nil
}

// jobsFromFile loads a YAML job list.
func jobsFromFile(path string) ([]api.JobSpecRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var gf groupFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(gf.Jobs) == 0 {
		return nil, fmt.Errorf("%s contains no jobs", path)
	}

	jobs := make([]api.JobSpecRequest, 0, len(gf.Jobs))
	for _, j := range gf.Jobs {
		jobs = append(jobs, api.JobSpecRequest{
			Type:    j.Type,
			Harness: j.Harness,
			Context: j.Context,
			Prompt:  j.Prompt,
		})
	}
	return jobs, nil
}

func init() {
	flags := enqueueCmd.Flags()
	flags.StringArrayP("job", "j", nil, `Job to include, as "type" or "type:harness" (repeatable)`)
	flags.StringP("file", "f", "", "YAML file with the job list")
	flags.String("after", "", "Splice the group after this group ID instead of appending at the tail")

	rootCmd.AddCommand(enqueueCmd)
}
