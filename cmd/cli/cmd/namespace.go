package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"baton/pkg/api"
)

var namespaceCmd = &cobra.Command{
	Use:   "namespace",
	Short: "Manage namespaces",
	Long:  `Create, inspect, and delete namespaces. Every assignment lives in exactly one namespace, and the namespace's API key authenticates all work inside it.`,
}

var namespaceCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a new namespace",
	Long: `Create a new namespace and print its API key.

The key is shown exactly once: the controller stores only a hash of it.
If it is lost, the namespace cannot be recovered - create a new one.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		description, _ := cmd.Flags().GetString("description")

		client := NewControlClient(viper.GetString("url"), viper.GetString("token"))
		result, err := client.CreateNamespace(api.CreateNamespaceRequest{
			Name:        args[0],
			Description: description,
		})
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error: %v\n", err)
			}
			return
		}

		cmd.Printf("✓ Namespace created!\nID:   %s\nName: %s\n\n", result.ID, result.Name)
		cmd.Printf("API key: %s\n", result.ApiKey)
		cmd.Println("Store it now - this is the only time it will be shown.")
	},
}

var namespaceGetCmd = &cobra.Command{
	Use:   "get [name]",
	Short: "Show a namespace and its job counters",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		ns, err := client.GetNamespace(args[0])
		if err != nil {
			cmd.Printf("Error fetching namespace: %s\n", err)
			os.Exit(1)
		}

		cmd.Printf("ID:          %s\n", ns.ID)
		cmd.Printf("Name:        %s\n", ns.Name)
		if ns.Description != "" {
			cmd.Printf("Description: %s\n", ns.Description)
		}
		cmd.Printf("Created:     %s\n", ns.CreatedAt.Format("Mon, 02 Jan 2006 15:04:05 MST"))
		cmd.Printf("Jobs:        %d pending, %d running, %d complete, %d failed\n",
			ns.Counters.JobsPending, ns.Counters.JobsRunning, ns.Counters.JobsComplete, ns.Counters.JobsFailed)
	},
}

var namespaceDeleteCmd = &cobra.Command{
	Use:   "delete [name]",
	Short: "Delete an empty namespace",
	Long:  `Delete a namespace. The controller refuses while the namespace still holds assignments; complete or remove them first.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		token := viper.GetString("token")
		if token == "" {
			cmd.Println("API token not found. Please set it using the --token flag or the BATON_TOKEN environment variable")
			return
		}

		client := NewControlClient(viper.GetString("url"), token)
		if err := client.DeleteNamespace(args[0]); err != nil {
			cmd.Printf("Error deleting namespace: %s\n", err)
			os.Exit(1)
		}

		cmd.Printf("✓ Namespace %s deleted.\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(namespaceCmd)
	namespaceCmd.AddCommand(namespaceCreateCmd)
	namespaceCmd.AddCommand(namespaceGetCmd)
	namespaceCmd.AddCommand(namespaceDeleteCmd)

	namespaceCreateCmd.Flags().StringP("description", "d", "", "Optional description of the namespace")
}
