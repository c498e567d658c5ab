package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "batonctl",
	Short: "Batonctl is a command line tool for interacting with the baton control plane",
	Long: `batonctl is the command-line interface for the Baton agent orchestration plane.

Baton coordinates long-running AI-agent work: an assignment states a goal (the
north star), and its chain of job groups carries that goal forward. Jobs inside
a group run in parallel on different agent harnesses; groups run strictly in
order, each seeing the results of the ones before it.

Common workflows:

  Create a namespace (prints the API key exactly once):
    batonctl namespace create my-team

  Open an assignment:
    batonctl create --north-star "Migrate the billing service to the new ledger"

  Chain job groups onto it:
    batonctl enqueue <assignment-id> --job review --job implement:claude
    batonctl enqueue <assignment-id> --file groups.yaml

  Watch the chain:
    batonctl status <assignment-id>

  Steer it:
    batonctl decide <assignment-id> "Use the v2 ledger schema"
    batonctl block <assignment-id> --reason "Waiting on schema sign-off"

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    BATON_URL      API endpoint (default: http://localhost:6161)
    BATON_TOKEN    Namespace API key for authentication`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".batonctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".batonctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "BATON_VARNAME"
	viper.SetEnvPrefix("BATON")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.batonctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6161", "Baton Controller URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "Namespace API key for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}
