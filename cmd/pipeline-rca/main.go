package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath   string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "pipeline-rca",
	Short: "Jenkins failure classification and notification service",
	Long: "pipeline-rca polls Jenkins, classifies failed builds against a fixed category table,\n" +
		"raises prioritised notifications and suggests fixes from a solution knowledge base.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (defaults to $PIPELINE_RCA_CONFIG)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table, markdown or json")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(kbCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
