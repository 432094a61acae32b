package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "wabot",
		Short:         "WhatsApp webhook gateway with an assistant-backed reply flow",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			runServe(configPath)
			return nil
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config.toml")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	root.AddCommand(serveCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
