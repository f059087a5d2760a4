package main

import (
	"github.com/gratheon/graphql-gateway/server"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of the gateway",
	Run: func(cmd *cobra.Command, args []string) {
		println("graphql-gateway v0.1.0")
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	Run: func(cmd *cobra.Command, args []string) {
		server.Run()
	},
}

func main() {
	rootCmd := cobra.Command{Use: "gateway"}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
