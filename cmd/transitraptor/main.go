// Command transitraptor serves a multi-modal public-transit journey
// planner over GTFS static feeds. Grounded on tidbyt-gtfs's cmd/
// package (a cobra root command with persistent flags shared by its
// subcommands, each subcommand in its own file with an init() that
// registers its local flags).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "transitraptor",
	Short:        "Multi-modal transit journey planner",
	Long:         "Loads GTFS static feeds and answers RAPTOR journey queries, either as a long-running HTTP service or a one-off CLI lookup.",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(queryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
