package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "recipeapp",
	Short: "Recipe editing WebApp backend and draft-safe edit client",
	Long: `recipeapp serves the Telegram WebApp API used to edit saved recipes and
ships an interactive edit client that keeps unsaved changes in local and
server-side drafts, so a page reset or a trip to a sibling page never
loses what the user typed.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".recipeapp.yml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
