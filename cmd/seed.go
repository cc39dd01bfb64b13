package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/recipebot/recipeapp/internal/progress"
	"github.com/recipebot/recipeapp/internal/recipes"
	"github.com/recipebot/recipeapp/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed <pattern>...",
	Short: "Load categories and recipes from YAML seed files",
	Long:  `Loads seed files matching the given glob patterns (** supported) into the server database.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		files, err := seed.Expand(args)
		if err != nil {
			return err
		}

		database, dbPath, err := openDatabase(cfg, "recipeapp.db")
		if err != nil {
			return err
		}
		defer database.Close()

		store := recipes.NewStore(database)
		var total seed.Result
		for _, path := range files {
			f, err := seed.Load(path)
			if err != nil {
				return err
			}
			res, err := seed.Apply(cmd.Context(), store, f, progress.NewReporter())
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			total.Files++
			total.Categories += res.Categories
			total.Recipes += res.Recipes
			total.Links += res.Links
		}

		fmt.Printf("Seeded %s from %d file(s): %d categories, %d recipes, %d user links\n",
			dbPath, total.Files, total.Categories, total.Recipes, total.Links)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
