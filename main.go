package main

import (
	"os"

	"github.com/recipebot/recipeapp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
