package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/recipebot/recipeapp/internal/tgauth"
)

var initDataUser int64

var initDataCmd = &cobra.Command{
	Use:   "initdata",
	Short: "Print signed Telegram initData for a user (development)",
	Long: `Signs initData for --user with the configured bot token, the way Telegram
does when it opens the WebApp. Export it as RECIPEAPP_INIT_DATA to run edit.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		exitOnError(err)
		if cfg.BotToken == "" {
			exitOnError(fmt.Errorf("bot_token is required to sign initData"))
		}
		if initDataUser <= 0 {
			exitOnError(fmt.Errorf("--user must be a positive Telegram user id"))
		}
		fmt.Println(tgauth.SignUser(initDataUser, time.Now(), cfg.BotToken))
	},
}

func init() {
	initDataCmd.Flags().Int64Var(&initDataUser, "user", 0, "Telegram user id")
	rootCmd.AddCommand(initDataCmd)
}
