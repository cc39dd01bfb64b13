package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and saves the
// resulting Config to path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to recipeapp! Let's configure this machine.")
	fmt.Println()

	cfg := DefaultConfig()

	// 1. Role.
	rolePrompt := promptui.Select{
		Label: "What will this config be used for",
		Items: []string{
			"server — serve the WebApp API",
			"client — edit recipes against a running server",
			"both",
		},
	}
	role, _, err := rolePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("role selection: %w", err)
	}
	wantServer := role == 0 || role == 2
	wantClient := role == 1 || role == 2

	// 2. Data directory.
	dataPrompt := promptui.Prompt{
		Label:   "Data directory (SQLite files)",
		Default: cfg.DataDir,
	}
	if cfg.DataDir, err = dataPrompt.Run(); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}

	if wantServer {
		portPrompt := promptui.Prompt{
			Label:   "Port to listen on",
			Default: strconv.Itoa(cfg.Port),
			Validate: func(s string) error {
				n, err := strconv.Atoi(s)
				if err != nil || n <= 0 || n > 65535 {
					return fmt.Errorf("port must be between 1 and 65535")
				}
				return nil
			},
		}
		portStr, err := portPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("port: %w", err)
		}
		cfg.Port, _ = strconv.Atoi(portStr)

		originsPrompt := promptui.Prompt{
			Label:   "Allowed CORS origins (comma-separated)",
			Default: "https://web.telegram.org",
		}
		originsStr, err := originsPrompt.Run()
		if err != nil {
			return nil, fmt.Errorf("allowed origins: %w", err)
		}
		cfg.AllowedOrigins = splitAndTrim(originsStr)

		tokenPrompt := promptui.Prompt{
			Label: "Telegram bot token (leave blank to use " + EnvPrefix + "BOT_TOKEN)",
			Mask:  '*',
		}
		if cfg.BotToken, err = tokenPrompt.Run(); err != nil {
			return nil, fmt.Errorf("bot token: %w", err)
		}
	}

	if wantClient {
		basePrompt := promptui.Prompt{
			Label:   "API base URL",
			Default: cfg.APIBaseURL,
		}
		if cfg.APIBaseURL, err = basePrompt.Run(); err != nil {
			return nil, fmt.Errorf("api base url: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Save(path); err != nil {
		return nil, fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration saved to %s\n", path)
	if wantServer && cfg.BotToken == "" {
		fmt.Printf("Note: set %sBOT_TOKEN before running `recipeapp server`.\n", EnvPrefix)
	}
	if wantClient {
		fmt.Printf("Note: set %sINIT_DATA (or run `recipeapp initdata`) before running `recipeapp edit`.\n", EnvPrefix)
	}
	return cfg, nil
}
