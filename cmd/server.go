package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/recipebot/recipeapp/internal/audit"
	"github.com/recipebot/recipeapp/internal/config"
	"github.com/recipebot/recipeapp/internal/db"
	"github.com/recipebot/recipeapp/internal/notify"
	"github.com/recipebot/recipeapp/internal/recipes"
	"github.com/recipebot/recipeapp/internal/server"
	"github.com/recipebot/recipeapp/internal/webapp"
	"github.com/recipebot/recipeapp/internal/webdrafts"
)

var (
	serverPort     int
	serverAllowAll bool
)

const (
	// purgeInterval is how often expired server-side drafts are removed.
	purgeInterval = 10 * time.Minute
	// retentionInterval is how often edit history past its retention is removed.
	retentionInterval = 24 * time.Hour
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the recipe WebApp API server",
	Long:  `Starts the HTTP API used by the recipe editor WebApp: recipe read/update, categories, server-side drafts and edit history.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cmd.Flags().Changed("port") {
			cfg.Port = serverPort
		}
		if err := cfg.ValidateServer(); err != nil {
			return err
		}

		database, dbPath, err := openDatabase(cfg, "recipeapp.db")
		if err != nil {
			return err
		}
		defer database.Close()

		srv := server.New(server.Config{
			Port:           cfg.Port,
			AllowedOrigins: cfg.AllowedOrigins,
			AllowAll:       serverAllowAll,
		}, database)

		drafts := webdrafts.NewStore(database, cfg.RemoteDraftTTL())
		history := audit.NewStore(database)
		notifier := notify.NewDispatcher(cfg.NotifyWebhookURL)
		registerAllRoutes(srv, database, drafts, history, notifier, cfg)

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		go server.Every(ctx, purgeInterval, "purge expired drafts", func(ctx context.Context) error {
			_, err := drafts.PurgeExpired(ctx)
			return err
		})
		if keep := cfg.AuditRetention(); keep > 0 {
			go server.Every(ctx, retentionInterval, "purge old history", func(ctx context.Context) error {
				_, err := history.PurgeOlderThan(ctx, keep)
				return err
			})
		}

		fmt.Fprintf(os.Stderr, "recipeapp server %s starting on port %d\n", Version, cfg.Port)
		fmt.Fprintf(os.Stderr, "  Database: %s\n", dbPath)
		fmt.Fprintf(os.Stderr, "  Draft TTL: %s\n", cfg.RemoteDraftTTL())
		if notifier.Enabled() {
			fmt.Fprintf(os.Stderr, "  Webhook: %s\n", cfg.NotifyWebhookURL)
		}

		err = srv.Run(ctx)
		fmt.Fprintln(os.Stderr, "Server stopped, flushing notifications...")
		notifier.Wait()
		return err
	},
}

// registerAllRoutes wires up the WebApp feature routes.
func registerAllRoutes(srv *server.Server, database *db.DB, drafts *webdrafts.Store, history *audit.Store, notifier *notify.Dispatcher, cfg *config.Config) {
	webapp.RegisterRoutes(srv.Router(), webapp.Services{
		Recipes:        recipes.NewStore(database),
		Drafts:         drafts,
		Audit:          history,
		Notifier:       notifier,
		BotToken:       cfg.BotToken,
		InitDataMaxAge: cfg.InitDataMaxAge(),
	})
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Port to listen on (overrides config)")
	serverCmd.Flags().BoolVar(&serverAllowAll, "allow-all-origins", false, "Allow every CORS origin (development only)")
	rootCmd.AddCommand(serverCmd)
}
