// Package cmd implements the hubctl command tree.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/authhub/authhub/config"
	hublog "github.com/authhub/authhub/log"
	"github.com/authhub/authhub/mongodb"
)

var (
	logLevel string
	cfg      *config.ServerConfig
)

var rootCmd = &cobra.Command{
	Use:   "hubctl",
	Short: "Administer an authhub deployment against its stores",
	Long: `hubctl manages the clients, identity providers and users of an authhub
deployment by talking directly to its MongoDB stores. It reads the same
configuration as the server (config file or AUTHHUB_ environment variables),
so it works anywhere the server's database is reachable.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		hublog.Setup(logLevel, true)

		loaded, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"Log verbosity (debug, info, warn, error)")
}

// withMongo connects to the configured MongoDB, hands the database to fn and
// disconnects afterwards.
func withMongo(fn func(ctx context.Context, db *mongo.Database) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); err != nil {
		return fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	defer mongodb.CloseMongoDB(ctx)

	return fn(ctx, mongodb.GetDB())
}
