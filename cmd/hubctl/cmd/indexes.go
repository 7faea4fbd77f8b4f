package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/authhub/authhub/mongodb"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Manage the MongoDB indexes the hub relies on",
}

var indexesEnsureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Create every collection's indexes",
	Long: `Each repository creates its indexes when the server boots; ensure runs
the same creation up front so a fresh deployment has its unique constraints
in place before taking traffic. Creation failures are logged per collection.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			if _, err := mongodb.NewUserRepositoryMongo(ctx, db); err != nil {
				return fmt.Errorf("users: %w", err)
			}
			if _, err := mongodb.NewIdentityRepositoryMongo(ctx, db); err != nil {
				return fmt.Errorf("identities: %w", err)
			}
			mongodb.NewAuthCodeRepositoryMongo(ctx, db)
			mongodb.NewTokenRepositoryMongo(ctx, db)

			fmt.Println("Indexes ensured for users, identities, auth codes and tokens.")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(indexesCmd)
	indexesCmd.AddCommand(indexesEnsureCmd)
}
