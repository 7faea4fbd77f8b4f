package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gopkg.in/yaml.v3"

	"github.com/authhub/authhub/domain"
	"github.com/authhub/authhub/dto"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/federation"
	"github.com/authhub/authhub/mongodb"
)

var providersCmd = &cobra.Command{
	Use:     "providers",
	Short:   "Manage upstream identity provider registrations",
	Aliases: []string{"provider", "idp"},
}

var providersSetCmd = &cobra.Command{
	Use:   "set [NAME]",
	Short: "Create or replace a provider's client registration",
	Long: `Set stores the hub's own client credentials at the named provider
(google, github or facebook). A running server keeps its cached adapter until
the registration is touched through the admin API or the server restarts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		clientID, _ := cmd.Flags().GetString("client-id")
		clientSecret, _ := cmd.Flags().GetString("client-secret")
		scopes, _ := cmd.Flags().GetStringSlice("scope")
		enabled, _ := cmd.Flags().GetBool("enabled")

		if !federation.Supported(name) {
			return fmt.Errorf("unsupported provider %q: no adapter exists for it", name)
		}
		if clientID == "" || clientSecret == "" {
			return errors.New("--client-id and --client-secret are required")
		}

		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			repo := mongodb.NewIdentityProviderRepositoryMongo(db)
			idp := &domain.IdentityProvider{
				Name:         name,
				ClientID:     clientID,
				ClientSecret: clientSecret,
				Scopes:       scopes,
				Enabled:      enabled,
			}
			if err := repo.Upsert(ctx, idp); err != nil {
				return fmt.Errorf("failed to store provider registration: %w", err)
			}

			fmt.Printf("Provider %s configured.\n", name)
			return nil
		})
	},
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List provider registrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			repo := mongodb.NewIdentityProviderRepositoryMongo(db)
			providers, err := repo.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list providers: %w", err)
			}

			if len(providers) == 0 {
				fmt.Println("No providers configured.")
				return nil
			}
			out, _ := yaml.Marshal(dto.FromDomainIdentityProviders(providers))
			fmt.Print(string(out))
			return nil
		})
	},
}

var providersDeleteCmd = &cobra.Command{
	Use:   "delete [NAME]",
	Short: "Delete a provider registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			repo := mongodb.NewIdentityProviderRepositoryMongo(db)
			if err := repo.Delete(ctx, args[0]); err != nil {
				if errors.Is(err, aerrors.ErrNotFound) {
					return fmt.Errorf("provider %q is not configured", args[0])
				}
				return fmt.Errorf("failed to delete provider: %w", err)
			}

			fmt.Printf("Provider %s deleted.\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.AddCommand(providersSetCmd)
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersDeleteCmd)

	providersSetCmd.Flags().String("client-id", "", "Client id issued by the provider (required)")
	providersSetCmd.Flags().String("client-secret", "", "Client secret issued by the provider (required)")
	providersSetCmd.Flags().StringSlice("scope", nil,
		"Scope to request from the provider, repeatable (adapter defaults are always added)")
	providersSetCmd.Flags().Bool("enabled", true, "Whether users may sign in through this provider")
}
