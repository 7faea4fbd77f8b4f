package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"gopkg.in/yaml.v3"

	"github.com/authhub/authhub/client"
	"github.com/authhub/authhub/dto"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/mongodb"
)

var clientsCmd = &cobra.Command{
	Use:     "clients",
	Short:   "Manage downstream OAuth2 client registrations",
	Aliases: []string{"client"},
}

var clientsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Register a new client and print its credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		clientType, _ := cmd.Flags().GetString("type")
		redirectURIs, _ := cmd.Flags().GetStringSlice("redirect-uri")
		scopes, _ := cmd.Flags().GetStringSlice("scope")
		description, _ := cmd.Flags().GetString("description")
		grants, _ := cmd.Flags().GetStringSlice("grant")
		requirePKCE, _ := cmd.Flags().GetBool("require-pkce")

		if name == "" {
			return errors.New("--name is required")
		}
		if len(redirectURIs) == 0 {
			return errors.New("at least one --redirect-uri is required")
		}

		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			svc := client.NewClientService(mongodb.NewClientRepositoryMongo(db), time.Second)
			defer func() { _ = svc.Close() }()

			var (
				cli *client.Client
				err error
			)
			switch client.ClientType(clientType) {
			case client.Confidential:
				cli, err = svc.CreateConfidentialClient(ctx, name, redirectURIs, scopes)
			case client.Public:
				cli, err = svc.CreatePublicClient(ctx, name, redirectURIs, scopes)
			default:
				return fmt.Errorf("invalid --type %q: must be confidential or public", clientType)
			}
			if err != nil {
				return fmt.Errorf("failed to create client: %w", err)
			}

			if description != "" || len(grants) > 0 || cmd.Flags().Changed("require-pkce") {
				cli.Description = description
				if len(grants) > 0 {
					cli.AllowedGrantTypes = grants
				}
				if cmd.Flags().Changed("require-pkce") {
					cli.RequirePKCE = requirePKCE
				}
				if err := svc.UpdateClient(ctx, cli); err != nil {
					return fmt.Errorf("failed to apply client options: %w", err)
				}
			}

			fmt.Println("Client registered:")
			out, _ := yaml.Marshal(dto.FromDomainClient(cli))
			fmt.Print(string(out))
			if cli.Secret != "" {
				fmt.Printf("client_secret: %s\n", cli.Secret)
				fmt.Println("Record the secret now; the admin API never returns it again.")
			}
			return nil
		})
	},
}

var clientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List client registrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		clientType, _ := cmd.Flags().GetString("type")
		search, _ := cmd.Flags().GetString("search")

		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			repo := mongodb.NewClientRepositoryMongo(db)
			clients, err := repo.ListClients(ctx, client.ClientFilter{
				Type:   client.ClientType(clientType),
				Search: search,
			})
			if err != nil {
				return fmt.Errorf("failed to list clients: %w", err)
			}

			if len(clients) == 0 {
				fmt.Println("No clients registered.")
				return nil
			}
			out, _ := yaml.Marshal(dto.FromDomainClients(clients))
			fmt.Print(string(out))
			return nil
		})
	},
}

var clientsGetCmd = &cobra.Command{
	Use:   "get [CLIENT_ID]",
	Short: "Show one client registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			repo := mongodb.NewClientRepositoryMongo(db)
			cli, err := repo.GetClient(ctx, args[0])
			if err != nil {
				if errors.Is(err, aerrors.ErrClientNotFound) {
					return fmt.Errorf("no client with id %q", args[0])
				}
				return fmt.Errorf("failed to get client: %w", err)
			}

			out, _ := yaml.Marshal(dto.FromDomainClient(cli))
			fmt.Print(string(out))
			return nil
		})
	},
}

var clientsDeleteCmd = &cobra.Command{
	Use:   "delete [CLIENT_ID]",
	Short: "Delete a client registration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			repo := mongodb.NewClientRepositoryMongo(db)
			if err := repo.DeleteClient(ctx, args[0]); err != nil {
				if errors.Is(err, aerrors.ErrClientNotFound) {
					return fmt.Errorf("no client with id %q", args[0])
				}
				return fmt.Errorf("failed to delete client: %w", err)
			}

			fmt.Printf("Client %s deleted.\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(clientsCmd)
	clientsCmd.AddCommand(clientsCreateCmd)
	clientsCmd.AddCommand(clientsListCmd)
	clientsCmd.AddCommand(clientsGetCmd)
	clientsCmd.AddCommand(clientsDeleteCmd)

	clientsCreateCmd.Flags().StringP("name", "n", "", "Human-readable client name (required)")
	clientsCreateCmd.Flags().StringP("type", "t", string(client.Confidential),
		"Client type: confidential or public")
	clientsCreateCmd.Flags().StringSlice("redirect-uri", nil,
		"Allowed redirect URI, repeatable (required)")
	clientsCreateCmd.Flags().StringSlice("scope", nil, "Scope the client may request, repeatable")
	clientsCreateCmd.Flags().String("description", "", "Free-form description")
	clientsCreateCmd.Flags().StringSlice("grant", nil,
		"Override the default allowed grant types, repeatable")
	clientsCreateCmd.Flags().Bool("require-pkce", false,
		"Require PKCE on the authorization code flow even for confidential clients")

	clientsListCmd.Flags().String("type", "", "Filter by client type (confidential or public)")
	clientsListCmd.Flags().String("search", "", "Substring match on id, name or description")
}
