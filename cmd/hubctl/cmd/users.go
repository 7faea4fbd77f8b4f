package cmd

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/authhub/authhub/domain"
	"github.com/authhub/authhub/dto"
	aerrors "github.com/authhub/authhub/errors"
	"github.com/authhub/authhub/internal/auth"
	"github.com/authhub/authhub/mongodb"
)

var usersCmd = &cobra.Command{
	Use:     "users",
	Short:   "Manage hub user accounts",
	Aliases: []string{"user"},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user that can sign in with the password grant",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		name, _ := cmd.Flags().GetString("name")
		password, _ := cmd.Flags().GetString("password")

		if email == "" {
			return errors.New("--email is required")
		}
		if password == "" {
			var err error
			password, err = promptPassword()
			if err != nil {
				return err
			}
		}

		hash, err := auth.NewBcryptPasswordHasher(cfg.BcryptCost).Hash(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			users, err := mongodb.NewUserRepositoryMongo(ctx, db)
			if err != nil {
				return err
			}

			// The email index is not unique (federated accounts may share or
			// lack one), so duplicates are guarded here.
			if _, err := users.GetByEmail(ctx, email); err == nil {
				return fmt.Errorf("a user with email %q already exists", email)
			} else if !errors.Is(err, aerrors.ErrNotFound) {
				return fmt.Errorf("failed to check for existing user: %w", err)
			}

			now := time.Now().UTC()
			user := &domain.User{
				ID:           uuid.NewString(),
				Email:        email,
				Name:         name,
				PasswordHash: hash,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := users.Create(ctx, user); err != nil {
				return fmt.Errorf("failed to create user: %w", err)
			}

			fmt.Printf("User %s created with id %s.\n", email, user.ID)
			return nil
		})
	},
}

var usersGetCmd = &cobra.Command{
	Use:   "get [EMAIL]",
	Short: "Show a user by email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			users, err := mongodb.NewUserRepositoryMongo(ctx, db)
			if err != nil {
				return err
			}

			user, err := users.GetByEmail(ctx, args[0])
			if err != nil {
				if errors.Is(err, aerrors.ErrNotFound) {
					return fmt.Errorf("no user with email %q", args[0])
				}
				return fmt.Errorf("failed to get user: %w", err)
			}

			out, _ := yaml.Marshal(dto.FromDomainUser(user))
			fmt.Print(string(out))
			return nil
		})
	},
}

var usersSetPasswordCmd = &cobra.Command{
	Use:   "set-password [EMAIL]",
	Short: "Set or replace a user's password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		if password == "" {
			var err error
			password, err = promptPassword()
			if err != nil {
				return err
			}
		}

		hash, err := auth.NewBcryptPasswordHasher(cfg.BcryptCost).Hash(password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		return withMongo(func(ctx context.Context, db *mongo.Database) error {
			users, err := mongodb.NewUserRepositoryMongo(ctx, db)
			if err != nil {
				return err
			}

			user, err := users.GetByEmail(ctx, args[0])
			if err != nil {
				if errors.Is(err, aerrors.ErrNotFound) {
					return fmt.Errorf("no user with email %q", args[0])
				}
				return fmt.Errorf("failed to look up user: %w", err)
			}
			if err := users.SetPassword(ctx, user.ID, hash); err != nil {
				return fmt.Errorf("failed to set password: %w", err)
			}

			fmt.Printf("Password updated for %s.\n", args[0])
			return nil
		})
	},
}

// promptPassword reads a password twice from the terminal without echo.
func promptPassword() (string, error) {
	fmt.Print("Enter password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}

	fmt.Print("Confirm password: ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}
	if string(password) != string(confirm) {
		return "", errors.New("passwords do not match")
	}

	return string(password), nil
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersGetCmd)
	usersCmd.AddCommand(usersSetPasswordCmd)

	usersCreateCmd.Flags().StringP("email", "e", "", "User's email address (required)")
	usersCreateCmd.Flags().StringP("password", "p", "", "User's password (prompted when omitted)")
	usersCreateCmd.Flags().String("name", "", "User's display name")

	usersSetPasswordCmd.Flags().StringP("password", "p", "", "New password (prompted when omitted)")
}
