// Package main provides the createuser command, which adds a login account.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"recipebook/internal/auth"
	"recipebook/internal/config"
	"recipebook/internal/db"
	"recipebook/internal/repository"
	"recipebook/internal/service"
)

var (
	username string
	email    string
	password string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "createuser",
	Short:        "Create a user that can log in to the recipe book",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()
		cfg := config.Load()

		gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		if err := db.Migrate(gormDB); err != nil {
			return err
		}

		// no token store: registration never touches sessions
		authService := service.NewAuthService(
			repository.NewUserRepository(gormDB),
			auth.NewJWTService(cfg.SessionSecret),
			nil,
		)
		user, err := authService.Register(context.Background(), username, email, password)
		if err != nil {
			if errors.Is(err, service.ErrUserAlreadyExists) {
				return fmt.Errorf("user %q already exists", username)
			}
			return fmt.Errorf("create user: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created user %q (id %d)\n", user.Username, user.ID)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&username, "username", "u", "", "login name (required)")
	rootCmd.Flags().StringVarP(&email, "email", "e", "", "email address")
	rootCmd.Flags().StringVarP(&password, "password", "p", "", "password (required)")
	_ = rootCmd.MarkFlagRequired("username")
	_ = rootCmd.MarkFlagRequired("password")
}
