package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/ayo6706/kenyabank/internal/app"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "kenyabank",
		Short:   "KenyaBank banking API",
		Version: Version,
		// Running the binary without a subcommand serves the API.
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run()
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "application error: %v\n", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server and background workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Run()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Migrate("up", 0)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations (default 1 step)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive integer, got %q", args[0])
				}
				steps = n
			}
			return app.Migrate("down", steps)
		},
	})

	return cmd
}

func createAdminCmd() *cobra.Command {
	var email, name, phone, password string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long: `Create an administrator with an account but no welcome bonus.

Examples:
  kenyabank create-admin --email ops@kenyabank.co.ke --name "Ops Admin" --phone 254700000000 --password 's3cure-pass'
  KENYABANK_ADMIN_PASSWORD=... kenyabank create-admin --email ops@kenyabank.co.ke --name Ops --phone 254700000000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("KENYABANK_ADMIN_PASSWORD")
			}
			if password == "" {
				return fmt.Errorf("--password or KENYABANK_ADMIN_PASSWORD is required")
			}
			if len(password) < 8 {
				return fmt.Errorf("password must be at least 8 characters")
			}
			profile, err := app.CreateAdmin(cmd.Context(), email, name, phone, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", profile.User.Email, profile.User.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&name, "name", "", "admin full name")
	cmd.Flags().StringVar(&phone, "phone", "", "admin phone number (254XXXXXXXXX)")
	cmd.Flags().StringVar(&password, "password", "", "admin password (min 8 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("phone")

	return cmd
}
