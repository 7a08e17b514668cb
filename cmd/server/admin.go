package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"remit/internal/config"
	"remit/internal/db"
	"remit/internal/logging"
	"remit/internal/models"
	"remit/internal/store"
	"remit/internal/utils"
)

var (
	adminUsername string
	adminEmail    string
	adminSuper    bool
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin console account",
	Long: `Create an admin console account. The password is read from
REMIT_ADMIN_PASSWORD so it does not end up in shell history.

Examples:
  REMIT_ADMIN_PASSWORD=... remit create-admin --username ops --email ops@example.com
  REMIT_ADMIN_PASSWORD=... remit create-admin --username root --email root@example.com --super`,
	RunE: runCreateAdmin,
}

func init() {
	createAdminCmd.Flags().StringVar(&adminUsername, "username", "", "admin username (required)")
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "admin email (required)")
	createAdminCmd.Flags().BoolVar(&adminSuper, "super", false, "grant the superadmin role")
	createAdminCmd.MarkFlagRequired("username")
	createAdminCmd.MarkFlagRequired("email")
}

func runCreateAdmin(cmd *cobra.Command, args []string) error {
	password := os.Getenv("REMIT_ADMIN_PASSWORD")
	if len(password) < 12 {
		return errors.New("REMIT_ADMIN_PASSWORD must be set and at least 12 characters")
	}
	email := strings.ToLower(strings.TrimSpace(adminEmail))
	if !utils.IsEmail(email) {
		return fmt.Errorf("invalid email %q", adminEmail)
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if cfg.DB.Driver != "postgres" {
		return fmt.Errorf("create-admin requires DB_DRIVER=postgres, got %q", cfg.DB.Driver)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	conn, err := db.InitDB(cfg.DB, logger)
	if err != nil {
		return err
	}
	st := store.NewPostgresStore(conn)
	defer st.Close()

	hash, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	role := models.RoleAdmin
	if adminSuper {
		role = models.RoleSuperAdmin
	}
	a := &models.Admin{
		Username:     strings.TrimSpace(adminUsername),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	if err := st.CreateAdmin(context.Background(), a); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return fmt.Errorf("an admin with username %q or email %q already exists", a.Username, a.Email)
		}
		return fmt.Errorf("failed to create admin: %w", err)
	}

	logger.Info("admin created", zap.Int64("admin_id", a.ID), zap.String("username", a.Username), zap.String("role", a.Role))
	return nil
}
