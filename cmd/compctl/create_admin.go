package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/internal/repository"
)

const adminPasswordEnv = "COMPCTL_ADMIN_PASSWORD"

func newCreateAdminCmd() *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator or reset an existing one's password",
		Long:  "The password is read from " + adminPasswordEnv + ".",
		RunE: func(cmd *cobra.Command, _ []string) error {
			admin, err := newAdmin(email, name, os.Getenv(adminPasswordEnv))
			if err != nil {
				return err
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				if err := repository.NewAdminRepository(e.db).Create(ctx, admin); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin %s ready\n", admin.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "admin email address")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newAdmin(email, name, password string) (*models.Admin, error) {
	email = strings.TrimSpace(email)
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", email)
	}
	if len(password) < 8 {
		return nil, errors.New(adminPasswordEnv + " must hold at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	if name == "" {
		name = email
	}
	return &models.Admin{Email: strings.ToLower(email), FullName: name, PasswordHash: string(hash)}, nil
}
