package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/mathcomp-api/migrations"
)

func newMigrateCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if list {
				names, err := migrations.Names()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				ran, err := migrations.Apply(ctx, e.db, e.logger)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(ran))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "print embedded migrations without applying them")
	return cmd
}
