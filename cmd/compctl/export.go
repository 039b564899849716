package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noah-isme/mathcomp-api/internal/models"
	"github.com/noah-isme/mathcomp-api/internal/repository"
	"github.com/noah-isme/mathcomp-api/internal/service"
	"github.com/noah-isme/mathcomp-api/pkg/export"
	"github.com/noah-isme/mathcomp-api/pkg/storage"
)

type exportOptions struct {
	format        string
	competitionID string
	status        string
	search        string
	out           string
}

func newExportCmd() *cobra.Command {
	opts := exportOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render registrations to CSV or PDF",
		Long: "Render registrations matching the filters into the export store and print the signed download path.\n" +
			"With --out the rendered file is also copied to the given path.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := models.ExportRequest{
				Format: models.ExportFormat(strings.ToLower(opts.format)),
				Filter: models.RegistrationFilter{
					CompetitionID: opts.competitionID,
					Status:        models.RegistrationStatus(strings.ToLower(opts.status)),
					Search:        opts.search,
				},
			}
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				return runExport(ctx, cmd.OutOrStdout(), e, req, opts.out)
			})
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", string(models.ExportCSV), "csv or pdf")
	cmd.Flags().StringVar(&opts.competitionID, "competition", "", "limit to one competition id")
	cmd.Flags().StringVar(&opts.status, "status", "", "pending, confirmed or cancelled")
	cmd.Flags().StringVar(&opts.search, "search", "", "match student or competition name")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "copy the rendered file here")
	return cmd
}

func runExport(ctx context.Context, w io.Writer, e *env, req models.ExportRequest, out string) error {
	store, err := storage.NewLocalStorage(e.cfg.Exports.StorageDir)
	if err != nil {
		return fmt.Errorf("init export storage: %w", err)
	}
	exports := service.NewExportService(store, storage.NewSignedURLSigner(e.cfg.Exports.SignedURLSecret, e.cfg.Exports.SignedURLTTL), service.ExportConfig{
		APIPrefix: e.cfg.APIPrefix,
		ResultTTL: e.cfg.Exports.SignedURLTTL,
	}, e.logger, export.NewCSVExporter(), export.NewPDFExporter(nil))
	registrations := service.NewRegistrationService(
		repository.NewRegistrationRepository(e.db),
		repository.NewCompetitionRepository(e.db),
		repository.NewAdminRepository(e.db),
		exports, nil, nil, e.logger,
	)

	operator := models.Identity{ID: "compctl", Role: models.RoleAdmin}
	result, err := registrations.Export(ctx, operator, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d row(s) written to %s\n", result.Rows, result.FileName)
	fmt.Fprintf(w, "download: %s (expires %s)\n", result.URL, result.ExpiresAt.Format("2006-01-02 15:04 MST"))

	if out == "" {
		return nil
	}
	token := result.URL[strings.LastIndex(result.URL, "/")+1:]
	file, err := exports.Open(token, operator.ID)
	if err != nil {
		return err
	}
	defer file.File.Close()
	dst, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, file.File); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}
