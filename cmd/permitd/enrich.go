package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drillwatch/permit-pipeline/internal/clock/system"
	"github.com/drillwatch/permit-pipeline/internal/engine"
	"github.com/drillwatch/permit-pipeline/internal/parse"
	"github.com/drillwatch/permit-pipeline/internal/store"
	"github.com/drillwatch/permit-pipeline/internal/worker"
)

func newEnrichCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Enrich stored permits from their detail pages and filing PDFs",
		Long: `Selects permits that have never been enriched, or whose last attempt
ended in a retryable status and has cooled down, then fetches each detail
page and filing PDF and persists whatever fields were recovered.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, ctx, stop, err := bootstrap()
			if err != nil {
				return err
			}
			defer stop()
			defer syncLogger(logger)

			permitStore, err := store.New(ctx, store.Config{
				DSN:      cfg.DB.DSN,
				Table:    cfg.DB.Table,
				MaxConns: cfg.DB.MaxConns,
				MinConns: cfg.DB.MinConns,
			})
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer permitStore.Close()

			engineCfg := engine.Config{
				BaseURL:   cfg.Portal.BaseURL,
				UserAgent: cfg.Portal.UserAgent,
				Timeout:   cfg.PortalTimeout(),
			}
			limiter := engine.NewLimiter(
				time.Duration(cfg.Limiter.MinIntervalMs)*time.Millisecond,
				time.Duration(cfg.Limiter.JitterMs)*time.Millisecond,
			)
			fetcher := engine.NewFetcher(engineCfg, limiter)

			extractor, err := parse.NewPDFTextExtractor(logger.Named("pdf"))
			if err != nil {
				return fmt.Errorf("pdf extractor: %w", err)
			}

			w := worker.New(
				permitStore,
				fetcher,
				engine.NewRetryPolicy(),
				extractor,
				system.New(),
				worker.Config{
					RetryCooldown: cfg.RetryCooldown(),
					Weights: worker.Weights{
						HorizontalWellbore:   cfg.Worker.WeightWellbore,
						FieldName:            cfg.Worker.WeightFieldName,
						Acres:                cfg.Worker.WeightAcres,
						WellCount:            cfg.Worker.WeightWellCount,
						WellCountPDFBonusCap: cfg.Worker.WeightWellCount,
						OKThreshold:          cfg.Worker.OKThreshold,
						OKMinFields:          cfg.Worker.OKMinFields,
					},
				},
				logger.Named("worker"),
			)

			if limit <= 0 {
				limit = cfg.Worker.BatchLimit
			}
			summary, err := w.Run(ctx, limit)
			if err != nil {
				return fmt.Errorf("enrichment run: %w", err)
			}
			logger.Info("enrichment summary",
				zap.String("run_id", summary.RunID),
				zap.Int("processed", summary.Processed),
				zap.Int("ok", summary.Successful),
				zap.Int("partial", summary.Partial),
				zap.Int("no_pdf", summary.NoPDF),
				zap.Int("download_errors", summary.DownloadErrors),
				zap.Int("parse_errors", summary.ParseErrors),
				zap.Strings("errors", summary.Errors),
			)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "max permits to enrich this run (0 = configured default)")

	return cmd
}
