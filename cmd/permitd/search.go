package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/drillwatch/permit-pipeline/internal/clock/system"
	"github.com/drillwatch/permit-pipeline/internal/config"
	"github.com/drillwatch/permit-pipeline/internal/engine"
	"github.com/drillwatch/permit-pipeline/internal/permits"
	"github.com/drillwatch/permit-pipeline/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		beginDate string
		endDate   string
		maxPages  int
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query the portal for permits in a date range and store the rows",
		Long: `Submits a submitted-date range query to the portal's public search,
walks the paginated result tables, and upserts every row into the permits
table. Falls back from the plain HTTP engine to the headless browser
engine when the portal bounces the session to its login page.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, ctx, stop, err := bootstrap()
			if err != nil {
				return err
			}
			defer stop()
			defer syncLogger(logger)

			if beginDate == "" || endDate == "" {
				return fmt.Errorf("--begin and --end are required (MM/DD/YYYY)")
			}

			searcher, closeEngines, err := buildSearcher(cfg, logger)
			if err != nil {
				return err
			}
			defer closeEngines()

			result, err := searcher.Search(ctx, permits.SearchQuery{
				BeginDate: beginDate,
				EndDate:   endDate,
				MaxPages:  maxPages,
			})
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			logger.Info("search complete",
				zap.String("engine", result.Method),
				zap.Int("pages", result.Pages),
				zap.Int("rows", result.Count),
			)

			if dryRun {
				for _, row := range result.Items {
					fmt.Printf("%s\t%s\t%s\t%s\n", row.StatusNo, row.APINo, row.OperatorName, row.LeaseName)
				}
				return nil
			}

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

			written, err := permitStore.UpsertPermits(ctx, result.Items)
			if err != nil {
				return fmt.Errorf("upsert permits: %w", err)
			}
			logger.Info("permits stored", zap.Int("written", written))
			return nil
		},
	}

	cmd.Flags().StringVar(&beginDate, "begin", "", "submitted-date range start (MM/DD/YYYY)")
	cmd.Flags().StringVar(&endDate, "end", "", "submitted-date range end (MM/DD/YYYY)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "page cap for this query (0 = configured default)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print rows instead of writing to the database")

	return cmd
}

// buildSearcher assembles the engine chain: HTTP first, browser fallback
// when enabled. The returned closer tears down the browser allocator.
func buildSearcher(cfg config.Config, logger *zap.Logger) (*engine.FallbackSearcher, func(), error) {
	engineCfg := engine.Config{
		BaseURL:        cfg.Portal.BaseURL,
		SearchFormPath: cfg.Portal.SearchFormPath,
		SubmitPath:     cfg.Portal.SubmitPath,
		BeginDateField: cfg.Portal.BeginDateField,
		EndDateField:   cfg.Portal.EndDateField,
		OffsetParam:    cfg.Portal.OffsetParam,
		UserAgent:      cfg.Portal.UserAgent,
		Timeout:        cfg.PortalTimeout(),
		MaxPages:       cfg.Portal.MaxPages,
		NavTimeout:     time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
	}
	limiter := engine.NewLimiter(
		time.Duration(cfg.Limiter.MinIntervalMs)*time.Millisecond,
		time.Duration(cfg.Limiter.JitterMs)*time.Millisecond,
	)
	clk := system.New()

	httpEngine, err := engine.NewHTTPEngine(engineCfg, limiter, clk, logger.Named("http"))
	if err != nil {
		return nil, nil, fmt.Errorf("http engine: %w", err)
	}

	engines := []permits.SearchEngine{httpEngine}
	closeEngines := func() {}
	if cfg.Browser.Enabled {
		browserEngine, err := engine.NewBrowserEngine(engineCfg, limiter, clk, logger.Named("browser"))
		if err != nil {
			logger.Warn("browser engine init failed, continuing without fallback", zap.Error(err))
		} else {
			engines = append(engines, browserEngine)
			closeEngines = browserEngine.Close
		}
	}

	return engine.NewFallbackSearcher(logger.Named("search"), engines...), closeEngines, nil
}
