package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vanrank/internal/engine"
	"vanrank/internal/models"
	"vanrank/internal/output"
	"vanrank/internal/repositories/postgres"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate recommended orders for a date",
	Long: `Generates the recommended order batch for every route with van stock on
the given date (or a single route with --route), replaces any previously
stored batch, and optionally exports it to file or publishes it to Kafka.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := models.LoadConfig(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if err := runGenerate(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	generateCmd.Flags().String("date", "", "Target date (YYYY-MM-DD, required)")
	generateCmd.Flags().String("route", "", "Route code (default: all routes with stock)")
	generateCmd.Flags().Bool("export", false, "Export generated batches to file")
	generateCmd.Flags().Bool("progress", false, "Show a progress bar while scoring")
	generateCmd.Flags().Bool("force", false, "Regenerate routes that already have a stored batch")

	viper.BindPFlag("generate.date", generateCmd.Flags().Lookup("date"))
	viper.BindPFlag("generate.route", generateCmd.Flags().Lookup("route"))
	viper.BindPFlag("generate.export", generateCmd.Flags().Lookup("export"))
	viper.BindPFlag("generate.progress", generateCmd.Flags().Lookup("progress"))
	viper.BindPFlag("generate.force", generateCmd.Flags().Lookup("force"))
}

func runGenerate(cfg *models.Config) error {
	dateStr := viper.GetString("generate.date")
	if dateStr == "" {
		return fmt.Errorf("--date is required: defaulting to today would make historical regeneration irreproducible")
	}
	targetDate, err := time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return fmt.Errorf("malformed date %q: %w", dateStr, err)
	}

	ctx := context.Background()
	pool, err := postgres.Connect(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	historyRepo := postgres.NewPurchaseHistoryRepository(pool)
	stockRepo := postgres.NewVanStockRepository(pool)
	journeyRepo := postgres.NewJourneyPlanRepository(pool)
	recRepo := postgres.NewRecommendationRepository(pool)

	generator := engine.NewGenerator(cfg.Engine, historyRepo, stockRepo, journeyRepo)
	generator.ShowProgress = viper.GetBool("generate.progress")

	routes := []string{viper.GetString("generate.route")}
	if routes[0] == "" {
		routes, err = stockRepo.Routes(ctx, targetDate)
		if err != nil {
			return fmt.Errorf("listing routes: %w", err)
		}
		if len(routes) == 0 {
			fmt.Printf("No van stock loaded for %s, nothing to generate\n", dateStr)
			return nil
		}
	}

	var exporter *output.Exporter
	if viper.GetBool("generate.export") {
		exporter, err = output.NewExporter(cfg.Export)
		if err != nil {
			return err
		}
	}

	var publisher *output.KafkaPublisher
	if cfg.Kafka.Enabled {
		publisher, err = output.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	force := viper.GetBool("generate.force")
	for _, route := range routes {
		if !force {
			existing, err := recRepo.GetByDateRoute(ctx, targetDate, route)
			if err != nil {
				return fmt.Errorf("checking existing batch for route %s: %w", route, err)
			}
			if len(existing) > 0 {
				fmt.Printf("Route %s: batch already stored (%d rows), skipping (use --force to regenerate)\n", route, len(existing))
				continue
			}
		}

		recs, err := generator.Generate(ctx, route, targetDate)
		if err != nil {
			return fmt.Errorf("generating route %s: %w", route, err)
		}
		if len(recs) == 0 {
			fmt.Printf("Route %s: no recommendations (no stock, customers or history)\n", route)
			continue
		}

		if err := recRepo.ReplaceBatch(ctx, targetDate, route, recs); err != nil {
			return fmt.Errorf("storing batch for route %s: %w", route, err)
		}
		fmt.Printf("Route %s: stored %d recommendations\n", route, len(recs))

		if exporter != nil {
			path, err := exporter.Export(recs, route, targetDate)
			if err != nil {
				return fmt.Errorf("exporting route %s: %w", route, err)
			}
			fmt.Printf("Route %s: exported to %s\n", route, path)
		}
		if publisher != nil {
			if err := publisher.PublishGenerated(route, targetDate, len(recs)); err != nil {
				return fmt.Errorf("publishing batch event for route %s: %w", route, err)
			}
		}
	}

	info, err := recRepo.GenerationInfo(ctx, targetDate)
	if err != nil {
		return err
	}
	fmt.Printf("Total stored for %s: %d records across %d routes\n", info.Date, info.TotalRecords, info.RoutesCount)
	return nil
}
