package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vanrank/internal/models"
	"vanrank/internal/output"
	"vanrank/internal/repositories/postgres"
	"vanrank/internal/session"
)

var superviseCmd = &cobra.Command{
	Use:   "supervise",
	Short: "Replay a route's recorded visits through a redistribution session",
	Long: `Loads the stored recommendation batch for a route and date, replays the
day's recorded sales as visit events through a redistribution session, and
persists the resulting session summary. Useful for evaluating how the
recommendations and redistribution would have performed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := models.LoadConfig(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if err := runSupervise(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	superviseCmd.Flags().String("date", "", "Target date (YYYY-MM-DD, required)")
	superviseCmd.Flags().String("route", "", "Route code (required)")

	viper.BindPFlag("supervise.date", superviseCmd.Flags().Lookup("date"))
	viper.BindPFlag("supervise.route", superviseCmd.Flags().Lookup("route"))
}

func runSupervise(cfg *models.Config) error {
	dateStr := viper.GetString("supervise.date")
	route := viper.GetString("supervise.route")
	if dateStr == "" || route == "" {
		return fmt.Errorf("--date and --route are required")
	}
	date, err := time.Parse(models.DateLayout, dateStr)
	if err != nil {
		return fmt.Errorf("malformed date %q: %w", dateStr, err)
	}

	ctx := context.Background()
	pool, err := postgres.Connect(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	recRepo := postgres.NewRecommendationRepository(pool)
	historyRepo := postgres.NewPurchaseHistoryRepository(pool)
	supervisionRepo := postgres.NewSupervisionRepository(pool)

	recs, err := recRepo.GetByDateRoute(ctx, date, route)
	if err != nil {
		return fmt.Errorf("loading batch: %w", err)
	}
	if len(recs) == 0 {
		return fmt.Errorf("no stored recommendations for route %s on %s", route, dateStr)
	}

	actuals, err := historyRepo.GetActualSales(ctx, route, date)
	if err != nil {
		return fmt.Errorf("loading actual sales: %w", err)
	}
	for i := range recs {
		if byItem, ok := actuals[recs[i].CustomerID]; ok {
			recs[i].ActualQuantity = int(byItem[recs[i].ItemID])
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

	registry := session.NewRegistry(cfg.Engine)
	sess := registry.GetOrCreate(route, dateStr)
	if err := sess.Initialize(recs); err != nil {
		return err
	}

	// replay visits in batch order, one per customer with recorded sales
	seen := make(map[string]bool)
	for _, rec := range recs {
		if seen[rec.CustomerID] {
			continue
		}
		seen[rec.CustomerID] = true

		customerSales, ok := actuals[rec.CustomerID]
		if !ok {
			continue
		}
		sales := make(map[string]int, len(customerSales))
		for itemID, qty := range customerSales {
			sales[itemID] = int(qty)
		}

		result, err := sess.ProcessVisit(rec.CustomerID, sales)
		if err != nil {
			return fmt.Errorf("processing visit for %s: %w", rec.CustomerID, err)
		}
		fmt.Printf("Visit %s: %d unsold items, redistribution %s\n",
			rec.CustomerID, len(result.UnsoldItems), result.Redistribution.Status)

		if publisher != nil {
			if err := publisher.PublishVisit(sess.ID, result); err != nil {
				return fmt.Errorf("publishing visit event: %w", err)
			}
		}
	}

	// per-customer scoring against the adjusted allocations
	adjustments := sess.Adjustments()
	byCustomer := make(map[string][]models.Recommendation)
	var order []string
	for _, rec := range recs {
		if _, ok := byCustomer[rec.CustomerID]; !ok {
			order = append(order, rec.CustomerID)
		}
		byCustomer[rec.CustomerID] = append(byCustomer[rec.CustomerID], rec)
	}
	for _, customer := range order {
		if _, visited := actuals[customer]; !visited {
			continue
		}
		var recommended, actual []int
		for _, rec := range byCustomer[customer] {
			recommended = append(recommended, rec.RecommendedQuantity+adjustments[customer][rec.ItemID])
			actual = append(actual, rec.ActualQuantity)
		}
		score := session.CustomerScore(actual, recommended)
		fmt.Printf("Customer %s: score %.1f (coverage %.1f%%, accuracy %.1f%%)\n",
			customer, score.Score, score.Coverage, score.Accuracy)
	}

	summary := sess.Summary()
	if err := supervisionRepo.SaveSummary(ctx, summary); err != nil {
		return fmt.Errorf("saving session summary: %w", err)
	}

	fmt.Printf("Session %s: visited %d/%d customers, performance %.1f%%, %d redistribution events\n",
		summary.SessionID, summary.VisitedCustomers, summary.TotalCustomers,
		summary.PerformanceRate, summary.RedistributionCount)

	registry.Clear(route, dateStr)
	return nil
}
