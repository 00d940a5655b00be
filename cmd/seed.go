package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"vanrank/internal/models"
	"vanrank/internal/repositories/postgres"
	"vanrank/internal/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Populate the database with a synthetic dataset",
	Long: `Generates reproducible synthetic purchase history, journey plans and van
stock for a target date, derived from the configured random seed.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := models.LoadConfig(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if err := runSeed(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	},
}

func init() {
	seedCmd.Flags().String("date", "", "Target date (YYYY-MM-DD, required)")
	seedCmd.Flags().Int("routes", 3, "Number of routes")
	seedCmd.Flags().Int("customers", 20, "Customers per route")
	seedCmd.Flags().Int("items", 30, "Items in the catalogue")
	seedCmd.Flags().Int("history-days", 365, "Days of purchase history before the target date")
	seedCmd.Flags().Int("seed", 42, "Random seed")

	viper.BindPFlag("seed.date", seedCmd.Flags().Lookup("date"))
	viper.BindPFlag("seed.routes", seedCmd.Flags().Lookup("routes"))
	viper.BindPFlag("seed.customers", seedCmd.Flags().Lookup("customers"))
	viper.BindPFlag("seed.items", seedCmd.Flags().Lookup("items"))
	viper.BindPFlag("seed.history_days", seedCmd.Flags().Lookup("history-days"))
	viper.BindPFlag("seed", seedCmd.Flags().Lookup("seed"))
}

func runSeed(cfg *models.Config) error {
	dateStr := viper.GetString("seed.date")
	if dateStr == "" {
		return fmt.Errorf("--date is required")
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

	seeder := seed.NewSeeder(cfg.Seed,
		postgres.NewPurchaseHistoryRepository(pool),
		postgres.NewVanStockRepository(pool),
		postgres.NewJourneyPlanRepository(pool),
	)

	return seeder.Run(ctx, seed.Options{
		Routes:            viper.GetInt("seed.routes"),
		CustomersPerRoute: viper.GetInt("seed.customers"),
		Items:             viper.GetInt("seed.items"),
		HistoryDays:       viper.GetInt("seed.history_days"),
		TargetDate:        targetDate,
	})
}
