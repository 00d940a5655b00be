package seed

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/jaswdr/faker"
	"github.com/lucsky/cuid"

	"vanrank/internal/models"
	"vanrank/internal/repositories"
)

// Seeder generates a synthetic dataset: routes with scheduled customers,
// an item catalogue, a year of purchase history with per-customer buying
// rhythms, and the van stock for a target date. Everything derives from
// the configured seed so a dataset can be reproduced.
type Seeder struct {
	history  repositories.PurchaseHistoryRepository
	stock    repositories.VanStockRepository
	journeys repositories.JourneyPlanRepository

	fake faker.Faker
	rng  *rand.Rand
}

// Options controls dataset shape.
type Options struct {
	Routes            int
	CustomersPerRoute int
	Items             int
	HistoryDays       int
	TargetDate        time.Time
}

func NewSeeder(seed int,
	history repositories.PurchaseHistoryRepository,
	stock repositories.VanStockRepository,
	journeys repositories.JourneyPlanRepository) *Seeder {
	src := rand.NewSource(int64(seed))
	return &Seeder{
		history:  history,
		stock:    stock,
		journeys: journeys,
		fake:     faker.NewWithSeed(src),
		rng:      rand.New(src),
	}
}

type item struct {
	id   string
	name string
}

type customerProfile struct {
	id        string
	cycleDays float64
	jitter    float64
	items     []int
	baseQty   []float64
}

// Run populates all three source tables for the target date.
func (s *Seeder) Run(ctx context.Context, opts Options) error {
	if opts.TargetDate.IsZero() {
		return fmt.Errorf("seed requires a target date")
	}
	if opts.Routes <= 0 {
		opts.Routes = 3
	}
	if opts.CustomersPerRoute <= 0 {
		opts.CustomersPerRoute = 20
	}
	if opts.Items <= 0 {
		opts.Items = 30
	}
	if opts.HistoryDays <= 0 {
		opts.HistoryDays = 365
	}

	targetDate := models.Day(opts.TargetDate)
	catalogue := s.buildCatalogue(opts.Items)

	for r := 0; r < opts.Routes; r++ {
		route := fmt.Sprintf("RT%03d", r+1)
		profiles := s.buildProfiles(opts.CustomersPerRoute, len(catalogue))

		events := s.buildHistory(route, profiles, catalogue, targetDate, opts.HistoryDays)
		if err := s.history.BulkCreate(ctx, events); err != nil {
			return fmt.Errorf("seeding purchase history for %s: %w", route, err)
		}

		stops := make([]models.JourneyStop, 0, len(profiles))
		for _, p := range profiles {
			stops = append(stops, models.JourneyStop{RouteCode: route, Date: targetDate, CustomerID: p.id})
		}
		if err := s.journeys.BulkCreate(ctx, stops); err != nil {
			return fmt.Errorf("seeding journey plan for %s: %w", route, err)
		}

		stock := make([]models.VanStockItem, 0, len(catalogue))
		for _, it := range catalogue {
			stock = append(stock, models.VanStockItem{
				RouteCode: route,
				Date:      targetDate,
				ItemID:    it.id,
				ItemName:  it.name,
				Quantity:  10 + s.rng.Intn(90),
			})
		}
		if err := s.stock.BulkCreate(ctx, stock); err != nil {
			return fmt.Errorf("seeding van stock for %s: %w", route, err)
		}

		log.Printf("Seeded route %s: %d customers, %d items, %d purchase events",
			route, len(profiles), len(catalogue), len(events))
	}
	return nil
}

func (s *Seeder) buildCatalogue(count int) []item {
	catalogue := make([]item, count)
	for i := range catalogue {
		catalogue[i] = item{
			id:   fmt.Sprintf("SKU-%s", cuid.Slug()),
			name: s.fake.Food().Fruit() + " " + s.fake.Lorem().Word(),
		}
	}
	return catalogue
}

func (s *Seeder) buildProfiles(count, itemCount int) []customerProfile {
	profiles := make([]customerProfile, count)
	for i := range profiles {
		// basket of 3-10 items, each with its own typical quantity
		basketSize := 3 + s.rng.Intn(8)
		if basketSize > itemCount {
			basketSize = itemCount
		}
		items := s.rng.Perm(itemCount)[:basketSize]
		baseQty := make([]float64, basketSize)
		for j := range baseQty {
			baseQty[j] = 1 + float64(s.rng.Intn(12))
		}

		profiles[i] = customerProfile{
			id:        fmt.Sprintf("CUST-%s", cuid.Slug()),
			cycleDays: 5 + s.rng.Float64()*25,
			jitter:    0.1 + s.rng.Float64()*0.4,
			items:     items,
			baseQty:   baseQty,
		}
	}
	return profiles
}

// buildHistory walks each customer's cycle backwards from the target
// date, emitting one visit per cycle step with jittered timing and
// quantities. A random 10% of visits skip an item, so purchase rates
// stay below 100%.
func (s *Seeder) buildHistory(route string, profiles []customerProfile, catalogue []item,
	targetDate time.Time, historyDays int) []models.PurchaseEvent {

	var events []models.PurchaseEvent
	start := targetDate.AddDate(0, 0, -historyDays)

	for _, p := range profiles {
		day := start.AddDate(0, 0, s.rng.Intn(int(math.Ceil(p.cycleDays))+1))
		for day.Before(targetDate) {
			for j, itemIdx := range p.items {
				if s.rng.Float64() < 0.1 {
					continue
				}
				qty := math.Max(1, math.Round(p.baseQty[j]*(0.7+s.rng.Float64()*0.6)))
				events = append(events, models.PurchaseEvent{
					Date:       day,
					RouteCode:  route,
					CustomerID: p.id,
					ItemID:     catalogue[itemIdx].id,
					ItemName:   catalogue[itemIdx].name,
					Quantity:   qty,
					UnitPrice:  math.Round(s.fake.Float64(2, 1, 50)*100) / 100,
				})
			}
			gap := p.cycleDays * (1 - p.jitter + s.rng.Float64()*2*p.jitter)
			day = day.AddDate(0, 0, int(math.Max(1, math.Round(gap))))
		}
	}
	return events
}
