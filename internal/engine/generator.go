package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"vanrank/internal/models"
	"vanrank/internal/repositories"
)

// ErrMissingTargetDate is returned when a generation run is requested
// without a date. Defaulting to "today" would silently change the output
// of historical regenerations.
var ErrMissingTargetDate = errors.New("target date is required for recommendation generation")

// Generator orchestrates priority scoring across every (customer, item)
// pair scheduled for a route/date and turns priorities into bounded
// quantities under the van's stock constraint.
type Generator struct {
	cfg      models.EngineConfig
	history  repositories.PurchaseHistoryRepository
	stock    repositories.VanStockRepository
	journeys repositories.JourneyPlanRepository

	cycles *CycleEstimator

	// ShowProgress renders a progress bar over the customer loop; off by
	// default so batch logs and tests stay clean.
	ShowProgress bool
}

func NewGenerator(cfg models.EngineConfig,
	history repositories.PurchaseHistoryRepository,
	stock repositories.VanStockRepository,
	journeys repositories.JourneyPlanRepository) *Generator {
	return &Generator{
		cfg:      cfg,
		history:  history,
		stock:    stock,
		journeys: journeys,
		cycles:   NewCycleEstimator(cfg.FallbackCycleDays),
	}
}

// Generate produces the recommendation batch for one route and date.
// Missing stock, journey plan or history yields an empty batch, not an
// error; a zero target date is a hard input error.
func (g *Generator) Generate(ctx context.Context, route string, targetDate time.Time) ([]models.Recommendation, error) {
	if targetDate.IsZero() {
		return nil, ErrMissingTargetDate
	}

	if g.cfg.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.GenerationTimeout)
		defer cancel()
	}

	targetDate = models.Day(targetDate)

	stockRows, err := g.stock.GetForRouteDate(ctx, route, targetDate)
	if err != nil {
		return nil, fmt.Errorf("loading van stock: %w", err)
	}
	if len(stockRows) == 0 {
		return nil, nil
	}

	customers, err := g.journeys.GetCustomers(ctx, route, targetDate)
	if err != nil {
		return nil, fmt.Errorf("loading journey plan: %w", err)
	}
	if len(customers) == 0 {
		return nil, nil
	}

	lookback := g.cfg.LookbackDays
	if lookback <= 0 {
		lookback = 365
	}
	from := targetDate.AddDate(0, 0, -lookback)
	window, err := g.history.GetByRouteAndRange(ctx, route, from, targetDate)
	if err != nil {
		return nil, fmt.Errorf("loading purchase history: %w", err)
	}

	vanItems := make(map[string]int, len(stockRows))
	itemNames := make(map[string]string, len(stockRows))
	for _, row := range stockRows {
		vanItems[row.ItemID] = row.Quantity
		itemNames[row.ItemID] = row.ItemName
	}

	idx := buildHistoryIndex(window)
	scorer := NewPriorityScorer(g.cycles, g.cfg.BenchmarkTopCustomers)

	sort.Strings(customers)

	recs, err := g.scoreCustomers(ctx, customers, idx, window, vanItems, itemNames, route, targetDate, scorer)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}

	sortBatch(recs)
	recs = applyVanLoadConstraints(recs, vanItems)
	sortBatch(recs)

	log.Printf("Generated %d recommendations for route %s on %s", len(recs), route, targetDate.Format(models.DateLayout))
	return recs, nil
}

// scoreCustomers fans the per-customer evaluation out over a worker pool.
// Scoring is pure, so customers evaluate independently; results keep the
// sorted customer order so the fan-out never affects output ordering.
func (g *Generator) scoreCustomers(ctx context.Context, customers []string, idx historyIndex,
	window []models.PurchaseEvent, vanItems map[string]int, itemNames map[string]string,
	route string, targetDate time.Time, scorer *PriorityScorer) ([]models.Recommendation, error) {

	workers := g.cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(customers) {
		workers = len(customers)
	}

	var bar *progressbar.ProgressBar
	if g.ShowProgress {
		bar = progressbar.Default(int64(len(customers)), "scoring customers")
	}

	perCustomer := make([][]models.Recommendation, len(customers))
	errCh := make(chan error, workers)

	// Buffered and pre-filled so workers that bail out early (error or
	// cancelled context) never leave a feeder blocked on a send.
	jobs := make(chan int, len(customers))
	for i := range customers {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				rows, err := g.recommendForCustomer(customers[i], idx[customers[i]], window, vanItems, itemNames, route, targetDate, scorer)
				if err != nil {
					select {
					case errCh <- err:
					default:
					}
					return
				}
				perCustomer[i] = rows
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return nil, err
	default:
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("generation aborted: %w", err)
	}

	var recs []models.Recommendation
	for _, rows := range perCustomer {
		recs = append(recs, rows...)
	}
	return recs, nil
}

func (g *Generator) recommendForCustomer(customer string, ch *customerHistory,
	window []models.PurchaseEvent, vanItems map[string]int, itemNames map[string]string,
	route string, targetDate time.Time, scorer *PriorityScorer) ([]models.Recommendation, error) {

	if ch == nil || len(ch.events) == 0 {
		return g.recommendForNewCustomer(customer, vanItems, itemNames, route, targetDate), nil
	}

	itemIDs := make([]string, 0, len(vanItems))
	for itemID := range vanItems {
		itemIDs = append(itemIDs, itemID)
	}
	sort.Strings(itemIDs)

	var rows []models.Recommendation
	for _, itemID := range itemIDs {
		vanQty := vanItems[itemID]
		if vanQty <= 0 {
			continue
		}
		itemHistory, ok := ch.items[itemID]
		if !ok {
			continue
		}

		priority, _, err := scorer.Score(itemID, ch.events, window, targetDate)
		if err != nil {
			return nil, err
		}
		if priority < g.cfg.MinPriority {
			continue
		}

		avgQty, _ := g.cycles.TimeWeightedQuantity(itemHistory, targetDate)
		estimate := g.cycles.EstimateCycle(itemHistory)
		daysSince := models.DaysBetween(latestDate(itemHistory), targetDate)
		frequency := float64(len(distinctDates(itemHistory))) / math.Max(float64(len(distinctDates(ch.events))), 1)

		qty := g.directQuantity(priority, avgQty, vanQty)
		if qty <= 0 {
			continue
		}

		rows = append(rows, models.Recommendation{
			Date:                  targetDate.Format(models.DateLayout),
			RouteCode:             route,
			CustomerID:            customer,
			ItemID:                itemID,
			ItemName:              itemNames[itemID],
			RecommendedQuantity:   qty,
			Tier:                  TierFor(priority, g.cfg.Strategy),
			VanLoad:               vanQty,
			PriorityScore:         math.Round(priority*10) / 10,
			AvgQuantityPerVisit:   sanitizeAvgQuantity(avgQty),
			DaysSinceLastPurchase: daysSince,
			PurchaseCycleDays:     sanitizeCycleDays(estimate.CycleDays),
			FrequencyPercent:      math.Round(math.Min(100, frequency*100)*10) / 10,
		})
	}
	return rows, nil
}

// recommendForNewCustomer picks the highest-stocked items (demand-based,
// not alphabetical) with a fixed small quantity.
func (g *Generator) recommendForNewCustomer(customer string, vanItems map[string]int,
	itemNames map[string]string, route string, targetDate time.Time) []models.Recommendation {

	type stocked struct {
		itemID string
		qty    int
	}
	items := make([]stocked, 0, len(vanItems))
	for itemID, qty := range vanItems {
		if qty > 0 {
			items = append(items, stocked{itemID, qty})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].qty != items[j].qty {
			return items[i].qty > items[j].qty
		}
		return items[i].itemID < items[j].itemID
	})

	count := g.cfg.NewCustomerItemCount
	if count <= 0 {
		count = 5
	}
	if count > len(items) {
		count = len(items)
	}

	defaultQty := g.cfg.NewCustomerQuantity
	if defaultQty <= 0 {
		defaultQty = 5
	}

	rows := make([]models.Recommendation, 0, count)
	for _, item := range items[:count] {
		qty := defaultQty
		if qty > item.qty {
			qty = item.qty
		}
		rows = append(rows, models.Recommendation{
			Date:                targetDate.Format(models.DateLayout),
			RouteCode:           route,
			CustomerID:          customer,
			ItemID:              item.itemID,
			ItemName:            itemNames[item.itemID],
			RecommendedQuantity: qty,
			Tier:                models.TierNewCustomer,
			VanLoad:             item.qty,
			PriorityScore:       25.0,
			AvgQuantityPerVisit: defaultQty,
		})
	}
	return rows
}

// directQuantity maps priority straight onto quantity: a linear multiplier
// from 0.3 at the floor to 1.5 at priority 100, applied to the customer's
// time-weighted average, clamped to [1, van stock].
func (g *Generator) directQuantity(priority, avgQty float64, vanQty int) int {
	multiplier := 0.3 + priority/100*1.2
	base := math.Max(1, math.Round(avgQty))
	qty := math.Round(base * multiplier)
	return int(math.Max(1, math.Min(qty, float64(vanQty))))
}

// applyVanLoadConstraints enforces, per item, that the total recommended
// quantity never exceeds the van load: allocation runs in descending
// priority until stock is exhausted, the remainder is zeroed and dropped.
func applyVanLoadConstraints(recs []models.Recommendation, vanItems map[string]int) []models.Recommendation {
	byItem := make(map[string][]int)
	for i, rec := range recs {
		byItem[rec.ItemID] = append(byItem[rec.ItemID], i)
	}

	for itemID, indices := range byItem {
		vanLoad := vanItems[itemID]
		total := 0
		for _, i := range indices {
			total += recs[i].RecommendedQuantity
		}
		if total <= vanLoad {
			continue
		}

		ordered := make([]int, len(indices))
		copy(ordered, indices)
		sort.SliceStable(ordered, func(a, b int) bool {
			return recs[ordered[a]].PriorityScore > recs[ordered[b]].PriorityScore
		})

		remaining := vanLoad
		for _, i := range ordered {
			if remaining <= 0 {
				recs[i].RecommendedQuantity = 0
				continue
			}
			allocated := recs[i].RecommendedQuantity
			if allocated > remaining {
				allocated = remaining
			}
			recs[i].RecommendedQuantity = allocated
			remaining -= allocated
		}
	}

	out := recs[:0]
	for _, rec := range recs {
		if rec.RecommendedQuantity > 0 {
			out = append(out, rec)
		}
	}
	return out
}

// sortBatch orders a batch for stable presentation: customer ascending,
// then priority descending, then item id as the final tiebreak.
func sortBatch(recs []models.Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CustomerID != recs[j].CustomerID {
			return recs[i].CustomerID < recs[j].CustomerID
		}
		if recs[i].PriorityScore != recs[j].PriorityScore {
			return recs[i].PriorityScore > recs[j].PriorityScore
		}
		return recs[i].ItemID < recs[j].ItemID
	})
}

func sanitizeAvgQuantity(avg float64) int {
	if math.IsNaN(avg) || math.IsInf(avg, 0) || avg <= 0 {
		return 1
	}
	if avg > 1000 {
		return 1000
	}
	return int(math.Round(avg))
}

func sanitizeCycleDays(cycle float64) float64 {
	if math.IsNaN(cycle) || math.IsInf(cycle, 0) || cycle <= 0 {
		return 30.0
	}
	if cycle > 365 {
		return 365.0
	}
	return math.Round(cycle*10) / 10
}
