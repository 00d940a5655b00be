package engine

import (
	"math"
	"sort"
	"sync"
	"time"

	"vanrank/internal/models"
)

// PriorityComponents is the breakdown behind a final priority score.
type PriorityComponents struct {
	PurchasePattern float64 `json:"purchasePattern"`
	TimingNeed      float64 `json:"timingNeed"`
	CustomerValue   float64 `json:"customerValue"`
	FinalPriority   float64 `json:"finalPriority"`
}

// PriorityScorer blends purchase-pattern consistency, repurchase timing and
// customer value into a single 0-100 stocking priority.
type PriorityScorer struct {
	cycles *CycleEstimator

	patternWeight float64
	timingWeight  float64
	valueWeight   float64

	benchmarkTop int

	// market benchmark cache, keyed by reference day
	mu           sync.Mutex
	benchmark    float64
	benchmarkDay time.Time
	benchmarkSet bool
}

func NewPriorityScorer(cycles *CycleEstimator, benchmarkTop int) *PriorityScorer {
	if benchmarkTop <= 0 {
		benchmarkTop = 100
	}
	return &PriorityScorer{
		cycles:        cycles,
		patternWeight: 0.45,
		timingWeight:  0.35,
		valueWeight:   0.20,
		benchmarkTop:  benchmarkTop,
	}
}

// Score computes the stocking priority for one customer-item pair.
// customerHistory is every purchase by the customer inside the lookback
// window; marketHistory is the whole route's history used for the size
// benchmark. The result is rounded to 2 decimals so repeated runs over the
// same data are bit-for-bit identical.
func (p *PriorityScorer) Score(itemID string, customerHistory, marketHistory []models.PurchaseEvent, referenceDate time.Time) (float64, PriorityComponents, error) {
	if referenceDate.IsZero() {
		return 0, PriorityComponents{}, ErrMissingReferenceDate
	}

	itemHistory := filterByItem(customerHistory, itemID)

	purchasePattern := p.purchasePattern(customerHistory, itemHistory)

	timingNeed, err := p.cycles.TimingNeed(itemHistory, referenceDate)
	if err != nil {
		return 0, PriorityComponents{}, err
	}

	customerValue, err := p.customerValue(customerHistory, itemHistory, marketHistory, referenceDate)
	if err != nil {
		return 0, PriorityComponents{}, err
	}

	priority := p.patternWeight*purchasePattern + p.timingWeight*timingNeed + p.valueWeight*customerValue
	priority = round2(clamp(priority*100, 0, 100))

	components := PriorityComponents{
		PurchasePattern: purchasePattern,
		TimingNeed:      timingNeed,
		CustomerValue:   customerValue,
		FinalPriority:   priority,
	}
	return priority, components, nil
}

// purchasePattern scores how reliably the customer buys this item:
// 70% purchase rate (item dates / visit dates), 30% interval consistency.
func (p *PriorityScorer) purchasePattern(customerHistory, itemHistory []models.PurchaseEvent) float64 {
	if len(customerHistory) == 0 {
		return 0
	}

	visitDates := distinctDates(customerHistory)
	if len(visitDates) == 0 {
		return 0
	}
	purchaseDates := distinctDates(itemHistory)
	purchaseRate := float64(len(purchaseDates)) / float64(len(visitDates))

	// perfect consistency by default until there is enough data to judge
	consistency := 1.0
	if len(purchaseDates) >= 3 {
		intervals := eventIntervals(itemHistory)
		if len(intervals) > 0 {
			meanInterval := mean(intervals)
			if meanInterval > 0 {
				cv := stddev(intervals) / meanInterval
				consistency = math.Max(0, 1-cv)
			}
		}
	}

	score := math.Min(1.0, 0.7*purchaseRate+0.3*consistency)
	return round4(score)
}

// customerValue blends relative size, recent item importance, activity and
// growth, with weights renormalized when data is sparse.
func (p *PriorityScorer) customerValue(customerHistory, itemHistory, marketHistory []models.PurchaseEvent, referenceDate time.Time) (float64, error) {
	if len(customerHistory) == 0 {
		return 0, nil
	}

	size, err := p.customerSize(customerHistory, marketHistory, referenceDate)
	if err != nil {
		return 0, err
	}

	importance, err := p.recentItemImportance(itemHistory, customerHistory, referenceDate)
	if err != nil {
		return 0, err
	}

	activity, err := p.cycles.ActivityScore(customerHistory, referenceDate)
	if err != nil {
		return 0, err
	}

	growth := 0.5 + p.cycles.GrowthTrend(customerHistory)*0.5

	w := valueWeights(len(customerHistory), len(itemHistory))
	score := w.size*size + w.importance*importance + w.activity*activity + w.growth*growth
	return round4(math.Min(1.0, score)), nil
}

// customerSize is the customer's time-weighted volume relative to the
// market benchmark, capped by an activity-dependent ceiling.
func (p *PriorityScorer) customerSize(customerHistory, marketHistory []models.PurchaseEvent, referenceDate time.Time) (float64, error) {
	weightedTotal, _ := p.cycles.TimeWeightedQuantity(customerHistory, referenceDate)
	if weightedTotal <= 0 {
		return 0, nil
	}

	benchmark := p.marketBenchmark(marketHistory, referenceDate)
	if benchmark <= 0 {
		benchmark = weightedTotal
	}

	ratio := weightedTotal / math.Max(benchmark, 1)

	activity, err := p.cycles.ActivityScore(customerHistory, referenceDate)
	if err != nil {
		return 0, err
	}
	cap := 2.0 + activity
	return math.Min(ratio, cap) / cap, nil
}

// marketBenchmark is the mean volume of the top customers by total
// historical quantity, cached per reference day since every pair scored in
// one generation run shares the same market data.
func (p *PriorityScorer) marketBenchmark(marketHistory []models.PurchaseEvent, referenceDate time.Time) float64 {
	day := models.Day(referenceDate)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.benchmarkSet && p.benchmarkDay.Equal(day) {
		return p.benchmark
	}

	if len(marketHistory) == 0 {
		return 0
	}

	totals := make(map[string]float64)
	for _, ev := range marketHistory {
		totals[ev.CustomerID] += ev.Quantity
	}
	volumes := make([]float64, 0, len(totals))
	for _, v := range totals {
		volumes = append(volumes, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(volumes)))
	if len(volumes) > p.benchmarkTop {
		volumes = volumes[:p.benchmarkTop]
	}

	p.benchmark = mean(volumes)
	p.benchmarkDay = day
	p.benchmarkSet = true
	return p.benchmark
}

// recentItemImportance is the item's share of the customer's recent volume,
// adjusted by the importance trend. The recency window scales with the
// customer's own purchase rhythm.
func (p *PriorityScorer) recentItemImportance(itemHistory, customerHistory []models.PurchaseEvent, referenceDate time.Time) (float64, error) {
	if len(itemHistory) == 0 || len(customerHistory) == 0 {
		return 0, nil
	}
	if referenceDate.IsZero() {
		return 0, ErrMissingReferenceDate
	}

	gaps := extractGaps(customerHistory)
	window := 60.0
	if len(gaps) > 0 {
		window = clamp(mean(gaps)*10, 30, 90)
	}
	cutoff := referenceDate.AddDate(0, 0, -int(window))

	recentCustomer := sumQuantityAfter(customerHistory, cutoff)
	var importance float64
	if recentCustomer > 0 {
		recentItem := sumQuantityAfter(itemHistory, cutoff)
		importance = recentItem / math.Max(recentCustomer, 1)
	} else {
		// no recent activity: decay the historical share
		historical := totalQuantity(itemHistory) / math.Max(totalQuantity(customerHistory), 1)
		daysSince := models.DaysBetween(latestDate(customerHistory), referenceDate)
		importance = historical * math.Exp(-float64(daysSince)/90)
	}

	trend, err := p.cycles.ImportanceTrend(itemHistory, customerHistory, referenceDate)
	if err != nil {
		return 0, err
	}
	switch {
	case trend > 0:
		importance *= 1 + trend*0.3
	case trend < 0:
		importance *= 1 + trend*0.2
	}

	return math.Min(1.0, importance), nil
}

type componentWeights struct {
	size, importance, activity, growth float64
}

// valueWeights shifts the customer-value blend when history is thin:
// little customer data leans on activity, no item data drops importance.
func valueWeights(customerCount, itemCount int) componentWeights {
	w := componentWeights{size: 0.50, importance: 0.25, activity: 0.15, growth: 0.10}

	if customerCount < 5 {
		w.growth = 0.05
		w.activity = 0.20
	}

	if itemCount == 0 {
		w.importance = 0
		w.size = 0.60
		w.activity = 0.25
		w.growth = 0.15
	} else if itemCount < 3 {
		w.importance = 0.15
		w.size = 0.55
	}

	total := w.size + w.importance + w.activity + w.growth
	if total > 0 {
		w.size /= total
		w.importance /= total
		w.activity /= total
		w.growth /= total
	}
	return w
}

// tierThresholds maps each strategy to its minimum priority per tier.
var tierThresholds = map[string]map[string]float64{
	models.StrategyConservative: {
		models.TierMustStock:   85,
		models.TierShouldStock: 65,
		models.TierConsider:    45,
		models.TierMonitor:     25,
	},
	models.StrategyAggressive: {
		models.TierMustStock:   65,
		models.TierShouldStock: 45,
		models.TierConsider:    25,
		models.TierMonitor:     10,
	},
	models.StrategyBalanced: {
		models.TierMustStock:   75,
		models.TierShouldStock: 55,
		models.TierConsider:    35,
		models.TierMonitor:     15,
	},
}

// TierFor maps a priority score onto a stocking tier under the given
// strategy. Unknown strategies fall back to balanced. Monotone by
// construction: a higher priority can never land in a lower tier.
func TierFor(priority float64, strategy string) string {
	thresholds, ok := tierThresholds[strategy]
	if !ok {
		thresholds = tierThresholds[models.StrategyBalanced]
	}

	switch {
	case priority >= thresholds[models.TierMustStock]:
		return models.TierMustStock
	case priority >= thresholds[models.TierShouldStock]:
		return models.TierShouldStock
	case priority >= thresholds[models.TierConsider]:
		return models.TierConsider
	case priority >= thresholds[models.TierMonitor]:
		return models.TierMonitor
	default:
		return models.TierExclude
	}
}

func filterByItem(events []models.PurchaseEvent, itemID string) []models.PurchaseEvent {
	var out []models.PurchaseEvent
	for _, ev := range events {
		if ev.ItemID == itemID {
			out = append(out, ev)
		}
	}
	return out
}

func distinctDates(events []models.PurchaseEvent) []time.Time {
	seen := make(map[time.Time]struct{}, len(events))
	var dates []time.Time
	for _, ev := range events {
		day := models.Day(ev.Date)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		dates = append(dates, day)
	}
	return dates
}

// eventIntervals returns day gaps between consecutive events, duplicates
// included, so same-day purchases register as zero-length intervals.
func eventIntervals(events []models.PurchaseEvent) []float64 {
	if len(events) < 2 {
		return nil
	}
	sorted := make([]models.PurchaseEvent, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	intervals := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		intervals = append(intervals, float64(models.DaysBetween(sorted[i-1].Date, sorted[i].Date)))
	}
	return intervals
}

func sumQuantityAfter(events []models.PurchaseEvent, cutoff time.Time) float64 {
	total := 0.0
	for _, ev := range events {
		if models.Day(ev.Date).After(models.Day(cutoff)) {
			total += ev.Quantity
		}
	}
	return total
}

func totalQuantity(events []models.PurchaseEvent) float64 {
	total := 0.0
	for _, ev := range events {
		total += ev.Quantity
	}
	return total
}
