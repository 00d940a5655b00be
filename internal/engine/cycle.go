package engine

import (
	"errors"
	"math"
	"sort"
	"time"

	"vanrank/internal/models"
)

// ErrMissingReferenceDate is returned when a time-dependent score is asked
// for without an explicit reference date. Defaulting to "now" would make
// historical regenerations unreproducible, so the zero value is rejected.
var ErrMissingReferenceDate = errors.New("reference date is required for deterministic scoring")

// CycleEstimate is the inferred repurchase rhythm for one customer-item pair.
type CycleEstimate struct {
	CycleDays  float64
	Confidence float64
}

// Purchase pattern classes. Anything without a stable rhythm is irregular.
const (
	patternFrequent   = "frequent"
	patternRegular    = "regular"
	patternOccasional = "occasional"
	patternIrregular  = "irregular"
)

type patternInfo struct {
	kind        string
	consistency float64
	baseCycle   float64
	meanGap     float64
	variability float64
}

// CycleEstimator infers purchase cycles, repurchase urgency and activity
// trends from raw purchase history. All methods are pure functions of their
// inputs plus an explicit reference date.
type CycleEstimator struct {
	fallbackCycleDays float64
}

func NewCycleEstimator(fallbackCycleDays float64) *CycleEstimator {
	if fallbackCycleDays <= 0 {
		fallbackCycleDays = 30
	}
	return &CycleEstimator{fallbackCycleDays: fallbackCycleDays}
}

// EstimateCycle infers the typical number of days between purchases.
// With fewer than two distinct purchase dates there is nothing to measure
// and the fallback cycle is returned with zero confidence.
func (e *CycleEstimator) EstimateCycle(history []models.PurchaseEvent) CycleEstimate {
	gaps := extractGaps(history)
	if len(gaps) == 0 {
		return CycleEstimate{CycleDays: e.fallbackCycleDays, Confidence: 0}
	}

	clean := removeOutliers(gaps)
	if len(clean) == 0 {
		return CycleEstimate{CycleDays: median(gaps), Confidence: 0.1}
	}

	info := analyzePattern(clean)
	return e.adaptiveCycle(clean, info)
}

// extractGaps returns the positive day-gaps between consecutive distinct
// purchase dates, in chronological order.
func extractGaps(history []models.PurchaseEvent) []float64 {
	if len(history) < 2 {
		return nil
	}

	seen := make(map[time.Time]struct{}, len(history))
	dates := make([]time.Time, 0, len(history))
	for _, ev := range history {
		day := models.Day(ev.Date)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		dates = append(dates, day)
	}
	if len(dates) < 2 {
		return nil
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	gaps := make([]float64, 0, len(dates)-1)
	for i := 1; i < len(dates); i++ {
		gap := models.DaysBetween(dates[i-1], dates[i])
		if gap > 0 {
			gaps = append(gaps, float64(gap))
		}
	}
	return gaps
}

// removeOutliers drops implausible gaps using an adaptive IQR fence, falling
// back to a MAD fence when the IQR pass would discard more than 40% of the
// data. With fewer than three gaps there is not enough signal to judge.
func removeOutliers(gaps []float64) []float64 {
	if len(gaps) < 3 {
		return gaps
	}

	q1 := percentile(gaps, 25)
	q3 := percentile(gaps, 75)
	iqr := q3 - q1

	if iqr > 0 {
		med := median(gaps)
		spread := 1.0
		if med > 0 {
			spread = (q3 - q1) / med
		}
		multiplier := clamp(1.5-spread*0.3, 1.2, 2.0)

		lower := math.Max(1, q1-multiplier*iqr)
		upper := q3 + multiplier*iqr

		var clean []float64
		for _, g := range gaps {
			if g >= lower && g <= upper {
				clean = append(clean, g)
			}
		}
		// keep at least 60% of the gaps or the fence is too aggressive
		if float64(len(clean)) >= float64(len(gaps))*0.6 {
			return clean
		}
	}

	med := median(gaps)
	devs := make([]float64, len(gaps))
	for i, g := range gaps {
		devs[i] = math.Abs(g - med)
	}
	mad := median(devs)

	if mad > 0 {
		cv := 1.0
		if m := mean(gaps); m > 0 {
			cv = stddev(gaps) / m
		}
		threshold := clamp(3.0-cv, 2.0, 4.0)

		var clean []float64
		for _, g := range gaps {
			if math.Abs(g-med) <= threshold*mad {
				clean = append(clean, g)
			}
		}
		if len(clean) > 0 {
			return clean
		}
	}

	return gaps
}

func analyzePattern(gaps []float64) patternInfo {
	if len(gaps) == 0 {
		return patternInfo{kind: patternIrregular, variability: 1.0}
	}

	meanGap := mean(gaps)
	stdGap := stddev(gaps)
	medianGap := median(gaps)

	consistency := 0.0
	variability := 1.0
	if meanGap > 0 {
		consistency = 1.0 - math.Min(1.0, stdGap/meanGap)
		variability = stdGap / meanGap
	}

	kind := classifyPattern(gaps, meanGap, consistency)

	var baseCycle float64
	switch {
	case consistency > 0.7:
		baseCycle = medianGap
	case consistency > 0.4:
		baseCycle = 0.6*medianGap + 0.4*meanGap
	default:
		baseCycle = meanGap
	}

	return patternInfo{
		kind:        kind,
		consistency: consistency,
		baseCycle:   baseCycle,
		meanGap:     meanGap,
		variability: variability,
	}
}

// classifyPattern uses the data's own percentile breakpoints instead of
// fixed day ranges, so a weekly buyer and a quarterly buyer both classify
// sensibly within their own scale.
func classifyPattern(gaps []float64, meanGap, consistency float64) string {
	if consistency <= 0.7 {
		return patternIrregular
	}
	switch {
	case meanGap <= percentile(gaps, 20):
		return patternFrequent
	case meanGap <= percentile(gaps, 80):
		return patternRegular
	default:
		return patternOccasional
	}
}

func (e *CycleEstimator) adaptiveCycle(gaps []float64, info patternInfo) CycleEstimate {
	if len(gaps) <= 2 {
		confidence := 0.3 + 0.1*float64(len(gaps))
		return CycleEstimate{CycleDays: info.baseCycle, Confidence: confidence}
	}

	strength, windowRatio := recencyParams(info)
	weighted := recencyWeightedCycle(gaps, strength, windowRatio)

	// stable patterns trust the base cycle, unstable ones lean on recency
	final := info.consistency*info.baseCycle + (1-info.consistency)*weighted

	return CycleEstimate{CycleDays: final, Confidence: cycleConfidence(gaps, info)}
}

func recencyParams(info patternInfo) (strength, windowRatio float64) {
	switch {
	case info.consistency > 0.8:
		strength = 0.2 + 0.2*(1-info.consistency)
		windowRatio = 0.3
	case info.consistency > 0.5:
		strength = 0.4 + 0.3*info.variability
		windowRatio = 0.4
	default:
		strength = 0.6 + 0.3*info.variability
		windowRatio = 0.5 + 0.2*info.variability
	}
	return math.Min(0.9, strength), math.Min(0.8, windowRatio)
}

func recencyWeightedCycle(gaps []float64, strength, windowRatio float64) float64 {
	windowSize := int(float64(len(gaps)) * windowRatio)
	if windowSize < 2 {
		windowSize = 2
	}
	recent := gaps[len(gaps)-windowSize:]
	if len(recent) == 1 {
		return recent[0]
	}

	// exponential weights rising towards the newest gap
	weights := make([]float64, len(recent))
	step := strength * 2 / float64(len(recent)-1)
	weightSum := 0.0
	for i := range recent {
		weights[i] = math.Exp(float64(i) * step)
		weightSum += weights[i]
	}

	weighted := 0.0
	for i, g := range recent {
		weighted += g * weights[i] / weightSum
	}
	return weighted
}

func cycleConfidence(gaps []float64, info patternInfo) float64 {
	dataAmount := math.Min(0.4, math.Log(float64(len(gaps))+1)*0.15)
	consistency := info.consistency * 0.3

	bonus := 0.1
	switch info.kind {
	case patternFrequent:
		bonus = 0.2
	case patternRegular:
		bonus = 0.25
	case patternOccasional:
		bonus = 0.15
	case patternIrregular:
		bonus = 0.05
	}

	return math.Min(0.95, 0.3+dataAmount+consistency+bonus)
}

// TimingNeed scores (0-1) how due a repurchase looks on referenceDate.
// The score climbs through an S-curve up to an adaptive peak, then decays
// towards a small floor: a lapsed buyer may still return, so it never
// reaches zero.
func (e *CycleEstimator) TimingNeed(history []models.PurchaseEvent, referenceDate time.Time) (float64, error) {
	if len(history) == 0 {
		return 0.5, nil // moderate need for no history
	}
	if referenceDate.IsZero() {
		return 0, ErrMissingReferenceDate
	}

	lastPurchase := latestDate(history)
	daysSince := models.DaysBetween(lastPurchase, referenceDate)

	estimate := e.EstimateCycle(history)
	cyclePosition := float64(daysSince) / math.Max(estimate.CycleDays, 1)

	gaps := extractGaps(history)
	info := patternInfo{consistency: 0.5, variability: 1.0}
	if len(gaps) > 0 {
		info = analyzePattern(gaps)
	}

	peak := peakThreshold(estimate.CycleDays, info.consistency, len(history))
	if cyclePosition <= peak {
		return urgencyScore(cyclePosition, peak), nil
	}
	return decayedScore(cyclePosition, peak, estimate.CycleDays, info.consistency, len(history)), nil
}

// peakThreshold decides how many cycle-lengths to wait before treating the
// customer as likely churned. Consistent buyers earn a longer wait, short
// cycles a shorter tolerance.
func peakThreshold(cycleDays, consistency float64, purchaseCount int) float64 {
	const basePeak = 2.0

	consistencyFactor := 0.5 + consistency

	var cycleFactor float64
	switch {
	case cycleDays <= 7:
		cycleFactor = 0.9
	case cycleDays <= 14:
		cycleFactor = 1.0
	case cycleDays <= 30:
		cycleFactor = 1.1
	default:
		cycleFactor = 1.2
	}

	historyFactor := math.Min(1.2, 0.8+float64(purchaseCount)/20)

	return basePeak * consistencyFactor * cycleFactor * historyFactor
}

// urgencyScore is a three-segment S-curve over the normalized position:
// slow start, acceleration, then a steep climb toward the due date.
func urgencyScore(cyclePosition, peak float64) float64 {
	normalized := math.Min(1.0, cyclePosition/peak)
	switch {
	case normalized <= 0.3:
		return 0.1 + 0.2*(normalized/0.3)
	case normalized <= 0.7:
		return 0.3 + 0.4*((normalized-0.3)/0.4)
	default:
		return 0.7 + 0.3*((normalized-0.7)/0.3)
	}
}

func decayedScore(cyclePosition, peak, cycleDays, consistency float64, purchaseCount int) float64 {
	excess := cyclePosition - peak
	rate := decayRate(cycleDays, consistency, purchaseCount)

	var factor float64
	if consistency > 0.6 {
		factor = 1.0 / (1.0 + math.Exp(rate*excess))
	} else {
		factor = math.Exp(-rate * excess)
	}

	return math.Max(decayFloor(consistency, purchaseCount), factor)
}

func decayRate(cycleDays, consistency float64, purchaseCount int) float64 {
	const baseRate = 0.5

	// a frequent consistent buyer going quiet is a clear churn signal
	var cycleModifier float64
	switch {
	case cycleDays <= 7 && consistency > 0.7:
		cycleModifier = 1.5
	case cycleDays <= 30:
		cycleModifier = 1.0
	default:
		cycleModifier = 0.7
	}

	historyModifier := math.Min(1.3, 0.7+float64(purchaseCount)/10)
	consistencyModifier := 0.7 + consistency*0.6

	return baseRate * cycleModifier * historyModifier * consistencyModifier
}

func decayFloor(consistency float64, purchaseCount int) float64 {
	floor := 0.05 + (1-consistency)*0.1 + math.Min(0.05, float64(purchaseCount)/100)
	return math.Min(0.2, floor)
}

// TimeWeightedQuantity averages purchase quantities with recent events
// weighted more heavily. The decay rate adapts to the customer's own
// purchase rhythm. Returns the weighted average and a confidence score;
// each fallback branch carries its own fixed confidence tier.
func (e *CycleEstimator) TimeWeightedQuantity(history []models.PurchaseEvent, referenceDate time.Time) (float64, float64) {
	if len(history) == 0 {
		return 0, 0
	}

	// reproducible default: the day after the last purchase
	if referenceDate.IsZero() {
		referenceDate = latestDate(history).AddDate(0, 0, 1)
	}

	gaps := extractGaps(history)
	avgGap := 0.0
	baseDecay := 0.033 // ~30 day half-life when the rhythm is unknown
	if len(gaps) > 0 {
		avgGap = mean(gaps)
		baseDecay = 1.0 / math.Max(avgGap, 1)
	}

	fullWindow := 30.0
	transitionWindow := 90.0
	if len(gaps) > 0 {
		fullWindow = avgGap
		transitionWindow = avgGap * 3
	}

	weightedSum := 0.0
	weightSum := 0.0
	values := make([]float64, len(history))
	for i, ev := range history {
		values[i] = ev.Quantity
		daysAgo := float64(models.DaysBetween(ev.Date, referenceDate))

		var weight float64
		switch {
		case daysAgo <= fullWindow:
			weight = 1.0
		case daysAgo <= transitionWindow && avgGap > 0:
			weight = 0.7 + 0.3*(1-(daysAgo-avgGap)/(avgGap*2))
		default:
			weight = math.Exp(-baseDecay * daysAgo / 30)
		}

		weightedSum += ev.Quantity * weight
		weightSum += weight
	}

	if weightSum <= 0 {
		return mean(values), 0.2
	}

	weighted := weightedSum / weightSum
	if weighted <= 0 || math.IsNaN(weighted) || math.IsInf(weighted, 0) {
		return median(values), 0.3
	}

	simpleAvg := mean(values)
	historicalMax := values[0]
	for _, v := range values {
		if v > historicalMax {
			historicalMax = v
		}
	}

	upperBound := math.Min(simpleAvg*5, historicalMax*1.2)
	lowerBound := math.Max(1, simpleAvg*0.1)

	switch {
	case weighted > upperBound:
		return math.Min(upperBound, simpleAvg*2), 0.5
	case weighted < lowerBound:
		return math.Max(lowerBound, simpleAvg*0.5), 0.5
	}

	avgWeight := weightSum / float64(len(history))
	return weighted, math.Min(1.0, avgWeight*2)
}

// ActivityScore measures how active a customer has been across four
// recency windows sized by multiples of their own purchase gap, weighted
// towards the most recent window.
func (e *CycleEstimator) ActivityScore(history []models.PurchaseEvent, referenceDate time.Time) (float64, error) {
	if len(history) == 0 {
		return 0, nil
	}
	if referenceDate.IsZero() {
		return 0, ErrMissingReferenceDate
	}

	gaps := extractGaps(history)
	avgGap := 0.0
	var windows [4]float64
	if len(gaps) > 0 {
		avgGap = mean(gaps)
		windows = [4]float64{
			math.Min(7, avgGap*2),
			math.Min(30, avgGap*6),
			math.Min(90, avgGap*15),
			math.Min(180, avgGap*30),
		}
	} else {
		windows = [4]float64{7, 30, 90, 180}
	}

	var scores [4]float64
	for i, days := range windows {
		cutoff := referenceDate.AddDate(0, 0, -int(days))
		count := 0
		for _, ev := range history {
			if models.Day(ev.Date).After(models.Day(cutoff)) {
				count++
			}
		}

		if len(gaps) > 0 {
			expected := days / avgGap
			scores[i] = math.Min(1.0, float64(count)/math.Max(expected, 1))
		} else {
			scores[i] = math.Min(1.0, float64(count)/(days/7))
		}
	}

	weights := [4]float64{0.4, 0.3, 0.2, 0.1}
	activity := 0.0
	for i := range scores {
		activity += scores[i] * weights[i]
	}

	// consistently active across the near windows earns a bonus
	if scores[0] > 0.3 && scores[1] > 0.3 && scores[2] > 0.3 {
		activity = math.Min(1.0, activity*1.2)
	}
	// growing activity relative to the long window earns another
	if scores[0] > scores[3]*1.5 {
		activity = math.Min(1.0, activity*1.1)
	}

	return activity, nil
}

// GrowthTrend compares purchase rates between the first and second half of
// the history, squashed through tanh into [-1, 1].
func (e *CycleEstimator) GrowthTrend(history []models.PurchaseEvent) float64 {
	if len(history) < 3 {
		return 0
	}

	sorted := make([]models.PurchaseEvent, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	mid := len(sorted) / 2
	first, second := sorted[:mid], sorted[mid:]
	if len(first) == 0 || len(second) == 0 {
		return 0
	}

	firstRate := halfRate(first)
	secondRate := halfRate(second)

	var growth float64
	if firstRate > 0 {
		growth = (secondRate - firstRate) / firstRate
	} else if secondRate > 0 {
		growth = 1.0
	}

	return math.Tanh(growth)
}

// halfRate normalizes a half's average quantity by its time span to get a
// per-day purchase rate.
func halfRate(events []models.PurchaseEvent) float64 {
	quantities := make([]float64, len(events))
	minDate, maxDate := events[0].Date, events[0].Date
	for i, ev := range events {
		quantities[i] = ev.Quantity
		if ev.Date.Before(minDate) {
			minDate = ev.Date
		}
		if ev.Date.After(maxDate) {
			maxDate = ev.Date
		}
	}
	span := models.DaysBetween(minDate, maxDate) + 1
	return mean(quantities) * float64(len(events)) / math.Max(float64(span), 1)
}

// ImportanceTrend compares an item's share of the customer's volume across
// three trailing 30-day buckets, answering whether the item is becoming
// more or less important to them.
func (e *CycleEstimator) ImportanceTrend(itemHistory, customerHistory []models.PurchaseEvent, referenceDate time.Time) (float64, error) {
	if len(itemHistory) == 0 || len(customerHistory) < 3 {
		return 0, nil
	}
	if referenceDate.IsZero() {
		return 0, ErrMissingReferenceDate
	}

	type period struct{ start, end time.Time }
	now := referenceDate
	periods := []period{
		{now.AddDate(0, 0, -30), now},
		{now.AddDate(0, 0, -60), now.AddDate(0, 0, -30)},
		{now.AddDate(0, 0, -90), now.AddDate(0, 0, -60)},
	}

	var importances []float64
	for _, p := range periods {
		customerTotal := sumQuantityBetween(customerHistory, p.start, p.end)
		if customerTotal <= 0 {
			continue
		}
		itemTotal := sumQuantityBetween(itemHistory, p.start, p.end)
		importances = append(importances, itemTotal/customerTotal)
	}

	if len(importances) < 2 {
		return 0, nil
	}

	recent := importances[0]
	historical := mean(importances[1:])
	if historical <= 0 {
		return 0, nil
	}

	trend := (recent - historical) / historical
	return math.Tanh(trend * 2), nil
}

func sumQuantityBetween(events []models.PurchaseEvent, start, end time.Time) float64 {
	total := 0.0
	for _, ev := range events {
		day := models.Day(ev.Date)
		if !day.Before(models.Day(start)) && day.Before(models.Day(end)) {
			total += ev.Quantity
		}
	}
	return total
}

func latestDate(events []models.PurchaseEvent) time.Time {
	latest := events[0].Date
	for _, ev := range events {
		if ev.Date.After(latest) {
			latest = ev.Date
		}
	}
	return latest
}
