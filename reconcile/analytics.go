/*
analytics.go - Plan-vs-actual metrics bundle

PURPOSE:
  ComputeMetrics is a pure function of (plan, records, bins) for one
  Monday-anchored week. It derives every reconciliation signal the exec
  view consumes: completion %, per-SKU/per-PO discrepancy, duplicate
  units, heavy-bin diversity, late-applier rate, top gap drivers and the
  daily anomaly flags, then normalizes the signals onto a 0-100 risk
  radar.

ZERO-DIVISION GUARDS:
  Every percentage in here divides by something that can legally be
  zero. The guards are deliberate and individually tested:
  - completion %: 0 when nothing planned and nothing applied, 100 when
    nothing planned but work applied
  - discrepancy %: keys with zero planned quantity are excluded from the
    average, not treated as 0% or infinite
  - late rate: 0 when nothing applied
  - diversity: 0 when no heavy bins exist

SCOPE RULE:
  A record is in scope when its status is complete and its business date
  falls inside [week_start, week_end] inclusive.

SEE ALSO:
  - engine.go: Loads the three inputs and calls ComputeMetrics
  - timeline.go: The companion milestone reconstruction
*/
package reconcile

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// Risk radar target ceilings. A signal at its ceiling scores 100.
const (
	discrepancyCeilingPct = 5.0
	heavyBinCeiling       = 3.0
	diversityCeiling      = 4.0
	lateRateCeilingPct    = 5.0
)

// =============================================================================
// METRICS BUNDLE
// =============================================================================

// Metrics is the full analytics bundle for one week. Recomputed fresh
// on every call; holds no references into the inputs.
type Metrics struct {
	WeekStart string `json:"week_start"`
	WeekEnd   string `json:"week_end"`

	PlannedTotal  float64 `json:"planned_total"`
	AppliedTotal  int     `json:"applied_total"`
	CompletionPct int     `json:"completion_pct"`

	SKUDiscrepancyPct int `json:"sku_discrepancy_pct"`
	PODiscrepancyPct  int `json:"po_discrepancy_pct"`

	DuplicateUnits int `json:"duplicate_units"`

	HeavyBinCount     int     `json:"heavy_bin_count"`
	HeavyBinDiversity float64 `json:"heavy_bin_diversity"`

	LateCount   int `json:"late_count"`
	LateRatePct int `json:"late_rate_pct"`

	GapDrivers []GapDriver `json:"gap_drivers"`
	Radar      Radar       `json:"radar"`

	Daily       []DayBucket `json:"daily"`
	DailyMean   float64     `json:"daily_mean"`
	DailyStdDev float64     `json:"daily_std_dev"`
}

// GapDriver is one (po, sku) pair whose planned and applied quantities
// differ, ranked by gap magnitude.
type GapDriver struct {
	PONumber string  `json:"po_number"`
	SKUCode  string  `json:"sku_code"`
	Planned  float64 `json:"planned"`
	Applied  int     `json:"applied"`
	Gap      float64 `json:"gap"`
}

// RadarAxis is one normalized risk signal.
type RadarAxis struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// Radar holds the normalized risk axes and the highest-scoring one.
type Radar struct {
	Axes      []RadarAxis `json:"axes"`
	TopDriver string      `json:"top_driver"`
}

// DayBucket is one calendar day of the week with its anomaly flags.
type DayBucket struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
	Dip   bool   `json:"dip"`
	Spike bool   `json:"spike"`
}

// =============================================================================
// AGGREGATION
// =============================================================================

// ComputeMetrics derives the metrics bundle for one week.
func ComputeMetrics(weekStart string, plan []PlanItem, records []Record, bins []Bin) Metrics {
	weekEnd := WeekEnd(weekStart)
	scoped := inScope(weekStart, weekEnd, records)

	m := Metrics{
		WeekStart:    weekStart,
		WeekEnd:      weekEnd,
		AppliedTotal: len(scoped),
	}

	// Planned groupings. The earliest due date per PO drives lateness.
	var (
		plannedTotal = decimal.Zero
		planBySKU    = map[string]decimal.Decimal{}
		planByPO     = map[string]decimal.Decimal{}
		planByPair   = map[poSKU]decimal.Decimal{}
		poDue        = map[string]string{}
	)
	for _, p := range plan {
		plannedTotal = plannedTotal.Add(p.TargetQty)
		if p.SKUCode != "" {
			planBySKU[p.SKUCode] = planBySKU[p.SKUCode].Add(p.TargetQty)
		}
		if p.PONumber != "" {
			planByPO[p.PONumber] = planByPO[p.PONumber].Add(p.TargetQty)
			if due, ok := poDue[p.PONumber]; !ok || (p.DueDate != "" && (due == "" || p.DueDate < due)) {
				poDue[p.PONumber] = p.DueDate
			}
		}
		planByPair[poSKU{p.PONumber, p.SKUCode}] = planByPair[poSKU{p.PONumber, p.SKUCode}].Add(p.TargetQty)
	}

	// Applied groupings: one record counts as one unit.
	var (
		appliedBySKU  = map[string]int{}
		appliedByPO   = map[string]int{}
		appliedByPair = map[poSKU]int{}
		unitCounts    = map[UnitKey]int{}
	)
	for _, r := range scoped {
		appliedBySKU[r.SKUCode]++
		appliedByPO[r.PONumber]++
		appliedByPair[poSKU{r.PONumber, r.SKUCode}]++
		if r.SKUCode != "" && r.UID != "" {
			unitCounts[UnitKey{SKUCode: r.SKUCode, UID: r.UID}]++
		}
	}

	m.PlannedTotal = plannedTotal.InexactFloat64()
	m.CompletionPct = completionPct(plannedTotal, m.AppliedTotal)
	m.SKUDiscrepancyPct = discrepancyPct(planBySKU, appliedBySKU)
	m.PODiscrepancyPct = discrepancyPct(planByPO, appliedByPO)

	// Duplicate units contribute their full group count, not count-1.
	for _, n := range unitCounts {
		if n > 1 {
			m.DuplicateUnits += n
		}
	}

	m.HeavyBinCount, m.HeavyBinDiversity = heavyBinStats(bins, scoped)
	m.LateCount, m.LateRatePct = lateStats(poDue, scoped)
	m.GapDrivers = gapDrivers(planByPair, appliedByPair)
	m.Daily, m.DailyMean, m.DailyStdDev = dailyAnomaly(weekStart, scoped)
	m.Radar = buildRadar(m)
	return m
}

type poSKU struct {
	PO  string
	SKU string
}

func inScope(weekStart, weekEnd string, records []Record) []Record {
	scoped := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Status != StatusComplete {
			continue
		}
		if r.DateLocal < weekStart || r.DateLocal > weekEnd {
			continue
		}
		scoped = append(scoped, r)
	}
	return scoped
}

func completionPct(planned decimal.Decimal, applied int) int {
	if !planned.IsPositive() {
		if applied > 0 {
			return 100
		}
		return 0
	}
	ratio := decimal.NewFromInt(int64(applied) * 100).Div(planned)
	return int(ratio.Round(0).IntPart())
}

// discrepancyPct averages |applied - planned| / planned over keys with
// planned > 0, as a rounded percentage. Swapping planned and applied for
// the same non-zero planned base yields the same value.
func discrepancyPct(planned map[string]decimal.Decimal, applied map[string]int) int {
	sum := decimal.Zero
	count := 0
	for key, p := range planned {
		if !p.IsPositive() {
			continue
		}
		a := decimal.NewFromInt(int64(applied[key]))
		sum = sum.Add(a.Sub(p).Abs().Div(p))
		count++
	}
	if count == 0 {
		return 0
	}
	avg := sum.Div(decimal.NewFromInt(int64(count)))
	return int(avg.Mul(decimal.NewFromInt(100)).Round(0).IntPart())
}

func heavyBinStats(bins []Bin, scoped []Record) (int, float64) {
	seen := map[string]bool{}
	var heavy []string
	for _, b := range bins {
		if b.IsHeavy() && !seen[b.MobileBin] {
			seen[b.MobileBin] = true
			heavy = append(heavy, b.MobileBin)
		}
	}
	if len(heavy) == 0 {
		return 0, 0
	}

	skusByBin := map[string]map[string]bool{}
	for _, r := range scoped {
		if r.MobileBin == "" || r.SKUCode == "" || !seen[r.MobileBin] {
			continue
		}
		if skusByBin[r.MobileBin] == nil {
			skusByBin[r.MobileBin] = map[string]bool{}
		}
		skusByBin[r.MobileBin][r.SKUCode] = true
	}

	total := 0
	for _, id := range heavy {
		total += len(skusByBin[id])
	}
	return len(heavy), float64(total) / float64(len(heavy))
}

// lateStats counts records dated strictly after their PO's earliest due
// date. POs without a due date are excluded from lateness scoring.
func lateStats(poDue map[string]string, scoped []Record) (int, int) {
	late := 0
	for _, r := range scoped {
		due, ok := poDue[r.PONumber]
		if !ok || due == "" {
			continue
		}
		if r.DateLocal > due {
			late++
		}
	}
	return late, pctRound(late, len(scoped))
}

func gapDrivers(planned map[poSKU]decimal.Decimal, applied map[poSKU]int) []GapDriver {
	keys := map[poSKU]bool{}
	for k := range planned {
		keys[k] = true
	}
	for k := range applied {
		keys[k] = true
	}

	drivers := make([]GapDriver, 0, len(keys))
	for k := range keys {
		p := planned[k]
		a := applied[k]
		gap := p.Sub(decimal.NewFromInt(int64(a)))
		if gap.IsZero() {
			continue
		}
		drivers = append(drivers, GapDriver{
			PONumber: k.PO,
			SKUCode:  k.SKU,
			Planned:  p.InexactFloat64(),
			Applied:  a,
			Gap:      gap.InexactFloat64(),
		})
	}

	sort.Slice(drivers, func(i, j int) bool {
		ai, aj := math.Abs(drivers[i].Gap), math.Abs(drivers[j].Gap)
		if ai != aj {
			return ai > aj
		}
		if drivers[i].PONumber != drivers[j].PONumber {
			return drivers[i].PONumber < drivers[j].PONumber
		}
		return drivers[i].SKUCode < drivers[j].SKUCode
	})
	if len(drivers) > 5 {
		drivers = drivers[:5]
	}
	return drivers
}

func dailyAnomaly(weekStart string, scoped []Record) ([]DayBucket, float64, float64) {
	counts := map[string]int{}
	for _, r := range scoped {
		counts[r.DateLocal]++
	}

	days := make([]DayBucket, 7)
	sum := 0
	for i := range days {
		date := AddDays(weekStart, i)
		days[i] = DayBucket{Date: date, Count: counts[date]}
		sum += counts[date]
	}

	mean := float64(sum) / 7
	variance := 0.0
	for _, d := range days {
		diff := float64(d.Count) - mean
		variance += diff * diff
	}
	sigma := math.Sqrt(variance / 7)

	for i := range days {
		c := float64(days[i].Count)
		days[i].Dip = c < mean-1.5*sigma
		days[i].Spike = c > mean+1.5*sigma
	}
	return days, mean, sigma
}

// =============================================================================
// RISK RADAR
// =============================================================================

func buildRadar(m Metrics) Radar {
	axes := []RadarAxis{
		{Name: "duplicates", Score: duplicateScore(m.DuplicateUnits)},
		{Name: "sku_discrepancy", Score: riskScale(float64(m.SKUDiscrepancyPct), discrepancyCeilingPct)},
		{Name: "po_discrepancy", Score: riskScale(float64(m.PODiscrepancyPct), discrepancyCeilingPct)},
		{Name: "heavy_bins", Score: riskScale(float64(m.HeavyBinCount), heavyBinCeiling)},
		{Name: "bin_diversity", Score: diversityScore(m.HeavyBinDiversity)},
		{Name: "late_rate", Score: riskScale(float64(m.LateRatePct), lateRateCeilingPct)},
	}

	top := axes[0]
	for _, a := range axes[1:] {
		if a.Score > top.Score {
			top = a
		}
	}
	return Radar{Axes: axes, TopDriver: top.Name}
}

// Any duplicate at all is maximum risk.
func duplicateScore(dupes int) int {
	if dupes > 0 {
		return 100
	}
	return 0
}

// Higher diversity is lower risk, so the scale inverts.
func diversityScore(diversity float64) int {
	return clampScore(math.Round((diversityCeiling - diversity) / diversityCeiling * 100))
}

func riskScale(value, ceiling float64) int {
	return clampScore(math.Round(value / ceiling * 100))
}

func clampScore(v float64) int {
	return int(math.Max(0, math.Min(100, v)))
}

func pctRound(num, den int) int {
	if den <= 0 {
		return 0
	}
	return int(math.Round(float64(num) * 100 / float64(den)))
}
