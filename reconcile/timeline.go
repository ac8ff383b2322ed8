/*
timeline.go - Milestone timeline reconstruction

PURPOSE:
  Places the four fixed milestones (baseline, inventory, processing,
  dispatched) on one normalized horizontal axis so planned and
  operator-entered actual dates can be compared. Actual dates are NEVER
  inferred from record data; only explicit operator overrides appear.

PLANNED DATES:
  baseline   = 7 business days before week start
  inventory  = week start
  processing = week start + 4 calendar days
  dispatched = week end (week start + 6)

AXIS:
  Spans [baseline planned, dispatched planned + 2-day buffer]. Positions
  are fractions in [0,1]; out-of-range operator dates clamp to the axis
  bounds rather than erroring.
*/
package reconcile

// Axis buffer past the dispatched planned date, in calendar days.
const timelineBufferDays = 2

// Milestone names, in axis order.
const (
	MilestoneBaseline   = "baseline"
	MilestoneInventory  = "inventory"
	MilestoneProcessing = "processing"
	MilestoneDispatched = "dispatched"
)

// MilestoneOverrides carries operator-entered actual dates (YYYY-MM-DD,
// blank = not entered) and an optional directly-entered completion
// percentage. These drive display only; nothing is derived from them.
type MilestoneOverrides struct {
	BaselineActual   string
	InventoryActual  string
	ProcessingActual string
	DispatchedActual string
	ProgressPct      *int
}

// Milestone is one checkpoint placed on the axis. ActualPos is nil when
// no operator override exists.
type Milestone struct {
	Name       string   `json:"name"`
	Planned    string   `json:"planned"`
	PlannedPos float64  `json:"planned_pos"`
	Actual     string   `json:"actual,omitempty"`
	ActualPos  *float64 `json:"actual_pos,omitempty"`
}

// Timeline is the reconstructed axis for one week.
type Timeline struct {
	WeekStart   string      `json:"week_start"`
	AxisStart   string      `json:"axis_start"`
	AxisEnd     string      `json:"axis_end"`
	Milestones  []Milestone `json:"milestones"`
	ProgressPct *int        `json:"progress_pct,omitempty"`
}

// BuildTimeline reconstructs the milestone axis for a week.
func BuildTimeline(weekStart string, ov MilestoneOverrides) Timeline {
	baseline := BusinessDaysBefore(weekStart, 7)
	dispatched := WeekEnd(weekStart)

	axisStart := baseline
	axisEnd := AddDays(dispatched, timelineBufferDays)
	span := DaysBetween(axisStart, axisEnd)

	pos := func(date string) float64 {
		if span <= 0 {
			return 0
		}
		p := float64(DaysBetween(axisStart, date)) / float64(span)
		if p < 0 {
			return 0
		}
		if p > 1 {
			return 1
		}
		return p
	}

	build := func(name, planned, actual string) Milestone {
		m := Milestone{Name: name, Planned: planned, PlannedPos: pos(planned)}
		if _, err := ParseYMD(actual); err == nil {
			p := pos(actual)
			m.Actual = actual
			m.ActualPos = &p
		}
		return m
	}

	tl := Timeline{
		WeekStart: weekStart,
		AxisStart: axisStart,
		AxisEnd:   axisEnd,
		Milestones: []Milestone{
			build(MilestoneBaseline, baseline, ov.BaselineActual),
			build(MilestoneInventory, weekStart, ov.InventoryActual),
			build(MilestoneProcessing, AddDays(weekStart, 4), ov.ProcessingActual),
			build(MilestoneDispatched, dispatched, ov.DispatchedActual),
		},
	}

	if ov.ProgressPct != nil {
		p := *ov.ProgressPct
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		tl.ProgressPct = &p
	}
	return tl
}
