package fuelwatch

import (
	"fmt"
	"math"
	"time"

	"offsider/internal/domain"
)

// Snapshot is the display view of a running watch. HoursToCritical is zero
// when the tank is already at or below the critical threshold; Never marks
// a watch whose tank is not depleting at all.
type Snapshot struct {
	Percent         int
	HoursToCritical float64
	Never           bool
}

type watch struct {
	startedAt time.Time
	capacity  float64
	startPct  float64
	critPct   float64
	lph       float64
}

// watchParams validates the stored fields. Start and critical percents are
// taken as stored, even outside 0-100; only derived values get clamped.
func watchParams(t domain.JobTask) (watch, bool) {
	if !t.IsFuelWatch || t.StartedAt == nil || t.TankCapacityL == nil ||
		t.StartPercent == nil || t.CriticalPercent == nil || t.HourlyUsageLPH == nil {
		return watch{}, false
	}
	started, err := time.Parse(time.RFC3339, *t.StartedAt)
	if err != nil {
		return watch{}, false
	}
	w := watch{
		startedAt: started,
		capacity:  *t.TankCapacityL,
		startPct:  float64(*t.StartPercent),
		critPct:   float64(*t.CriticalPercent),
		lph:       *t.HourlyUsageLPH,
	}
	if w.capacity <= 0 || w.lph < 0 {
		return watch{}, false
	}
	return w, true
}

func (w watch) currentLitres(now time.Time) float64 {
	hours := now.Sub(w.startedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	cur := w.capacity*(w.startPct/100) - hours*w.lph
	if cur < 0 {
		cur = 0
	}
	return cur
}

// EffectivePriority computes the urgency a task has right now under linear
// depletion. Tasks that are not valid fuel watches keep their stored
// priority.
func EffectivePriority(t domain.JobTask, now time.Time) domain.Priority {
	w, ok := watchParams(t)
	if !ok {
		return t.StoredPriority()
	}
	pct := w.currentLitres(now) / w.capacity * 100
	switch {
	case pct <= w.critPct:
		return domain.PriorityCritical
	case pct <= w.critPct+10:
		return domain.PriorityHigh
	default:
		return domain.PriorityMedium
	}
}

// Evaluate returns the display snapshot for a task. ok is false when the
// task is not a valid fuel watch.
func Evaluate(t domain.JobTask, now time.Time) (Snapshot, bool) {
	w, ok := watchParams(t)
	if !ok {
		return Snapshot{}, false
	}
	cur := w.currentLitres(now)
	snap := Snapshot{Percent: int(math.Round(cur / w.capacity * 100))}
	if w.lph <= 0 {
		snap.Never = true
		return snap, true
	}
	critLitres := w.capacity * (w.critPct / 100)
	if cur <= critLitres {
		return snap, true
	}
	snap.HoursToCritical = (cur - critLitres) / w.lph
	return snap, true
}

// FormatHours renders hours-to-critical for summaries, "∞" when the tank
// is not depleting.
func (s Snapshot) FormatHours() string {
	if s.Never {
		return "∞"
	}
	return fmt.Sprintf("%.1f", s.HoursToCritical)
}
