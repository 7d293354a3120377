package fuelwatch_test

import (
	"math"
	"testing"
	"time"

	"offsider/internal/domain"
	"offsider/internal/fuelwatch"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func watchTask(capacity float64, startPct, critPct int, lph float64, startedAt time.Time) domain.JobTask {
	p := domain.PriorityMedium
	started := startedAt.UTC().Format(time.RFC3339)
	return domain.JobTask{
		Title:           "Fuel Watch",
		Priority:        &p,
		IsFuelWatch:     true,
		TankCapacityL:   &capacity,
		StartPercent:    &startPct,
		CriticalPercent: &critPct,
		HourlyUsageLPH:  &lph,
		StartedAt:       &started,
	}
}

func TestEffectivePriorityThresholds(t *testing.T) {
	// 1000L tank, watch starts at 40% with 20 L/h burn, critical at 25%.
	task := watchTask(1000, 40, 25, 20, base)

	if got := fuelwatch.EffectivePriority(task, base); got != domain.PriorityMedium {
		t.Fatalf("at start: got %d, want medium", got)
	}
	// hour 6: 400-120=280L -> 28%, inside the +10 band above critical
	if got := fuelwatch.EffectivePriority(task, base.Add(6*time.Hour)); got != domain.PriorityHigh {
		t.Fatalf("at 6h: got %d, want high", got)
	}
	// hour 8: 400-160=240L -> 24%, at or below critical
	if got := fuelwatch.EffectivePriority(task, base.Add(8*time.Hour)); got != domain.PriorityCritical {
		t.Fatalf("at 8h: got %d, want critical", got)
	}
}

func TestSnapshotValues(t *testing.T) {
	task := watchTask(1000, 40, 25, 20, base)

	snap, ok := fuelwatch.Evaluate(task, base.Add(6*time.Hour))
	if !ok {
		t.Fatalf("expected snapshot")
	}
	if snap.Percent != 28 {
		t.Fatalf("percent: got %d, want 28", snap.Percent)
	}
	// 280L now, 250L critical, 20 L/h -> 1.5h left
	if math.Abs(snap.HoursToCritical-1.5) > 1e-9 {
		t.Fatalf("hours to critical: got %v, want 1.5", snap.HoursToCritical)
	}
	if snap.Never {
		t.Fatalf("unexpected never sentinel")
	}

	snap, ok = fuelwatch.Evaluate(task, base.Add(8*time.Hour))
	if !ok || snap.Percent != 24 {
		t.Fatalf("at 8h: got %+v ok=%v", snap, ok)
	}
	if snap.HoursToCritical != 0 {
		t.Fatalf("below critical should report 0h, got %v", snap.HoursToCritical)
	}
}

func TestZeroUsageNeverDepletes(t *testing.T) {
	task := watchTask(1000, 40, 25, 0, base)

	for _, elapsed := range []time.Duration{0, time.Hour, 1000 * time.Hour} {
		if got := fuelwatch.EffectivePriority(task, base.Add(elapsed)); got != domain.PriorityMedium {
			t.Fatalf("after %v: got %d, want medium", elapsed, got)
		}
	}
	snap, ok := fuelwatch.Evaluate(task, base.Add(48*time.Hour))
	if !ok || !snap.Never {
		t.Fatalf("expected never sentinel, got %+v ok=%v", snap, ok)
	}
	if snap.Percent != 40 {
		t.Fatalf("percent should hold at 40, got %d", snap.Percent)
	}
	if snap.FormatHours() != "∞" {
		t.Fatalf("format: got %q", snap.FormatHours())
	}
}

func TestZeroUsageStartedBelowCritical(t *testing.T) {
	task := watchTask(1000, 20, 25, 0, base)

	if got := fuelwatch.EffectivePriority(task, base); got != domain.PriorityCritical {
		t.Fatalf("at start: got %d, want critical", got)
	}
	if got := fuelwatch.EffectivePriority(task, base.Add(500*time.Hour)); got != domain.PriorityCritical {
		t.Fatalf("much later: got %d, want critical", got)
	}
}

func TestNonFuelWatchKeepsStoredPriority(t *testing.T) {
	task := watchTask(1000, 40, 25, 20, base.Add(-100*time.Hour))
	task.IsFuelWatch = false
	low := domain.PriorityLow
	task.Priority = &low

	if got := fuelwatch.EffectivePriority(task, base); got != domain.PriorityLow {
		t.Fatalf("got %d, want stored low", got)
	}
	if _, ok := fuelwatch.Evaluate(task, base); ok {
		t.Fatalf("expected no snapshot")
	}

	task.Priority = nil
	if got := fuelwatch.EffectivePriority(task, base); got != domain.PriorityMedium {
		t.Fatalf("nil priority: got %d, want medium default", got)
	}
}

func TestInvalidWatchFallsBack(t *testing.T) {
	cases := map[string]func(*domain.JobTask){
		"missing started_at":   func(jt *domain.JobTask) { jt.StartedAt = nil },
		"unparseable started":  func(jt *domain.JobTask) { s := "yesterday"; jt.StartedAt = &s },
		"missing capacity":     func(jt *domain.JobTask) { jt.TankCapacityL = nil },
		"zero capacity":        func(jt *domain.JobTask) { z := 0.0; jt.TankCapacityL = &z },
		"negative usage":       func(jt *domain.JobTask) { n := -5.0; jt.HourlyUsageLPH = &n },
		"missing usage":        func(jt *domain.JobTask) { jt.HourlyUsageLPH = nil },
		"missing start pct":    func(jt *domain.JobTask) { jt.StartPercent = nil },
		"missing critical pct": func(jt *domain.JobTask) { jt.CriticalPercent = nil },
	}
	for name, mutate := range cases {
		task := watchTask(1000, 40, 25, 20, base.Add(-200*time.Hour))
		mutate(&task)
		if got := fuelwatch.EffectivePriority(task, base); got != domain.PriorityMedium {
			t.Fatalf("%s: got %d, want stored priority", name, got)
		}
		if _, ok := fuelwatch.Evaluate(task, base); ok {
			t.Fatalf("%s: expected no snapshot", name)
		}
	}
}

func TestUrgencyNeverDecreasesOverTime(t *testing.T) {
	task := watchTask(1200, 90, 30, 35, base)
	prev := fuelwatch.EffectivePriority(task, base)
	for h := 1; h <= 60; h++ {
		cur := fuelwatch.EffectivePriority(task, base.Add(time.Duration(h)*time.Hour))
		if cur > prev {
			t.Fatalf("urgency dropped from %d to %d at hour %d", prev, cur, h)
		}
		prev = cur
	}
}

func TestEvaluateIsPure(t *testing.T) {
	task := watchTask(1000, 40, 25, 20, base)
	now := base.Add(3 * time.Hour)
	a, aok := fuelwatch.Evaluate(task, now)
	b, bok := fuelwatch.Evaluate(task, now)
	if a != b || aok != bok {
		t.Fatalf("same inputs disagreed: %+v vs %+v", a, b)
	}
	if fuelwatch.EffectivePriority(task, now) != fuelwatch.EffectivePriority(task, now) {
		t.Fatalf("effective priority not stable")
	}
}

func TestFutureStartClampsElapsedToZero(t *testing.T) {
	task := watchTask(1000, 40, 25, 20, base.Add(5*time.Hour))
	snap, ok := fuelwatch.Evaluate(task, base)
	if !ok || snap.Percent != 40 {
		t.Fatalf("future start should read as 0h elapsed, got %+v", snap)
	}
}

func TestOutOfRangeStoredPercents(t *testing.T) {
	// Stored percents are not validated; a critical threshold above the
	// start level reads as critical immediately.
	task := watchTask(1000, 40, 150, 20, base)
	if got := fuelwatch.EffectivePriority(task, base); got != domain.PriorityCritical {
		t.Fatalf("crit above start: got %d, want critical", got)
	}

	// A negative threshold is never reached; the tank just runs dry.
	task = watchTask(1000, 40, -10, 20, base)
	if got := fuelwatch.EffectivePriority(task, base.Add(100*time.Hour)); got == domain.PriorityCritical {
		t.Fatalf("unreachable threshold should not go critical")
	}
}

func TestFormatHours(t *testing.T) {
	snap := fuelwatch.Snapshot{HoursToCritical: 1.5}
	if snap.FormatHours() != "1.5" {
		t.Fatalf("got %q", snap.FormatHours())
	}
	snap = fuelwatch.Snapshot{Never: true}
	if snap.FormatHours() != "∞" {
		t.Fatalf("got %q", snap.FormatHours())
	}
}
