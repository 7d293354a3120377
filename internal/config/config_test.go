package config_test

import (
	"path/filepath"
	"testing"

	"offsider/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8000" {
		t.Fatalf("addr default: %q", cfg.Server.Addr)
	}
	if cfg.Scheduler.IntervalSeconds != 60 {
		t.Fatalf("interval default: %d", cfg.Scheduler.IntervalSeconds)
	}
	if cfg.Data.Dir != "data" {
		t.Fatalf("data dir default: %q", cfg.Data.Dir)
	}
}

func TestFromYAMLOverridesAndValidates(t *testing.T) {
	cfg, err := config.FromYAML([]byte("server:\n  addr: 0.0.0.0:9000\nscheduler:\n  interval_seconds: 5\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" || cfg.Scheduler.IntervalSeconds != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Auth.RigsFile != "rigs.yaml" {
		t.Fatalf("untouched default lost: %q", cfg.Auth.RigsFile)
	}

	if _, err := config.FromYAML([]byte("scheduler:\n  interval_seconds: 0\n")); err == nil {
		t.Fatalf("expected interval validation error")
	}
	if _, err := config.FromYAML([]byte("server:\n  addr: \"\"\n")); err == nil {
		t.Fatalf("expected addr validation error")
	}
}

func TestDefaultTemplateParses(t *testing.T) {
	if _, err := config.FromYAML([]byte(config.GenerateDefault())); err != nil {
		t.Fatalf("default template invalid: %v", err)
	}
}

func TestRigsWrappedForm(t *testing.T) {
	rigs, err := config.RigsFromYAML([]byte("rigs:\n  - id: alpha\n    title: Rig Alpha\n    pin: \"1234\"\n  - id: bravo\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rigs) != 2 {
		t.Fatalf("want 2 rigs, got %d", len(rigs))
	}
	if rigs[0].Title != "Rig Alpha" || !rigs[0].HasPIN() {
		t.Fatalf("alpha: %+v", rigs[0])
	}
	// title falls back to the id
	if rigs[1].Title != "bravo" || rigs[1].HasPIN() {
		t.Fatalf("bravo: %+v", rigs[1])
	}
}

func TestRigsBareListAndLegacyKeys(t *testing.T) {
	rigs, err := config.RigsFromYAML([]byte("- id: west\n  name: West Rig\n  quote: Dig deep\n- title: no id, skipped\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(rigs) != 1 {
		t.Fatalf("want 1 rig, got %d", len(rigs))
	}
	if rigs[0].Title != "West Rig" || rigs[0].Subtitle != "Dig deep" {
		t.Fatalf("legacy keys not honored: %+v", rigs[0])
	}
}

func TestFindRig(t *testing.T) {
	rigs := []config.Rig{{ID: "a", Title: "A"}, {ID: "b", Title: "B"}}
	if r, ok := config.FindRig(rigs, "b"); !ok || r.Title != "B" {
		t.Fatalf("find b: %v %v", r, ok)
	}
	if _, ok := config.FindRig(rigs, "zzz"); ok {
		t.Fatalf("unexpected match")
	}
}
